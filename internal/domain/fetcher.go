package domain

import "context"

// Fetcher はネットワーク取得のインターフェース.
// 非2xxのレスポンスはエラーではなく, 通信自体の失敗のみエラーとなる.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// Logger はロギングのインターフェース.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}
