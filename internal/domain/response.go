package domain

import (
	"net/http"
	"strings"
)

// StatusOpaque はクロスオリジン no-cors レスポンスのステータスコード.
const StatusOpaque = 0

// Source はレスポンスの取得元.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// Response はキャッシュまたはネットワークから得たレスポンスを表す.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Source Source
}

// Opaque はレスポンスが中身を検査できない opaque レスポンスかを返す.
func (r *Response) Opaque() bool {
	return r.Status == StatusOpaque
}

// Shareable は共有キャッシュへ保存してよいレスポンスかを返す.
// Cache-Control に private または no-store があれば保存しない
func (r *Response) Shareable() bool {
	for _, v := range r.Header.Values("Cache-Control") {
		for _, directive := range strings.Split(v, ",") {
			name, _, _ := strings.Cut(strings.TrimSpace(directive), "=")
			switch strings.ToLower(name) {
			case "private", "no-store":
				return false
			}
		}
	}
	return true
}

// Clone はレスポンスのディープコピーを返す.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   body,
		Source: r.Source,
	}
}
