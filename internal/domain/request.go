package domain

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/xid"
)

// Destination はリクエストの宛先種別 (Sec-Fetch-Dest) を表す.
type Destination string

const (
	DestinationNone     Destination = ""
	DestinationDocument Destination = "document"
	DestinationImage    Destination = "image"
	DestinationScript   Destination = "script"
	DestinationStyle    Destination = "style"
	DestinationFont     Destination = "font"
)

// Mode はリクエストモード (Sec-Fetch-Mode) を表す.
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
	ModeSameOrigin Mode = "same-origin"
)

// Request はゲートウェイが横取りしたリクエストを表す.
type Request struct {
	ID          string
	Method      string
	URL         *url.URL
	Destination Destination
	Mode        Mode
	Header      http.Header
	// Body はネットワークへそのまま転送するリクエストボディ
	Body        []byte
	ClientID    string
}

// NewRequest は絶対URLから新しいRequestを作成.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse request url %q", rawURL)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errors.Errorf("request url %q must be absolute", rawURL)
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		ID:     xid.New().String(),
		Method: strings.ToUpper(method),
		URL:    u,
		Header: make(http.Header),
	}, nil
}

// Key はキャッシュ上のリクエスト識別子 (method + URL) を返す.
// フラグメントは識別子に含めない.
func (r *Request) Key() string {
	u := *r.URL
	u.Fragment = ""
	u.RawFragment = ""
	return r.Method + " " + u.String()
}

// Origin は scheme://host 形式のオリジンを返す.
func (r *Request) Origin() string {
	return OriginOf(r.URL)
}

// Cacheable はキャッシュストレージに保存可能なメソッドかを返す.
func (r *Request) Cacheable() bool {
	return r.Method == http.MethodGet
}

// sharedStripHeaders は共有キャッシュ用の取得でオリジンへ送らないヘッダ
var sharedStripHeaders = []string{
	"Authorization",
	"Cookie",
	"If-Match",
	"If-Modified-Since",
	"If-None-Match",
	"If-Range",
	"If-Unmodified-Since",
	"Range",
}

// Shared は共有キャッシュに保存するための取得用コピーを返す.
// キーは元のリクエストと同じになる
func (r *Request) Shared() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	for _, h := range sharedStripHeaders {
		c.Header.Del(h)
	}
	return &c
}

// OriginOf はURLのオリジンを小文字で返す.
func OriginOf(u *url.URL) string {
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
