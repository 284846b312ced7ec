package network

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"assetgateway/internal/domain"
)

// hopHeaders はオリジンへ転送しないホップバイホップヘッダ
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// userAgentRoundTripper はUser-Agentヘッダを付与するRoundTripper
type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.userAgent)
	return rt.wrapped.RoundTrip(clone)
}

// Config はフェッチャの設定
type Config struct {
	// SiteOrigin はゲートウェイが代理するサイトのオリジン
	SiteOrigin string
	UserAgent  string
	Timeout    time.Duration
	// MaxBodySize を超えるボディはエラーになる. 0 は無制限
	MaxBodySize int64
}

// Fetcher は net/http によるネットワーク取得の実装
type Fetcher struct {
	client      *http.Client
	site        *url.URL
	maxBodySize int64
}

var _ domain.Fetcher = (*Fetcher)(nil)

// New は新しいFetcherインスタンスを作成. base が nil の場合は既定のクライアントを使う
func New(cfg Config, base *http.Client) (*Fetcher, error) {
	site, err := url.Parse(cfg.SiteOrigin)
	if err != nil || site.Scheme == "" || site.Host == "" {
		return nil, errors.Errorf("invalid site origin %q", cfg.SiteOrigin)
	}

	if base == nil {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = dialer.DialContext
		base = &http.Client{Transport: transport}
	}
	if base.Transport == nil {
		base.Transport = http.DefaultTransport
	}
	if cfg.UserAgent != "" {
		base.Transport = &userAgentRoundTripper{wrapped: base.Transport, userAgent: cfg.UserAgent}
	}
	if cfg.Timeout > 0 {
		base.Timeout = cfg.Timeout
	}
	// リダイレクトはそのままクライアントへ返す
	base.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Fetcher{
		client:      base,
		site:        site,
		maxBodySize: cfg.MaxBodySize,
	}, nil
}

// Resolve はサイト相対パスを絶対URLに解決する
func (f *Fetcher) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", errors.Wrapf(err, "parse %q", ref)
	}
	return f.site.ResolveReference(u).String(), nil
}

// SiteOrigin はサイトのオリジンを返す
func (f *Fetcher) SiteOrigin() string {
	return domain.OriginOf(f.site)
}

// Fetch はリクエストをネットワークへ送り, レスポンスを読み切って返す
func (f *Fetcher) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	var reqBody io.Reader
	if len(req.Body) > 0 {
		reqBody = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), reqBody)
	if err != nil {
		return nil, &domain.FetchError{URL: req.URL.String(), Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		httpReq.Header.Del(h)
	}

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &domain.FetchError{URL: req.URL.String(), Err: err}
	}
	defer httpResp.Body.Close()

	var body io.Reader = httpResp.Body
	if f.maxBodySize > 0 {
		body = io.LimitReader(httpResp.Body, f.maxBodySize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &domain.FetchError{URL: req.URL.String(), Err: errors.Wrap(err, "read body")}
	}
	if f.maxBodySize > 0 && int64(len(data)) > f.maxBodySize {
		return nil, &domain.FetchError{URL: req.URL.String(), Err: errors.Errorf("body exceeds %d bytes", f.maxBodySize)}
	}

	header := httpResp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}

	resp := &domain.Response{
		Status: httpResp.StatusCode,
		Header: header,
		Body:   data,
		Source: domain.SourceNetwork,
	}
	if f.opaque(req) {
		resp.Status = domain.StatusOpaque
		resp.Header = make(http.Header)
		if ct := header.Get("Content-Type"); ct != "" {
			resp.Header.Set("Content-Type", ct)
		}
	}
	return resp, nil
}

// opaque はクロスオリジンの no-cors リクエストかを判定
func (f *Fetcher) opaque(req *domain.Request) bool {
	return req.Mode == domain.ModeNoCORS && !strings.EqualFold(req.Origin(), f.SiteOrigin())
}
