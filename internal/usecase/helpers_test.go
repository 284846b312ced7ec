package usecase

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"assetgateway/internal/domain"
	"assetgateway/internal/interface/clients"
	"assetgateway/internal/interface/notification"
	"assetgateway/internal/interface/repository/cache"
	"assetgateway/internal/interface/repository/cache/sqlite"
	"assetgateway/internal/interface/repository/metrics"
)

const (
	siteOrigin   = "https://mudanzas.example.com"
	apiOrigin    = "https://api.example.com"
	bucketOrigin = "https://bucket.s3.amazonaws.com"
)

type nopLogger struct{}

func (nopLogger) Info(string, map[string]interface{})         {}
func (nopLogger) Warn(string, map[string]interface{})         {}
func (nopLogger) Error(string, error, map[string]interface{}) {}
func (nopLogger) Debug(string, map[string]interface{})        {}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeFetcher は URL ごとの応答と呼び出し回数を保持する
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*domain.Response
	failures  map[string]error
	calls     map[string]int
	headers   map[string]http.Header
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]*domain.Response),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
		headers:   make(map[string]http.Header),
	}
}

func (f *fakeFetcher) Respond(url string, status int, body string) {
	f.RespondWithHeader(url, status, body, http.Header{})
}

// RespondWithHeader は Content-Type に加えて任意のヘッダを返すよう設定する
func (f *fakeFetcher) RespondWithHeader(url string, status int, body string, header http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, url)
	h := header.Clone()
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "text/plain")
	}
	f.responses[url] = &domain.Response{
		Status: status,
		Header: h,
		Body:   []byte(body),
		Source: domain.SourceNetwork,
	}
}

// LastHeader は URL へ最後に送られたリクエストヘッダを返す
func (f *fakeFetcher) LastHeader(url string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[url]
}

func (f *fakeFetcher) Fail(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[url] = &domain.FetchError{URL: url, Err: errors.New("connection refused")}
}

func (f *fakeFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url := req.URL.String()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	f.headers[url] = req.Header.Clone()
	if err, ok := f.failures[url]; ok {
		return nil, err
	}
	resp, ok := f.responses[url]
	if !ok {
		return &domain.Response{Status: http.StatusNotFound, Header: http.Header{}, Source: domain.SourceNetwork}, nil
	}
	return resp.Clone(), nil
}

// Resolve はサイトのオリジンを基準にパスを解決する
func (f *fakeFetcher) Resolve(ref string) (string, error) {
	if strings.HasPrefix(ref, "/") {
		return siteOrigin + ref, nil
	}
	return ref, nil
}

// storageBackends はインターセプタのテストを走らせるストレージ実装
var storageBackends = []struct {
	name string
	open func(t *testing.T) domain.Storage
}{
	{
		name: "memory",
		open: func(*testing.T) domain.Storage { return cache.New() },
	},
	{
		name: "sqlite",
		open: func(t *testing.T) domain.Storage {
			store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	},
}

// eachBackend はストレージ実装ごとに新しいフィクスチャでテストを実行する
func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Helper()
	for _, b := range storageBackends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newFixtureWith(t, b.open(t)))
		})
	}
}

type fixture struct {
	storage     domain.Storage
	fetcher     *fakeFetcher
	policy      *domain.Policy
	metrics     *metrics.Repository
	clients     *clients.Manager
	notifier    *notification.Center
	clock       *testClock
	interceptor *InterceptorUseCase
	lifecycle   *LifecycleUseCase
	push        *PushUseCase
	dispatcher  *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, cache.New())
}

func newFixtureWith(t *testing.T, storage domain.Storage) *fixture {
	t.Helper()
	f := &fixture{
		storage:  storage,
		fetcher:  newFakeFetcher(),
		policy:   domain.DefaultPolicy(apiOrigin, bucketOrigin),
		metrics:  metrics.New(""),
		clients:  clients.NewManager(0),
		notifier: notification.NewCenter(0),
		clock:    newTestClock(),
	}
	f.interceptor = NewInterceptorUseCase(f.storage, f.fetcher, f.policy, f.metrics, nopLogger{})
	f.interceptor.now = f.clock.Now
	f.lifecycle = NewLifecycleUseCase(f.storage, f.fetcher, f.fetcher, f.policy, f.clients, f.metrics, nopLogger{})
	f.lifecycle.now = f.clock.Now
	f.push = NewPushUseCase(f.notifier, f.clients, f.policy, f.metrics, nopLogger{})
	f.dispatcher = NewDispatcher(f.lifecycle, f.interceptor, f.push, nopLogger{})
	return f
}

func newRequest(t *testing.T, rawURL string, dest domain.Destination) *domain.Request {
	t.Helper()
	req, err := domain.NewRequest(http.MethodGet, rawURL)
	require.NoError(t, err)
	req.Destination = dest
	return req
}

// fetch はリクエストを処理し, バックグラウンド処理の完了まで待つ
func (f *fixture) fetch(t *testing.T, req *domain.Request) *domain.FetchResult {
	t.Helper()
	res, err := f.interceptor.Handle(context.Background(), req)
	require.NoError(t, err)
	res.Wait()
	return res
}

func (f *fixture) partitionLen(t *testing.T, name string) int {
	t.Helper()
	p, err := f.storage.Open(context.Background(), name)
	require.NoError(t, err)
	n, err := p.Len(context.Background())
	require.NoError(t, err)
	return n
}
