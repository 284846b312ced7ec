package cache

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetgateway/internal/domain"
)

func newTestRequest(t *testing.T, rawURL string) *domain.Request {
	t.Helper()
	req, err := domain.NewRequest(http.MethodGet, rawURL)
	require.NoError(t, err)
	return req
}

func TestRepository_OpenKeepsCreationOrder(t *testing.T) {
	ctx := context.Background()
	repo := New()

	for _, name := range []string{"b", "a", "c"} {
		_, err := repo.Open(ctx, name)
		require.NoError(t, err)
	}
	// 既存パーティションを開き直しても順序は変わらない
	_, err := repo.Open(ctx, "b")
	require.NoError(t, err)

	keys, err := repo.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, keys)

	deleted, err := repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	keys, err = repo.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, keys)
}

func TestPartition_PutMatch(t *testing.T) {
	ctx := context.Background()
	repo := New()
	p, err := repo.Open(ctx, "pages")
	require.NoError(t, err)

	req := newTestRequest(t, "https://example.com/index.html")
	resp := &domain.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte("<h1>hola</h1>"),
	}
	storedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Put(ctx, req, resp, storedAt))

	// 保存後に元のレスポンスを書き換えても影響しない
	resp.Body[0] = 'X'

	entry, ok, err := p.Match(ctx, req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<h1>hola</h1>", string(entry.Response.Body))
	assert.Equal(t, "text/html", entry.Response.Header.Get("Content-Type"))
	assert.Equal(t, domain.SourceCache, entry.Response.Source)
	assert.Equal(t, storedAt, entry.StoredAt)

	_, ok, err = p.Match(ctx, newTestRequest(t, "https://example.com/other"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPartition_CompressesLargeBodies(t *testing.T) {
	ctx := context.Background()
	p := newPartition("images")
	req := newTestRequest(t, "https://example.com/big.svg")
	body := bytes.Repeat([]byte("abcdefgh"), 1024)

	require.NoError(t, p.Put(ctx, req, &domain.Response{Status: 200, Body: body}, time.Now()))

	p.mu.RLock()
	stored := p.entries[req.Key()]
	p.mu.RUnlock()
	assert.True(t, stored.Compressed)
	assert.Less(t, stored.Size, int64(len(body)))

	entry, ok, err := p.Match(ctx, req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, body, entry.Response.Body)
}

func TestPartition_RejectsNonGET(t *testing.T) {
	p := newPartition("api")
	req, err := domain.NewRequest(http.MethodPost, "https://example.com/api")
	require.NoError(t, err)

	err = p.Put(context.Background(), req, &domain.Response{Status: 200}, time.Now())
	require.Error(t, err)
}

func TestPartition_EntriesOldestFirst(t *testing.T) {
	ctx := context.Background()
	p := newPartition("images")
	base := time.Now()

	require.NoError(t, p.Put(ctx, newTestRequest(t, "https://example.com/2"), &domain.Response{Status: 200}, base.Add(2*time.Second)))
	require.NoError(t, p.Put(ctx, newTestRequest(t, "https://example.com/1"), &domain.Response{Status: 200}, base.Add(time.Second)))
	require.NoError(t, p.Put(ctx, newTestRequest(t, "https://example.com/3"), &domain.Response{Status: 200}, base.Add(2*time.Second)))

	infos, err := p.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "GET https://example.com/1", infos[0].Key)
	assert.Equal(t, "GET https://example.com/2", infos[1].Key)
	assert.Equal(t, "GET https://example.com/3", infos[2].Key)
}

func TestRepository_MatchSearchesAllPartitions(t *testing.T) {
	ctx := context.Background()
	repo := New()
	first, err := repo.Open(ctx, "first")
	require.NoError(t, err)
	second, err := repo.Open(ctx, "second")
	require.NoError(t, err)

	req := newTestRequest(t, "https://example.com/logo.png")
	require.NoError(t, second.Put(ctx, req, &domain.Response{Status: 200, Body: []byte("second")}, time.Now()))

	entry, ok, err := repo.Match(ctx, req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", string(entry.Response.Body))

	require.NoError(t, first.Put(ctx, req, &domain.Response{Status: 200, Body: []byte("first")}, time.Now()))
	entry, ok, err = repo.Match(ctx, req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", string(entry.Response.Body))
}

func TestPartition_PutAfterDelete(t *testing.T) {
	ctx := context.Background()
	repo := New()
	p, err := repo.Open(ctx, "image-cache")
	require.NoError(t, err)

	_, err = repo.Delete(ctx, "image-cache")
	require.NoError(t, err)

	err = p.Put(ctx, newTestRequest(t, "https://example.com/a.png"), &domain.Response{Status: 200}, time.Now())
	assert.ErrorIs(t, err, domain.ErrPartitionNotFound)

	has, err := repo.Has(ctx, "image-cache")
	require.NoError(t, err)
	assert.False(t, has)
}
