package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetgateway/internal/domain"
)

func (f *fixture) serveManifest() {
	for _, ref := range f.policy.Manifest {
		f.fetcher.Respond(siteOrigin+ref, http.StatusOK, ref)
	}
}

func TestLifecycle_InstallPrecachesManifest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.serveManifest()

	res, err := f.lifecycle.Install(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPrecacheName, res.Partition)
	assert.Equal(t, len(f.policy.Manifest), res.Cached)
	assert.Equal(t, len(f.policy.Manifest), f.partitionLen(t, domain.DefaultPrecacheName))
	assert.Equal(t, StateInstalled, f.lifecycle.State())

	entry, ok, err := f.storage.Match(ctx, newRequest(t, siteOrigin+"/Terminos", domain.DestinationDocument))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/Terminos", string(entry.Response.Body))
}

func TestLifecycle_InstallIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.serveManifest()
	f.fetcher.Respond(siteOrigin+"/public/src/img/Valles.jpg", http.StatusNotFound, "")

	_, err := f.lifecycle.Install(ctx)
	require.Error(t, err)
	var installErr *domain.InstallError
	assert.True(t, errors.As(err, &installErr))

	has, err := f.storage.Has(ctx, domain.DefaultPrecacheName)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, StateIdle, f.lifecycle.State())

	_, err = f.lifecycle.Activate(ctx)
	assert.True(t, errors.Is(err, domain.ErrNotInstalled))
}

func TestLifecycle_InstallNetworkFailure(t *testing.T) {
	f := newFixture(t)
	f.serveManifest()
	f.fetcher.Fail(siteOrigin + "/index.html")

	_, err := f.lifecycle.Install(context.Background())
	require.Error(t, err)
	var installErr *domain.InstallError
	require.True(t, errors.As(err, &installErr))
}

func TestLifecycle_InstallRejectsDuplicateManifest(t *testing.T) {
	f := newFixture(t)
	f.policy.Manifest = []string{"/", "/"}
	f.serveManifest()

	_, err := f.lifecycle.Install(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, f.fetcher.Calls(siteOrigin+"/"))
}

func TestLifecycle_ActivateDeletesStalePartitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.serveManifest()

	for _, name := range []string{"my-cache-v0", "image-cache"} {
		_, err := f.storage.Open(ctx, name)
		require.NoError(t, err)
	}
	_, err := f.clients.Register(ctx, "/")
	require.NoError(t, err)
	_, err = f.clients.Register(ctx, "/Terminos")
	require.NoError(t, err)

	_, err = f.lifecycle.Install(ctx)
	require.NoError(t, err)

	res, err := f.lifecycle.Activate(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"my-cache-v0", "image-cache"}, res.Deleted)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 2, res.Claimed)
	assert.Equal(t, StateActivated, f.lifecycle.State())

	names, err := f.storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.DefaultPrecacheName}, names)
	assert.Equal(t, int64(2), f.metrics.GetSnapshot().PartitionsDeleted)
}

func TestLifecycle_ActivateBeforeInstall(t *testing.T) {
	f := newFixture(t)
	_, err := f.lifecycle.Activate(context.Background())
	assert.True(t, errors.Is(err, domain.ErrNotInstalled))
}

// failingStorage は特定パーティションの削除に失敗する
type failingStorage struct {
	domain.Storage
	fail string
}

func (s failingStorage) Delete(ctx context.Context, name string) (bool, error) {
	if name == s.fail {
		return false, errors.New("disk full")
	}
	return s.Storage.Delete(ctx, name)
}

func TestLifecycle_ActivateContinuesAfterDeleteFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.serveManifest()
	storage := failingStorage{Storage: f.storage, fail: "stuck-cache"}
	lifecycle := NewLifecycleUseCase(storage, f.fetcher, f.fetcher, f.policy, f.clients, f.metrics, nopLogger{})

	for _, name := range []string{"stuck-cache", "pages-cache"} {
		_, err := f.storage.Open(ctx, name)
		require.NoError(t, err)
	}
	_, err := lifecycle.Install(ctx)
	require.NoError(t, err)

	res, err := lifecycle.Activate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pages-cache"}, res.Deleted)
	assert.Equal(t, []string{"stuck-cache"}, res.Failed)
}
