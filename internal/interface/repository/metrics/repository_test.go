package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetgateway/internal/domain"
)

func TestRepository_Counters(t *testing.T) {
	repo := New("")
	repo.RecordRequest()
	repo.RecordRequest()
	repo.RecordCacheHit()
	repo.RecordCacheMiss()
	repo.RecordNetworkFetch()
	repo.RecordEvictions(3)
	repo.AddBytesServed(512)

	snapshot := repo.GetSnapshot()
	assert.EqualValues(t, 2, snapshot.TotalRequests)
	assert.EqualValues(t, 1, snapshot.CacheHits)
	assert.EqualValues(t, 1, snapshot.CacheMisses)
	assert.EqualValues(t, 1, snapshot.NetworkFetches)
	assert.EqualValues(t, 3, snapshot.Evictions)
	assert.EqualValues(t, 512, snapshot.BytesServed)

	text := snapshot.ToPrometheusFormat()
	assert.Contains(t, text, "# TYPE gateway_cache_hits_total counter\ngateway_cache_hits_total 1")
	assert.Contains(t, text, "gateway_evictions_total 3")
}

func TestRepository_SaveMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	repo := New(path)
	repo.RecordNotificationShown()

	require.NoError(t, repo.SaveMetrics(repo.GetSnapshot()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var saved domain.MetricsSnapshot
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.EqualValues(t, 1, saved.NotificationsShown)
}
