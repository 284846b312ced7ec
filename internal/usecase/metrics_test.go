package usecase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetgateway/internal/domain"
	"assetgateway/internal/interface/repository/metrics"
)

func TestMetricsUseCase_RunSavesOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	repo := metrics.New(path)
	repo.RecordRequest()
	repo.RecordCacheHit()

	uc := NewMetricsUseCase(repo, nopLogger{}, MetricsConfig{SaveInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- uc.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snapshot domain.MetricsSnapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Equal(t, int64(1), snapshot.TotalRequests)
	assert.Equal(t, int64(1), snapshot.CacheHits)
}

func TestMetricsUseCase_GetPrometheusMetrics(t *testing.T) {
	repo := metrics.New("")
	repo.RecordEvictions(3)

	uc := NewMetricsUseCase(repo, nopLogger{}, MetricsConfig{})
	out := uc.GetPrometheusMetrics()
	assert.Contains(t, out, "# TYPE gateway_evictions_total counter\ngateway_evictions_total 3")
	require.NoError(t, uc.Save())
}
