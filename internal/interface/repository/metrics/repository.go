package metrics

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"assetgateway/internal/domain"
)

// Repository はメトリクスのリポジトリ実装
type Repository struct {
	metricsFile   string
	startTime     time.Time
	requests      atomic.Int64
	bytesServed   atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	fetches       atomic.Int64
	fetchErrors   atomic.Int64
	revalidations atomic.Int64
	evictions     atomic.Int64
	deleted       atomic.Int64
	shown         atomic.Int64
	skipped       atomic.Int64
	errors        atomic.Int64
}

// インターフェースの実装を検証
var _ domain.MetricsCollector = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成
func New(metricsFile string) *Repository {
	return &Repository{
		metricsFile: metricsFile,
		startTime:   time.Now(),
	}
}

// SaveMetrics はメトリクスをファイルに保存
func (r *Repository) SaveMetrics(snapshot *domain.MetricsSnapshot) error {
	if r.metricsFile == "" {
		return nil
	}
	data, err := snapshot.ToJSON()
	if err != nil {
		return errors.Wrap(err, "encode metrics")
	}

	tempFile := r.metricsFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return errors.Wrap(err, "write metrics")
	}

	return errors.Wrap(os.Rename(tempFile, r.metricsFile), "replace metrics file")
}

// 以下、MetricsCollector インターフェースの実装
func (r *Repository) RecordRequest()             { r.requests.Add(1) }
func (r *Repository) RecordCacheHit()            { r.cacheHits.Add(1) }
func (r *Repository) RecordCacheMiss()           { r.cacheMisses.Add(1) }
func (r *Repository) RecordNetworkFetch()        { r.fetches.Add(1) }
func (r *Repository) RecordNetworkError()        { r.fetchErrors.Add(1) }
func (r *Repository) RecordRevalidation()        { r.revalidations.Add(1) }
func (r *Repository) RecordEvictions(n int)      { r.evictions.Add(int64(n)) }
func (r *Repository) RecordPartitionDeleted()    { r.deleted.Add(1) }
func (r *Repository) RecordNotificationShown()   { r.shown.Add(1) }
func (r *Repository) RecordNotificationSkipped() { r.skipped.Add(1) }
func (r *Repository) RecordError()               { r.errors.Add(1) }
func (r *Repository) AddBytesServed(n int64)     { r.bytesServed.Add(n) }

func (r *Repository) GetSnapshot() *domain.MetricsSnapshot {
	return &domain.MetricsSnapshot{
		Timestamp:            time.Now(),
		StartTime:            r.startTime,
		TotalRequests:        r.requests.Load(),
		BytesServed:          r.bytesServed.Load(),
		CacheHits:            r.cacheHits.Load(),
		CacheMisses:          r.cacheMisses.Load(),
		NetworkFetches:       r.fetches.Load(),
		NetworkErrors:        r.fetchErrors.Load(),
		Revalidations:        r.revalidations.Load(),
		Evictions:            r.evictions.Load(),
		PartitionsDeleted:    r.deleted.Load(),
		NotificationsShown:   r.shown.Load(),
		NotificationsSkipped: r.skipped.Load(),
		Errors:               r.errors.Load(),
		Uptime:               time.Since(r.startTime).Round(time.Second).String(),
	}
}
