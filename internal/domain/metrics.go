package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MetricsCollector はメトリクス収集のインターフェース
type MetricsCollector interface {
	RecordRequest()
	RecordCacheHit()
	RecordCacheMiss()
	RecordNetworkFetch()
	RecordNetworkError()
	RecordRevalidation()
	RecordEvictions(n int)
	RecordPartitionDeleted()
	RecordNotificationShown()
	RecordNotificationSkipped()
	RecordError()
	AddBytesServed(n int64)
	GetSnapshot() *MetricsSnapshot
}

// MetricsSnapshot はメトリクスのスナップショットを表す
type MetricsSnapshot struct {
	Timestamp            time.Time `json:"timestamp"`
	StartTime            time.Time `json:"start_time"`
	TotalRequests        int64     `json:"total_requests"`
	BytesServed          int64     `json:"bytes_served"`
	CacheHits            int64     `json:"cache_hits"`
	CacheMisses          int64     `json:"cache_misses"`
	NetworkFetches       int64     `json:"network_fetches"`
	NetworkErrors        int64     `json:"network_errors"`
	Revalidations        int64     `json:"revalidations"`
	Evictions            int64     `json:"evictions"`
	PartitionsDeleted    int64     `json:"partitions_deleted"`
	NotificationsShown   int64     `json:"notifications_shown"`
	NotificationsSkipped int64     `json:"notifications_skipped"`
	Errors               int64     `json:"errors"`
	Uptime               string    `json:"uptime"`
}

// ToJSON はスナップショットをJSON形式に変換
func (ms *MetricsSnapshot) ToJSON() ([]byte, error) {
	return json.MarshalIndent(ms, "", "  ")
}

// ToPrometheusFormat はスナップショットをPrometheus形式に変換
func (ms *MetricsSnapshot) ToPrometheusFormat() string {
	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"gateway_requests_total", "Total number of intercepted requests", ms.TotalRequests},
		{"gateway_bytes_served_total", "Total number of response body bytes served", ms.BytesServed},
		{"gateway_cache_hits_total", "Total number of cache hits", ms.CacheHits},
		{"gateway_cache_misses_total", "Total number of cache misses", ms.CacheMisses},
		{"gateway_network_fetches_total", "Total number of network fetches", ms.NetworkFetches},
		{"gateway_network_errors_total", "Total number of failed network fetches", ms.NetworkErrors},
		{"gateway_revalidations_total", "Total number of background cache refreshes", ms.Revalidations},
		{"gateway_evictions_total", "Total number of expired or evicted cache entries", ms.Evictions},
		{"gateway_partitions_deleted_total", "Total number of cache partitions deleted on activation", ms.PartitionsDeleted},
		{"gateway_notifications_shown_total", "Total number of notifications shown", ms.NotificationsShown},
		{"gateway_notifications_skipped_total", "Total number of push messages skipped", ms.NotificationsSkipped},
		{"gateway_errors_total", "Total number of errors", ms.Errors},
	}

	var out []string
	for _, m := range metrics {
		out = append(out, fmt.Sprintf("# HELP %s %s\n# TYPE %s counter\n%s %d",
			m.name, m.help, m.name, m.name, m.value))
	}
	return strings.Join(out, "\n\n") + "\n"
}
