package handler

import (
	"encoding/json"
	"net/http"

	"assetgateway/internal/domain"
	"assetgateway/internal/usecase"
)

// MetricsHandler はメトリクス関連のHTTPリクエストを処理
type MetricsHandler struct {
	metricsUseCase *usecase.MetricsUseCase
	lifecycle      *usecase.LifecycleUseCase
	logger         domain.Logger
}

// NewMetricsHandler は新しいMetricsHandlerインスタンスを作成
func NewMetricsHandler(
	metricsUseCase *usecase.MetricsUseCase, lifecycle *usecase.LifecycleUseCase, logger domain.Logger,
) *MetricsHandler {
	return &MetricsHandler{
		metricsUseCase: metricsUseCase,
		lifecycle:      lifecycle,
		logger:         logger,
	}
}

// Register はメトリクスとヘルスチェックのルートを登録する
func (h *MetricsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /metrics", h.HandleMetrics)
	mux.HandleFunc("GET /stats", h.HandleStats)
	mux.HandleFunc("GET /health", h.HandleHealth)
}

// OpsRoutes は運用ポート用のハンドラを組み立てる
func OpsRoutes(metrics *MetricsHandler, control *ControlHandler) http.Handler {
	mux := http.NewServeMux()
	metrics.Register(mux)
	control.Register(mux)
	return mux
}

// HandleMetrics はPrometheus形式のメトリクスを提供
func (h *MetricsHandler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(h.metricsUseCase.GetPrometheusMetrics()))
}

// HandleStats はJSON形式の詳細な統計情報を提供
func (h *MetricsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.metricsUseCase.GetMetricsSnapshot()); err != nil {
		h.logger.Error("Failed to encode metrics", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// HandleHealth はヘルスチェックエンドポイントを提供
func (h *MetricsHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "up",
		"lifecycle": h.lifecycle.State().String(),
	})
}
