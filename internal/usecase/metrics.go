package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"assetgateway/internal/domain"
)

// MetricsUseCase はメトリクス関連のユースケースを実装
type MetricsUseCase struct {
	metrics      domain.MetricsCollector
	logger       domain.Logger
	saveInterval time.Duration
}

// MetricsConfig はメトリクスの設定を表す
type MetricsConfig struct {
	SaveInterval time.Duration
}

// NewMetricsUseCase は新しいMetricsUseCaseインスタンスを作成
func NewMetricsUseCase(
	metrics domain.MetricsCollector, logger domain.Logger, config MetricsConfig,
) *MetricsUseCase {
	if config.SaveInterval == 0 {
		config.SaveInterval = 1 * time.Minute
	}

	return &MetricsUseCase{
		metrics:      metrics,
		logger:       logger,
		saveInterval: config.SaveInterval,
	}
}

// Run は ctx がキャンセルされるまで定期的にメトリクスを保存し, 終了時に最後の保存を行う
func (uc *MetricsUseCase) Run(ctx context.Context) error {
	uc.logger.Info("Starting metrics collection", map[string]interface{}{
		"save_interval": uc.saveInterval.String(),
	})

	ticker := time.NewTicker(uc.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := uc.Save(); err != nil {
				uc.logger.Error("Failed to save metrics", err, nil)
			}
		case <-ctx.Done():
			uc.logger.Info("Stopping periodic metrics save", nil)
			if err := uc.Save(); err != nil {
				uc.logger.Error("Failed to save metrics", err, nil)
			}
			return nil
		}
	}
}

// Save は現在のメトリクスを保存
func (uc *MetricsUseCase) Save() error {
	// メトリクスの保存処理をリポジトリに委譲
	saver, ok := uc.metrics.(interface {
		SaveMetrics(*domain.MetricsSnapshot) error
	})
	if !ok {
		return nil
	}
	if err := saver.SaveMetrics(uc.GetMetricsSnapshot()); err != nil {
		return errors.Wrap(err, "save metrics")
	}
	return nil
}

// GetMetricsSnapshot は現在のメトリクスのスナップショットを取得
func (uc *MetricsUseCase) GetMetricsSnapshot() *domain.MetricsSnapshot {
	return uc.metrics.GetSnapshot()
}

// GetPrometheusMetrics はPrometheus形式のメトリクスを取得
func (uc *MetricsUseCase) GetPrometheusMetrics() string {
	return uc.GetMetricsSnapshot().ToPrometheusFormat()
}
