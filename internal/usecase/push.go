package usecase

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"assetgateway/internal/domain"
)

// pushPayload はプッシュメッセージのJSONペイロード
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
}

// PushUseCase はプッシュ受信と通知クリックを扱う
type PushUseCase struct {
	notifier domain.Notifier
	clients  domain.ClientRegistry
	policy   domain.PolicyProvider
	metrics  domain.MetricsCollector
	logger   domain.Logger
}

// NewPushUseCase は新しいPushUseCaseインスタンスを作成
func NewPushUseCase(
	notifier domain.Notifier,
	clients domain.ClientRegistry,
	policy domain.PolicyProvider,
	metrics domain.MetricsCollector,
	logger domain.Logger,
) *PushUseCase {
	return &PushUseCase{
		notifier: notifier,
		clients:  clients,
		policy:   policy,
		metrics:  metrics,
		logger:   logger,
	}
}

// Push はペイロードから通知を組み立てて表示する.
// 空のペイロードは既定値のみの通知になり, 不正なJSONは通知せずに警告を残す
func (uc *PushUseCase) Push(ctx context.Context, data []byte) (*domain.PushResult, error) {
	var payload pushPayload
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			uc.metrics.RecordNotificationSkipped()
			uc.logger.Warn("Malformed push payload, notification skipped", map[string]interface{}{
				"size":  len(data),
				"error": err.Error(),
			})
			return &domain.PushResult{Shown: false}, nil
		}
	}

	defaults := uc.policy.Current().Push
	shown, err := uc.notifier.Show(ctx, domain.Notification{
		Title: firstNonEmpty(payload.Title, defaults.Title),
		Body:  payload.Body,
		Icon:  firstNonEmpty(payload.Icon, defaults.Icon),
		Badge: firstNonEmpty(payload.Badge, defaults.Badge),
	})
	if err != nil {
		uc.metrics.RecordError()
		return nil, errors.Wrap(err, "show notification")
	}

	uc.metrics.RecordNotificationShown()
	uc.logger.Info("Notification shown", map[string]interface{}{
		"id":    shown.ID,
		"title": shown.Title,
	})
	return &domain.PushResult{Notification: shown, Shown: true}, nil
}

// NotificationClick は通知を閉じ, ルートURLのウィンドウにフォーカスするか新しく開く
func (uc *PushUseCase) NotificationClick(ctx context.Context, id string) (*domain.NotificationClickResult, error) {
	if err := uc.notifier.Close(ctx, id); err != nil {
		return nil, err
	}

	client, err := uc.clients.OpenWindow(ctx, uc.policy.Current().RootURL)
	if err != nil {
		uc.metrics.RecordError()
		return nil, errors.Wrap(err, "open window")
	}

	uc.logger.Info("Notification clicked", map[string]interface{}{
		"id":     id,
		"client": client.ID,
		"url":    client.URL,
	})
	return &domain.NotificationClickResult{Client: client}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
