package usecase

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"assetgateway/internal/domain"
)

// Dispatcher はイベントを種別ごとのユースケースへ振り分ける
type Dispatcher struct {
	lifecycle   *LifecycleUseCase
	interceptor *InterceptorUseCase
	push        *PushUseCase
	logger      domain.Logger
}

// NewDispatcher は新しいDispatcherインスタンスを作成
func NewDispatcher(
	lifecycle *LifecycleUseCase,
	interceptor *InterceptorUseCase,
	push *PushUseCase,
	logger domain.Logger,
) *Dispatcher {
	return &Dispatcher{
		lifecycle:   lifecycle,
		interceptor: interceptor,
		push:        push,
		logger:      logger,
	}
}

// Dispatch はイベントを処理して結果を返す
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.Event) (domain.Result, error) {
	var (
		res domain.Result
		err error
	)
	switch e := event.(type) {
	case domain.InstallEvent:
		var r *domain.InstallResult
		r, err = d.lifecycle.Install(ctx)
		res = r
	case domain.ActivateEvent:
		var r *domain.ActivateResult
		r, err = d.lifecycle.Activate(ctx)
		res = r
	case domain.FetchEvent:
		if e.Request == nil {
			return nil, errors.New("fetch event without request")
		}
		var r *domain.FetchResult
		r, err = d.interceptor.Handle(ctx, e.Request)
		res = r
	case domain.PushEvent:
		var r *domain.PushResult
		r, err = d.push.Push(ctx, e.Data)
		res = r
	case domain.NotificationClickEvent:
		var r *domain.NotificationClickResult
		r, err = d.push.NotificationClick(ctx, e.NotificationID)
		res = r
	default:
		d.logger.Warn("Unhandled event", map[string]interface{}{"event": fmt.Sprintf("%T", event)})
		return nil, errors.Wrapf(domain.ErrUnknownEvent, "%T", event)
	}

	// エラー時は型付き nil を返さない
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Drain はフェッチイベントのバックグラウンド処理の完了を待つ
func (d *Dispatcher) Drain(ctx context.Context) error {
	return d.interceptor.Drain(ctx)
}
