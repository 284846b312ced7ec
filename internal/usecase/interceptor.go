package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"assetgateway/internal/domain"
)

// InterceptorUseCase はフェッチイベントをルート規則に従って処理する
type InterceptorUseCase struct {
	storage domain.Storage
	fetcher domain.Fetcher
	policy  domain.PolicyProvider
	metrics domain.MetricsCollector
	logger  domain.Logger
	now     func() time.Time
	pending sync.WaitGroup
}

// NewInterceptorUseCase は新しいInterceptorUseCaseインスタンスを作成
func NewInterceptorUseCase(
	storage domain.Storage,
	fetcher domain.Fetcher,
	policy domain.PolicyProvider,
	metrics domain.MetricsCollector,
	logger domain.Logger,
) *InterceptorUseCase {
	return &InterceptorUseCase{
		storage: storage,
		fetcher: fetcher,
		policy:  policy,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Handle はリクエストを処理し, 呼び出し元へ返すレスポンスを決定する
func (uc *InterceptorUseCase) Handle(ctx context.Context, req *domain.Request) (*domain.FetchResult, error) {
	uc.metrics.RecordRequest()
	bg := newBackground(&uc.pending)
	result := &domain.FetchResult{}

	var (
		resp *domain.Response
		err  error
	)
	rule, matched := domain.MatchRule(uc.policy.Current().Rules, req)
	switch {
	case !req.Cacheable():
		resp, err = uc.network(ctx, req)
	case !matched:
		resp, err = uc.fallback(ctx, req)
	default:
		result.Rule = rule.Name
		result.Strategy = rule.Strategy
		switch rule.Strategy {
		case domain.StrategyCacheFirst:
			resp, err = uc.cacheFirst(ctx, req, rule, bg)
		case domain.StrategyStaleWhileRevalidate:
			resp, err = uc.staleWhileRevalidate(ctx, req, rule, bg)
		default:
			err = errors.Errorf("rule %s: unknown strategy %q", rule.Name, rule.Strategy)
		}
	}
	result.Done = bg.seal()

	if err != nil {
		uc.metrics.RecordError()
		return nil, err
	}
	uc.metrics.AddBytesServed(int64(len(resp.Body)))
	result.Response = resp
	return result, nil
}

// Drain は処理中のバックグラウンド処理の完了を待つ
func (uc *InterceptorUseCase) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		uc.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cacheFirst はキャッシュにあればネットワークに触れずに返す
func (uc *InterceptorUseCase) cacheFirst(
	ctx context.Context, req *domain.Request, rule domain.Rule, bg *background,
) (*domain.Response, error) {
	p, err := uc.storage.Open(ctx, rule.Partition)
	if err != nil {
		return nil, errors.Wrapf(err, "open partition %s", rule.Partition)
	}

	if entry, ok := uc.lookup(ctx, p, req, rule); ok {
		uc.metrics.RecordCacheHit()
		return entry.Response, nil
	}
	uc.metrics.RecordCacheMiss()

	resp, stored, err := uc.fetchAndPut(ctx, p, req, rule)
	if err != nil {
		return nil, err
	}
	if stored {
		bg.Go(func() { uc.expire(context.WithoutCancel(ctx), p, rule) })
	}
	return resp, nil
}

// staleWhileRevalidate はキャッシュがあれば即座に返し, 裏でネットワークから更新する
func (uc *InterceptorUseCase) staleWhileRevalidate(
	ctx context.Context, req *domain.Request, rule domain.Rule, bg *background,
) (*domain.Response, error) {
	p, err := uc.storage.Open(ctx, rule.Partition)
	if err != nil {
		return nil, errors.Wrapf(err, "open partition %s", rule.Partition)
	}

	if entry, ok := uc.lookup(ctx, p, req, rule); ok {
		uc.metrics.RecordCacheHit()
		uc.metrics.RecordRevalidation()
		bgCtx := context.WithoutCancel(ctx)
		bg.Go(func() {
			_, stored, err := uc.fetchAndPut(bgCtx, p, req, rule)
			if err != nil {
				uc.logger.Warn("Background revalidation failed", map[string]interface{}{
					"url":       req.URL.String(),
					"partition": rule.Partition,
					"error":     err.Error(),
				})
				return
			}
			if stored {
				uc.expire(bgCtx, p, rule)
			}
		})
		return entry.Response, nil
	}
	uc.metrics.RecordCacheMiss()

	resp, stored, err := uc.fetchAndPut(ctx, p, req, rule)
	if err != nil {
		return nil, err
	}
	if stored {
		bg.Go(func() { uc.expire(context.WithoutCancel(ctx), p, rule) })
	}
	return resp, nil
}

// fallback はどのルールにもマッチしないリクエストを処理する.
// 全パーティションを検索し, なければネットワークへそのまま流す (キャッシュしない)
func (uc *InterceptorUseCase) fallback(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	entry, ok, err := uc.storage.Match(ctx, req)
	if err != nil {
		uc.logger.Error("Cache lookup failed", err, map[string]interface{}{"url": req.URL.String()})
	}
	if ok {
		uc.metrics.RecordCacheHit()
		return entry.Response, nil
	}
	uc.metrics.RecordCacheMiss()
	return uc.network(ctx, req)
}

// lookup はパーティションを検索する. 最大保持期間を過ぎたエントリはミス扱いとし, その場で削除する
func (uc *InterceptorUseCase) lookup(
	ctx context.Context, p domain.Partition, req *domain.Request, rule domain.Rule,
) (*domain.CacheEntry, bool) {
	entry, ok, err := p.Match(ctx, req)
	if err != nil {
		uc.logger.Error("Cache lookup failed", err, map[string]interface{}{
			"url":       req.URL.String(),
			"partition": rule.Partition,
		})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !rule.Expiration.Fresh(entry.StoredAt, uc.now()) {
		if deleted, err := p.Delete(ctx, entry.Key); err != nil {
			uc.logger.Error("Failed to purge expired entry", err, map[string]interface{}{
				"key":       entry.Key,
				"partition": rule.Partition,
			})
		} else if deleted {
			uc.metrics.RecordEvictions(1)
		}
		return nil, false
	}
	return entry, true
}

// fetchAndPut は共有用のリクエストでネットワークから取得し,
// 許可されたステータスかつ共有可能なレスポンスならコピーを保存する
func (uc *InterceptorUseCase) fetchAndPut(
	ctx context.Context, p domain.Partition, req *domain.Request, rule domain.Rule,
) (*domain.Response, bool, error) {
	shared := req.Shared()
	resp, err := uc.network(ctx, shared)
	if err != nil {
		return nil, false, err
	}
	if !rule.Cacheable(resp.Status) {
		return resp, false, nil
	}
	if !resp.Shareable() {
		uc.logger.Debug("Response is not shareable, not stored", map[string]interface{}{
			"url":       req.URL.String(),
			"partition": rule.Partition,
		})
		return resp, false, nil
	}

	stored := resp.Clone()
	stored.Header.Del("Set-Cookie")
	if err := p.Put(ctx, shared, stored, uc.now()); err != nil {
		uc.metrics.RecordError()
		uc.logger.Error("Cache write failed", err, map[string]interface{}{
			"url":       req.URL.String(),
			"partition": rule.Partition,
		})
		return resp, false, nil
	}
	return resp, true, nil
}

func (uc *InterceptorUseCase) network(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	uc.metrics.RecordNetworkFetch()
	resp, err := uc.fetcher.Fetch(ctx, req)
	if err != nil {
		uc.metrics.RecordNetworkError()
		return nil, err
	}
	return resp, nil
}

// expire はパーティションの期限切れ処理を行う
func (uc *InterceptorUseCase) expire(ctx context.Context, p domain.Partition, rule domain.Rule) {
	removed, err := ExpireEntries(ctx, p, rule.Expiration, uc.now())
	if len(removed) > 0 {
		uc.metrics.RecordEvictions(len(removed))
		uc.logger.Debug("Expired cache entries", map[string]interface{}{
			"partition": rule.Partition,
			"removed":   len(removed),
		})
	}
	if err != nil {
		uc.logger.Error("Cache expiration failed", err, map[string]interface{}{"partition": rule.Partition})
	}
}
