package usecase

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"assetgateway/internal/domain"
)

// installConcurrency はプリキャッシュ取得の同時実行数
const installConcurrency = 8

// State はライフサイクルの状態
type State int

const (
	StateIdle State = iota
	StateInstalling
	StateInstalled
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivated:
		return "activated"
	default:
		return "idle"
	}
}

// Resolver はマニフェストの相対パスを絶対URLに解決する
type Resolver interface {
	Resolve(ref string) (string, error)
}

// LifecycleUseCase はインストールとアクティベーションを扱う
type LifecycleUseCase struct {
	storage  domain.Storage
	fetcher  domain.Fetcher
	resolver Resolver
	policy   domain.PolicyProvider
	clients  domain.ClientRegistry
	metrics  domain.MetricsCollector
	logger   domain.Logger
	now      func() time.Time

	mu    sync.Mutex
	state State
}

// NewLifecycleUseCase は新しいLifecycleUseCaseインスタンスを作成
func NewLifecycleUseCase(
	storage domain.Storage,
	fetcher domain.Fetcher,
	resolver Resolver,
	policy domain.PolicyProvider,
	clients domain.ClientRegistry,
	metrics domain.MetricsCollector,
	logger domain.Logger,
) *LifecycleUseCase {
	return &LifecycleUseCase{
		storage:  storage,
		fetcher:  fetcher,
		resolver: resolver,
		policy:   policy,
		clients:  clients,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// State は現在の状態を返す
func (uc *LifecycleUseCase) State() State {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.state
}

type precached struct {
	req  *domain.Request
	resp *domain.Response
}

// Install はマニフェストのURLをすべて取得してプリキャッシュに保存する.
// 1件でも失敗した場合は何も書き込まずにエラーを返す
func (uc *LifecycleUseCase) Install(ctx context.Context) (*domain.InstallResult, error) {
	uc.mu.Lock()
	if uc.state == StateInstalling {
		uc.mu.Unlock()
		return nil, errors.New("install already in progress")
	}
	previous := uc.state
	uc.state = StateInstalling
	uc.mu.Unlock()

	result, err := uc.install(ctx)

	uc.mu.Lock()
	if err != nil {
		uc.state = previous
	} else {
		uc.state = StateInstalled
	}
	uc.mu.Unlock()

	if err != nil {
		uc.metrics.RecordError()
		uc.logger.Error("Install failed", err, nil)
		return nil, err
	}
	uc.logger.Info("Install completed", map[string]interface{}{
		"partition": result.Partition,
		"cached":    result.Cached,
	})
	return result, nil
}

func (uc *LifecycleUseCase) install(ctx context.Context) (*domain.InstallResult, error) {
	policy := uc.policy.Current()

	seen := make(map[string]struct{}, len(policy.Manifest))
	for _, ref := range policy.Manifest {
		if _, dup := seen[ref]; dup {
			return nil, errors.Errorf("install: duplicate manifest entry %s", ref)
		}
		seen[ref] = struct{}{}
	}

	results := make([]precached, len(policy.Manifest))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installConcurrency)
	for i, ref := range policy.Manifest {
		g.Go(func() error {
			abs, err := uc.resolver.Resolve(ref)
			if err != nil {
				return &domain.InstallError{URL: ref, Err: err}
			}
			req, err := domain.NewRequest(http.MethodGet, abs)
			if err != nil {
				return &domain.InstallError{URL: ref, Err: err}
			}

			uc.metrics.RecordNetworkFetch()
			resp, err := uc.fetcher.Fetch(gctx, req)
			if err != nil {
				uc.metrics.RecordNetworkError()
				return &domain.InstallError{URL: ref, Err: err}
			}
			if resp.Status != http.StatusOK {
				return &domain.InstallError{URL: ref, Status: resp.Status}
			}
			results[i] = precached{req: req, resp: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p, err := uc.storage.Open(ctx, policy.PrecacheName)
	if err != nil {
		return nil, errors.Wrapf(err, "open partition %s", policy.PrecacheName)
	}

	now := uc.now()
	for i, r := range results {
		if err := p.Put(ctx, r.req, r.resp, now); err != nil {
			uc.rollback(ctx, p, results[:i])
			return nil, errors.Wrapf(err, "install: store %s", r.req.Key())
		}
	}

	return &domain.InstallResult{Partition: policy.PrecacheName, Cached: len(results)}, nil
}

// rollback は書き込み途中で失敗したインストール分を取り除く
func (uc *LifecycleUseCase) rollback(ctx context.Context, p domain.Partition, written []precached) {
	for _, r := range written {
		if _, err := p.Delete(ctx, r.req.Key()); err != nil {
			uc.logger.Warn("Install rollback failed", map[string]interface{}{
				"key":   r.req.Key(),
				"error": err.Error(),
			})
		}
	}
}

// Activate はホワイトリスト外のパーティションを削除し, 開いているクライアントを制御下に置く.
// 個々の削除失敗はログに残し, 残りの削除は続行する
func (uc *LifecycleUseCase) Activate(ctx context.Context) (*domain.ActivateResult, error) {
	uc.mu.Lock()
	state := uc.state
	uc.mu.Unlock()
	if state != StateInstalled && state != StateActivated {
		return nil, domain.ErrNotInstalled
	}

	policy := uc.policy.Current()
	keep := make(map[string]struct{})
	for _, name := range policy.Whitelist() {
		keep[name] = struct{}{}
	}

	names, err := uc.storage.Keys(ctx)
	if err != nil {
		uc.metrics.RecordError()
		return nil, errors.Wrap(err, "activate: list partitions")
	}

	result := &domain.ActivateResult{}
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		deleted, err := uc.storage.Delete(ctx, name)
		if err != nil {
			uc.metrics.RecordError()
			uc.logger.Error("Failed to delete partition", err, map[string]interface{}{"partition": name})
			result.Failed = append(result.Failed, name)
			continue
		}
		if deleted {
			uc.metrics.RecordPartitionDeleted()
			result.Deleted = append(result.Deleted, name)
		}
	}

	claimed, err := uc.clients.Claim(ctx)
	if err != nil {
		uc.metrics.RecordError()
		return nil, errors.Wrap(err, "activate: claim clients")
	}
	result.Claimed = claimed

	uc.mu.Lock()
	uc.state = StateActivated
	uc.mu.Unlock()

	uc.logger.Info("Activation completed", map[string]interface{}{
		"deleted": result.Deleted,
		"failed":  len(result.Failed),
		"claimed": claimed,
	})
	return result, nil
}
