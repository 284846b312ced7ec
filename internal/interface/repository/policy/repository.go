package policy

import (
	"context"
	"os"
	"sync"
	"time"

	"assetgateway/internal/domain"
)

// Repository はYAMLファイルで管理されるキャッシュポリシーのリポジトリ実装
type Repository struct {
	mu         sync.RWMutex
	configFile string
	defaults   *domain.Policy
	current    *domain.Policy
	modTime    time.Time
	logger     domain.Logger
}

var _ domain.PolicyProvider = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成. ファイルがなければ defaults を書き出す
func New(configFile string, defaults *domain.Policy, logger domain.Logger) (*Repository, error) {
	r := &Repository{
		configFile: configFile,
		defaults:   defaults,
		logger:     logger,
	}

	// 初期ロード
	if err := r.loadConfig(); err != nil {
		return nil, err
	}
	return r, nil
}

// Current は現在有効なポリシーを返す
func (r *Repository) Current() *domain.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload は設定を再読み込み. 失敗した場合は以前のポリシーを保持する
func (r *Repository) Reload() error {
	return r.loadConfig()
}

// loadConfig は設定ファイルから設定を読み込む
func (r *Repository) loadConfig() error {
	config, err := loadConfigFile(r.configFile, r.defaults)
	if err != nil {
		return err
	}
	policy, err := config.prepare()
	if err != nil {
		return err
	}

	var modTime time.Time
	if stat, err := os.Stat(r.configFile); err == nil {
		modTime = stat.ModTime()
	}

	r.mu.Lock()
	r.current = policy
	r.modTime = modTime
	r.mu.Unlock()

	r.logger.Info("Loaded cache policy", map[string]interface{}{
		"file":          r.configFile,
		"precache":      policy.PrecacheName,
		"manifest_urls": len(policy.Manifest),
		"routes":        len(policy.Rules),
	})
	return nil
}

// Watch は設定ファイルの変更を監視し, 変更があれば再読み込みする
func (r *Repository) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkForChanges()
		}
	}
}

func (r *Repository) checkForChanges() {
	stat, err := os.Stat(r.configFile)
	if err != nil {
		r.logger.Error("Error checking policy file", err, map[string]interface{}{"file": r.configFile})
		return
	}

	r.mu.RLock()
	lastModTime := r.modTime
	r.mu.RUnlock()

	if stat.ModTime().After(lastModTime) {
		if err := r.loadConfig(); err != nil {
			r.logger.Error("Error reloading policy", err, map[string]interface{}{"file": r.configFile})
		}
	}
}
