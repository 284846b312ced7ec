package clients

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"

	"assetgateway/internal/domain"
)

// Manager はクライアントウィンドウを管理する
type Manager struct {
	mu          sync.RWMutex
	clients     map[string]*domain.Client
	idleTimeout time.Duration
	now         func() time.Time
	done        chan struct{}
	once        sync.Once
}

var _ domain.ClientRegistry = (*Manager)(nil)

// NewManager は新しいManagerインスタンスを作成. idleTimeout が正の場合は
// 一定時間アクセスのないクライアントを定期的に削除する
func NewManager(idleTimeout time.Duration) *Manager {
	m := &Manager{
		clients:     make(map[string]*domain.Client),
		idleTimeout: idleTimeout,
		now:         time.Now,
		done:        make(chan struct{}),
	}

	if idleTimeout > 0 {
		go m.periodicCleanup()
	}

	return m
}

// Register は新しいクライアントを登録する. 登録時点では制御下にない
func (m *Manager) Register(_ context.Context, url string) (*domain.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("client url is required")
	}
	now := m.now()
	c := &domain.Client{
		ID:       xid.New().String(),
		URL:      url,
		OpenedAt: now,
		LastSeen: now,
	}

	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	copied := *c
	return &copied, nil
}

// Touch はクライアントの最終アクセス時刻を更新する
func (m *Manager) Touch(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[id]
	if ok {
		c.LastSeen = m.now()
	}
	return ok
}

// Claim は未制御のクライアントをすべて制御下に置く
func (m *Manager) Claim(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	claimed := 0
	for _, c := range m.clients {
		if !c.Controlled {
			c.Controlled = true
			claimed++
		}
	}
	return claimed, nil
}

// OpenWindow は url を表示中のクライアントにフォーカスし, なければ新しく開く
func (m *Manager) OpenWindow(_ context.Context, url string) (*domain.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("window url is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var target *domain.Client
	for _, c := range m.clients {
		c.Focused = false
		if c.URL == url && (target == nil || c.LastSeen.After(target.LastSeen)) {
			target = c
		}
	}

	if target == nil {
		target = &domain.Client{
			ID:         xid.New().String(),
			URL:        url,
			Controlled: true,
			OpenedAt:   now,
		}
		m.clients[target.ID] = target
	}
	target.Focused = true
	target.LastSeen = now

	copied := *target
	return &copied, nil
}

// List は開いた順にクライアントを返す
func (m *Manager) List(_ context.Context) ([]domain.Client, error) {
	m.mu.RLock()
	list := make([]domain.Client, 0, len(m.clients))
	for _, c := range m.clients {
		list = append(list, *c)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].OpenedAt.Equal(list[j].OpenedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].OpenedAt.Before(list[j].OpenedAt)
	})
	return list, nil
}

// Close は定期クリーンアップを停止する
func (m *Manager) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

// periodicCleanup は定期的に古いクライアントを削除
func (m *Manager) periodicCleanup() {
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.done:
			return
		}
	}
}

// cleanup はアイドル時間を超えたクライアントを削除
func (m *Manager) cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, c := range m.clients {
		if now.Sub(c.LastSeen) > m.idleTimeout {
			delete(m.clients, id)
			removed++
		}
	}
	return removed
}
