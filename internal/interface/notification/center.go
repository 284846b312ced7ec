package notification

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"

	"assetgateway/internal/domain"
)

// DefaultLimit は保持する通知数の既定の上限
const DefaultLimit = 100

// Center は表示した通知を保持する Notifier 実装.
// 上限を超えると閉じた通知の古いものから, なければ最も古い通知から捨てる
type Center struct {
	mu    sync.RWMutex
	items map[string]*domain.Notification
	order []string
	limit int
	bus   *Bus[domain.Notification]
	now   func() time.Time
}

var _ domain.Notifier = (*Center)(nil)

// NewCenter は新しいCenterを作成. limit が 0 以下なら DefaultLimit を使う
func NewCenter(limit int) *Center {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Center{
		items: make(map[string]*domain.Notification),
		limit: limit,
		bus:   NewBus[domain.Notification](),
		now:   time.Now,
	}
}

// Show は通知を記録し, 購読者へ配送する
func (c *Center) Show(ctx context.Context, n domain.Notification) (*domain.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n.Title == "" {
		return nil, errors.New("notification title is required")
	}
	n.ID = xid.New().String()
	n.CreatedAt = c.now()
	n.Closed = false

	c.mu.Lock()
	stored := n
	c.items[n.ID] = &stored
	c.order = append(c.order, n.ID)
	c.prune()
	c.mu.Unlock()

	c.bus.Publish(n)
	return &n, nil
}

// Close は通知を閉じる
func (c *Center) Close(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotificationNotFound, "close %s", id)
	}
	n.Closed = true
	return nil
}

// List は表示した順に通知を返す
func (c *Center) List(_ context.Context) ([]domain.Notification, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]domain.Notification, 0, len(c.order))
	for _, id := range c.order {
		list = append(list, *c.items[id])
	}
	return list, nil
}

// Len は保持している通知数を返す
func (c *Center) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

func (c *Center) prune() {
	for len(c.order) > c.limit {
		victim := 0
		for i, id := range c.order {
			if c.items[id].Closed {
				victim = i
				break
			}
		}
		delete(c.items, c.order[victim])
		c.order = append(c.order[:victim], c.order[victim+1:]...)
	}
}

// Subscribe は新しく表示された通知を受け取る
func (c *Center) Subscribe(fn func(domain.Notification)) func() {
	return c.bus.Subscribe(fn)
}
