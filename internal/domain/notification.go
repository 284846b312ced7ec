package domain

import (
	"context"
	"time"
)

// Notification はシステム通知を表す.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Badge     string    `json:"badge,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Closed    bool      `json:"closed"`
}

// Notifier は通知表示のインターフェース.
type Notifier interface {
	Show(ctx context.Context, n Notification) (*Notification, error)
	Close(ctx context.Context, id string) error
	List(ctx context.Context) ([]Notification, error)
}
