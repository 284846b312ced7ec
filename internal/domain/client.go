package domain

import (
	"context"
	"time"
)

// Client はゲートウェイが把握しているクライアントウィンドウ.
type Client struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Controlled bool      `json:"controlled"`
	Focused    bool      `json:"focused"`
	OpenedAt   time.Time `json:"opened_at"`
	LastSeen   time.Time `json:"last_seen"`
}

// ClientRegistry はクライアントウィンドウ管理のインターフェース.
type ClientRegistry interface {
	Register(ctx context.Context, url string) (*Client, error)
	Touch(ctx context.Context, id string) bool
	// Claim は未制御のクライアントをすべて制御下に置き, その数を返す.
	Claim(ctx context.Context) (int, error)
	// OpenWindow は url を表示中のクライアントにフォーカスするか新たに開く.
	OpenWindow(ctx context.Context, url string) (*Client, error)
	List(ctx context.Context) ([]Client, error)
}
