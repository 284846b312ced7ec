package notification

import (
	"sync"

	"github.com/rs/xid"
)

// Bus は型付きの単純な pub/sub.
// 購読者ごとに専用のゴルーチンが値を順番に受け取る.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[string]chan T
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string]chan T)}
}

// Subscribe は fn を購読者として登録し, 解除関数を返す.
func (b *Bus[T]) Subscribe(fn func(T)) func() {
	id := xid.New().String()
	ch := make(chan T, 16)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		for v := range ch {
			fn(v)
		}
	}()

	return func() {
		b.mu.Lock()
		if ch, ok := b.subs[id]; ok {
			close(ch)
			delete(b.subs, id)
		}
		b.mu.Unlock()
	}
}

// Publish は全購読者に data を配送する. 詰まった購読者の分は破棄する.
func (b *Bus[T]) Publish(data T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- data:
		default:
		}
	}
}
