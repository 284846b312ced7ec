package domain

import (
	"context"
	"time"
)

// Storage は名前付きキャッシュパーティションのレジストリ.
type Storage interface {
	// Open はパーティションを開く. 存在しない場合は作成する.
	Open(ctx context.Context, name string) (Partition, error)
	Has(ctx context.Context, name string) (bool, error)
	// Delete はパーティションを削除し, 存在していたかを返す.
	Delete(ctx context.Context, name string) (bool, error)
	// Keys は作成順のパーティション名を返す.
	Keys(ctx context.Context) ([]string, error)
	// Match は全パーティションを作成順に検索する.
	Match(ctx context.Context, req *Request) (*CacheEntry, bool, error)
}

// Partition は独立した1つのキャッシュストア.
type Partition interface {
	Name() string
	Match(ctx context.Context, req *Request) (*CacheEntry, bool, error)
	Put(ctx context.Context, req *Request, resp *Response, storedAt time.Time) error
	Delete(ctx context.Context, key string) (bool, error)
	// Entries は保存時刻の古い順にエントリのメタデータを返す.
	Entries(ctx context.Context) ([]EntryInfo, error)
	Len(ctx context.Context) (int, error)
}

// CacheEntry はキャッシュのエントリを表す.
type CacheEntry struct {
	Key      string
	Response *Response
	StoredAt time.Time
}

// EntryInfo はボディを含まないエントリのメタデータ.
type EntryInfo struct {
	Key      string
	Size     int64
	StoredAt time.Time
}

// ExpirationPolicy はパーティションごとの有効期限設定.
// ゼロ値のフィールドは無制限を意味する.
type ExpirationPolicy struct {
	MaxEntries int
	MaxAge     time.Duration
}

// Fresh は storedAt に保存されたエントリが now 時点で有効かを返す.
func (p ExpirationPolicy) Fresh(storedAt, now time.Time) bool {
	if p.MaxAge <= 0 {
		return true
	}
	return now.Sub(storedAt) <= p.MaxAge
}
