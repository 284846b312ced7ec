package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"assetgateway/internal/domain"
)

// compressThreshold を超えるボディは gzip 圧縮して保持する
const compressThreshold = 1024

// Repository はメモリ上のパーティションレジストリ実装
type Repository struct {
	mu         sync.RWMutex
	partitions map[string]*Partition
	order      []string
}

// Verify interface implementation
var (
	_ domain.Storage   = (*Repository)(nil)
	_ domain.Partition = (*Partition)(nil)
)

// New は新しいRepositoryインスタンスを作成
func New() *Repository {
	return &Repository{
		partitions: make(map[string]*Partition),
	}
}

// Open はパーティションを取得し, なければ作成
func (r *Repository) Open(ctx context.Context, name string) (domain.Partition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.New("partition name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.partitions[name]; ok {
		return p, nil
	}
	p := newPartition(name)
	r.partitions[name] = p
	r.order = append(r.order, name)
	return p, nil
}

// Has はパーティションの存在を確認
func (r *Repository) Has(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.partitions[name]
	return ok, nil
}

// Delete はパーティションを削除
func (r *Repository) Delete(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.partitions[name]
	if !ok {
		return false, nil
	}
	p.drop()
	delete(r.partitions, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Keys は作成順のパーティション名を返す
func (r *Repository) Keys(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...), nil
}

// Match は全パーティションを作成順に検索
func (r *Repository) Match(ctx context.Context, req *domain.Request) (*domain.CacheEntry, bool, error) {
	r.mu.RLock()
	partitions := make([]*Partition, 0, len(r.order))
	for _, name := range r.order {
		partitions = append(partitions, r.partitions[name])
	}
	r.mu.RUnlock()

	for _, p := range partitions {
		entry, ok, err := p.Match(ctx, req)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return entry, true, nil
		}
	}
	return nil, false, nil
}

// Partition はメモリ上のキャッシュパーティション
type Partition struct {
	mu      sync.RWMutex
	name    string
	entries map[string]*Entry
	seq     uint64
	dropped bool
}

func newPartition(name string) *Partition {
	return &Partition{
		name:    name,
		entries: make(map[string]*Entry),
	}
}

// Name はパーティション名を返す
func (p *Partition) Name() string {
	return p.name
}

// Match はリクエストに対応するエントリを取得
func (p *Partition) Match(ctx context.Context, req *domain.Request) (*domain.CacheEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	p.mu.RLock()
	entry, ok := p.entries[req.Key()]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	resp, err := entry.response()
	if err != nil {
		// 読めないエントリは削除してミス扱い
		p.Delete(ctx, entry.Key)
		return nil, false, nil
	}
	return &domain.CacheEntry{
		Key:      entry.Key,
		Response: resp,
		StoredAt: entry.StoredAt,
	}, true, nil
}

// Put はレスポンスを保存. 同じキーは上書きされ保存時刻も更新される
func (p *Partition) Put(ctx context.Context, req *domain.Request, resp *domain.Response, storedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !req.Cacheable() {
		return errors.Errorf("cache put: method %s is not cacheable", req.Method)
	}

	entry := NewEntry(req.Key(), resp, storedAt)

	// 大きなデータの場合は圧縮を試みる
	if len(entry.Data) > compressThreshold {
		if compData, err := compress(entry.Data); err == nil && len(compData) < len(entry.Data) {
			entry.Data = compData
			entry.Size = int64(len(compData))
			entry.Compressed = true
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dropped {
		return errors.Wrapf(domain.ErrPartitionNotFound, "put into %s", p.name)
	}
	p.seq++
	entry.seq = p.seq
	p.entries[entry.Key] = entry
	return nil
}

// drop はレジストリから削除されたパーティションを無効にする
func (p *Partition) drop() {
	p.mu.Lock()
	p.dropped = true
	p.entries = make(map[string]*Entry)
	p.mu.Unlock()
}

// Delete はエントリを削除
func (p *Partition) Delete(_ context.Context, key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[key]; !ok {
		return false, nil
	}
	delete(p.entries, key)
	return true, nil
}

// Entries は保存時刻の古い順にメタデータを返す
func (p *Partition) Entries(_ context.Context) ([]domain.EntryInfo, error) {
	p.mu.RLock()
	entries := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.RUnlock()

	// 同時刻の場合は書き込み順
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StoredAt.Equal(entries[j].StoredAt) {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].StoredAt.Before(entries[j].StoredAt)
	})

	infos := make([]domain.EntryInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, domain.EntryInfo{Key: e.Key, Size: e.Size, StoredAt: e.StoredAt})
	}
	return infos, nil
}

// Len はエントリ数を返す
func (p *Partition) Len(_ context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries), nil
}

// compress はデータをgzip圧縮する
func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	if _, err := gz.Write(data); err != nil {
		return nil, err
	}

	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decompress はgzip圧縮されたデータを展開する
func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	return io.ReadAll(gz)
}
