// Package sqlite provides a SQLite-backed cache partition registry.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"assetgateway/internal/domain"
	"assetgateway/internal/interface/repository/cache/sqlite/migrations"
)

// Store はSQLiteに永続化するパーティションレジストリ
type Store struct {
	db *sql.DB
}

var (
	_ domain.Storage   = (*Store)(nil)
	_ domain.Partition = (*Partition)(nil)
)

// Open はSQLiteストアを開き, スキーマを適用する
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	// 単一接続で書き込みを直列化する
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &Store{db: db}, nil
}

// Close はDBハンドルを閉じる
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Open はパーティションを取得し, なければ作成
func (s *Store) Open(ctx context.Context, name string) (domain.Partition, error) {
	if name == "" {
		return nil, errors.New("partition name is required")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO partitions (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UTC().UnixMilli(),
	); err != nil {
		return nil, errors.Wrapf(err, "create partition %s", name)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM partitions WHERE name = ?`, name,
	).Scan(&id); err != nil {
		return nil, errors.Wrapf(err, "load partition %s", name)
	}
	return &Partition{store: s, id: id, name: name}, nil
}

// Has はパーティションの存在を確認
func (s *Store) Has(ctx context.Context, name string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM partitions WHERE name = ?`, name,
	).Scan(&count); err != nil {
		return false, errors.Wrapf(err, "check partition %s", name)
	}
	return count > 0, nil
}

// Delete はパーティションとそのエントリを削除
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM partitions WHERE name = ?`, name)
	if err != nil {
		return false, errors.Wrapf(err, "delete partition %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "delete partition %s", name)
	}
	return n > 0, nil
}

// Keys は作成順のパーティション名を返す
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM partitions ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list partitions")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan partition")
		}
		names = append(names, name)
	}
	return names, errors.Wrap(rows.Err(), "list partitions")
}

// Match は全パーティションを作成順に検索
func (s *Store) Match(ctx context.Context, req *domain.Request) (*domain.CacheEntry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT e.cache_key, e.status, e.header, e.body, e.stored_at
		   FROM entries e JOIN partitions p ON p.id = e.partition_id
		  WHERE e.cache_key = ?
		  ORDER BY p.id
		  LIMIT 1`,
		req.Key(),
	)
	return scanEntry(row)
}

// Partition はSQLite上のキャッシュパーティション
type Partition struct {
	store *Store
	id    int64
	name  string
}

// Name はパーティション名を返す
func (p *Partition) Name() string {
	return p.name
}

// Match はリクエストに対応するエントリを取得
func (p *Partition) Match(ctx context.Context, req *domain.Request) (*domain.CacheEntry, bool, error) {
	row := p.store.db.QueryRowContext(ctx,
		`SELECT cache_key, status, header, body, stored_at
		   FROM entries WHERE partition_id = ? AND cache_key = ?`,
		p.id, req.Key(),
	)
	return scanEntry(row)
}

// Put はレスポンスを保存. 同じキーは上書きされる
func (p *Partition) Put(ctx context.Context, req *domain.Request, resp *domain.Response, storedAt time.Time) error {
	if !req.Cacheable() {
		return errors.Errorf("cache put: method %s is not cacheable", req.Method)
	}
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return errors.Wrap(err, "encode header")
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	res, err := p.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (partition_id, cache_key, status, header, body, stored_at)
		 SELECT ?, ?, ?, ?, ?, ?
		  WHERE EXISTS (SELECT 1 FROM partitions WHERE id = ?)`,
		p.id, req.Key(), resp.Status, string(header), body, storedAt.UTC().UnixNano(), p.id,
	)
	if err != nil {
		return errors.Wrapf(err, "put %s into %s", req.Key(), p.name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "put %s into %s", req.Key(), p.name)
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrPartitionNotFound, "put into %s", p.name)
	}
	return nil
}

// Delete はエントリを削除
func (p *Partition) Delete(ctx context.Context, key string) (bool, error) {
	res, err := p.store.db.ExecContext(ctx,
		`DELETE FROM entries WHERE partition_id = ? AND cache_key = ?`, p.id, key)
	if err != nil {
		return false, errors.Wrapf(err, "delete %s from %s", key, p.name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "delete %s from %s", key, p.name)
	}
	return n > 0, nil
}

// Entries は保存時刻の古い順にメタデータを返す
func (p *Partition) Entries(ctx context.Context) ([]domain.EntryInfo, error) {
	rows, err := p.store.db.QueryContext(ctx,
		`SELECT cache_key, length(body), stored_at FROM entries
		  WHERE partition_id = ? ORDER BY stored_at, rowid`, p.id)
	if err != nil {
		return nil, errors.Wrapf(err, "list entries of %s", p.name)
	}
	defer rows.Close()

	var infos []domain.EntryInfo
	for rows.Next() {
		var (
			info     domain.EntryInfo
			storedAt int64
		)
		if err := rows.Scan(&info.Key, &info.Size, &storedAt); err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		info.StoredAt = time.Unix(0, storedAt).UTC()
		infos = append(infos, info)
	}
	return infos, errors.Wrapf(rows.Err(), "list entries of %s", p.name)
}

// Len はエントリ数を返す
func (p *Partition) Len(ctx context.Context) (int, error) {
	var n int
	if err := p.store.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entries WHERE partition_id = ?`, p.id,
	).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count entries of %s", p.name)
	}
	return n, nil
}

func scanEntry(row *sql.Row) (*domain.CacheEntry, bool, error) {
	var (
		key      string
		status   int
		header   string
		body     []byte
		storedAt int64
	)
	if err := row.Scan(&key, &status, &header, &body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "scan entry")
	}

	var h http.Header
	if err := json.Unmarshal([]byte(header), &h); err != nil {
		return nil, false, errors.Wrapf(err, "decode header of %s", key)
	}
	return &domain.CacheEntry{
		Key: key,
		Response: &domain.Response{
			Status: status,
			Header: h,
			Body:   body,
			Source: domain.SourceCache,
		},
		StoredAt: time.Unix(0, storedAt).UTC(),
	}, true, nil
}
