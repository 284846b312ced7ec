package cache

import (
	"net/http"
	"time"

	"assetgateway/internal/domain"
)

// Entry はパーティション内に保存されたレスポンス1件を表す
type Entry struct {
	Key        string
	Status     int
	Header     http.Header
	Data       []byte
	Size       int64
	StoredAt   time.Time
	Compressed bool
	seq        uint64
}

// NewEntry は新しいEntryインスタンスを作成
func NewEntry(key string, resp *domain.Response, storedAt time.Time) *Entry {
	data := make([]byte, len(resp.Body))
	copy(data, resp.Body)
	return &Entry{
		Key:      key,
		Status:   resp.Status,
		Header:   resp.Header.Clone(),
		Data:     data,
		Size:     int64(len(data)),
		StoredAt: storedAt,
	}
}

// response は保存データからレスポンスを復元
func (e *Entry) response() (*domain.Response, error) {
	data := e.Data
	if e.Compressed {
		var err error
		if data, err = decompress(data); err != nil {
			return nil, err
		}
	} else {
		data = append([]byte(nil), data...)
	}
	return &domain.Response{
		Status: e.Status,
		Header: e.Header.Clone(),
		Body:   data,
		Source: domain.SourceCache,
	}, nil
}
