package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotInstalled はインストール完了前のアクティベーション.
	ErrNotInstalled = errors.New("gateway is not installed")
	// ErrUnknownEvent はディスパッチャが扱えないイベント.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrPartitionNotFound は存在しないパーティション.
	ErrPartitionNotFound = errors.New("cache partition not found")
	// ErrNotificationNotFound は存在しない通知.
	ErrNotificationNotFound = errors.New("notification not found")
)

// FetchError はネットワーク取得の失敗.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// InstallError はプリキャッシュ対象の取得失敗.
type InstallError struct {
	URL    string
	Status int
	Err    error
}

func (e *InstallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("install: precache %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("install: precache %s: unexpected status %d", e.URL, e.Status)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}
