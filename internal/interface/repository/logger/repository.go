package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"assetgateway/internal/domain"
)

// Options はロガーの追加設定.
type Options struct {
	Level    LogLevel
	Rotation *RotationConfig
	// Console が設定されている場合, ファイルと同じ行を書き出す.
	Console io.Writer
}

// Repository はロガーのリポジトリ実装.
type Repository struct {
	mu       sync.Mutex
	file     *os.File
	config   *RotationConfig
	level    LogLevel
	console  io.Writer
	dir      string
	filename string
	done     chan struct{}
	once     sync.Once
}

// Verify interface implementation.
var _ domain.Logger = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成.
func New(directory, filename string, opts Options) (*Repository, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}

	if opts.Rotation == nil {
		opts.Rotation = DefaultRotationConfig()
	}
	if opts.Level == "" {
		opts.Level = INFO
	}

	file, err := os.OpenFile(filepath.Join(directory, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	logger := &Repository{
		file:     file,
		config:   opts.Rotation,
		level:    opts.Level,
		console:  opts.Console,
		dir:      directory,
		filename: filename,
		done:     make(chan struct{}),
	}

	// ログクリーンアップを定期的に実行
	go logger.periodicCleanup(24 * time.Hour)

	return logger, nil
}

// Info はINFOレベルのログを記録.
func (r *Repository) Info(msg string, fields map[string]interface{}) {
	r.log(NewLogEntry(INFO, msg, nil, fields))
}

// Warn はWARNレベルのログを記録.
func (r *Repository) Warn(msg string, fields map[string]interface{}) {
	r.log(NewLogEntry(WARN, msg, nil, fields))
}

// Error はERRORレベルのログを記録.
func (r *Repository) Error(
	msg string, err error, fields map[string]interface{},
) {
	r.log(NewLogEntry(ERROR, msg, err, fields))
}

// Debug はDEBUGレベルのログを記録.
func (r *Repository) Debug(msg string, fields map[string]interface{}) {
	r.log(NewLogEntry(DEBUG, msg, nil, fields))
}

func (r *Repository) path() string {
	return filepath.Join(r.dir, r.filename)
}

// log はログエントリを書き込み.
func (r *Repository) log(entry *LogEntry) {
	if !entry.Level.Enabled(r.level) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if needs, err := needsRotation(r.path(), r.config.MaxSize); err == nil && needs {
		if err := r.rotate(entry.Timestamp); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log: %v\n", err)
		}
	}

	formatted := entry.Format()
	if _, err := r.file.WriteString(formatted); err != nil {
		// エラーが発生した場合は標準エラー出力に書き込み.
		fmt.Fprintf(os.Stderr, "Failed to write log: %v\n", err)
	}
	if r.console != nil {
		io.WriteString(r.console, formatted)
	}
}

// rotate はログファイルをローテーション. 呼び出し側でロックを保持すること.
func (r *Repository) rotate(now time.Time) error {
	if err := r.file.Close(); err != nil {
		return err
	}

	if err := rotateFile(r.path(), now); err != nil {
		return err
	}

	file, err := os.OpenFile(r.path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	r.file = file
	return cleanOldLogs(r.path(), r.config, now)
}

// periodicCleanup は定期的に古いログファイルを削除.
func (r *Repository) periodicCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleanOldLogs(r.path(), r.config, time.Now())
		case <-r.done:
			return
		}
	}
}

// Close はロガーのリソースを解放.
func (r *Repository) Close() error {
	r.once.Do(func() { close(r.done) })

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
