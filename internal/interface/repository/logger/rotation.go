package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RotationConfig はログローテーションの設定を表す.
type RotationConfig struct {
	MaxSize    int64         // バイト単位の最大サイズ
	MaxAge     time.Duration // ローテート済みファイルの最大保持期間
	MaxBackups int           // 保持するローテート済みファイルの最大数
}

// DefaultRotationConfig はデフォルトのログローテーション設定を返す.
func DefaultRotationConfig() *RotationConfig {
	return &RotationConfig{
		MaxSize:    100 * 1024 * 1024,  // 100MB
		MaxAge:     7 * 24 * time.Hour, // 7日
		MaxBackups: 5,
	}
}

// needsRotation はログローテーションが必要かどうかを判断.
func needsRotation(filePath string, maxSize int64) (bool, error) {
	if maxSize <= 0 {
		return false, nil
	}
	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return info.Size() >= maxSize, nil
}

// rotateFile はログファイルをタイムスタンプ付きの名前に変更.
func rotateFile(basePath string, now time.Time) error {
	rotatedPath := fmt.Sprintf("%s.%s", basePath, now.Format("20060102150405.000000000"))
	return os.Rename(basePath, rotatedPath)
}

// cleanOldLogs は保持期間を過ぎたファイルと MaxBackups を超えた古いファイルを削除.
func cleanOldLogs(basePath string, config *RotationConfig, now time.Time) error {
	files, err := filepath.Glob(basePath + ".*")
	if err != nil {
		return err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}

	var logFiles []fileInfo
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		logFiles = append(logFiles, fileInfo{f, info.ModTime()})
	}

	// 新しい順
	sort.Slice(logFiles, func(i, j int) bool {
		return logFiles[i].modTime.After(logFiles[j].modTime)
	})

	for i, f := range logFiles {
		expired := config.MaxAge > 0 && now.Sub(f.modTime) > config.MaxAge
		overflow := config.MaxBackups > 0 && i >= config.MaxBackups
		if expired || overflow {
			os.Remove(f.path)
		}
	}

	return nil
}
