package logger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LogLevel はログレベルを表す.
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{DEBUG: 0, INFO: 1, WARN: 2, ERROR: 3}

// ParseLevel は文字列からログレベルを得る. 不明な値は INFO.
func ParseLevel(s string) LogLevel {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[level]; ok {
		return level
	}
	return INFO
}

// Enabled は level が min 以上かを返す.
func (l LogLevel) Enabled(min LogLevel) bool {
	return levelRank[l] >= levelRank[min]
}

// LogEntry はログエントリを表す.
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Format はログエントリを文字列に変換.
func (e *LogEntry) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s", e.Timestamp.Format("2006/01/02 15:04:05.000"), e.Level, e.Message)

	if len(e.Fields) > 0 {
		if fields, err := json.Marshal(e.Fields); err == nil {
			fmt.Fprintf(&b, " fields=%s", fields)
		}
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " error=%s", e.Error)
	}
	b.WriteByte('\n')
	return b.String()
}

// NewLogEntry は新しいLogEntryインスタンスを作成.
func NewLogEntry(
	level LogLevel, msg string, err error, fields map[string]interface{},
) *LogEntry {
	entry := &LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	return entry
}
