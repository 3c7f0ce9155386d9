package logger

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const defaultBufferSize = 1000

// LogEntry はメモリ上に保持するログ1件分
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogBuffer は直近のログを保持するリングバッファ
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

var (
	logBuffer = NewLogBuffer(defaultBufferSize)

	broadcastMu       sync.RWMutex
	broadcastCallback func(LogEntry)
)

func NewLogBuffer(size int) *LogBuffer {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &LogBuffer{entries: make([]LogEntry, size)}
}

// GetLogBuffer はグローバルなログバッファを返す
func GetLogBuffer() *LogBuffer {
	return logBuffer
}

// SetBroadcastCallback はログ追加時に呼ばれるコールバックを登録する
func SetBroadcastCallback(cb func(LogEntry)) {
	broadcastMu.Lock()
	broadcastCallback = cb
	broadcastMu.Unlock()
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()

	broadcastMu.RLock()
	cb := broadcastCallback
	broadcastMu.RUnlock()
	if cb != nil {
		cb(entry)
	}
}

// GetRecent は新しい順ではなく時系列順で直近limit件を返す
func (b *LogBuffer) GetRecent(limit int) []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.next
	if b.full {
		count = len(b.entries)
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	result := make([]LogEntry, 0, limit)
	start := b.next - limit
	for i := 0; i < limit; i++ {
		idx := (start + i + len(b.entries)) % len(b.entries)
		result = append(result, b.entries[idx])
	}
	return result
}

func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make([]LogEntry, len(b.entries))
	b.next = 0
	b.full = false
}

func (b *LogBuffer) ToJSON() ([]byte, error) {
	return json.MarshalIndent(b.GetRecent(0), "", "  ")
}

func (b *LogBuffer) ToText() string {
	var sb strings.Builder
	for _, e := range b.GetRecent(0) {
		fmt.Fprintf(&sb, "%s [%s] %s", e.Timestamp.Format(time.RFC3339), e.Level, e.Message)
		for k, v := range e.Fields {
			fmt.Fprintf(&sb, " %s=%v", k, v)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// bufferCore はzapのエントリをLogBufferへ複製する
type bufferCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
}

func newBufferCore(level zapcore.LevelEnabler) zapcore.Core {
	return &bufferCore{LevelEnabler: level}
}

func (c *bufferCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &bufferCore{LevelEnabler: c.LevelEnabler, fields: merged}
}

func (c *bufferCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *bufferCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	logBuffer.Add(LogEntry{
		Timestamp: ent.Time,
		Level:     ent.Level.String(),
		Message:   ent.Message,
		Fields:    enc.Fields,
	})
	return nil
}

func (c *bufferCore) Sync() error {
	return nil
}
