// Package logbuf keeps recent log entries in memory for the /api/logs
// endpoint and masks secrets on their way to any sink.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is a single log entry captured from slog.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Query filters buffered entries. Zero values match everything.
type Query struct {
	Since     time.Time
	MinLevel  slog.Level
	Component string
	Limit     int // newest Limit matches; <= 0 means all
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int
}

// New creates a new ring buffer that holds up to size entries.
func New(size int) *Buffer {
	if size <= 0 {
		size = 1
	}
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Write appends an entry to the ring buffer.
func (b *Buffer) Write(e Entry) {
	b.mu.Lock()
	b.entries[b.pos] = e
	b.pos = (b.pos + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.mu.Unlock()
}

// Query returns entries matching q, oldest first.
func (b *Buffer) Query(q Query) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []Entry

	start := 0
	if b.count == b.size {
		start = b.pos // oldest entry when buffer is full
	}

	for i := 0; i < b.count; i++ {
		e := b.entries[(start+i)%b.size]

		if !q.Since.IsZero() && e.Time.Before(q.Since) {
			continue
		}
		if parseLevel(e.Level) < q.MinLevel {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		result = append(result, e)
	}

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[len(result)-q.Limit:]
	}
	return result
}

// ParseLevel converts a case-insensitive level name to slog.Level,
// defaulting to debug for unknown names.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelDebug
	}
	return l
}

func parseLevel(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
