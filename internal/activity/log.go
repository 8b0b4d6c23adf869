// Package activity keeps the operator-visible rolling log and the summary of
// the last dispatch cycle.
package activity

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultCapacity = 50
	stampLayout     = "2006-01-02T15:04:05"
)

// Log is a bounded, thread-safe ring of timestamped messages.
type Log struct {
	mu      sync.Mutex
	buf     []string
	next    int
	full    bool
	summary string
	now     func() time.Time
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]string, capacity), now: time.Now}
}

// Add appends msg, evicting the oldest entry when the ring is full.
func (l *Log) Add(msg string) {
	line := fmt.Sprintf("[%s] %s", l.now().UTC().Format(stampLayout), msg)
	l.mu.Lock()
	l.buf[l.next] = line
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()
}

func (l *Log) Addf(format string, args ...any) {
	l.Add(fmt.Sprintf(format, args...))
}

// Entries returns a copy, oldest first.
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		return append([]string(nil), l.buf[:l.next]...)
	}
	out := make([]string, 0, len(l.buf))
	out = append(out, l.buf[l.next:]...)
	return append(out, l.buf[:l.next]...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.buf)
	}
	return l.next
}

func (l *Log) SetSummary(s string) {
	l.mu.Lock()
	l.summary = s
	l.mu.Unlock()
}

func (l *Log) Summary() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summary
}
