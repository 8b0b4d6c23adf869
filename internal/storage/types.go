package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrClosed      = errors.New("storage closed")
	ErrNotFound    = errors.New("post not found")
	ErrStorageBusy = errors.New("storage busy")
)

// TimeLayout is the persisted schedule format: UTC, minute precision.
// Values in this layout sort lexically in chronological order.
const TimeLayout = "2006-01-02T15:04"

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "memory": private in-memory SQLite database (dry runs, tests)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means driver default
	Retry       RetryPolicy
}

// Post is one planned publication.
type Post struct {
	ID          string    `json:"id"`
	Platform    string    `json:"platform"`
	Text        string    `json:"text"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Posted      bool      `json:"posted"`
	Permalink   string    `json:"permalink,omitempty"`
}

// Due reports whether p is eligible for dispatch at now.
func (p Post) Due(now time.Time) bool {
	return !p.Posted && FormatTime(p.ScheduledAt) <= FormatTime(now)
}

type PlatformStats struct {
	Total   int `json:"total"`
	Posted  int `json:"posted"`
	Pending int `json:"pending"`
	Due     int `json:"due"`
}

type Stats struct {
	PlatformStats
	ByPlatform map[string]PlatformStats `json:"by_platform"`
}

// Store is the persistence API used by the planner and the dispatcher.
type Store interface {
	// InsertIfAbsent stores p unless a row with p.ID exists. It reports
	// whether a row was inserted; an existing id is not an error.
	InsertIfAbsent(ctx context.Context, p Post) (bool, error)
	// DueUnposted returns unposted rows scheduled at or before now,
	// ordered by schedule then id.
	DueUnposted(ctx context.Context, now time.Time) ([]Post, error)
	// MarkPosted flips a row to posted. Repeated calls are harmless and an
	// existing permalink is never replaced.
	MarkPosted(ctx context.Context, id, permalink string) error
	Get(ctx context.Context, id string) (Post, error)
	All(ctx context.Context) ([]Post, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
	Close() error
}

// FormatTime renders t in TimeLayout (UTC, truncated to the minute).
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Minute).Format(TimeLayout)
}

// ParseTime parses a persisted schedule value. Only TimeLayout is accepted:
// due selection compares the stored text, and any other form would sort
// wrongly against it.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, strings.TrimSpace(s), time.UTC)
}
