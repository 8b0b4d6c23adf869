package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RetryPolicy retries an operation while SQLite reports BUSY or LOCKED.
// The n-th retry waits Backoff*n (linear growth).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 100 * time.Millisecond
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	return p
}

// Do runs fn until it succeeds, fails with a non-busy error, or attempts are
// exhausted. Exhaustion returns an error matching ErrStorageBusy.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	p = p.normalized()
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !IsBusy(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		if serr := p.Sleep(ctx, p.Backoff*time.Duration(attempt)); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrStorageBusy, p.MaxAttempts, err)
}

// IsBusy reports whether err is a transient SQLite contention error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	// Drivers and mocks that only surface text.
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
