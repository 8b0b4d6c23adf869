package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "postpilot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// SQLStore implements Store on database/sql with the SQLite dialect.
type SQLStore struct {
	// mu serializes every store call; it is never held across network I/O
	// because callers only reach the store between platform calls.
	mu     sync.Mutex
	db     *sql.DB
	log    logx.Logger
	retry  RetryPolicy
	closed bool
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database lives only as long as it, and
	// SQLite prefers a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := NewSQLStore(db, cfg.Retry, log)
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("storage opened", logx.String("path", path))
	return st, nil
}

// NewSQLStore wraps an open database. The schema is expected to exist.
func NewSQLStore(db *sql.DB, retry RetryPolicy, log logx.Logger) *SQLStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SQLStore{db: db, log: log, retry: retry.normalized()}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// do runs fn under the store mutex, retrying busy errors. The mutex is
// released between attempts.
func (s *SQLStore) do(ctx context.Context, op string, fn func() error) error {
	return s.retry.Do(ctx, op, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrClosed
		}
		return fn()
	})
}

func (s *SQLStore) InsertIfAbsent(ctx context.Context, p Post) (bool, error) {
	if strings.TrimSpace(p.ID) == "" {
		return false, errors.New("post id is empty")
	}
	var inserted bool
	err := s.do(ctx, "insert", func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO posts(id, platform, text, scheduled, posted, permalink)
			 VALUES(?, ?, ?, ?, 0, '')
			 ON CONFLICT(id) DO NOTHING`,
			p.ID, p.Platform, p.Text, FormatTime(p.ScheduledAt))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

const postColumns = `id, platform, text, scheduled, posted, permalink`

func (s *SQLStore) DueUnposted(ctx context.Context, now time.Time) ([]Post, error) {
	var out []Post
	err := s.do(ctx, "due", func() error {
		var err error
		out, err = s.query(ctx,
			`SELECT `+postColumns+` FROM posts
			 WHERE posted = 0 AND scheduled <= ?
			 ORDER BY scheduled ASC, id ASC`,
			FormatTime(now))
		return err
	})
	return out, err
}

func (s *SQLStore) MarkPosted(ctx context.Context, id, permalink string) error {
	return s.do(ctx, "mark_posted", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE posts
			 SET posted = 1, permalink = COALESCE(NULLIF(permalink, ''), ?)
			 WHERE id = ?`,
			permalink, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("mark_posted %q: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (s *SQLStore) Get(ctx context.Context, id string) (Post, error) {
	var out []Post
	err := s.do(ctx, "get", func() error {
		var err error
		out, err = s.query(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return Post{}, err
	}
	if len(out) == 0 {
		return Post{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	return out[0], nil
}

func (s *SQLStore) All(ctx context.Context) ([]Post, error) {
	var out []Post
	err := s.do(ctx, "all", func() error {
		var err error
		out, err = s.query(ctx, `SELECT `+postColumns+` FROM posts ORDER BY scheduled ASC, id ASC`)
		return err
	})
	return out, err
}

func (s *SQLStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	st := Stats{ByPlatform: map[string]PlatformStats{}}
	err := s.do(ctx, "stats", func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT platform,
			        COUNT(*),
			        COALESCE(SUM(posted), 0),
			        COALESCE(SUM(CASE WHEN posted = 0 AND scheduled <= ? THEN 1 ELSE 0 END), 0)
			 FROM posts GROUP BY platform ORDER BY platform`,
			FormatTime(now))
		if err != nil {
			return err
		}
		defer rows.Close()

		st = Stats{ByPlatform: map[string]PlatformStats{}}
		for rows.Next() {
			var (
				platform string
				ps       PlatformStats
			)
			if err := rows.Scan(&platform, &ps.Total, &ps.Posted, &ps.Due); err != nil {
				return err
			}
			ps.Pending = ps.Total - ps.Posted
			st.ByPlatform[platform] = ps
			st.Total += ps.Total
			st.Posted += ps.Posted
			st.Pending += ps.Pending
			st.Due += ps.Due
		}
		return rows.Err()
	})
	return st, err
}

func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// query must be called with s.mu held.
func (s *SQLStore) query(ctx context.Context, q string, args ...any) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Post
	for rows.Next() {
		var (
			p         Post
			scheduled string
			posted    int
		)
		if err := rows.Scan(&p.ID, &p.Platform, &p.Text, &scheduled, &posted, &p.Permalink); err != nil {
			return nil, err
		}
		t, err := ParseTime(scheduled)
		if err != nil {
			s.log.Warn("skipping row with unparseable schedule", logx.String("id", p.ID), logx.String("scheduled", scheduled))
			continue
		}
		p.ScheduledAt = t
		p.Posted = posted != 0
		out = append(out, p)
	}
	return out, rows.Err()
}
