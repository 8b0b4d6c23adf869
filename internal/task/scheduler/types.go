package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultCooldown = 60 * time.Second

type Config struct {
	// Cooldown is the pause after a failed or panicking iteration.
	Cooldown time.Duration
	Timezone string // IANA TZ; empty means UTC
}

// Job is one iteration of a periodic task.
type Job func(ctx context.Context) error

// TaskEvent is published on the bus as task.started, task.finished and
// task.failed.
type TaskEvent struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type loop struct {
	name    string
	every   time.Duration
	timeout time.Duration
	job     Job

	trigger chan struct{}
	done    chan struct{}
	entryID cron.EntryID

	mu       sync.Mutex
	running  bool
	runs     uint64
	failures uint64
	lastRun  time.Time
	lastDur  time.Duration
	lastErr  string
}

func (l *loop) spec() string { return "@every " + l.every.String() }

// LoopInfo is a point-in-time view of one job.
type LoopInfo struct {
	Name         string        `json:"name"`
	Spec         string        `json:"spec"`
	Timeout      time.Duration `json:"timeout"`
	Next         time.Time     `json:"next"`
	Prev         time.Time     `json:"prev"`
	Running      bool          `json:"running"`
	Runs         uint64        `json:"runs"`
	Failures     uint64        `json:"failures"`
	LastRun      time.Time     `json:"last_run"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

type Snapshot struct {
	Started  bool          `json:"started"`
	Timezone string        `json:"timezone"`
	Cooldown time.Duration `json:"cooldown"`
	Loops    []LoopInfo    `json:"loops"`
}
