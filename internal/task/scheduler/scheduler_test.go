package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"postpilot/internal/eventbus"
	logx "postpilot/pkg/logx"
)

func stop(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestRunNowAndSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{}, logx.Nop(), nil)
	var runs atomic.Int32
	require.NoError(t, s.AddInterval("dispatch", time.Hour, time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	assert.True(t, s.Start(context.Background()))
	assert.False(t, s.Start(context.Background()), "second start must be a no-op")
	require.True(t, s.RunNow("dispatch"))
	assert.False(t, s.RunNow("missing"))

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	require.Len(t, snap.Loops, 1)
	assert.Equal(t, "@every 1h0m0s", snap.Loops[0].Spec)
	assert.EqualValues(t, 1, snap.Loops[0].Runs)
	assert.False(t, snap.Loops[0].Next.IsZero())
	assert.Equal(t, DefaultCooldown, snap.Cooldown)

	stop(t, s)
	assert.False(t, s.Started())
}

func TestTriggersCoalesceWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{}, logx.Nop(), nil)
	release := make(chan struct{})
	var (
		runs    atomic.Int32
		running atomic.Int32
		overlap atomic.Bool
	)
	require.NoError(t, s.AddInterval("comments", time.Hour, 0, func(ctx context.Context) error {
		if running.Add(1) > 1 {
			overlap.Store(true)
		}
		defer running.Add(-1)
		if runs.Add(1) == 1 {
			<-release
		}
		return nil
	}))
	s.Start(context.Background())

	s.RunNow("comments")
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 5; i++ {
		s.RunNow("comments")
	}
	close(release)

	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 2, runs.Load())
	assert.False(t, overlap.Load())

	stop(t, s)
}

func TestFailedIterationCoolsDownAndResumes(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(Config{Cooldown: 50 * time.Millisecond}, logx.Nop(), bus)
	var runs atomic.Int32
	var firstFail, secondRun atomic.Int64
	require.NoError(t, s.AddInterval("dispatch", time.Hour, 0, func(ctx context.Context) error {
		switch runs.Add(1) {
		case 1:
			firstFail.Store(time.Now().UnixNano())
			return errors.New("database is locked")
		case 2:
			secondRun.Store(time.Now().UnixNano())
			panic("unexpected")
		}
		return nil
	}))
	s.Start(context.Background())

	s.RunNow("dispatch")
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	// The trigger waits in the slot until the cooldown is over.
	s.RunNow("dispatch")
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Duration(secondRun.Load()-firstFail.Load()), 50*time.Millisecond)

	s.RunNow("dispatch")
	require.Eventually(t, func() bool { return runs.Load() == 3 }, time.Second, time.Millisecond)

	snap := s.Snapshot()
	assert.EqualValues(t, 2, snap.Loops[0].Failures)
	assert.Empty(t, snap.Loops[0].LastError)

	stop(t, s)

	var failed int
	for len(events) > 0 {
		if (<-events).Type == "task.failed" {
			failed++
		}
	}
	assert.Equal(t, 2, failed)
}

func TestForeignCancellationDoesNotStopLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{Cooldown: 10 * time.Millisecond}, logx.Nop(), nil)
	var runs atomic.Int32
	require.NoError(t, s.AddInterval("dispatch", time.Hour, 0, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			return fmt.Errorf("load due posts: %w", context.Canceled)
		}
		return nil
	}))
	s.Start(context.Background())

	s.RunNow("dispatch")
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 3; i++ {
		s.RunNow("dispatch")
		require.Eventually(t, func() bool { return runs.Load() == int32(i+2) }, time.Second, time.Millisecond)
	}

	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap.Loops[0].Failures)
	stop(t, s)
}

func TestAddIntervalUpsertsByName(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(Config{}, logx.Nop(), nil)
	var a, b atomic.Int32
	require.NoError(t, s.AddInterval("loop", time.Hour, 0, func(context.Context) error { a.Add(1); return nil }))
	s.Start(context.Background())
	require.NoError(t, s.AddInterval("loop", 2*time.Hour, 0, func(context.Context) error { b.Add(1); return nil }))

	s.RunNow("loop")
	require.Eventually(t, func() bool { return b.Load() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, a.Load())

	snap := s.Snapshot()
	require.Len(t, snap.Loops, 1)
	assert.Equal(t, "@every 2h0m0s", snap.Loops[0].Spec)

	assert.True(t, s.Remove("loop"))
	assert.False(t, s.Remove("loop"))
	stop(t, s)
}

func TestAddIntervalValidation(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil)
	assert.Error(t, s.AddInterval("", time.Minute, 0, func(context.Context) error { return nil }))
	assert.Error(t, s.AddInterval("x", 0, 0, func(context.Context) error { return nil }))
	assert.Error(t, s.AddInterval("x", time.Minute, 0, nil))
}
