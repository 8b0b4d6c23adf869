package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	logx "postpilot/pkg/logx"
)

func TestGoRestartFixedCooldown(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSupervisor(context.Background(), WithLogger(logx.Nop()))
	var runs atomic.Int32
	starts := make(chan time.Time, 4)
	s.GoRestart("loop", func(ctx context.Context) error {
		starts <- time.Now()
		if runs.Add(1) == 1 {
			panic("iteration blew up")
		}
		if runs.Load() == 2 {
			return errors.New("transient")
		}
		<-ctx.Done()
		return ctx.Err()
	}, WithFixedCooldown(30*time.Millisecond))

	var at []time.Time
	for i := 0; i < 3; i++ {
		select {
		case ts := <-starts:
			at = append(at, ts)
		case <-time.After(2 * time.Second):
			t.Fatalf("loop did not restart (runs=%d)", runs.Load())
		}
	}
	for i := 1; i < len(at); i++ {
		assert.GreaterOrEqual(t, at[i].Sub(at[i-1]), 30*time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	snap := s.Snapshot()
	var loop GoroutineStats
	for _, g := range snap.Goroutines {
		if g.Name == "loop" {
			loop = g
		}
	}
	assert.EqualValues(t, 1, loop.Panics)
	assert.EqualValues(t, 2, loop.Restarts)
}

func TestGoErrorPublishesFirstError(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	s.Go("worker", func(ctx context.Context) error { return errors.New("fatal") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker: fatal")
	assert.Error(t, s.Context().Err())
}

func TestCleanExitStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSupervisor(context.Background())
	var runs atomic.Int32
	s.GoRestart("once", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	assert.EqualValues(t, 1, runs.Load())
	s.Cancel()
}
