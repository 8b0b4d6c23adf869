package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"postpilot/internal/eventbus"
	"postpilot/internal/runtime/supervisor"
	logx "postpilot/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	c     *cron.Cron
	sup   *supervisor.Supervisor
	loops map[string]*loop
	order []string
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, bus: bus, loops: map[string]*loop{}}
}

func (s *Service) cooldownLocked() time.Duration {
	if s.cfg.Cooldown > 0 {
		return s.cfg.Cooldown
	}
	return DefaultCooldown
}

// Apply updates the cooldown and timezone. A timezone change restarts cron;
// workers keep running.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c != nil && oldTZ != strings.TrimSpace(cfg.Timezone) {
		s.c.Stop()
		s.startCronLocked()
	}
}

// AddInterval registers (or replaces) job under name, triggered every
// interval. timeout bounds one iteration; zero means no bound.
func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if every <= 0 {
		return fmt.Errorf("%s: interval must be > 0", name)
	}
	if job == nil {
		return fmt.Errorf("%s: job is nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.loops[name]; old != nil {
		s.removeLocked(old)
	} else {
		s.order = append(s.order, name)
	}
	l := &loop{
		name:    name,
		every:   every,
		timeout: timeout,
		job:     job,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.loops[name] = l
	if s.c != nil {
		s.scheduleLocked(l)
		s.startWorkerLocked(l)
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", l.spec()), logx.Duration("timeout", timeout))
	return nil
}

// Remove unregisters name and stops its worker after the current iteration.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.loops[name]
	if l == nil {
		return false
	}
	s.removeLocked(l)
	delete(s.loops, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Service) removeLocked(l *loop) {
	if s.c != nil && l.entryID != 0 {
		s.c.Remove(l.entryID)
	}
	close(l.done)
}

// Start starts cron and one worker per job. It reports false when the
// service was already started.
func (s *Service) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return false
	}
	s.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(s.log))
	s.startCronLocked()
	for _, name := range s.order {
		s.startWorkerLocked(s.loops[name])
	}
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.loops)))
	return true
}

func (s *Service) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

func (s *Service) startCronLocked() {
	loc := time.UTC
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			s.log.Warn("invalid timezone; using UTC", logx.String("tz", tz), logx.Err(err))
		}
	}
	s.loc = loc
	s.c = cron.New(cron.WithLocation(loc))
	for _, name := range s.order {
		s.scheduleLocked(s.loops[name])
	}
	s.c.Start()
}

func (s *Service) scheduleLocked(l *loop) {
	l.entryID = s.c.Schedule(cron.Every(l.every), cron.FuncJob(func() { l.fire() }))
}

// fire enqueues a run unless one is already pending.
func (l *loop) fire() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

func (s *Service) startWorkerLocked(l *loop) {
	s.sup.GoRestart(l.name, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-l.done:
				return nil
			case <-l.trigger:
				if err := s.runOnce(ctx, l); err != nil {
					return err
				}
			}
		}
	}, supervisor.WithFixedCooldown(s.cooldownLocked()))
}

func (s *Service) runOnce(parent context.Context, l *loop) error {
	ctx := parent
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, l.timeout)
		defer cancel()
	}
	start := time.Now()
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	s.publish(eventbus.TaskStarted, TaskEvent{Name: l.name, Started: start})

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return l.job(ctx)
	}()

	// A cancellation the loop did not ask for is an ordinary failure; the
	// supervisor treats context.Canceled as a clean stop.
	if err != nil && parent.Err() == nil && errors.Is(err, context.Canceled) {
		err = fmt.Errorf("job canceled: %v", err)
	}

	dur := time.Since(start)
	l.mu.Lock()
	l.running = false
	l.runs++
	l.lastRun = start
	l.lastDur = dur
	l.lastErr = ""
	if err != nil {
		l.failures++
		l.lastErr = err.Error()
	}
	l.mu.Unlock()

	if err != nil {
		s.publish(eventbus.TaskFailed, TaskEvent{Name: l.name, Started: start, Duration: dur, Error: err.Error()})
		s.log.Error("iteration failed", logx.String("name", l.name), logx.Duration("took", dur), logx.Err(err))
		return fmt.Errorf("iteration failed: %w", err)
	}
	s.publish(eventbus.TaskFinished, TaskEvent{Name: l.name, Started: start, Duration: dur})
	return nil
}

// RunNow triggers name immediately. It reports false for unknown names.
// A trigger that arrives while one is pending is coalesced.
func (s *Service) RunNow(name string) bool {
	s.mu.Lock()
	l := s.loops[name]
	s.mu.Unlock()
	if l == nil {
		return false
	}
	l.fire()
	return true
}

// Stop stops triggering and waits for workers to finish their iteration.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	c, sup := s.c, s.sup
	s.c, s.sup = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	err := sup.Stop(ctx)
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return err
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Started: s.c != nil, Timezone: "UTC", Cooldown: s.cooldownLocked()}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	for _, name := range s.order {
		l := s.loops[name]
		info := LoopInfo{Name: l.name, Spec: l.spec(), Timeout: l.timeout}
		if s.c != nil && l.entryID != 0 {
			e := s.c.Entry(l.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		l.mu.Lock()
		info.Running = l.running
		info.Runs = l.runs
		info.Failures = l.failures
		info.LastRun = l.lastRun
		info.LastDuration = l.lastDur
		info.LastError = l.lastErr
		l.mu.Unlock()
		snap.Loops = append(snap.Loops, info)
	}
	s.mu.Unlock()
	return snap
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
	}
}
