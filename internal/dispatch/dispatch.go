// Package dispatch publishes due posts, one row at a time, and records the
// outcome of every cycle.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"postpilot/internal/activity"
	"postpilot/internal/campaign"
	"postpilot/internal/eventbus"
	"postpilot/internal/platform"
	"postpilot/internal/storage"
	logx "postpilot/pkg/logx"
)

const (
	DefaultPublishTimeout = 30 * time.Second
	DefaultTitleLimit     = 100

	nothingDue = "No scheduled posts to send right now."
)

// Summary describes one dispatch cycle.
type Summary struct {
	CycleID   string    `json:"cycle_id"`
	At        time.Time `json:"at"`
	Due       int       `json:"due"`
	Posted    int       `json:"posted"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Platforms []string  `json:"platforms"`
}

func (s Summary) String() string {
	if len(s.Platforms) == 0 {
		return nothingDue
	}
	return "Finished posting to: " + strings.Join(s.Platforms, ", ")
}

// PostEvent is the payload of post.published and post.failed events.
type PostEvent struct {
	CycleID   string `json:"cycle_id"`
	PostID    string `json:"post_id"`
	Platform  string `json:"platform"`
	Permalink string `json:"permalink,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Options struct {
	Store      storage.Store
	Publishers platform.Publishers
	// Calendar resolves forum communities by post id.
	Calendar func() *campaign.Calendar
	// Permalink builds the public URL of a microblog status.
	Permalink      func(platform.StatusRef) string
	PublishTimeout time.Duration
	TitleLimit     int
	Activity       *activity.Log
	Bus            eventbus.Bus
	Log            logx.Logger
	Now            func() time.Time
	NewCycleID     func() string
}

type Dispatcher struct {
	opt Options
	log logx.Logger
	sf  singleflight.Group
}

func New(opt Options) *Dispatcher {
	if opt.PublishTimeout <= 0 {
		opt.PublishTimeout = DefaultPublishTimeout
	}
	if opt.TitleLimit <= 0 {
		opt.TitleLimit = DefaultTitleLimit
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.NewCycleID == nil {
		opt.NewCycleID = func() string { return uuid.NewString() }
	}
	if opt.Calendar == nil {
		opt.Calendar = func() *campaign.Calendar { return nil }
	}
	if opt.Permalink == nil {
		opt.Permalink = func(ref platform.StatusRef) string { return ref.URI }
	}
	if opt.Activity == nil {
		opt.Activity = activity.New(0)
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{opt: opt, log: log.With(logx.String("comp", "dispatch"))}
}

// RunCycle runs one dispatch cycle. Concurrent callers share the cycle that
// is already in flight instead of starting another.
//
// The shared cycle is detached from the caller's cancellation so one caller
// going away cannot fail the others; per-row publish timeouts bound it. A
// canceled caller stops waiting and gets ctx.Err().
func (d *Dispatcher) RunCycle(ctx context.Context) (Summary, error) {
	runCtx := context.WithoutCancel(ctx)
	ch := d.sf.DoChan("cycle", func() (any, error) {
		return d.runCycle(runCtx)
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			d.log.Debug("joined in-flight dispatch cycle")
		}
		s, _ := res.Val.(Summary)
		return s, res.Err
	}
}

func (d *Dispatcher) runCycle(ctx context.Context) (Summary, error) {
	now := d.opt.Now().UTC().Truncate(time.Minute)
	sum := Summary{CycleID: d.opt.NewCycleID(), At: now}
	log := d.log.With(logx.String("cycle_id", sum.CycleID))

	due, err := d.opt.Store.DueUnposted(ctx, now)
	if err != nil {
		return sum, fmt.Errorf("load due posts: %w", err)
	}
	sum.Due = len(due)

	seen := map[string]bool{}
	for _, p := range due {
		permalink, skipped, err := d.publish(ctx, p)
		switch {
		case skipped:
			sum.Skipped++
			log.Debug("forum post has no community; left pending", logx.String("post_id", p.ID))
			continue
		case err != nil:
			sum.Failed++
			d.fail(log, sum.CycleID, p, err)
			continue
		}

		if err := d.opt.Store.MarkPosted(ctx, p.ID, permalink); err != nil {
			sum.Failed++
			log.Error("published but not recorded", logx.String("platform", p.Platform), logx.String("post_id", p.ID), logx.Err(err))
			d.opt.Activity.Addf("Error recording post %s on %s: %v", p.ID, p.Platform, err)
			continue
		}

		sum.Posted++
		if !seen[p.Platform] {
			seen[p.Platform] = true
			sum.Platforms = append(sum.Platforms, p.Platform)
		}
		shown := permalink
		if shown == "" {
			shown = p.ID
		}
		log.Info("post published", logx.String("platform", p.Platform), logx.String("post_id", p.ID), logx.String("permalink", permalink))
		d.opt.Activity.Addf("Posted to %s: %s", p.Platform, shown)
		d.emit(eventbus.PostPublished, PostEvent{CycleID: sum.CycleID, PostID: p.ID, Platform: p.Platform, Permalink: permalink})
	}

	d.opt.Activity.SetSummary(sum.String())
	if sum.Posted > 0 {
		d.opt.Activity.Add(sum.String())
	}
	log.Info("dispatch cycle finished",
		logx.Int("due", sum.Due),
		logx.Int("posted", sum.Posted),
		logx.Int("failed", sum.Failed),
		logx.Int("skipped", sum.Skipped),
	)
	d.emit(eventbus.DispatchCycle, sum)
	return sum, nil
}

func (d *Dispatcher) fail(log logx.Logger, cycleID string, p storage.Post, err error) {
	log.Warn("post failed", logx.String("platform", p.Platform), logx.String("post_id", p.ID), logx.Err(err))
	d.opt.Activity.Addf("Error posting to %s (%s): %v", p.Platform, p.ID, err)
	d.emit(eventbus.PostFailed, PostEvent{CycleID: cycleID, PostID: p.ID, Platform: p.Platform, Error: err.Error()})
}

// publish sends one row. skipped reports a forum row without a community.
func (d *Dispatcher) publish(ctx context.Context, p storage.Post) (permalink string, skipped bool, err error) {
	kind, err := platform.ParseKind(p.Platform)
	if err != nil {
		return "", false, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.opt.PublishTimeout)
	defer cancel()

	switch kind {
	case platform.KindMicroblog:
		mb, err := d.opt.Publishers.NewMicroblog(ctx)
		if err != nil {
			return "", false, err
		}
		ref, err := mb.PublishStatus(ctx, p.Text)
		if err != nil {
			return "", false, err
		}
		return d.opt.Permalink(ref), false, nil

	case platform.KindForum:
		entry, ok := d.opt.Calendar().Lookup(p.ID)
		if !ok || strings.TrimSpace(entry.Community) == "" {
			return "", true, nil
		}
		f, err := d.opt.Publishers.NewForum(ctx)
		if err != nil {
			return "", false, err
		}
		url, err := f.Submit(ctx, platform.Submission{
			Community: entry.Community,
			Title:     Title(p.Text, d.opt.TitleLimit),
			Body:      p.Text,
		})
		return url, false, err

	case platform.KindProfessional:
		pn, err := d.opt.Publishers.NewProfessional(ctx)
		if err != nil {
			return "", false, err
		}
		return "", false, pn.Share(ctx, p.Text)
	}
	return "", false, fmt.Errorf("unsupported platform %q", p.Platform)
}

func (d *Dispatcher) emit(typ string, data any) {
	if d.opt.Bus != nil {
		d.opt.Bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// Title returns the first limit runes of text.
func Title(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit])
}
