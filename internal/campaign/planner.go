package campaign

import (
	"context"
	"fmt"
	"time"

	"postpilot/internal/activity"
	"postpilot/internal/config"
	"postpilot/internal/eventbus"
	"postpilot/internal/storage"
	"postpilot/internal/textgen"
	logx "postpilot/pkg/logx"
)

// PlanReport counts what one generation pass did.
type PlanReport struct {
	Entries   int `json:"entries"`
	Generated int `json:"generated"`
	Inserted  int `json:"inserted"`
	Existing  int `json:"existing"`
	Skipped   int `json:"skipped"`
}

func (r PlanReport) String() string {
	return fmt.Sprintf("Scheduled %d new posts (%d already planned, %d skipped)", r.Inserted, r.Existing, r.Skipped)
}

type PlannerOptions struct {
	Store     storage.Store
	Generator textgen.Generator
	// Calendar is read on every pass so config reloads apply.
	Calendar     func() *Calendar
	PromotedLink func() string
	MaxTokens    int
	Activity     *activity.Log
	Bus          eventbus.Bus
	Log          logx.Logger
	Now          func() time.Time
}

type Planner struct {
	opt PlannerOptions
	log logx.Logger
}

func NewPlanner(opt PlannerOptions) *Planner {
	if opt.MaxTokens <= 0 {
		opt.MaxTokens = config.DefaultMaxTokens
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.PromotedLink == nil {
		opt.PromotedLink = func() string { return config.DefaultPromotedLink }
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Planner{opt: opt, log: log.With(logx.String("comp", "planner"))}
}

// Prompt appends the mandatory link mention to an entry prompt.
func Prompt(entryPrompt, link string) string {
	return entryPrompt + "\nEnd with link: " + link
}

// GenerateAndSchedule generates text for every calendar entry and inserts
// the usable ones. Existing ids are left untouched, including their
// schedule, so re-running on a later day does not reschedule anything.
func (p *Planner) GenerateAndSchedule(ctx context.Context) (PlanReport, error) {
	cal := p.opt.Calendar()
	link := p.opt.PromotedLink()
	base := p.opt.Now().UTC().Truncate(time.Minute)

	rep := PlanReport{Entries: cal.Len()}
	for _, e := range cal.Entries() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		text := p.opt.Generator.Generate(ctx, Prompt(e.Prompt, link), p.opt.MaxTokens)
		if !textgen.Usable(text) {
			rep.Skipped++
			p.log.Info("generation skipped", logx.String("post_id", e.ID), logx.String("platform", e.Platform.String()))
			p.addf("Generation skipped for %s", e.ID)
			continue
		}
		rep.Generated++

		post := storage.Post{
			ID:          e.ID,
			Platform:    e.Platform.String(),
			Text:        text,
			ScheduledAt: base.Add(time.Duration(e.Day) * 24 * time.Hour),
		}
		inserted, err := p.opt.Store.InsertIfAbsent(ctx, post)
		if err != nil {
			p.addf("Error scheduling %s: %v", e.ID, err)
			return rep, fmt.Errorf("schedule %s: %w", e.ID, err)
		}
		if inserted {
			rep.Inserted++
		} else {
			rep.Existing++
		}
	}

	p.log.Info("plan generated",
		logx.Int("entries", rep.Entries),
		logx.Int("inserted", rep.Inserted),
		logx.Int("existing", rep.Existing),
		logx.Int("skipped", rep.Skipped),
	)
	if p.opt.Activity != nil {
		p.opt.Activity.Add(rep.String())
	}
	if p.opt.Bus != nil {
		p.opt.Bus.Publish(eventbus.Event{Type: eventbus.PlanGenerated, Data: rep})
	}
	return rep, nil
}

func (p *Planner) addf(format string, args ...any) {
	if p.opt.Activity != nil {
		p.opt.Activity.Addf(format, args...)
	}
}
