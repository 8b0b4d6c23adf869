package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"postpilot/internal/platform"
	"postpilot/internal/runtime/supervisor"
	"postpilot/internal/storage"
	"postpilot/internal/task/scheduler"
	logx "postpilot/pkg/logx"
)

const verifyTimeout = 30 * time.Second

// Credentials reports which integrations have credentials configured.
type Credentials struct {
	Platforms map[platform.Kind]bool `json:"platforms"`
	Backends  []string               `json:"backends"`
	Telegram  bool                   `json:"telegram"`
}

type Status struct {
	PromotedLink    string             `json:"promoted_link"`
	CalendarEntries int                `json:"calendar_entries"`
	Credentials     Credentials        `json:"credentials"`
	Storage         storage.Stats      `json:"storage"`
	LoopsStarted    bool               `json:"loops_started"`
	Scheduler       scheduler.Snapshot `json:"scheduler"`
	LastSummary     string             `json:"last_summary,omitempty"`

	Runtime supervisor.SupervisorSnapshot `json:"runtime"`
}

func (a *App) Credentials() Credentials {
	c := Credentials{
		Platforms: map[platform.Kind]bool{
			platform.KindMicroblog:    a.pubs.Microblog != nil,
			platform.KindForum:        a.pubs.Forum != nil,
			platform.KindProfessional: a.pubs.Professional != nil,
		},
		Telegram: a.sender != nil,
	}
	if b, ok := a.gen.(interface{ Backends() []string }); ok {
		c.Backends = b.Backends()
	}
	return c
}

func (a *App) Status(ctx context.Context) (Status, error) {
	st, err := a.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		PromotedLink:    a.promotedLink(),
		CalendarEntries: a.calendar().Len(),
		Credentials:     a.Credentials(),
		Storage:         st,
		LoopsStarted:    a.LoopsStarted(),
		Scheduler:       a.sched.Snapshot(),
		LastSummary:     a.LastSummary(),
		Runtime:         a.sup.Snapshot(),
	}, nil
}

// VerifyResult is the outcome of one platform credential check.
type VerifyResult struct {
	Kind       platform.Kind    `json:"kind"`
	Configured bool             `json:"configured"`
	Report     *platform.Report `json:"report,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Verify checks every platform concurrently with an authenticated read.
// Results follow platform.Kinds order. A failing platform never aborts the
// others.
func (a *App) Verify(ctx context.Context) []VerifyResult {
	kinds := platform.Kinds()
	out := make([]VerifyResult, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		out[i] = VerifyResult{Kind: kind}
		newVerifier := a.pubs.Verifiers[kind]
		if newVerifier == nil {
			out[i].Error = platform.NotConfigured(kind).Error()
			continue
		}
		out[i].Configured = true
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, verifyTimeout)
			defer cancel()
			v, err := newVerifier(cctx)
			if err == nil {
				var rep platform.Report
				if rep, err = v.Verify(cctx); err == nil {
					out[i].Report = &rep
					return nil
				}
			}
			out[i].Error = err.Error()
			a.log.Warn("verify failed", logx.String("platform", kind.String()), logx.Err(err))
			return nil
		})
	}
	_ = g.Wait()
	return out
}
