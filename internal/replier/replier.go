// Package replier answers comments on the account's recent forum
// submissions with a short generated reply that mentions the promoted link.
package replier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"postpilot/internal/activity"
	"postpilot/internal/config"
	"postpilot/internal/platform"
	"postpilot/internal/textgen"
	logx "postpilot/pkg/logx"
)

const (
	DefaultRecentLimit = 10
	DefaultDelay       = 2 * time.Second
	DefaultMaxTokens   = 120
	DefaultCallTimeout = 30 * time.Second
)

// Report counts what one reply cycle did.
type Report struct {
	Submissions int `json:"submissions"`
	Comments    int `json:"comments"`
	Replied     int `json:"replied"`
	Suppressed  int `json:"suppressed"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

type Options struct {
	Publishers   platform.Publishers
	Generator    textgen.Generator
	PromotedLink func() string
	RecentLimit  int
	// Delay is the minimum spacing between two reply publications.
	Delay       time.Duration
	MaxTokens   int
	CallTimeout time.Duration
	Activity    *activity.Log
	Log         logx.Logger
}

type Replier struct {
	opt     Options
	log     logx.Logger
	limiter *rate.Limiter
}

func New(opt Options) *Replier {
	if opt.RecentLimit <= 0 {
		opt.RecentLimit = DefaultRecentLimit
	}
	if opt.Delay <= 0 {
		opt.Delay = DefaultDelay
	}
	if opt.MaxTokens <= 0 {
		opt.MaxTokens = DefaultMaxTokens
	}
	if opt.CallTimeout <= 0 {
		opt.CallTimeout = DefaultCallTimeout
	}
	if opt.Activity == nil {
		opt.Activity = activity.New(0)
	}
	if opt.PromotedLink == nil {
		opt.PromotedLink = func() string { return config.DefaultPromotedLink }
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Replier{
		opt:     opt,
		log:     log.With(logx.String("comp", "replier")),
		limiter: rate.NewLimiter(rate.Every(opt.Delay), 1),
	}
}

// Prompt is the generation prompt for a reply to body.
func Prompt(body, link string) string {
	return fmt.Sprintf("Reply politely to forum comment: %s\nMention %s in 1 sentence.", body, link)
}

// ShouldReply reports whether a comment deserves a reply.
func ShouldReply(c platform.Comment, account, link string) bool {
	if strings.TrimSpace(c.Author) == "" {
		return false
	}
	if strings.EqualFold(c.Author, account) {
		return false
	}
	return !strings.Contains(c.Body, link)
}

// RunCycle scans recent submissions and replies where appropriate. Only
// failing to reach the account at all is returned as an error.
func (r *Replier) RunCycle(ctx context.Context) (Report, error) {
	var rep Report
	link := r.opt.PromotedLink()

	acct, err := r.opt.Publishers.NewForumAccount(ctx)
	if err != nil {
		return rep, err
	}
	me, err := r.call(ctx, func(ctx context.Context) (string, error) { return acct.Me(ctx) })
	if err != nil {
		return rep, fmt.Errorf("forum account: %w", err)
	}

	var subs []platform.SubmissionRef
	err = r.do(ctx, func(ctx context.Context) error {
		var err error
		subs, err = acct.RecentSubmissions(ctx, r.opt.RecentLimit)
		return err
	})
	if err != nil {
		r.opt.Activity.Addf("Error loading recent submissions: %v", err)
		return rep, fmt.Errorf("recent submissions: %w", err)
	}
	rep.Submissions = len(subs)

	for _, s := range subs {
		var comments []platform.Comment
		err := r.do(ctx, func(ctx context.Context) error {
			var err error
			comments, err = acct.Comments(ctx, s.ID)
			return err
		})
		if err != nil {
			rep.Failed++
			r.log.Warn("load comments failed", logx.String("submission", s.ID), logx.Err(err))
			r.opt.Activity.Addf("Error loading comments on %s: %v", s.ID, err)
			continue
		}

		for _, c := range comments {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			rep.Comments++
			if !ShouldReply(c, me, link) {
				rep.Suppressed++
				continue
			}
			text := r.opt.Generator.Generate(ctx, Prompt(c.Body, link), r.opt.MaxTokens)
			if !textgen.Usable(text) {
				rep.Skipped++
				r.log.Info("reply generation skipped", logx.String("comment", c.ID))
				r.opt.Activity.Addf("Generation skipped for reply to %s", c.ID)
				continue
			}
			if err := r.limiter.Wait(ctx); err != nil {
				return rep, err
			}
			if err := r.do(ctx, func(ctx context.Context) error { return acct.Reply(ctx, c.ID, text) }); err != nil {
				rep.Failed++
				r.log.Warn("reply failed", logx.String("comment", c.ID), logx.String("submission", s.ID), logx.Err(err))
				r.opt.Activity.Addf("Error replying to comment %s: %v", c.ID, err)
				continue
			}
			rep.Replied++
			r.log.Info("reply sent", logx.String("comment", c.ID), logx.String("author", c.Author))
			r.opt.Activity.Addf("Replied to %s on %s", c.Author, s.ID)
		}
	}

	r.log.Info("reply cycle finished",
		logx.Int("submissions", rep.Submissions),
		logx.Int("comments", rep.Comments),
		logx.Int("replied", rep.Replied),
		logx.Int("failed", rep.Failed),
	)
	return rep, nil
}

func (r *Replier) do(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.opt.CallTimeout)
	defer cancel()
	return fn(ctx)
}

func (r *Replier) call(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opt.CallTimeout)
	defer cancel()
	return fn(ctx)
}
