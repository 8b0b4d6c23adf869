package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"postpilot/internal/dispatch"
	"postpilot/internal/eventbus"
	kit "postpilot/internal/transport"
	logx "postpilot/pkg/logx"
)

const (
	alertDedupWindow = 10 * time.Minute
	alertSendTimeout = 15 * time.Second
)

// alerts forwards publication failures and non-empty cycle summaries to the
// operator chat. Identical failure messages are suppressed for
// alertDedupWindow.
type alerts struct {
	sender  kit.Sender
	target  kit.ChatTarget
	log     logx.Logger
	limiter *rate.Limiter
	now     func() time.Time

	mu    sync.Mutex
	dedup map[string]time.Time
}

func newAlerts(sender kit.Sender, chatID int64, log logx.Logger) *alerts {
	return &alerts{
		sender:  sender,
		target:  kit.ChatTarget{ChatID: chatID},
		log:     log.With(logx.String("comp", "alerts")),
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		now:     time.Now,
		dedup:   map[string]time.Time{},
	}
}

func (n *alerts) enabled() bool { return n != nil && n.sender != nil && n.target.ChatID != 0 }

func (n *alerts) run(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			text, key := format(e)
			if text == "" || n.suppressed(key) {
				continue
			}
			if err := n.limiter.Wait(ctx); err != nil {
				return
			}
			sctx, cancel := context.WithTimeout(ctx, alertSendTimeout)
			_, err := n.sender.SendText(sctx, n.target, text, &kit.SendOptions{DisablePreview: true})
			cancel()
			if err != nil {
				n.log.Warn("alert send failed", logx.String("type", e.Type), logx.Err(err))
			}
		}
	}
}

// suppressed reports whether key was seen within the dedup window and
// records it otherwise. An empty key is never suppressed.
func (n *alerts) suppressed(key string) bool {
	if key == "" {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	for k, until := range n.dedup {
		if now.After(until) {
			delete(n.dedup, k)
		}
	}
	if until, ok := n.dedup[key]; ok && now.Before(until) {
		return true
	}
	n.dedup[key] = now.Add(alertDedupWindow)
	return false
}

// format renders e, returning "" for events that are not alert-worthy.
func format(e eventbus.Event) (text, dedupKey string) {
	switch e.Type {
	case eventbus.PostFailed:
		pe, ok := e.Data.(dispatch.PostEvent)
		if !ok {
			return "", ""
		}
		return fmt.Sprintf("❌ Error posting to %s (%s): %s", pe.Platform, pe.PostID, pe.Error),
			pe.Platform + "|" + pe.PostID + "|" + pe.Error
	case eventbus.DispatchCycle:
		sum, ok := e.Data.(dispatch.Summary)
		if !ok || (sum.Posted == 0 && sum.Failed == 0) {
			return "", ""
		}
		return fmt.Sprintf("📬 %s (posted %d, failed %d, skipped %d)", sum.String(), sum.Posted, sum.Failed, sum.Skipped), ""
	}
	return "", ""
}
