package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate rejects configs that would fail later at wiring time. The config
// watcher runs it before committing a hot reload.
func Validate(c *Config) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	durations := []struct{ path, raw string }{
		{"telegram.timeout", c.Telegram.Timeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"storage.retry_backoff", c.Storage.RetryBackoff},
		{"scheduler.dispatch_interval", c.Scheduler.DispatchInterval},
		{"scheduler.comment_interval", c.Scheduler.CommentInterval},
		{"scheduler.cooldown", c.Scheduler.Cooldown},
		{"scheduler.publish_timeout", c.Scheduler.PublishTimeout},
		{"replies.delay", c.Replies.Delay},
		{"llm.timeout", c.LLM.Timeout},
		{"admin.read_timeout", c.Admin.ReadTimeout},
		{"admin.write_timeout", c.Admin.WriteTimeout},
		{"admin.idle_timeout", c.Admin.IdleTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	if c.Storage.RetryAttempts < 0 {
		return fmt.Errorf("storage.retry_attempts must be >= 0")
	}
	if c.Campaign.Days < 0 {
		return fmt.Errorf("campaign.days must be >= 0")
	}
	if c.Replies.RecentLimit < 0 {
		return fmt.Errorf("replies.recent_limit must be >= 0")
	}
	if link := strings.TrimSpace(c.Campaign.PromotedLink); link != "" {
		u, err := url.Parse(link)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("campaign.promoted_link: invalid url %q", link)
		}
	}

	ids := map[string]bool{}
	for i, e := range c.Campaign.Extra {
		if strings.TrimSpace(e.Prompt) == "" {
			return fmt.Errorf("campaign.extra[%d].prompt is required", i)
		}
		if id := strings.TrimSpace(e.ID); id != "" {
			if ids[id] {
				return fmt.Errorf("campaign.extra[%d].id %q is duplicated", i, id)
			}
			ids[id] = true
		}
	}
	for i, t := range c.Campaign.Templates {
		if strings.TrimSpace(t.Prompt) == "" {
			return fmt.Errorf("campaign.templates[%d].prompt is required", i)
		}
	}
	return nil
}
