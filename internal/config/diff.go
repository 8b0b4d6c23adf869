package config

import (
	"reflect"
	"strings"

	logx "postpilot/pkg/logx"
)

// SummarizeConfigChange returns the list of changed sections and safe
// structured attrs for logging. Secrets are reported as "*_set" booleans only.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		strings.TrimSpace(oldCfg.Telegram.Timeout) != strings.TrimSpace(newCfg.Telegram.Timeout) ||
		set(oldCfg.Telegram.Token) != set(newCfg.Telegram.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", set(newCfg.Telegram.Token)),
			logx.Bool("telegram.chat_set", newCfg.Telegram.ChatID != 0),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.dispatch_interval", newCfg.Scheduler.DispatchInterval),
			logx.String("scheduler.comment_interval", newCfg.Scheduler.CommentInterval),
			logx.String("scheduler.cooldown", newCfg.Scheduler.Cooldown),
		)
	}

	if !reflect.DeepEqual(oldCfg.Campaign, newCfg.Campaign) {
		changed = append(changed, "campaign")
		attrs = append(attrs,
			logx.String("campaign.promoted_link", newCfg.Campaign.PromotedLink),
			logx.Int("campaign.days", newCfg.Campaign.Days),
			logx.Int("campaign.templates", len(newCfg.Campaign.Templates)),
			logx.Int("campaign.extra", len(newCfg.Campaign.Extra)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Replies, newCfg.Replies) {
		changed = append(changed, "replies")
		attrs = append(attrs,
			logx.Bool("replies.enabled", newCfg.Replies.Enabled),
			logx.Int("replies.recent_limit", newCfg.Replies.RecentLimit),
			logx.String("replies.delay", newCfg.Replies.Delay),
		)
	}

	if !reflect.DeepEqual(oldCfg.Platforms, newCfg.Platforms) {
		changed = append(changed, "platforms")
		attrs = append(attrs,
			logx.Bool("platforms.microblog_set", set(newCfg.Platforms.Microblog.Handle) && set(newCfg.Platforms.Microblog.AppPassword)),
			logx.Bool("platforms.forum_set", set(newCfg.Platforms.Forum.ClientID) && set(newCfg.Platforms.Forum.Password)),
			logx.Bool("platforms.professional_set", set(newCfg.Platforms.Professional.Token)),
		)
	}

	if !reflect.DeepEqual(oldCfg.LLM, newCfg.LLM) {
		changed = append(changed, "llm")
		attrs = append(attrs,
			logx.Bool("llm.groq_set", set(newCfg.LLM.Groq.APIKey)),
			logx.Bool("llm.openrouter_set", set(newCfg.LLM.OpenRouter.APIKey)),
			logx.Bool("llm.gemini_set", set(newCfg.LLM.Gemini.APIKey)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Admin, newCfg.Admin) {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Bool("admin.enabled", newCfg.Admin.Enabled),
			logx.String("admin.addr", newCfg.Admin.Addr),
			logx.Bool("admin.token_set", set(newCfg.Admin.Token)),
			logx.Bool("admin.allow_insecure", newCfg.Admin.AllowInsecure),
		)
	}

	return changed, attrs
}

func set(s string) bool { return strings.TrimSpace(s) != "" }
