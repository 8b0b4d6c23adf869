package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"postpilot/internal/admin"
	"postpilot/internal/config"
	"postpilot/internal/platform"
	"postpilot/internal/platform/bluesky"
	"postpilot/internal/platform/linkedin"
	"postpilot/internal/platform/reddit"
	"postpilot/internal/storage"
	"postpilot/internal/task/scheduler"
	"postpilot/internal/textgen"
	logx "postpilot/pkg/logx"
)

const (
	defaultDispatchInterval = time.Minute
	defaultCommentInterval  = 10 * time.Minute
	defaultReplyDelay       = 2 * time.Second
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(sc.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
	case "memory":
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	backoff, err := config.ParseDurationOrDefault("storage.retry_backoff", sc.RetryBackoff, 100*time.Millisecond)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Retry:       storage.RetryPolicy{MaxAttempts: sc.RetryAttempts, Backoff: backoff},
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.ChatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapAdminConfig(cfg *config.Config) (admin.Config, error) {
	ac := cfg.Admin
	read, err := config.ParseDurationOrDefault("admin.read_timeout", ac.ReadTimeout, 10*time.Second)
	if err != nil {
		return admin.Config{}, err
	}
	// generation and dispatch run inside the request
	write, err := config.ParseDurationOrDefault("admin.write_timeout", ac.WriteTimeout, 5*time.Minute)
	if err != nil {
		return admin.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("admin.idle_timeout", ac.IdleTimeout, 60*time.Second)
	if err != nil {
		return admin.Config{}, err
	}
	return admin.Config{
		Enabled:       ac.Enabled,
		Addr:          ac.Addr,
		Token:         ac.Token,
		AllowInsecure: ac.AllowInsecure,
		Pprof:         ac.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

// loopSettings are the hot-reloadable knobs of the background loops.
type loopSettings struct {
	Dispatch       time.Duration
	Comments       time.Duration
	PublishTimeout time.Duration
	Scheduler      scheduler.Config
}

func mapLoopSettings(cfg *config.Config) (loopSettings, error) {
	sc := cfg.Scheduler
	var (
		ls  loopSettings
		err error
	)
	if ls.Dispatch, err = config.ParseDurationOrDefault("scheduler.dispatch_interval", sc.DispatchInterval, defaultDispatchInterval); err != nil {
		return ls, err
	}
	if ls.Comments, err = config.ParseDurationOrDefault("scheduler.comment_interval", sc.CommentInterval, defaultCommentInterval); err != nil {
		return ls, err
	}
	if ls.PublishTimeout, err = config.ParseDurationOrDefault("scheduler.publish_timeout", sc.PublishTimeout, 30*time.Second); err != nil {
		return ls, err
	}
	cooldown, err := config.ParseDurationOrDefault("scheduler.cooldown", sc.Cooldown, scheduler.DefaultCooldown)
	if err != nil {
		return ls, err
	}
	ls.Scheduler = scheduler.Config{Cooldown: cooldown}
	return ls, nil
}

func mapTextgenOptions(cfg *config.Config) (textgen.Options, error) {
	timeout, err := config.ParseDurationOrDefault("llm.timeout", cfg.LLM.Timeout, textgen.DefaultTimeout)
	if err != nil {
		return textgen.Options{}, err
	}
	backend := func(name string, bc config.BackendConfig) textgen.OpenAIConfig {
		return textgen.OpenAIConfig{
			Name:    name,
			BaseURL: bc.BaseURL,
			APIKey:  bc.APIKey,
			Referer: bc.Referer,
			Models:  bc.Models,
			Timeout: timeout,
		}
	}
	return textgen.Options{
		Groq:       backend("groq", cfg.LLM.Groq),
		OpenRouter: backend("openrouter", cfg.LLM.OpenRouter),
		Gemini: textgen.GeminiConfig{
			APIKey:  cfg.LLM.Gemini.APIKey,
			Model:   cfg.LLM.Gemini.Model,
			Timeout: timeout,
		},
	}, nil
}

// buildPublishers binds the platform factories to the credentials of cfg.
// A platform whose credentials are missing gets no factory and reports
// ErrNotConfigured when used.
func buildPublishers(cfg *config.Config) platform.Publishers {
	p := platform.Publishers{Verifiers: map[platform.Kind]func(context.Context) (platform.Verifier, error){}}

	mb := cfg.Platforms.Microblog
	if set(mb.Handle) && set(mb.AppPassword) {
		bc := bluesky.Config{Host: mb.Host, Handle: mb.Handle, AppPassword: mb.AppPassword}
		p.Microblog = func(context.Context) (platform.Microblog, error) { return bluesky.New(bc) }
		p.Verifiers[platform.KindMicroblog] = func(context.Context) (platform.Verifier, error) { return bluesky.New(bc) }
	}

	f := cfg.Platforms.Forum
	if set(f.ClientID) && set(f.ClientSecret) && set(f.Username) && f.Password != "" {
		rc := reddit.Config{
			ClientID:     f.ClientID,
			ClientSecret: f.ClientSecret,
			Username:     f.Username,
			Password:     f.Password,
			UserAgent:    f.UserAgent,
			AuthURL:      f.AuthURL,
			BaseURL:      f.BaseURL,
		}
		p.Forum = func(context.Context) (platform.Forum, error) { return reddit.New(rc) }
		p.ForumAccount = func(context.Context) (platform.ForumAccount, error) { return reddit.New(rc) }
		p.Verifiers[platform.KindForum] = func(context.Context) (platform.Verifier, error) { return reddit.New(rc) }
	}

	pro := cfg.Platforms.Professional
	if set(pro.Token) {
		lc := linkedin.Config{Token: pro.Token, Author: pro.Author, BaseURL: pro.BaseURL}
		p.Professional = func(context.Context) (platform.Professional, error) { return linkedin.New(lc) }
		p.Verifiers[platform.KindProfessional] = func(context.Context) (platform.Verifier, error) { return linkedin.New(lc) }
	}
	return p
}

func set(s string) bool { return strings.TrimSpace(s) != "" }
