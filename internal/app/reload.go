package app

import (
	"context"
	"reflect"
	"strings"

	"postpilot/internal/campaign"
	"postpilot/internal/config"
	logx "postpilot/pkg/logx"
	"postpilot/pkg/systemd"
)

// validateWiring rejects a config the components cannot be rebuilt from.
func validateWiring(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapLoopSettings(cfg); err != nil {
		return err
	}
	if _, err := mapAdminConfig(cfg); err != nil {
		return err
	}
	if _, err := mapTextgenOptions(cfg); err != nil {
		return err
	}
	_, err := campaign.FromConfig(cfg.Campaign)
	return err
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig applies the hot-reloadable sections. Storage, credentials and
// text generation backends need a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	if oldCfg == nil {
		oldCfg = &config.Config{}
	}
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	if a.logs != nil {
		a.logs.Apply(mapLogConfig(newCfg))
	}

	for _, s := range sections {
		switch s {
		case "storage", "platforms", "llm", "telegram":
			a.log.Warn(s + " config changed; restart required for changes to take effect")
		}
	}

	if !reflect.DeepEqual(oldCfg.Campaign, newCfg.Campaign) {
		if cal, err := campaign.FromConfig(newCfg.Campaign); err != nil {
			a.log.Warn("invalid campaign config; keeping previous", logx.Err(err))
		} else {
			a.setCalendar(cal)
			a.log.Info("campaign calendar reloaded", logx.Int("entries", cal.Len()))
		}
	}

	if ls, err := mapLoopSettings(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(ls.Scheduler)
		a.loopsMu.Lock()
		changed := ls != a.loops || oldCfg.Replies.Enabled != newCfg.Replies.Enabled
		a.loops = ls
		a.loopsMu.Unlock()
		if changed {
			if err := a.registerLoops(newCfg, ls); err != nil {
				a.log.Warn("loop re-registration failed", logx.Err(err))
			}
		}
	}

	if ac, err := mapAdminConfig(newCfg); err != nil {
		a.log.Warn("invalid admin config; keeping previous", logx.Err(err))
	} else {
		a.admin.Reconfigure(ctx, ac)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
