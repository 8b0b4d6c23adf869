// Package systemd reports service state to the systemd service manager
// (Type=notify units). Every call is a no-op outside systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

// Ready tells systemd startup finished. It reports whether the
// notification was delivered.
func Ready() (bool, error) { return notify(false, daemon.SdNotifyReady) }

func Stopping() (bool, error) { return notify(false, daemon.SdNotifyStopping) }

func Reloading() (bool, error) { return notify(false, daemon.SdNotifyReloading) }

// Status publishes a free-form status line shown by `systemctl status`.
func Status(msg string) (bool, error) { return notify(false, "STATUS="+msg) }

// Watchdog pings the systemd watchdog at half the configured interval until
// ctx is done. It returns immediately when the unit has no WatchdogSec.
func Watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	watchdogLoop(ctx, interval/2)
}

func watchdogLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = notify(false, daemon.SdNotifyWatchdog)
		}
	}
}
