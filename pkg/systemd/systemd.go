// Package systemd reports service state to systemd over the notify socket.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd startup finished (Type=notify units).
func Ready() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// Stopping tells systemd shutdown began.
func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(msg string) (bool, error) { return daemon.SdNotify(false, "STATUS="+msg) }

// Watchdog pings the watchdog at half the configured interval until ctx is
// done. It returns immediately when WatchdogSec is not set for the unit.
func Watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
