package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"karmabot/internal/runtime/supervisor"
	logx "karmabot/pkg/logx"
)

var (
	defaultSdNotify = daemon.SdNotify
	// sdNotify is swapped in tests.
	sdNotify = defaultSdNotify
)

func notifyReady(log logx.Logger, maxDaily int) {
	send(log, daemon.SdNotifyReady+"\nSTATUS="+fmt.Sprintf("running, max %d actions/day", maxDaily))
}

func notifyStopping(log logx.Logger, reason string) {
	send(log, daemon.SdNotifyStopping+"\nSTATUS=stopping: "+reason)
}

func send(log logx.Logger, state string) {
	sent, err := sdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// startWatchdog pings the systemd watchdog at half the configured
// interval when WatchdogSec is set for the unit.
func startWatchdog(sup *supervisor.Supervisor, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	sup.Go("systemd.watchdog", func(ctx context.Context) error {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				send(log, daemon.SdNotifyWatchdog)
			}
		}
	})
}
