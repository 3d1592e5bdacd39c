package systemd

import (
	"fmt"
	"net"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Listeners holds systemd-activated listeners
type Listeners struct {
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors.
// Returns nil listeners if not running under socket activation
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{}

	// Named with FileDescriptorName=metrics in pioverlay.socket
	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if len(named) == 0 {
		return listeners, nil
	}

	listeners.Activated = true

	if lns, ok := named["metrics"]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
		return listeners, nil
	}

	// A single unnamed socket is taken to be the metrics socket
	for _, lns := range named {
		for _, ln := range lns {
			if ln != nil && listeners.Metrics == nil {
				listeners.Metrics = ln
			}
		}
	}

	return listeners, nil
}

// NotifyReady sends READY=1 notification to systemd
func NotifyReady() error {
	return notify(daemon.SdNotifyReady, "ready")
}

// NotifyStopping sends STOPPING=1 notification to systemd
func NotifyStopping() error {
	return notify(daemon.SdNotifyStopping, "stopping")
}

// NotifyWatchdog sends WATCHDOG=1 notification to systemd.
// The poll loop sends one per cycle
func NotifyWatchdog() error {
	return notify(daemon.SdNotifyWatchdog, "watchdog")
}

// NotifyStatus sets the free-form unit status shown by systemctl status
func NotifyStatus(status string) error {
	return notify("STATUS="+status, "status")
}

// WatchdogInterval returns the watchdog timeout configured for the unit,
// or zero when the watchdog is off
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}

func notify(state, name string) error {
	// sent is false when not running under systemd, which is not an error
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("failed to send sd_notify %s: %w", name, err)
	}
	return nil
}
