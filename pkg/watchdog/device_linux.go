//go:build linux

package watchdog

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/itohio/doorbell/pkg/metrics"
)

// Device is the kernel watchdog, usually /dev/watchdog. Once opened the
// machine reboots if Feed is not called within the timeout.
type Device struct {
	f      *os.File
	logger *slog.Logger
}

// OpenDevice opens path and sets its timeout.
func OpenDevice(path string, timeout time.Duration, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open watchdog %s: %w", path, err)
	}

	secs := int(timeout / time.Second)
	if secs > 0 {
		if err := unix.IoctlSetPointerInt(int(f.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
			logger.Warn("failed to set watchdog timeout", "component", "watchdog", "timeout", timeout, "err", err)
		}
	}

	logger.Info("watchdog opened", "component", "watchdog", "device", path, "timeout", timeout)
	return &Device{f: f, logger: logger.With("component", "watchdog")}, nil
}

func (d *Device) Feed() error {
	if err := unix.IoctlWatchdogKeepalive(int(d.f.Fd())); err != nil {
		return fmt.Errorf("failed to feed watchdog: %w", err)
	}
	metrics.IncWatchdogFeed()
	return nil
}

// Close disarms the watchdog with the magic close character.
func (d *Device) Close() error {
	if _, err := d.f.Write([]byte("V")); err != nil {
		d.logger.Warn("magic close failed, watchdog stays armed", "err", err)
	}
	return d.f.Close()
}
