package ll

import (
	"time"

	"github.com/pkg/errors"

	"github.com/corvuslink/ble"
)

// Option configures a LinkLayer at construction time.
type Option func(*LinkLayer) error

// OptLogger replaces the default logger.
func OptLogger(log ble.Logger) Option {
	return func(l *LinkLayer) error {
		if log == nil {
			return errors.New("nil logger")
		}
		l.Logger = log
		return nil
	}
}

// OptFilter installs the peer address filter applied to scan requests,
// connect requests and scan reports.
func OptFilter(f AddressFilter) Option {
	return func(l *LinkLayer) error {
		if f == nil {
			return errors.New("nil filter")
		}
		l.filter = f
		return nil
	}
}

// OptMonitor installs the connection lifecycle monitor.
func OptMonitor(m Monitor) Option {
	return func(l *LinkLayer) error {
		if m == nil {
			return errors.New("nil monitor")
		}
		l.monitor = m
		return nil
	}
}

// OptScanWindow sets how long the scanner or initiator stays on one
// advertising channel before cycling to the next.
func OptScanWindow(d time.Duration) Option {
	return func(l *LinkLayer) error {
		if d < 1*time.Millisecond || d > MaxAdvInterval {
			return errors.Errorf("scan window %s out of range", d)
		}
		l.scanWindow = d
		return nil
	}
}
