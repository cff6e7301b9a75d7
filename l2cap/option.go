package l2cap

import (
	"github.com/pkg/errors"

	"github.com/corvuslink/ble"
)

// Option configures a Mux at construction time.
type Option func(*Mux) error

// OptMTU overrides the default SDU payload bound.
func OptMTU(mtu int) Option {
	return func(m *Mux) error {
		if mtu < DefaultMTU || mtu > MaxMTU {
			return errors.Errorf("MTU %d out of range [%d, %d]", mtu, DefaultMTU, MaxMTU)
		}
		m.mtu = mtu
		return nil
	}
}

// OptLogger replaces the default logger.
func OptLogger(log ble.Logger) Option {
	return func(m *Mux) error {
		if log == nil {
			return errors.New("nil logger")
		}
		m.Logger = log
		return nil
	}
}
