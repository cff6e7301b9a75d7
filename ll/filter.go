package ll

import "github.com/corvuslink/ble"

// AddressFilter decides whether a peer device address may interact with
// the local device.
type AddressFilter interface {
	Allow(addr ble.DeviceAddress) bool
}

// AllowAll accepts every peer. It is the default filter.
type AllowAll struct{}

func (AllowAll) Allow(ble.DeviceAddress) bool { return true }

// Whitelist accepts only the listed addresses.
type Whitelist struct {
	addrs []ble.DeviceAddress
}

// NewWhitelist builds a whitelist from the given addresses.
func NewWhitelist(addrs ...ble.DeviceAddress) *Whitelist {
	w := &Whitelist{addrs: make([]ble.DeviceAddress, len(addrs))}
	copy(w.addrs, addrs)
	return w
}

func (w *Whitelist) Allow(addr ble.DeviceAddress) bool {
	for _, a := range w.addrs {
		if a == addr {
			return true
		}
	}
	return false
}

// AllowOnly accepts exactly one address, as used when initiating a
// connection to a known peer.
type AllowOnly struct {
	Addr ble.DeviceAddress
}

func (f AllowOnly) Allow(addr ble.DeviceAddress) bool {
	return addr == f.Addr
}
