package ble

import (
	"fmt"
	"strings"
)

// AddressKind tells whether a device address is a registered IEEE MAC
// address or randomly generated.
type AddressKind uint8

const (
	AddressPublic AddressKind = iota
	AddressRandom
)

// DeviceAddress is a 48-bit Bluetooth device address. Bytes are stored in
// wire order (LSB first), the opposite of the usual display order.
type DeviceAddress struct {
	Bytes [6]byte
	Kind  AddressKind
}

// NewDeviceAddress builds an address from wire-order bytes.
func NewDeviceAddress(b [6]byte, kind AddressKind) DeviceAddress {
	return DeviceAddress{Bytes: b, Kind: kind}
}

// ParseDeviceAddress parses the common display form "aa:bb:cc:dd:ee:ff"
// (MSB first) into wire order.
func ParseDeviceAddress(s string, kind AddressKind) (DeviceAddress, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return DeviceAddress{}, fmt.Errorf("invalid device address %q", s)
	}
	var a DeviceAddress
	a.Kind = kind
	for i, p := range parts {
		var v byte
		if _, err := fmt.Sscanf(p, "%02x", &v); err != nil {
			return DeviceAddress{}, fmt.Errorf("invalid device address %q", s)
		}
		a.Bytes[5-i] = v
	}
	return a, nil
}

func (a DeviceAddress) IsRandom() bool {
	return a.Kind == AddressRandom
}

// String renders the address MSB first so the OUI reads as a prefix.
func (a DeviceAddress) String() string {
	var sb strings.Builder
	for i := 5; i >= 0; i-- {
		if i != 5 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02x", a.Bytes[i])
	}
	return sb.String()
}
