// Package ll implements the BLE Link Layer: the advertising / scanning /
// initiating / connected state machine, channel hopping, stop-and-wait
// acknowledgement and the timing-critical construction of advertising and
// data channel packets.
//
// The package is hardware free. Platform glue implements the Transmitter
// and Radio interfaces and feeds received packets and timer expirations
// into a LinkLayer, which returns a Cmd describing how the radio should be
// reconfigured and when it wants to run next.
package ll

import "fmt"

const (
	// AdvertisingAccessAddress is the fixed access address used by all
	// advertising channel packets.
	AdvertisingAccessAddress uint32 = 0x8E89BED6

	// CRCPreset is the CRC-24 initialization value for advertising channel
	// packets. Data channels use the per-connection CRCInit instead.
	CRCPreset uint32 = 0x555555

	// NumDataChannels is the number of data channel indices (0..=36).
	NumDataChannels = 37
)

// AdvertisingChannel is one of the three advertising channel indices
// (37, 38 or 39).
type AdvertisingChannel uint8

// FirstAdvertisingChannel returns the lowest advertising channel, index 37.
func FirstAdvertisingChannel() AdvertisingChannel {
	return AdvertisingChannel(37)
}

// Cycle returns the next advertising channel, wrapping 39 back to 37.
func (c AdvertisingChannel) Cycle() AdvertisingChannel {
	if c >= 39 {
		return 37
	}
	return c + 1
}

// Index returns the channel index (37..=39).
func (c AdvertisingChannel) Index() uint8 {
	return uint8(c)
}

// RFChannel returns the physical RF channel; advertising uses RF channels
// 0, 12 and 39.
func (c AdvertisingChannel) RFChannel() uint8 {
	switch c {
	case 37:
		return 0
	case 38:
		return 12
	default:
		return 39
	}
}

// Freq returns the channel center frequency in MHz.
func (c AdvertisingChannel) Freq() uint16 {
	return rfChannelFreq(c.RFChannel())
}

// WhiteningIV returns the whitening LFSR seed for this channel.
func (c AdvertisingChannel) WhiteningIV() uint8 {
	return whiteningIV(uint8(c))
}

// DataChannel is one of the 37 data channel indices (0..=36).
type DataChannel uint8

// NewDataChannel builds a DataChannel from a raw index and rejects indices
// outside 0..=36.
func NewDataChannel(index uint8) (DataChannel, error) {
	if index >= NumDataChannels {
		return 0, fmt.Errorf("ll: data channel index %d out of range", index)
	}
	return DataChannel(index), nil
}

// Index returns the channel index (0..=36).
func (c DataChannel) Index() uint8 {
	return uint8(c)
}

// RFChannel returns the physical RF channel. Data channels occupy RF
// channels 1-11 and 13-38, skipping the advertising channels.
func (c DataChannel) RFChannel() uint8 {
	if c <= 10 {
		return uint8(c) + 1
	}
	return uint8(c) + 2
}

// Freq returns the channel center frequency in MHz.
func (c DataChannel) Freq() uint16 {
	return rfChannelFreq(c.RFChannel())
}

// WhiteningIV returns the whitening LFSR seed for this channel.
func (c DataChannel) WhiteningIV() uint8 {
	return whiteningIV(uint8(c))
}

func rfChannelFreq(rf uint8) uint16 {
	return 2402 + uint16(rf)*2
}
