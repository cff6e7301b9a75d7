package ll

import (
	"fmt"
	"math/bits"
)

// MinUsedChannels is the minimum number of used data channels a map must
// mark; maps below this are rejected as invalid connection parameters.
const MinUsedChannels = 2

// ChannelMap marks each of the 37 data channels as used or unused. It is
// carried on the air as the 5-byte `ChM` field of connect requests and
// LL_CHANNEL_MAP_IND, LSB of the first byte flagging channel 0. The three
// RFU bits in the last byte are cleared on ingest.
type ChannelMap struct {
	raw  [5]byte
	used uint8
}

// ChannelMapFromRaw builds a map from its wire representation.
func ChannelMapFromRaw(raw [5]byte) ChannelMap {
	raw[4] &= 0x1f
	var used uint8
	for _, b := range raw {
		used += uint8(bits.OnesCount8(b))
	}
	return ChannelMap{raw: raw, used: used}
}

// AllChannels returns a map marking every data channel as used.
func AllChannels() ChannelMap {
	return ChannelMap{raw: [5]byte{0xff, 0xff, 0xff, 0xff, 0x1f}, used: NumDataChannels}
}

// Raw returns the wire representation.
func (m ChannelMap) Raw() [5]byte {
	return m.raw
}

// NumUsed returns the number of channels marked used.
func (m ChannelMap) NumUsed() uint8 {
	return m.used
}

// Valid reports whether the map marks enough channels for a connection.
func (m ChannelMap) Valid() bool {
	return m.used >= MinUsedChannels
}

// IsUsed reports whether the given data channel is marked used.
func (m ChannelMap) IsUsed(ch DataChannel) bool {
	return m.raw[ch.Index()/8]&(1<<(ch.Index()%8)) != 0
}

// ByIndex returns the n-th used channel in ascending index order. This is
// the lookup the hop remapping rule is defined in terms of.
func (m ChannelMap) ByIndex(n uint8) (DataChannel, error) {
	if n >= m.used {
		return 0, fmt.Errorf("ll: used-channel index %d out of range (%d used)", n, m.used)
	}
	var seen uint8
	for i := uint8(0); i < NumDataChannels; i++ {
		ch := DataChannel(i)
		if !m.IsUsed(ch) {
			continue
		}
		if seen == n {
			return ch, nil
		}
		seen++
	}
	// Unreachable while used matches the bit count.
	return 0, fmt.Errorf("ll: channel map corrupted")
}

func (m ChannelMap) String() string {
	return fmt.Sprintf("ChannelMap(%d used, %x)", m.used, m.raw)
}
