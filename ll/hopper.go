package ll

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// MinHopIncrement and MaxHopIncrement bound the per-connection hop
	// increment carried in the connect request.
	MinHopIncrement = 5
	MaxHopIncrement = 16
)

// Hopper computes the data channel selection sequence of a connection
// (channel selection algorithm #1).
//
// Each connection event advances the unmapped channel by the hop increment
// modulo 37. If the resulting channel is unused in the active map, it is
// remapped to the (unmappedChannel mod numUsed)-th used channel in
// ascending order. A channel map received via LLCP becomes pending and is
// promoted to active only at its instant, never immediately.
type Hopper struct {
	hop      uint8
	unmapped uint8
	active   ChannelMap

	pending    ChannelMap
	pendingAt  uint16
	hasPending bool
}

// NewHopper validates the hop increment and channel map and returns a
// hopper positioned before the first connection event (unmapped channel 0).
func NewHopper(hop uint8, m ChannelMap) (*Hopper, error) {
	if hop < MinHopIncrement || hop > MaxHopIncrement {
		return nil, errors.Wrap(ErrInvalidParameter, fmt.Sprintf("hop increment %d", hop))
	}
	if !m.Valid() {
		return nil, errors.Wrap(ErrInvalidParameter, fmt.Sprintf("channel map with %d used channels", m.NumUsed()))
	}
	return &Hopper{hop: hop, active: m}, nil
}

// SetPendingMap stages a new channel map to be activated at the connection
// event counter value instant.
func (h *Hopper) SetPendingMap(m ChannelMap, instant uint16) error {
	if !m.Valid() {
		return errors.Wrap(ErrInvalidParameter, "pending channel map")
	}
	h.pending = m
	h.pendingAt = instant
	h.hasPending = true
	return nil
}

// HasPendingMap reports whether a staged map has not been activated yet.
func (h *Hopper) HasPendingMap() bool {
	return h.hasPending
}

// ActiveMap returns the channel map currently in effect.
func (h *Hopper) ActiveMap() ChannelMap {
	return h.active
}

// Next advances the hop sequence and returns the channel of the connection
// event with the given counter value. A pending map whose instant has been
// reached is activated before the channel is selected.
func (h *Hopper) Next(event uint16) DataChannel {
	if h.hasPending && event == h.pendingAt {
		h.active = h.pending
		h.hasPending = false
	}

	h.unmapped = (h.unmapped + h.hop) % NumDataChannels
	return h.mapChannel()
}

// Current returns the channel of the most recent Next call without
// advancing the sequence.
func (h *Hopper) Current() DataChannel {
	return h.mapChannel()
}

func (h *Hopper) mapChannel() DataChannel {
	ch := DataChannel(h.unmapped)
	if h.active.IsUsed(ch) {
		return ch
	}

	remapped, err := h.active.ByIndex(h.unmapped % h.active.NumUsed())
	if err != nil {
		// Cannot happen: the map always has at least MinUsedChannels used
		// channels and the index is reduced modulo NumUsed.
		panic(err)
	}
	return remapped
}
