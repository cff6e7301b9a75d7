package ll

import (
	"fmt"
	"time"
)

// Clock supplies the timebase for connection events and timeouts. Drivers
// back it with the radio's timer; tests drive it by hand.
type Clock interface {
	Now() time.Time
}

// Transmitter abstracts the radio's transmit path.
//
// Callers fill TxPayload with the outgoing payload, then call one of the
// Transmit methods with a header whose length field covers the bytes they
// wrote. The transmitter owns access-address, CRC and whitening handling
// for the given channel.
type Transmitter interface {
	// TxPayload returns the reusable payload buffer. It holds at least
	// MaxAdvPayload bytes and stays valid until the next Transmit call.
	TxPayload() []byte

	// TransmitAdvertising sends an advertising channel PDU on ch.
	TransmitAdvertising(header AdvHeader, ch AdvertisingChannel)

	// TransmitData sends a data channel PDU on ch using the connection's
	// access address and CRC preset.
	TransmitData(accessAddress, crcInit uint32, header DataHeader, ch DataChannel)
}

// RadioMode selects what the receiver should do after an Update or
// ProcessPacket call returns.
type RadioMode uint8

const (
	// RadioOff disables the receiver.
	RadioOff RadioMode = iota

	// RadioListenAdvertising listens on an advertising channel using the
	// fixed advertising access address and CRC preset.
	RadioListenAdvertising

	// RadioListenData listens on a data channel with connection-specific
	// access address and CRC preset.
	RadioListenData
)

func (m RadioMode) String() string {
	switch m {
	case RadioOff:
		return "off"
	case RadioListenAdvertising:
		return "listen-advertising"
	case RadioListenData:
		return "listen-data"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// RadioCmd reconfigures the receive path. Only the fields of the selected
// mode are meaningful.
type RadioCmd struct {
	Mode RadioMode

	// RadioListenAdvertising
	AdvChannel AdvertisingChannel

	// RadioListenData
	Channel       DataChannel
	AccessAddress uint32
	CRCInit       uint32
}

// Off returns a command that disables the receiver.
func Off() RadioCmd {
	return RadioCmd{Mode: RadioOff}
}

// ListenAdvertising returns a command to receive on an advertising
// channel.
func ListenAdvertising(ch AdvertisingChannel) RadioCmd {
	return RadioCmd{Mode: RadioListenAdvertising, AdvChannel: ch}
}

// ListenData returns a command to receive on a data channel.
func ListenData(ch DataChannel, accessAddress, crcInit uint32) RadioCmd {
	return RadioCmd{
		Mode:          RadioListenData,
		Channel:       ch,
		AccessAddress: accessAddress,
		CRCInit:       crcInit,
	}
}

type nextUpdateKind uint8

const (
	nextKeep nextUpdateKind = iota
	nextDisable
	nextAt
)

// NextUpdate tells the driver when to call LinkLayer.Update next.
type NextUpdate struct {
	kind nextUpdateKind
	at   time.Time
}

// NextKeep leaves the previously armed update timer untouched.
func NextKeep() NextUpdate {
	return NextUpdate{kind: nextKeep}
}

// NextDisable cancels any armed update timer.
func NextDisable() NextUpdate {
	return NextUpdate{kind: nextDisable}
}

// NextAt arms the update timer for t.
func NextAt(t time.Time) NextUpdate {
	return NextUpdate{kind: nextAt, at: t}
}

// Keep reports whether the previous timer should stay armed.
func (n NextUpdate) Keep() bool {
	return n.kind == nextKeep
}

// At returns the deadline and whether one is set.
func (n NextUpdate) At() (time.Time, bool) {
	return n.at, n.kind == nextAt
}

func (n NextUpdate) String() string {
	switch n.kind {
	case nextKeep:
		return "keep"
	case nextDisable:
		return "disable"
	default:
		return fmt.Sprintf("at(%s)", n.at.Format("15:04:05.000000"))
	}
}

// Cmd is what the link layer hands back to the driver after every
// ProcessPacket or Update call.
type Cmd struct {
	// Radio reconfigures the receive path.
	Radio RadioCmd

	// Next schedules the following Update call.
	Next NextUpdate

	// QueuedWork is set when PDUs were moved between queues and the host
	// side should be polled.
	QueuedWork bool
}
