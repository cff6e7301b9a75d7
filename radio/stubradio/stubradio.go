// Package stubradio provides an in-memory radio for tests and simulation.
// It implements ll.Transmitter, records every transmitted packet, keeps a
// manually advanced clock and forwards injected packets and timer expiries
// into a link layer.
package stubradio

import (
	"time"

	"github.com/corvuslink/ble/ll"
)

// TxPacket is one recorded transmission.
type TxPacket struct {
	Adv bool // advertising channel packet, else data channel

	AdvHeader  ll.AdvHeader
	AdvChannel ll.AdvertisingChannel

	DataHeader    ll.DataHeader
	Channel       ll.DataChannel
	AccessAddress uint32
	CRCInit       uint32

	Payload []byte
}

// Radio is the stub driver. It is not safe for concurrent use; tests drive
// it from one goroutine, like a real-time loop would.
type Radio struct {
	now     time.Time
	payload [ll.MaxAdvPayload]byte

	// Tx is the transmit log, oldest first.
	Tx []TxPacket

	cmd         ll.RadioCmd
	deadline    time.Time
	hasDeadline bool
}

// New returns a stub radio whose clock starts at start.
func New(start time.Time) *Radio {
	return &Radio{now: start, cmd: ll.Off()}
}

// Now implements ll.Clock.
func (r *Radio) Now() time.Time {
	return r.now
}

// Advance moves the clock forward.
func (r *Radio) Advance(d time.Duration) {
	r.now = r.now.Add(d)
}

// TxPayload implements ll.Transmitter.
func (r *Radio) TxPayload() []byte {
	return r.payload[:]
}

// TransmitAdvertising implements ll.Transmitter.
func (r *Radio) TransmitAdvertising(header ll.AdvHeader, ch ll.AdvertisingChannel) {
	n := int(header.PayloadLength())
	r.Tx = append(r.Tx, TxPacket{
		Adv:        true,
		AdvHeader:  header,
		AdvChannel: ch,
		Payload:    append([]byte(nil), r.payload[:n]...),
	})
}

// TransmitData implements ll.Transmitter.
func (r *Radio) TransmitData(accessAddress, crcInit uint32, header ll.DataHeader, ch ll.DataChannel) {
	n := int(header.PayloadLength())
	r.Tx = append(r.Tx, TxPacket{
		DataHeader:    header,
		Channel:       ch,
		AccessAddress: accessAddress,
		CRCInit:       crcInit,
		Payload:       append([]byte(nil), r.payload[:n]...),
	})
}

// LastTx returns the most recent transmission.
func (r *Radio) LastTx() (TxPacket, bool) {
	if len(r.Tx) == 0 {
		return TxPacket{}, false
	}
	return r.Tx[len(r.Tx)-1], true
}

// Apply records the radio command and update deadline from a Cmd, the way
// a hardware driver would reprogram receiver and timer.
func (r *Radio) Apply(cmd ll.Cmd) {
	r.cmd = cmd.Radio
	if at, ok := cmd.Next.At(); ok {
		r.deadline = at
		r.hasDeadline = true
	} else if !cmd.Next.Keep() {
		r.hasDeadline = false
	}
}

// Listening returns the active radio command.
func (r *Radio) Listening() ll.RadioCmd {
	return r.cmd
}

// Deadline returns the armed update deadline, if any.
func (r *Radio) Deadline() (time.Time, bool) {
	return r.deadline, r.hasDeadline
}

// InjectAdv feeds an advertising channel packet into the link layer, as if
// received at the current clock, and applies the resulting command.
func (r *Radio) InjectAdv(l *ll.LinkLayer, header ll.AdvHeader, payload []byte, crcOK bool) ll.Cmd {
	cmd := l.ProcessAdvPacket(r.now, r, header, payload, crcOK)
	r.Apply(cmd)
	return cmd
}

// InjectData feeds a data channel packet into the link layer and applies
// the resulting command.
func (r *Radio) InjectData(l *ll.LinkLayer, header ll.DataHeader, payload []byte, crcOK bool) ll.Cmd {
	cmd := l.ProcessDataPacket(r.now, r, header, payload, crcOK)
	r.Apply(cmd)
	return cmd
}

// Tick advances the clock to the armed deadline and runs the link layer's
// Update. It reports false when no deadline is armed.
func (r *Radio) Tick(l *ll.LinkLayer) (ll.Cmd, bool) {
	if !r.hasDeadline {
		return ll.Cmd{}, false
	}
	if r.deadline.After(r.now) {
		r.now = r.deadline
	}
	cmd := l.Update(r.now, r)
	r.Apply(cmd)
	return cmd, true
}
