// Package l2cap multiplexes logical channels over a single link layer
// connection. Outbound SDUs are prefixed with the basic L2CAP header and
// segmented into link layer fragments; inbound fragments are reassembled
// per the start/continuation discipline and dispatched by channel ID.
//
// The package runs entirely on the non-real-time side: it only touches the
// connection through the llq packet queues.
package l2cap

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/corvuslink/ble"
	"github.com/corvuslink/ble/ll"
	"github.com/corvuslink/ble/llq"
	"github.com/corvuslink/ble/wire"
)

// ChannelID identifies a logical channel. LE links use a small fixed set.
type ChannelID uint16

const (
	// CIDAtt carries the Attribute Protocol.
	CIDAtt ChannelID = 0x0004

	// CIDLESignal carries the LE signaling channel.
	CIDLESignal ChannelID = 0x0005

	// CIDSecurityManager carries the Security Manager Protocol.
	CIDSecurityManager ChannelID = 0x0006
)

func (c ChannelID) String() string {
	switch c {
	case CIDAtt:
		return "ATT"
	case CIDLESignal:
		return "LE-signal"
	case CIDSecurityManager:
		return "SM"
	default:
		return fmt.Sprintf("CID(%#04x)", uint16(c))
	}
}

// headerSize is the basic L2CAP header: 16-bit payload length plus CID.
const headerSize = 4

// DefaultMTU bounds inbound and outbound SDU payloads. 23 bytes is the
// minimum ATT_MTU every LE device supports.
const DefaultMTU = 23

// MaxMTU is the largest MTU the fixed reassembly buffer can serve.
const MaxMTU = 512

var (
	// ErrPayloadTooLarge is returned by Send for SDUs above the MTU.
	ErrPayloadTooLarge = errors.New("l2cap: payload exceeds MTU")

	// ErrUnknownChannel is returned by Send for a CID without a handler.
	ErrUnknownChannel = errors.New("l2cap: unknown channel")
)

// Handler consumes one reassembled inbound SDU. The payload aliases the
// reassembly buffer and is only valid for the duration of the call.
type Handler func(sdu []byte)

// Mux is the channel multiplexer of one connection.
//
// Send and Poll must each be called from a single goroutine; they may be
// the same one. The zero value is not usable, construct with New.
type Mux struct {
	ble.Logger

	tx *llq.Producer // toward the link layer
	rx *llq.Consumer // from the link layer

	mtu      int
	handlers map[ChannelID]Handler

	// Reassembly state of the SDU in progress.
	assembling bool
	asmCID     ChannelID
	asmLen     int // payload length announced by the header
	asmBuf     [headerSize + MaxMTU]byte
	asmN       int
}

// New creates a multiplexer over the connection's queue pair.
func New(tx *llq.Producer, rx *llq.Consumer, opts ...Option) (*Mux, error) {
	m := &Mux{
		Logger:   ble.GetLogger(),
		tx:       tx,
		rx:       rx,
		mtu:      DefaultMTU,
		handlers: make(map[ChannelID]Handler),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, errors.Wrap(err, "can't apply option")
		}
	}
	return m, nil
}

// MTU returns the SDU payload bound.
func (m *Mux) MTU() int {
	return m.mtu
}

// Handle registers the handler of a channel, replacing any previous one.
func (m *Mux) Handle(cid ChannelID, h Handler) {
	m.handlers[cid] = h
}

// fragments returns the number of link layer PDUs an SDU needs.
func fragments(total int) int {
	return (total + llq.MaxPayload - 1) / llq.MaxPayload
}

// Send segments one SDU and queues its fragments. The operation is
// all-or-nothing: with too few free queue slots it fails with
// llq.ErrQueueFull and queues nothing, so a retry cannot interleave
// fragments of different SDUs on the air.
func (m *Mux) Send(cid ChannelID, sdu []byte) error {
	if len(sdu) > m.mtu {
		return errors.Wrapf(ErrPayloadTooLarge, "%d byte SDU, MTU %d", len(sdu), m.mtu)
	}
	if _, ok := m.handlers[cid]; !ok {
		return errors.Wrapf(ErrUnknownChannel, "%s", cid)
	}

	var frame [headerSize + MaxMTU]byte
	w := wire.NewWriter(frame[:])
	w.WriteUint16(uint16(len(sdu)))
	w.WriteUint16(uint16(cid))
	if err := w.WriteSlice(sdu); err != nil {
		return err
	}
	buf := w.Bytes()

	if m.tx.Free() < fragments(len(buf)) {
		return llq.ErrQueueFull
	}

	llid := ll.LLIDDataStart
	for len(buf) > 0 {
		n := len(buf)
		if n > llq.MaxPayload {
			n = llq.MaxPayload
		}
		header := ll.NewDataHeader(llid).WithPayloadLength(uint8(n)).Uint16()
		if err := m.tx.Produce(header, buf[:n]); err != nil {
			// Free was checked above; a failure here means the queue's
			// producer side is shared, which Mux does not support.
			return err
		}
		buf = buf[n:]
		llid = ll.LLIDDataCont
	}
	return nil
}

// Poll drains the inbound queue, reassembles SDUs and dispatches them to
// their channel handlers. It returns the number of complete SDUs
// delivered.
func (m *Mux) Poll() int {
	delivered := 0
	for {
		pdu, ok := m.rx.Peek()
		if !ok {
			return delivered
		}
		if m.reassemble(pdu) {
			delivered++
		}
		m.rx.Pop()
	}
}

// reassemble feeds one fragment into the reassembly buffer and reports
// whether it completed an SDU.
func (m *Mux) reassemble(pdu *llq.PDU) bool {
	llid := ll.DataHeader(pdu.Header()).LLID()
	payload := pdu.Payload()

	switch llid {
	case ll.LLIDDataStart:
		if m.assembling {
			// A new start discards whatever was in progress.
			m.Debugf("restarting reassembly, %d/%d bytes dropped", m.asmN, headerSize+m.asmLen)
			m.assembling = false
		}
		if len(payload) < headerSize {
			// The basic header must fit the first fragment.
			return false
		}
		r := wire.NewReader(payload)
		length, _ := r.ReadUint16()
		cid, _ := r.ReadUint16()
		if int(length) > m.mtu {
			m.Debugf("dropping %d byte SDU above MTU", length)
			return false
		}
		m.assembling = true
		m.asmCID = ChannelID(cid)
		m.asmLen = int(length)
		m.asmN = copy(m.asmBuf[:], payload)

	case ll.LLIDDataCont:
		if !m.assembling {
			// Orphan continuation, nothing to attach it to.
			return false
		}
		if m.asmN+len(payload) > headerSize+m.asmLen {
			m.Debugf("oversized continuation, dropping SDU on %s", m.asmCID)
			m.assembling = false
			return false
		}
		m.asmN += copy(m.asmBuf[m.asmN:], payload)

	default:
		return false
	}

	if m.asmN < headerSize+m.asmLen {
		return false
	}
	m.assembling = false
	return m.dispatch()
}

func (m *Mux) dispatch() bool {
	sdu := m.asmBuf[headerSize : headerSize+m.asmLen]
	h, ok := m.handlers[m.asmCID]
	if !ok {
		m.Debugf("no handler for %s, dropping %d byte SDU", m.asmCID, len(sdu))
		return false
	}
	h(sdu)
	return true
}
