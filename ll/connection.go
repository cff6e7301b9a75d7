package ll

import (
	"time"

	"github.com/corvuslink/ble"
	"github.com/corvuslink/ble/llq"
	"github.com/corvuslink/ble/wire"
)

// Role distinguishes who opens a connection event.
type Role uint8

const (
	// RoleSlave listens at the anchor point and answers whatever the peer
	// sends. Entered from Advertising.
	RoleSlave Role = iota

	// RoleMaster transmits the first PDU of every event and then waits for
	// the answer. Entered from Initiating.
	RoleMaster
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "slave"
}

// connUpdate is a connection parameter set waiting for its instant.
type connUpdate struct {
	interval uint16
	latency  uint16
	timeout  uint16
	instant  uint16
}

// Connection tracks an established link from the slave side: channel
// hopping, the stop-and-wait sequence bits, the retransmission buffer and
// the control procedures that run over LLID 0b11.
type Connection struct {
	ble.Logger

	role          Role
	accessAddress uint32
	crcInit       uint32
	hopper        *Hopper

	// Sequence state. transmitSeq is the SN of the next new PDU we send,
	// nextExpected the SN we want from the peer (sent as our NESN).
	transmitSeq  SeqNum
	nextExpected SeqNum

	// Retransmission buffer. While unacked is set, retransmit holds the
	// last transmitted PDU and no new payload is taken from the queues.
	unacked     bool
	retransmit  [2 + MaxDataPayload]byte
	retransmitN uint8

	eventCount uint16
	interval   time.Duration
	latency    uint16
	timeout    time.Duration

	lastHeard time.Time
	peer      ble.DeviceAddress

	// established flips on the first valid packet from the peer. Until
	// then the link is only half-open and is abandoned after
	// establishEvents connection events.
	established bool

	// encrypted mirrors the session state of the encryption collaborator.
	// The core never looks inside it.
	encrypted bool

	txq *llq.Consumer // host -> link layer
	rxq *llq.Producer // link layer -> host

	// Single-slot control response, sent ahead of host data.
	llcpPending bool
	llcp        ControlPDU

	// queuedWork is set when a PDU reached the inbound queue and cleared
	// when reported through Cmd.
	queuedWork bool

	pendingUpdate *connUpdate
	versionSent   bool

	// closing suppresses new host data; closeReason takes effect when the
	// link actually goes down. terminateInFlight marks an LL_TERMINATE_IND
	// waiting for its acknowledgement.
	closing           bool
	closeReason       ble.DisconnectReason
	terminateInFlight bool
}

// newConnection enters the connection created by a CONNECT_REQ. The
// request must already be validated.
func newConnection(role Role, cr *ConnectRequest, now time.Time, txq *llq.Consumer, rxq *llq.Producer, log ble.Logger) *Connection {
	peer := cr.InitAddr
	if role == RoleMaster {
		peer = cr.AdvAddr
	}
	c := &Connection{
		Logger:        log,
		role:          role,
		accessAddress: cr.AccessAddress,
		crcInit:       cr.CRCInit,
		interval:      cr.IntervalDuration(),
		latency:       cr.Latency,
		timeout:       cr.TimeoutDuration(),
		lastHeard:     now,
		peer:          peer,
		txq:           txq,
		rxq:           rxq,
	}
	c.hopper, _ = NewHopper(cr.Hop, cr.Map)
	return c
}

// Peer returns the remote device's address.
func (c *Connection) Peer() ble.DeviceAddress {
	return c.peer
}

// AccessAddress returns the connection's access address.
func (c *Connection) AccessAddress() uint32 {
	return c.accessAddress
}

// SetEncrypted records whether the encryption collaborator has an active
// session on this link.
func (c *Connection) SetEncrypted(active bool) {
	c.encrypted = active
}

// Encrypted reports whether an encrypted session is active.
func (c *Connection) Encrypted() bool {
	return c.encrypted
}

// firstEvent computes the command for connection event zero. The master
// opens it by transmitting.
func (c *Connection) firstEvent(now time.Time, tx Transmitter) Cmd {
	ch := c.hopper.Next(0)
	if c.role == RoleMaster {
		c.respond(tx)
	}
	return Cmd{
		Radio: ListenData(ch, c.accessAddress, c.crcInit),
		Next:  NextAt(now.Add(c.interval + eventMargin)),
	}
}

func (c *Connection) close(reason ble.DisconnectReason) (Cmd, ble.DisconnectReason) {
	c.Debugf("connection closed: %s", reason)
	return Cmd{Radio: Off(), Next: NextDisable()}, reason
}

// instantPassed reports whether instant already lies in the past half of
// the event counter's 16-bit circle.
func (c *Connection) instantPassed(instant uint16) bool {
	return instant-c.eventCount >= 0x8000
}

// processPacket handles one received data channel PDU. A reason other than
// ReasonNone means the connection ended.
func (c *Connection) processPacket(now time.Time, tx Transmitter, header DataHeader, payload []byte, crcOK bool) (Cmd, ble.DisconnectReason) {
	if crcOK {
		c.lastHeard = now
		c.established = true

		// Peer acknowledged our last PDU when its NESN moved past our SN.
		if c.unacked && header.NESN() != c.transmitSeq {
			c.unacked = false
			c.transmitSeq = c.transmitSeq.Next()
			if c.terminateInFlight {
				return c.close(c.closeReason)
			}
		}

		if header.SN() == c.nextExpected && c.accept(header, payload) {
			c.nextExpected = c.nextExpected.Next()
		}

		if c.closing {
			switch c.closeReason {
			case ble.ReasonRemoteTermination:
				// Acknowledge the LL_TERMINATE_IND, then stop.
				if c.role == RoleSlave {
					c.respond(tx)
				}
				return c.close(c.closeReason)
			case ble.ReasonProtocolError:
				return c.close(c.closeReason)
			}
		}
	}

	work := c.queuedWork
	c.queuedWork = false

	if c.role == RoleMaster {
		// The master already transmitted at the anchor; the reply closes
		// the event.
		return Cmd{Radio: Off(), Next: NextKeep(), QueuedWork: work}, ble.ReasonNone
	}

	c.respond(tx)

	// The event is over after our response; the timer for the next event
	// stays armed.
	return Cmd{
		Radio:      ListenData(c.hopper.Current(), c.accessAddress, c.crcInit),
		Next:       NextKeep(),
		QueuedWork: work,
	}, ble.ReasonNone
}

// accept consumes a newly sequenced inbound PDU. It returns false when the
// PDU could not be taken, which withholds the acknowledgement so the peer
// retransmits.
func (c *Connection) accept(header DataHeader, payload []byte) bool {
	switch header.LLID() {
	case LLIDControl:
		return c.acceptControl(payload)
	case LLIDDataStart, LLIDDataCont:
		if header.PayloadLength() == 0 {
			// Empty PDUs carry only sequence state.
			return true
		}
		if err := c.rxq.Produce(header.Uint16(), payload); err != nil {
			c.Debugf("rx queue full, withholding ack")
			return false
		}
		c.queuedWork = true
		return true
	default:
		// Reserved LLID. Ack and drop.
		return true
	}
}

// acceptControl runs the LLCP procedure for one inbound control PDU.
func (c *Connection) acceptControl(payload []byte) bool {
	r := wire.NewReader(payload)
	pdu, err := ParseControlPDU(&r)
	if err != nil {
		c.Debugf("malformed control PDU: %v", err)
		return true
	}
	c.Debugf("<- %s", pdu.Opcode)

	switch pdu.Opcode {
	case OpChannelMapReq:
		if !pdu.Map.Valid() || c.instantPassed(pdu.Instant) {
			c.closing = true
			c.closeReason = ble.ReasonProtocolError
			return true
		}
		c.hopper.SetPendingMap(pdu.Map, pdu.Instant)
		return true

	case OpConnectionUpdateReq:
		if c.instantPassed(pdu.Instant) {
			c.closing = true
			c.closeReason = ble.ReasonProtocolError
			return true
		}
		c.pendingUpdate = &connUpdate{
			interval: pdu.Interval,
			latency:  pdu.Latency,
			timeout:  pdu.Timeout,
			instant:  pdu.Instant,
		}
		return true

	case OpTerminateInd:
		c.closing = true
		c.closeReason = ble.ReasonRemoteTermination
		return true

	case OpFeatureReq:
		return c.queueControl(FeatureRsp(SupportedFeatures))

	case OpVersionInd:
		if c.versionSent {
			return true
		}
		c.versionSent = true
		return c.queueControl(VersionInd())

	case OpPingReq:
		return c.queueControl(PingRsp())

	case OpUnknownRsp, OpFeatureRsp, OpPingRsp:
		// Replies to our own requests need no answer.
		return true

	default:
		return c.queueControl(UnknownRsp(pdu.Opcode))
	}
}

// queueControl stages a control response. With the single response slot
// occupied the PDU is not acknowledged, so the peer retries.
func (c *Connection) queueControl(pdu ControlPDU) bool {
	if c.llcpPending {
		return false
	}
	c.llcp = pdu
	c.llcpPending = true
	return true
}

// respond transmits our PDU for this event: the unacknowledged one again,
// or the next new one.
func (c *Connection) respond(tx Transmitter) {
	if !c.unacked {
		c.stageNext()
	}

	// An updated NESN must go out even on a retransmission.
	hdr := DataHeader(uint16(c.retransmit[0]) | uint16(c.retransmit[1])<<8).
		WithNESN(c.nextExpected)
	c.retransmit[0] = byte(hdr.Uint16())
	c.retransmit[1] = byte(hdr.Uint16() >> 8)

	copy(tx.TxPayload(), c.retransmit[2:c.retransmitN])
	tx.TransmitData(c.accessAddress, c.crcInit, hdr, c.hopper.Current())
}

// stageNext fills the retransmission buffer with the next new PDU: the
// staged control response, a host PDU, or an empty PDU.
func (c *Connection) stageNext() {
	var hdr DataHeader

	switch {
	case c.llcpPending:
		w := wire.NewWriter(c.retransmit[2:])
		c.llcp.Encode(&w)
		hdr = NewDataHeader(LLIDControl)
		c.retransmitN = 2 + uint8(w.Len())
		c.llcpPending = false
		if c.llcp.Opcode == OpTerminateInd {
			c.terminateInFlight = true
		}
		c.Debugf("-> %s", c.llcp.Opcode)

	case c.txq.HasData() && !c.closing:
		pdu, _ := c.txq.Peek()
		hdr = DataHeader(pdu.Header())
		n := copy(c.retransmit[2:], pdu.Payload())
		c.retransmitN = 2 + uint8(n)
		c.txq.Pop()

	default:
		hdr = NewDataHeader(LLIDDataCont)
		c.retransmitN = 2
	}

	hdr = hdr.WithSN(c.transmitSeq).WithNESN(c.nextExpected).WithMD(false).
		WithPayloadLength(c.retransmitN - 2)
	c.retransmit[0] = byte(hdr.Uint16())
	c.retransmit[1] = byte(hdr.Uint16() >> 8)
	c.unacked = true
}

// timerUpdate opens the next connection event: supervision check, event
// counter advance, pending parameter activation, hop. The master also
// transmits its PDU for the event, unchanged if the last one was never
// acknowledged. A reason other than ReasonNone means the connection ended.
func (c *Connection) timerUpdate(now time.Time, tx Transmitter) (Cmd, ble.DisconnectReason) {
	if now.Sub(c.lastHeard) >= c.timeout {
		return c.close(ble.ReasonSupervisionTimeout)
	}

	c.eventCount++

	if !c.established && c.eventCount > establishEvents {
		return c.close(ble.ReasonTransmitWindowMissed)
	}

	if u := c.pendingUpdate; u != nil && u.instant == c.eventCount {
		c.interval = time.Duration(u.interval) * connUnit
		c.latency = u.latency
		c.timeout = time.Duration(u.timeout) * timeoutUnit
		c.pendingUpdate = nil
		c.Debugf("connection update applied at event %d", c.eventCount)
	}

	ch := c.hopper.Next(c.eventCount)
	if c.role == RoleMaster {
		c.respond(tx)
	}
	return Cmd{
		Radio: ListenData(ch, c.accessAddress, c.crcInit),
		Next:  NextAt(now.Add(c.interval + eventMargin)),
	}, ble.ReasonNone
}

// requestTerminate starts a local disconnect. The link stays up until the
// peer acknowledges the LL_TERMINATE_IND or the supervision timeout fires.
func (c *Connection) requestTerminate(errorCode uint8) {
	if c.closing {
		return
	}
	c.closing = true
	c.closeReason = ble.ReasonLocalTermination
	c.queueControl(TerminateInd(errorCode))
}
