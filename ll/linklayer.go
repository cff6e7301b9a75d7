package ll

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/corvuslink/ble"
	"github.com/corvuslink/ble/llq"
	"github.com/corvuslink/ble/wire"
)

// State is the top-level link layer state.
type State uint8

const (
	StateStandby State = iota
	StateAdvertising
	StateScanning
	StateInitiating
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateStandby:
		return "standby"
	case StateAdvertising:
		return "advertising"
	case StateScanning:
		return "scanning"
	case StateInitiating:
		return "initiating"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

const (
	// MinAdvInterval and MaxAdvInterval bound the advertising interval.
	MinAdvInterval = 20 * time.Millisecond
	MaxAdvInterval = 10240 * time.Millisecond

	// errRemoteUserTerminated is the controller error code sent in
	// LL_TERMINATE_IND on a local disconnect.
	errRemoteUserTerminated = 0x13
)

// ScanReport is one observed advertisement. Data aliases the receive
// buffer and is only valid for the duration of the observer call.
type ScanReport struct {
	Addr ble.DeviceAddress
	Type AdvPDUType
	Data []byte
}

// Monitor receives connection lifecycle notifications. Calls happen on
// the real-time path and must return quickly.
type Monitor interface {
	Connected(peer ble.DeviceAddress)
	Disconnected(peer ble.DeviceAddress, reason ble.DisconnectReason)
}

type nopMonitor struct{}

func (nopMonitor) Connected(ble.DeviceAddress) {}

func (nopMonitor) Disconnected(ble.DeviceAddress, ble.DisconnectReason) {}

// ConnParams are the initiator-chosen parameters of an outgoing
// connection.
type ConnParams struct {
	AccessAddress uint32
	CRCInit       uint32 // low 24 bits
	Interval      uint16 // 1.25 ms units
	Latency       uint16
	Timeout       uint16 // 10 ms units
	Map           ChannelMap
	Hop           uint8
}

// LinkLayer is the real-time protocol engine. It is event-driven: the
// radio driver feeds it received packets and timer expiries, and every
// call returns a Cmd telling the driver how to reconfigure the radio and
// when to call Update next.
//
// All methods must be called from a single goroutine (the driver's
// real-time loop); the host side talks to it exclusively through the
// packet queues.
type LinkLayer struct {
	ble.Logger

	addr    ble.DeviceAddress
	state   State
	filter  AddressFilter
	monitor Monitor

	// Advertising.
	advInterval time.Duration
	advData     []byte
	scanRspData []byte
	advCh       AdvertisingChannel

	// Scanning.
	scanWindow   time.Duration
	scanObserver func(ScanReport)
	scanCh       AdvertisingChannel

	// Initiating.
	initTarget ble.DeviceAddress
	initParams ConnParams

	// Queues handed over to the next connection.
	txq *llq.Consumer
	rxq *llq.Producer

	conn *Connection
}

// New creates a link layer in Standby for the given local device address.
func New(addr ble.DeviceAddress, opts ...Option) (*LinkLayer, error) {
	l := &LinkLayer{
		Logger:     ble.GetLogger(),
		addr:       addr,
		filter:     AllowAll{},
		monitor:    nopMonitor{},
		scanWindow: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, errors.Wrap(err, "can't apply option")
		}
	}
	return l, nil
}

// State returns the current top-level state.
func (l *LinkLayer) State() State {
	if l.conn != nil {
		return StateConnected
	}
	return l.state
}

// Address returns the local device address.
func (l *LinkLayer) Address() ble.DeviceAddress {
	return l.addr
}

// Connection returns the active connection, or nil.
func (l *LinkLayer) Connection() *Connection {
	return l.conn
}

// StartAdvertising enters Advertising from Standby. advData and
// scanRspData are raw AD structure bytes of at most MaxAdvData each; txq
// and rxq become the data queues of the connection a peer may create.
func (l *LinkLayer) StartAdvertising(now time.Time, interval time.Duration, advData, scanRspData []byte, txq *llq.Consumer, rxq *llq.Producer) (Cmd, error) {
	if l.state != StateStandby {
		return Cmd{}, errors.Wrapf(ErrInvalidState, "advertise while %s", l.state)
	}
	if interval < MinAdvInterval || interval > MaxAdvInterval {
		return Cmd{}, errors.Wrapf(ErrInvalidParameter, "advertising interval %s", interval)
	}
	if len(advData) > MaxAdvData || len(scanRspData) > MaxAdvData {
		return Cmd{}, errors.Wrap(ErrInvalidParameter, "advertising data too long")
	}

	l.state = StateAdvertising
	l.advInterval = interval
	l.advData = append(l.advData[:0], advData...)
	l.scanRspData = append(l.scanRspData[:0], scanRspData...)
	// Update cycles before each beacon, so the first one lands on 37.
	l.advCh = 39
	l.txq = txq
	l.rxq = rxq
	l.Debugf("advertising as %s every %s", l.addr, interval)

	// First beacon goes out on the next Update.
	return Cmd{Radio: Off(), Next: NextAt(now)}, nil
}

// StartScanning enters Scanning from Standby. Reports for every
// filter-matched advertisement go to observer.
func (l *LinkLayer) StartScanning(now time.Time, observer func(ScanReport)) (Cmd, error) {
	if l.state != StateStandby {
		return Cmd{}, errors.Wrapf(ErrInvalidState, "scan while %s", l.state)
	}
	if observer == nil {
		return Cmd{}, errors.Wrap(ErrInvalidParameter, "nil scan observer")
	}

	l.state = StateScanning
	l.scanObserver = observer
	l.scanCh = FirstAdvertisingChannel()
	l.Debugf("scanning")

	return Cmd{
		Radio: ListenAdvertising(l.scanCh),
		Next:  NextAt(now.Add(l.scanWindow)),
	}, nil
}

// StartInitiating enters Initiating from Standby: listen for a
// connectable advertisement from target and answer it with a connect
// request built from params.
func (l *LinkLayer) StartInitiating(now time.Time, target ble.DeviceAddress, params ConnParams, txq *llq.Consumer, rxq *llq.Producer) (Cmd, error) {
	if l.state != StateStandby {
		return Cmd{}, errors.Wrapf(ErrInvalidState, "initiate while %s", l.state)
	}
	cr := l.buildConnectRequest(target, &params)
	if err := cr.Validate(); err != nil {
		return Cmd{}, err
	}

	l.state = StateInitiating
	l.initTarget = target
	l.initParams = params
	l.scanCh = FirstAdvertisingChannel()
	l.txq = txq
	l.rxq = rxq
	l.Debugf("initiating connection to %s", target)

	return Cmd{
		Radio: ListenAdvertising(l.scanCh),
		Next:  NextAt(now.Add(l.scanWindow)),
	}, nil
}

func (l *LinkLayer) buildConnectRequest(target ble.DeviceAddress, p *ConnParams) ConnectRequest {
	return ConnectRequest{
		InitAddr:      l.addr,
		AdvAddr:       target,
		AccessAddress: p.AccessAddress,
		CRCInit:       p.CRCInit,
		WinSize:       1,
		WinOffset:     0,
		Interval:      p.Interval,
		Latency:       p.Latency,
		Timeout:       p.Timeout,
		Map:           p.Map,
		Hop:           p.Hop,
	}
}

// EnterStandby requests a return to Standby. From Connected this starts a
// cooperative disconnect that completes at a later connection event; from
// every other state it takes effect immediately.
func (l *LinkLayer) EnterStandby() Cmd {
	if l.conn != nil {
		l.conn.requestTerminate(errRemoteUserTerminated)
		return Cmd{Radio: Off(), Next: NextKeep()}
	}
	l.state = StateStandby
	l.scanObserver = nil
	return Cmd{Radio: Off(), Next: NextDisable()}
}

// ProcessAdvPacket handles a received advertising channel PDU.
func (l *LinkLayer) ProcessAdvPacket(now time.Time, tx Transmitter, header AdvHeader, payload []byte, crcOK bool) Cmd {
	if !crcOK || int(header.PayloadLength()) != len(payload) {
		// Channel noise. Stay put.
		return Cmd{Radio: l.listenCmd(), Next: NextKeep()}
	}

	switch l.state {
	case StateAdvertising:
		return l.advPacket(now, tx, header, payload)
	case StateScanning:
		l.scanPacket(header, payload)
		return Cmd{Radio: ListenAdvertising(l.scanCh), Next: NextKeep()}
	case StateInitiating:
		return l.initPacket(now, tx, header, payload)
	default:
		return Cmd{Radio: Off(), Next: NextKeep()}
	}
}

func (l *LinkLayer) listenCmd() RadioCmd {
	switch l.state {
	case StateAdvertising:
		return ListenAdvertising(l.advCh)
	case StateScanning, StateInitiating:
		return ListenAdvertising(l.scanCh)
	case StateConnected:
		return ListenData(l.conn.hopper.Current(), l.conn.accessAddress, l.conn.crcInit)
	default:
		return Off()
	}
}

// advPacket answers SCAN_REQ and CONNECT_REQ directed at us.
func (l *LinkLayer) advPacket(now time.Time, tx Transmitter, header AdvHeader, payload []byte) Cmd {
	keep := Cmd{Radio: ListenAdvertising(l.advCh), Next: NextKeep()}
	r := wire.NewReader(payload)

	switch header.Type() {
	case ScanReq:
		req, err := ParseScanRequest(header, &r)
		if err != nil || req.AdvAddr != l.addr || !l.filter.Allow(req.ScanAddr) {
			return keep
		}
		w := wire.NewWriter(tx.TxPayload())
		rsp, err := EncodeAdvPayload(ScanRsp, l.addr, l.scanRspData, &w)
		if err != nil {
			return keep
		}
		tx.TransmitAdvertising(rsp, l.advCh)
		return keep

	case ConnectReq:
		cr, err := ParseConnectRequest(header, &r)
		if err != nil || cr.AdvAddr != l.addr || !l.filter.Allow(cr.InitAddr) {
			return keep
		}
		if err := cr.Validate(); err != nil {
			l.Debugf("rejecting connect request: %v", err)
			return keep
		}
		return l.enterConnection(RoleSlave, &cr, now, tx)

	default:
		return keep
	}
}

// scanPacket reports observed advertisements.
func (l *LinkLayer) scanPacket(header AdvHeader, payload []byte) {
	switch header.Type() {
	case AdvInd, AdvNonconnInd, AdvScanInd, ScanRsp:
	default:
		return
	}
	if len(payload) < 6 {
		return
	}
	r := wire.NewReader(payload)
	addr, err := readAddress(&r, header.TxAdd())
	if err != nil || !l.filter.Allow(addr) {
		return
	}
	l.scanObserver(ScanReport{Addr: addr, Type: header.Type(), Data: r.Rest()})
}

// initPacket answers a connectable advertisement from the target with a
// CONNECT_REQ and commits the connection.
func (l *LinkLayer) initPacket(now time.Time, tx Transmitter, header AdvHeader, payload []byte) Cmd {
	keep := Cmd{Radio: ListenAdvertising(l.scanCh), Next: NextKeep()}
	if header.Type() != AdvInd {
		return keep
	}
	r := wire.NewReader(payload)
	addr, err := readAddress(&r, header.TxAdd())
	if err != nil || addr != l.initTarget {
		return keep
	}

	cr := l.buildConnectRequest(addr, &l.initParams)
	w := wire.NewWriter(tx.TxPayload())
	if err := cr.Encode(&w); err != nil {
		return keep
	}
	tx.TransmitAdvertising(cr.Header(), l.scanCh)

	return l.enterConnection(RoleMaster, &cr, now, tx)
}

func (l *LinkLayer) enterConnection(role Role, cr *ConnectRequest, now time.Time, tx Transmitter) Cmd {
	log := l.ChildLogger(map[string]interface{}{"aa": fmt.Sprintf("%#08x", cr.AccessAddress)})
	l.conn = newConnection(role, cr, now, l.txq, l.rxq, log)
	l.state = StateConnected
	l.Debugf("connection established with %s as %s", l.conn.Peer(), role)
	l.monitor.Connected(l.conn.Peer())
	return l.conn.firstEvent(now, tx)
}

// ProcessDataPacket handles a received data channel PDU.
func (l *LinkLayer) ProcessDataPacket(now time.Time, tx Transmitter, header DataHeader, payload []byte, crcOK bool) Cmd {
	if l.conn == nil {
		return Cmd{Radio: Off(), Next: NextKeep()}
	}
	if int(header.PayloadLength()) != len(payload) {
		crcOK = false
	}
	cmd, reason := l.conn.processPacket(now, tx, header, payload, crcOK)
	if reason != ble.ReasonNone {
		l.endConnection(reason)
	}
	return cmd
}

// Update runs the timer-driven part of the current state. The driver
// calls it when the deadline from the last Cmd expires.
func (l *LinkLayer) Update(now time.Time, tx Transmitter) Cmd {
	switch l.state {
	case StateAdvertising:
		l.advCh = l.advCh.Cycle()
		return l.advertise(now, tx)

	case StateScanning, StateInitiating:
		l.scanCh = l.scanCh.Cycle()
		return Cmd{
			Radio: ListenAdvertising(l.scanCh),
			Next:  NextAt(now.Add(l.scanWindow)),
		}

	case StateConnected:
		cmd, reason := l.conn.timerUpdate(now, tx)
		if reason != ble.ReasonNone {
			l.endConnection(reason)
		}
		return cmd

	default:
		return Cmd{Radio: Off(), Next: NextDisable()}
	}
}

// advertise transmits one beacon and listens for responses until the next
// interval tick.
func (l *LinkLayer) advertise(now time.Time, tx Transmitter) Cmd {
	w := wire.NewWriter(tx.TxPayload())
	header, err := EncodeAdvPayload(AdvInd, l.addr, l.advData, &w)
	if err != nil {
		// Data was validated on entry.
		panic(err)
	}
	tx.TransmitAdvertising(header, l.advCh)

	return Cmd{
		Radio: ListenAdvertising(l.advCh),
		Next:  NextAt(now.Add(l.advInterval)),
	}
}

// ReportIntegrityFailure ends the connection after the encryption
// collaborator failed a MIC check. A corrupted ciphertext stream cannot be
// resynchronized, so this is always fatal.
func (l *LinkLayer) ReportIntegrityFailure() Cmd {
	if l.conn == nil {
		return Cmd{Radio: Off(), Next: NextKeep()}
	}
	cmd, reason := l.conn.close(ble.ReasonIntegrityFailure)
	l.endConnection(reason)
	return cmd
}

func (l *LinkLayer) endConnection(reason ble.DisconnectReason) {
	peer := l.conn.Peer()
	l.conn = nil
	l.state = StateStandby
	l.txq = nil
	l.rxq = nil
	l.monitor.Disconnected(peer, reason)
}
