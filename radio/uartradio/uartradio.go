// Package uartradio bridges the link layer to an external radio front-end
// over a serial port. The front-end owns the 2.4 GHz PHY (access address
// correlation, CRC, whitening) and exchanges already-framed PDUs with this
// package using a small length-prefixed protocol.
package uartradio

import (
	"io"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"

	"github.com/corvuslink/ble"
	"github.com/corvuslink/ble/ll"
)

// Frame types on the wire. The high bit marks front-end to host frames.
const (
	pktAdvTx  = 0x01
	pktDataTx = 0x02
	pktListen = 0x03
	pktAdvRx  = 0x81
	pktDataRx = 0x82
)

// flagCRCOK marks a received frame whose CRC checked out.
const flagCRCOK = 0x01

const (
	rxQueueSize  = 64
	frameTimeout = 50 * time.Millisecond
	maxFrame     = 1 + 1 + 9 + 2 + 1 + ll.MaxAdvPayload
)

// Radio drives a link layer over the serial bridge. It implements
// ll.Transmitter; Serve runs the event loop.
type Radio struct {
	ble.Logger

	sp  io.ReadWriteCloser
	wmu sync.Mutex

	payload [ll.MaxAdvPayload]byte

	frame   []byte
	frameAt time.Time

	rxQueue chan []byte
	done    chan struct{}
	cmu     sync.Mutex
}

// Open opens the serial port and starts the receive loop.
func Open(port string, baud uint) (*Radio, error) {
	sp, err := serial.Open(serial.OpenOptions{
		PortName:              port,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't open serial port")
	}

	u := &Radio{
		Logger:  ble.GetLogger(),
		sp:      sp,
		rxQueue: make(chan []byte, rxQueueSize),
		done:    make(chan struct{}),
	}
	go u.rxLoop()
	return u, nil
}

// Close stops the receive loop and closes the port.
func (u *Radio) Close() error {
	u.cmu.Lock()
	defer u.cmu.Unlock()

	select {
	case <-u.done:
		return nil
	default:
		close(u.done)
		return errors.Wrap(u.sp.Close(), "can't close serial port")
	}
}

func (u *Radio) isOpen() bool {
	select {
	case <-u.done:
		return false
	default:
		return true
	}
}

// TxPayload implements ll.Transmitter.
func (u *Radio) TxPayload() []byte {
	return u.payload[:]
}

// TransmitAdvertising implements ll.Transmitter.
func (u *Radio) TransmitAdvertising(header ll.AdvHeader, ch ll.AdvertisingChannel) {
	n := header.PayloadLength()
	f := make([]byte, 0, maxFrame)
	f = append(f, 0, pktAdvTx, ch.Index(),
		byte(header.Uint16()), byte(header.Uint16()>>8), n)
	f = append(f, u.payload[:n]...)
	u.send(f)
}

// TransmitData implements ll.Transmitter.
func (u *Radio) TransmitData(accessAddress, crcInit uint32, header ll.DataHeader, ch ll.DataChannel) {
	n := header.PayloadLength()
	f := make([]byte, 0, maxFrame)
	f = append(f, 0, pktDataTx, ch.Index(),
		byte(accessAddress), byte(accessAddress>>8), byte(accessAddress>>16), byte(accessAddress>>24),
		byte(crcInit), byte(crcInit>>8), byte(crcInit>>16),
		byte(header.Uint16()), byte(header.Uint16()>>8), n)
	f = append(f, u.payload[:n]...)
	u.send(f)
}

// listen reprograms the front-end's receiver.
func (u *Radio) listen(cmd ll.RadioCmd) {
	f := make([]byte, 0, 12)
	switch cmd.Mode {
	case ll.RadioListenAdvertising:
		f = append(f, 0, pktListen, byte(cmd.Mode), cmd.AdvChannel.Index())
	case ll.RadioListenData:
		aa, crc := cmd.AccessAddress, cmd.CRCInit
		f = append(f, 0, pktListen, byte(cmd.Mode), cmd.Channel.Index(),
			byte(aa), byte(aa>>8), byte(aa>>16), byte(aa>>24),
			byte(crc), byte(crc>>8), byte(crc>>16))
	default:
		f = append(f, 0, pktListen, byte(ll.RadioOff))
	}
	u.send(f)
}

// send completes the length prefix and writes one frame.
func (u *Radio) send(f []byte) {
	if !u.isOpen() {
		return
	}
	f[0] = byte(len(f) - 1)

	u.wmu.Lock()
	defer u.wmu.Unlock()
	if _, err := u.sp.Write(f); err != nil {
		u.Errorf("serial write: %v", err)
	}
}

func (u *Radio) rxLoop() {
	tmp := make([]byte, 512)
	for u.isOpen() {
		n, err := u.sp.Read(tmp)
		if err != nil || n == 0 {
			continue
		}
		u.assemble(tmp[:n])
	}
}

// assemble accumulates serial bytes into length-prefixed frames. A stalled
// partial frame is abandoned after frameTimeout, so a byte lost on the
// wire cannot wedge the stream forever.
func (u *Radio) assemble(b []byte) {
	now := time.Now()
	if u.frame != nil && now.Sub(u.frameAt) > frameTimeout {
		u.Debugf("dropping stale partial frame of %d bytes", len(u.frame))
		u.frame = nil
	}

	for len(b) > 0 {
		if u.frame == nil {
			u.frame = make([]byte, 0, maxFrame)
			u.frameAt = now
		}
		u.frame = append(u.frame, b...)
		b = nil

		if len(u.frame) < 1 {
			return
		}
		exp := 1 + int(u.frame[0])
		if len(u.frame) < exp {
			return
		}

		done := u.frame[1:exp]
		b = u.frame[exp:]
		u.frame = nil

		select {
		case u.rxQueue <- done:
		default:
			u.Debugf("rx queue full, dropping frame")
		}
	}
}

// Serve runs the link layer's event loop over the bridge until Close is
// called: received frames become ProcessAdvPacket/ProcessDataPacket calls,
// timer expiries become Update calls, and every returned Cmd reprograms
// the front-end. first is the Cmd returned by the state-entry call that
// preceded Serve. onWork, which may be nil, runs whenever queued work was
// handed to the host side.
func (u *Radio) Serve(l *ll.LinkLayer, first ll.Cmd, onWork func()) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	u.apply(first, timer, onWork)

	for {
		select {
		case <-u.done:
			return nil

		case f := <-u.rxQueue:
			cmd, ok := u.dispatch(l, f)
			if !ok {
				continue
			}
			u.apply(cmd, timer, onWork)

		case <-timer.C:
			u.apply(l.Update(time.Now(), u), timer, onWork)
		}
	}
}

// dispatch decodes one front-end frame and feeds it into the link layer.
func (u *Radio) dispatch(l *ll.LinkLayer, f []byte) (ll.Cmd, bool) {
	if len(f) < 1 {
		return ll.Cmd{}, false
	}
	now := time.Now()

	switch f[0] {
	case pktAdvRx:
		// type, channel, flags, header, length, payload
		if len(f) < 6 {
			return ll.Cmd{}, false
		}
		crcOK := f[2]&flagCRCOK != 0
		header := ll.AdvHeader(uint16(f[3]) | uint16(f[4])<<8)
		n := int(f[5])
		if len(f) < 6+n {
			return ll.Cmd{}, false
		}
		return l.ProcessAdvPacket(now, u, header, f[6:6+n], crcOK), true

	case pktDataRx:
		if len(f) < 6 {
			return ll.Cmd{}, false
		}
		crcOK := f[2]&flagCRCOK != 0
		header := ll.DataHeader(uint16(f[3]) | uint16(f[4])<<8)
		n := int(f[5])
		if len(f) < 6+n {
			return ll.Cmd{}, false
		}
		return l.ProcessDataPacket(now, u, header, f[6:6+n], crcOK), true

	default:
		u.Debugf("unknown frame type %#02x", f[0])
		return ll.Cmd{}, false
	}
}

func (u *Radio) apply(cmd ll.Cmd, timer *time.Timer, onWork func()) {
	u.listen(cmd.Radio)

	if at, ok := cmd.Next.At(); ok {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Until(at))
	} else if !cmd.Next.Keep() {
		timer.Stop()
	}

	if cmd.QueuedWork && onWork != nil {
		onWork()
	}
}
