package ll

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/corvuslink/ble"
	"github.com/corvuslink/ble/wire"
)

// AdvPDUType is the 4-bit PDU type of an advertising channel header.
type AdvPDUType uint8

const (
	AdvInd        AdvPDUType = 0b0000 // connectable undirected
	AdvDirectInd  AdvPDUType = 0b0001 // connectable directed
	AdvNonconnInd AdvPDUType = 0b0010 // non-connectable undirected
	ScanReq       AdvPDUType = 0b0011
	ScanRsp       AdvPDUType = 0b0100
	ConnectReq    AdvPDUType = 0b0101
	AdvScanInd    AdvPDUType = 0b0110 // scannable undirected
)

func (t AdvPDUType) String() string {
	switch t {
	case AdvInd:
		return "ADV_IND"
	case AdvDirectInd:
		return "ADV_DIRECT_IND"
	case AdvNonconnInd:
		return "ADV_NONCONN_IND"
	case ScanReq:
		return "SCAN_REQ"
	case ScanRsp:
		return "SCAN_RSP"
	case ConnectReq:
		return "CONNECT_REQ"
	case AdvScanInd:
		return "ADV_SCAN_IND"
	default:
		return fmt.Sprintf("ADV(%#x)", uint8(t))
	}
}

// AdvHeader is the 16-bit advertising channel PDU header.
//
// Layout, LSB first: PDU type (4 bits), RFU (2), TxAdd (1), RxAdd (1),
// Length (6), RFU (2).
type AdvHeader uint16

const (
	advTxAddMask AdvHeader = 1 << 6
	advRxAddMask AdvHeader = 1 << 7
)

// NewAdvHeader returns a header of the given type with all flags clear.
func NewAdvHeader(t AdvPDUType) AdvHeader {
	return AdvHeader(t)
}

// ParseAdvHeader decodes a header from the front of a reader.
func ParseAdvHeader(r *wire.Reader) (AdvHeader, error) {
	v, err := r.ReadUint16()
	return AdvHeader(v), err
}

// Encode appends the header to a writer.
func (h AdvHeader) Encode(w *wire.Writer) error {
	return w.WriteUint16(uint16(h))
}

// Uint16 returns the raw header, transmitted LSB first.
func (h AdvHeader) Uint16() uint16 {
	return uint16(h)
}

// Type returns the PDU type field.
func (h AdvHeader) Type() AdvPDUType {
	return AdvPDUType(h & 0b1111)
}

// TxAdd reports whether the transmitter address is random.
func (h AdvHeader) TxAdd() bool {
	return h&advTxAddMask != 0
}

// WithTxAdd returns the header with the TxAdd flag set to v.
func (h AdvHeader) WithTxAdd(v bool) AdvHeader {
	if v {
		return h | advTxAddMask
	}
	return h &^ advTxAddMask
}

// RxAdd reports whether the receiver address is random.
func (h AdvHeader) RxAdd() bool {
	return h&advRxAddMask != 0
}

// WithRxAdd returns the header with the RxAdd flag set to v.
func (h AdvHeader) WithRxAdd(v bool) AdvHeader {
	if v {
		return h | advRxAddMask
	}
	return h &^ advRxAddMask
}

// PayloadLength returns the Length field (6 bits, at most 37).
func (h AdvHeader) PayloadLength() uint8 {
	return uint8(h >> 8 & 0b111111)
}

// WithPayloadLength returns the header with the Length field set.
func (h AdvHeader) WithPayloadLength(n uint8) AdvHeader {
	return h&^(0b111111<<8) | AdvHeader(n&0b111111)<<8
}

func (h AdvHeader) String() string {
	return fmt.Sprintf("AdvHeader{%s txadd=%t rxadd=%t len=%d}",
		h.Type(), h.TxAdd(), h.RxAdd(), h.PayloadLength())
}

func addrKind(random bool) ble.AddressKind {
	if random {
		return ble.AddressRandom
	}
	return ble.AddressPublic
}

func readAddress(r *wire.Reader, random bool) (ble.DeviceAddress, error) {
	var a ble.DeviceAddress
	a.Kind = addrKind(random)
	if err := r.ReadCopy(a.Bytes[:]); err != nil {
		return a, err
	}
	return a, nil
}

// ConnectRequest is the LLData carried by a CONNECT_REQ PDU, together with
// both device addresses. A new connection copies these parameters verbatim.
type ConnectRequest struct {
	InitAddr ble.DeviceAddress
	AdvAddr  ble.DeviceAddress

	AccessAddress uint32
	CRCInit       uint32 // low 24 bits
	WinSize       uint8  // 1.25 ms units
	WinOffset     uint16 // 1.25 ms units
	Interval      uint16 // 1.25 ms units
	Latency       uint16 // connection events
	Timeout       uint16 // 10 ms units
	Map           ChannelMap
	Hop           uint8 // 5..16
	SCA           uint8 // sleep clock accuracy, 3 bits
}

// ParseConnectRequest decodes the 34-byte CONNECT_REQ payload. Header flags
// supply the address kinds.
func ParseConnectRequest(h AdvHeader, r *wire.Reader) (ConnectRequest, error) {
	var c ConnectRequest
	var err error
	if c.InitAddr, err = readAddress(r, h.TxAdd()); err != nil {
		return c, err
	}
	if c.AdvAddr, err = readAddress(r, h.RxAdd()); err != nil {
		return c, err
	}
	if c.AccessAddress, err = r.ReadUint32(); err != nil {
		return c, err
	}
	if c.CRCInit, err = r.ReadUint24(); err != nil {
		return c, err
	}
	if c.WinSize, err = r.ReadUint8(); err != nil {
		return c, err
	}
	if c.WinOffset, err = r.ReadUint16(); err != nil {
		return c, err
	}
	if c.Interval, err = r.ReadUint16(); err != nil {
		return c, err
	}
	if c.Latency, err = r.ReadUint16(); err != nil {
		return c, err
	}
	if c.Timeout, err = r.ReadUint16(); err != nil {
		return c, err
	}
	var raw [5]byte
	if err = r.ReadCopy(raw[:]); err != nil {
		return c, err
	}
	c.Map = ChannelMapFromRaw(raw)
	hopSCA, err := r.ReadUint8()
	if err != nil {
		return c, err
	}
	c.Hop = hopSCA & 0x1f
	c.SCA = hopSCA >> 5
	return c, nil
}

// Encode writes the CONNECT_REQ payload (both addresses plus LLData).
func (c *ConnectRequest) Encode(w *wire.Writer) error {
	if err := w.WriteSlice(c.InitAddr.Bytes[:]); err != nil {
		return err
	}
	if err := w.WriteSlice(c.AdvAddr.Bytes[:]); err != nil {
		return err
	}
	if err := w.WriteUint32(c.AccessAddress); err != nil {
		return err
	}
	if err := w.WriteUint24(c.CRCInit); err != nil {
		return err
	}
	if err := w.WriteUint8(c.WinSize); err != nil {
		return err
	}
	if err := w.WriteUint16(c.WinOffset); err != nil {
		return err
	}
	if err := w.WriteUint16(c.Interval); err != nil {
		return err
	}
	if err := w.WriteUint16(c.Latency); err != nil {
		return err
	}
	if err := w.WriteUint16(c.Timeout); err != nil {
		return err
	}
	raw := c.Map.Raw()
	if err := w.WriteSlice(raw[:]); err != nil {
		return err
	}
	return w.WriteUint8(c.Hop&0x1f | c.SCA<<5)
}

// Header returns the advertising header for this request, with address
// kinds reflected in TxAdd/RxAdd.
func (c *ConnectRequest) Header() AdvHeader {
	return NewAdvHeader(ConnectReq).
		WithTxAdd(c.InitAddr.IsRandom()).
		WithRxAdd(c.AdvAddr.IsRandom()).
		WithPayloadLength(34)
}

// Validate checks the request against the ranges a connection can actually
// be created with.
func (c *ConnectRequest) Validate() error {
	if c.Hop < MinHopIncrement || c.Hop > MaxHopIncrement {
		return errors.Wrapf(ErrInvalidParameter, "hop increment %d", c.Hop)
	}
	if !c.Map.Valid() {
		return errors.Wrapf(ErrInvalidParameter, "channel map with %d used channels", c.Map.NumUsed())
	}
	if c.Interval < 6 || c.Interval > 3200 {
		return errors.Wrapf(ErrInvalidParameter, "interval %d", c.Interval)
	}
	if c.Timeout == 0 {
		return errors.Wrap(ErrInvalidParameter, "zero supervision timeout")
	}
	return nil
}

// IntervalDuration converts the interval field to a duration.
func (c *ConnectRequest) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * connUnit
}

// WinOffsetDuration converts the window offset field to a duration.
func (c *ConnectRequest) WinOffsetDuration() time.Duration {
	return time.Duration(c.WinOffset) * connUnit
}

// WinSizeDuration converts the window size field to a duration.
func (c *ConnectRequest) WinSizeDuration() time.Duration {
	return time.Duration(c.WinSize) * connUnit
}

// TimeoutDuration converts the supervision timeout field to a duration.
func (c *ConnectRequest) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * timeoutUnit
}

// ScanRequest is the payload of a SCAN_REQ PDU.
type ScanRequest struct {
	ScanAddr ble.DeviceAddress
	AdvAddr  ble.DeviceAddress
}

// ParseScanRequest decodes a SCAN_REQ payload.
func ParseScanRequest(h AdvHeader, r *wire.Reader) (ScanRequest, error) {
	var s ScanRequest
	var err error
	if s.ScanAddr, err = readAddress(r, h.TxAdd()); err != nil {
		return s, err
	}
	s.AdvAddr, err = readAddress(r, h.RxAdd())
	return s, err
}

// EncodeAdvPayload writes an advertiser-address-plus-data payload as used
// by ADV_IND, ADV_NONCONN_IND, ADV_SCAN_IND and SCAN_RSP, returning the
// finished header.
func EncodeAdvPayload(t AdvPDUType, addr ble.DeviceAddress, data []byte, w *wire.Writer) (AdvHeader, error) {
	if len(data) > MaxAdvData {
		return 0, errors.Wrapf(ErrInvalidParameter, "advertising data of %d bytes", len(data))
	}
	if err := w.WriteSlice(addr.Bytes[:]); err != nil {
		return 0, err
	}
	if err := w.WriteSlice(data); err != nil {
		return 0, err
	}
	h := NewAdvHeader(t).
		WithTxAdd(addr.IsRandom()).
		WithPayloadLength(uint8(6 + len(data)))
	return h, nil
}
