package ll

import (
	"fmt"

	"github.com/corvuslink/ble/wire"
)

// LLID is the 2-bit PDU type field of a data channel header.
type LLID uint8

const (
	LLIDReserved  LLID = 0b00
	LLIDDataCont  LLID = 0b01 // continuation fragment, or empty PDU
	LLIDDataStart LLID = 0b10 // start of (or complete) upper-layer message
	LLIDControl   LLID = 0b11 // LL control PDU
)

func (l LLID) String() string {
	switch l {
	case LLIDDataCont:
		return "cont"
	case LLIDDataStart:
		return "start"
	case LLIDControl:
		return "control"
	default:
		return "reserved"
	}
}

// DataHeader is the 16-bit data channel PDU header.
//
// Layout, LSB first: LLID (2 bits), NESN (1), SN (1), MD (1), RFU (3),
// Length (8). The length counts payload plus MIC when the link is
// encrypted.
type DataHeader uint16

// NewDataHeader returns a header with the given LLID and every other field
// zero.
func NewDataHeader(llid LLID) DataHeader {
	return DataHeader(llid)
}

// ParseDataHeader decodes a header from the front of a reader.
func ParseDataHeader(r *wire.Reader) (DataHeader, error) {
	v, err := r.ReadUint16()
	return DataHeader(v), err
}

// Encode appends the header to a writer.
func (h DataHeader) Encode(w *wire.Writer) error {
	return w.WriteUint16(uint16(h))
}

// Uint16 returns the raw header, transmitted LSB first.
func (h DataHeader) Uint16() uint16 {
	return uint16(h)
}

// LLID returns the PDU type field.
func (h DataHeader) LLID() LLID {
	return LLID(h & 0b11)
}

// NESN returns the next-expected-sequence-number bit.
func (h DataHeader) NESN() SeqNum {
	return SeqNum(h >> 2 & 1)
}

// WithNESN returns the header with the NESN bit set to n.
func (h DataHeader) WithNESN(n SeqNum) DataHeader {
	return h&^(1<<2) | DataHeader(n)<<2
}

// SN returns the sequence-number bit.
func (h DataHeader) SN() SeqNum {
	return SeqNum(h >> 3 & 1)
}

// WithSN returns the header with the SN bit set to n.
func (h DataHeader) WithSN(n SeqNum) DataHeader {
	return h&^(1<<3) | DataHeader(n)<<3
}

// MD returns the more-data bit.
func (h DataHeader) MD() bool {
	return h&(1<<4) != 0
}

// WithMD returns the header with the MD bit set.
func (h DataHeader) WithMD(md bool) DataHeader {
	if md {
		return h | 1<<4
	}
	return h &^ (1 << 4)
}

// PayloadLength returns the Length field.
func (h DataHeader) PayloadLength() uint8 {
	return uint8(h >> 8)
}

// WithPayloadLength returns the header with the Length field set.
func (h DataHeader) WithPayloadLength(n uint8) DataHeader {
	return h&0x00ff | DataHeader(n)<<8
}

func (h DataHeader) String() string {
	return fmt.Sprintf("DataHeader{%s nesn=%d sn=%d md=%t len=%d}",
		h.LLID(), h.NESN(), h.SN(), h.MD(), h.PayloadLength())
}
