package ll

import (
	"fmt"

	"github.com/corvuslink/ble/wire"
)

// ControlOpcode identifies an LL control PDU.
type ControlOpcode uint8

const (
	OpConnectionUpdateReq ControlOpcode = 0x00
	OpChannelMapReq       ControlOpcode = 0x01
	OpTerminateInd        ControlOpcode = 0x02
	OpEncReq              ControlOpcode = 0x03
	OpEncRsp              ControlOpcode = 0x04
	OpStartEncReq         ControlOpcode = 0x05
	OpStartEncRsp         ControlOpcode = 0x06
	OpUnknownRsp          ControlOpcode = 0x07
	OpFeatureReq          ControlOpcode = 0x08
	OpFeatureRsp          ControlOpcode = 0x09
	OpPauseEncReq         ControlOpcode = 0x0A
	OpPauseEncRsp         ControlOpcode = 0x0B
	OpVersionInd          ControlOpcode = 0x0C
	OpRejectInd           ControlOpcode = 0x0D
	OpSlaveFeatureReq     ControlOpcode = 0x0E
	OpConnParamReq        ControlOpcode = 0x0F
	OpConnParamRsp        ControlOpcode = 0x10
	OpRejectIndExt        ControlOpcode = 0x11
	OpPingReq             ControlOpcode = 0x12
	OpPingRsp             ControlOpcode = 0x13
	OpLengthReq           ControlOpcode = 0x14
	OpLengthRsp           ControlOpcode = 0x15
)

func (o ControlOpcode) String() string {
	switch o {
	case OpConnectionUpdateReq:
		return "LL_CONNECTION_UPDATE_REQ"
	case OpChannelMapReq:
		return "LL_CHANNEL_MAP_REQ"
	case OpTerminateInd:
		return "LL_TERMINATE_IND"
	case OpEncReq:
		return "LL_ENC_REQ"
	case OpEncRsp:
		return "LL_ENC_RSP"
	case OpStartEncReq:
		return "LL_START_ENC_REQ"
	case OpStartEncRsp:
		return "LL_START_ENC_RSP"
	case OpUnknownRsp:
		return "LL_UNKNOWN_RSP"
	case OpFeatureReq:
		return "LL_FEATURE_REQ"
	case OpFeatureRsp:
		return "LL_FEATURE_RSP"
	case OpPauseEncReq:
		return "LL_PAUSE_ENC_REQ"
	case OpPauseEncRsp:
		return "LL_PAUSE_ENC_RSP"
	case OpVersionInd:
		return "LL_VERSION_IND"
	case OpRejectInd:
		return "LL_REJECT_IND"
	case OpSlaveFeatureReq:
		return "LL_SLAVE_FEATURE_REQ"
	case OpConnParamReq:
		return "LL_CONNECTION_PARAM_REQ"
	case OpConnParamRsp:
		return "LL_CONNECTION_PARAM_RSP"
	case OpRejectIndExt:
		return "LL_REJECT_IND_EXT"
	case OpPingReq:
		return "LL_PING_REQ"
	case OpPingRsp:
		return "LL_PING_RSP"
	case OpLengthReq:
		return "LL_LENGTH_REQ"
	case OpLengthRsp:
		return "LL_LENGTH_RSP"
	default:
		return fmt.Sprintf("LL(%#02x)", uint8(o))
	}
}

// ControlPDU is a decoded LL control PDU. Exactly the fields of the carried
// opcode are meaningful; the rest stay zero.
type ControlPDU struct {
	Opcode ControlOpcode

	// LL_CONNECTION_UPDATE_REQ
	WinSize   uint8
	WinOffset uint16
	Interval  uint16
	Latency   uint16
	Timeout   uint16

	// LL_CONNECTION_UPDATE_REQ and LL_CHANNEL_MAP_REQ
	Instant uint16

	// LL_CHANNEL_MAP_REQ
	Map ChannelMap

	// LL_TERMINATE_IND, LL_REJECT_IND
	ErrorCode uint8

	// LL_UNKNOWN_RSP
	UnknownType ControlOpcode

	// LL_FEATURE_REQ, LL_FEATURE_RSP, LL_SLAVE_FEATURE_REQ
	Features FeatureSet

	// LL_VERSION_IND
	VersNr    uint8
	CompanyID uint16
	SubVersNr uint16
}

// ConnectionUpdateReq builds an LL_CONNECTION_UPDATE_REQ.
func ConnectionUpdateReq(winSize uint8, winOffset, interval, latency, timeout, instant uint16) ControlPDU {
	return ControlPDU{
		Opcode:    OpConnectionUpdateReq,
		WinSize:   winSize,
		WinOffset: winOffset,
		Interval:  interval,
		Latency:   latency,
		Timeout:   timeout,
		Instant:   instant,
	}
}

// ChannelMapReq builds an LL_CHANNEL_MAP_REQ.
func ChannelMapReq(m ChannelMap, instant uint16) ControlPDU {
	return ControlPDU{Opcode: OpChannelMapReq, Map: m, Instant: instant}
}

// TerminateInd builds an LL_TERMINATE_IND with the given controller error
// code.
func TerminateInd(errorCode uint8) ControlPDU {
	return ControlPDU{Opcode: OpTerminateInd, ErrorCode: errorCode}
}

// UnknownRsp builds the LL_UNKNOWN_RSP answer to an unsupported opcode.
func UnknownRsp(unknown ControlOpcode) ControlPDU {
	return ControlPDU{Opcode: OpUnknownRsp, UnknownType: unknown}
}

// FeatureRsp builds an LL_FEATURE_RSP advertising the given feature set.
func FeatureRsp(f FeatureSet) ControlPDU {
	return ControlPDU{Opcode: OpFeatureRsp, Features: f}
}

// VersionInd builds this stack's LL_VERSION_IND.
func VersionInd() ControlPDU {
	return ControlPDU{
		Opcode:    OpVersionInd,
		VersNr:    BluetoothVersion,
		CompanyID: CompanyID,
	}
}

// PingRsp builds an LL_PING_RSP.
func PingRsp() ControlPDU {
	return ControlPDU{Opcode: OpPingRsp}
}

// ParseControlPDU decodes a control PDU payload. Opcodes this stack does
// not model keep only their opcode; the caller answers them with
// UnknownRsp.
func ParseControlPDU(r *wire.Reader) (ControlPDU, error) {
	var c ControlPDU
	op, err := r.ReadUint8()
	if err != nil {
		return c, err
	}
	c.Opcode = ControlOpcode(op)

	switch c.Opcode {
	case OpConnectionUpdateReq:
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
		c.Instant, err = r.ReadUint16()
		return c, err

	case OpChannelMapReq:
		var raw [5]byte
		if err = r.ReadCopy(raw[:]); err != nil {
			return c, err
		}
		c.Map = ChannelMapFromRaw(raw)
		c.Instant, err = r.ReadUint16()
		return c, err

	case OpTerminateInd, OpRejectInd:
		c.ErrorCode, err = r.ReadUint8()
		return c, err

	case OpUnknownRsp:
		var t uint8
		t, err = r.ReadUint8()
		c.UnknownType = ControlOpcode(t)
		return c, err

	case OpFeatureReq, OpFeatureRsp, OpSlaveFeatureReq:
		var f uint64
		f, err = r.ReadUint64()
		c.Features = FeatureSet(f)
		return c, err

	case OpVersionInd:
		if c.VersNr, err = r.ReadUint8(); err != nil {
			return c, err
		}
		if c.CompanyID, err = r.ReadUint16(); err != nil {
			return c, err
		}
		c.SubVersNr, err = r.ReadUint16()
		return c, err

	case OpPingReq, OpPingRsp:
		return c, nil

	default:
		// Opcode is all the caller needs to reply LL_UNKNOWN_RSP.
		return c, nil
	}
}

// Encode writes the control PDU payload, opcode first.
func (c *ControlPDU) Encode(w *wire.Writer) error {
	if err := w.WriteUint8(uint8(c.Opcode)); err != nil {
		return err
	}

	switch c.Opcode {
	case OpConnectionUpdateReq:
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
		return w.WriteUint16(c.Instant)

	case OpChannelMapReq:
		raw := c.Map.Raw()
		if err := w.WriteSlice(raw[:]); err != nil {
			return err
		}
		return w.WriteUint16(c.Instant)

	case OpTerminateInd, OpRejectInd:
		return w.WriteUint8(c.ErrorCode)

	case OpUnknownRsp:
		return w.WriteUint8(uint8(c.UnknownType))

	case OpFeatureReq, OpFeatureRsp, OpSlaveFeatureReq:
		return w.WriteUint64(uint64(c.Features))

	case OpVersionInd:
		if err := w.WriteUint8(c.VersNr); err != nil {
			return err
		}
		if err := w.WriteUint16(c.CompanyID); err != nil {
			return err
		}
		return w.WriteUint16(c.SubVersNr)

	default:
		return nil
	}
}

// Header returns the data channel header for this control PDU, sequence
// bits still zero.
func (c *ControlPDU) Header() DataHeader {
	return NewDataHeader(LLIDControl).WithPayloadLength(c.encodedLen())
}

func (c *ControlPDU) encodedLen() uint8 {
	switch c.Opcode {
	case OpConnectionUpdateReq:
		return 12
	case OpChannelMapReq:
		return 8
	case OpTerminateInd, OpRejectInd, OpUnknownRsp:
		return 2
	case OpFeatureReq, OpFeatureRsp, OpSlaveFeatureReq:
		return 9
	case OpVersionInd:
		return 6
	default:
		return 1
	}
}
