package ll

import (
	"bytes"
	"testing"

	"github.com/corvuslink/ble/wire"
)

func encodeControl(t *testing.T, pdu ControlPDU) []byte {
	t.Helper()
	var buf [MaxDataPayload]byte
	w := wire.NewWriter(buf[:])
	if err := pdu.Encode(&w); err != nil {
		t.Fatal(err)
	}
	if uint8(w.Len()) != pdu.Header().PayloadLength() {
		t.Fatalf("%s encoded to %d bytes, header says %d",
			pdu.Opcode, w.Len(), pdu.Header().PayloadLength())
	}
	return w.Bytes()
}

func Test_ControlPDU_ConnectionUpdateReq(t *testing.T) {
	raw := encodeControl(t, ConnectionUpdateReq(2, 4, 40, 3, 200, 0x1234))
	want := []byte{0x00, 0x02, 0x04, 0x00, 0x28, 0x00, 0x03, 0x00, 0xc8, 0x00, 0x34, 0x12}
	if !bytes.Equal(raw, want) {
		t.Fatalf("encoded [% x], want [% x]", raw, want)
	}

	r := wire.NewReader(raw)
	pdu, err := ParseControlPDU(&r)
	if err != nil {
		t.Fatal(err)
	}
	if pdu.Opcode != OpConnectionUpdateReq || pdu.WinSize != 2 || pdu.WinOffset != 4 ||
		pdu.Interval != 40 || pdu.Latency != 3 || pdu.Timeout != 200 || pdu.Instant != 0x1234 {
		t.Fatalf("decoded %+v", pdu)
	}
}

func Test_ControlPDU_ChannelMapReq(t *testing.T) {
	m := ChannelMapFromRaw([5]byte{0xff, 0x00, 0xff, 0x00, 0x1f})
	raw := encodeControl(t, ChannelMapReq(m, 7))
	want := []byte{0x01, 0xff, 0x00, 0xff, 0x00, 0x1f, 0x07, 0x00}
	if !bytes.Equal(raw, want) {
		t.Fatalf("encoded [% x], want [% x]", raw, want)
	}

	r := wire.NewReader(raw)
	pdu, err := ParseControlPDU(&r)
	if err != nil {
		t.Fatal(err)
	}
	if pdu.Opcode != OpChannelMapReq || pdu.Map != m || pdu.Instant != 7 {
		t.Fatalf("decoded %+v", pdu)
	}
}

func Test_ControlPDU_Singles(t *testing.T) {
	raw := encodeControl(t, TerminateInd(0x13))
	if !bytes.Equal(raw, []byte{0x02, 0x13}) {
		t.Fatalf("terminate encoded [% x]", raw)
	}

	raw = encodeControl(t, UnknownRsp(ControlOpcode(0x1F)))
	if !bytes.Equal(raw, []byte{0x07, 0x1f}) {
		t.Fatalf("unknown rsp encoded [% x]", raw)
	}

	raw = encodeControl(t, FeatureRsp(FeaturePing|FeatureEncryption))
	if raw[0] != 0x09 || len(raw) != 9 || raw[1] != 0x11 {
		t.Fatalf("feature rsp encoded [% x]", raw)
	}

	raw = encodeControl(t, VersionInd())
	if !bytes.Equal(raw, []byte{0x0c, 0x08, 0xff, 0xff, 0x00, 0x00}) {
		t.Fatalf("version ind encoded [% x]", raw)
	}

	raw = encodeControl(t, PingRsp())
	if !bytes.Equal(raw, []byte{0x13}) {
		t.Fatalf("ping rsp encoded [% x]", raw)
	}
}

func Test_ControlPDU_UnmodeledOpcode(t *testing.T) {
	// LL_ENC_REQ carries fields this stack does not model; the opcode must
	// still come through so it can be answered with LL_UNKNOWN_RSP.
	raw := append([]byte{byte(OpEncReq)}, make([]byte, 22)...)
	r := wire.NewReader(raw)
	pdu, err := ParseControlPDU(&r)
	if err != nil {
		t.Fatal(err)
	}
	if pdu.Opcode != OpEncReq {
		t.Fatalf("opcode %s", pdu.Opcode)
	}
}

func Test_ControlPDU_Truncated(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00, 0x02, 0x04},             // CONNECTION_UPDATE_REQ cut short
		{0x01, 0xff, 0x00},             // CHANNEL_MAP_REQ cut short
		{0x08, 0x11, 0x00, 0x00, 0x00}, // FEATURE_REQ cut short
	}
	for i, raw := range cases {
		r := wire.NewReader(raw)
		if _, err := ParseControlPDU(&r); err == nil {
			t.Fatalf("case %d: truncated PDU accepted", i)
		}
	}
}

func Test_FeatureSet(t *testing.T) {
	f := FeaturePing | FeatureEncryption
	if !f.Has(FeaturePing) || f.Has(FeatureDataLengthExtension) {
		t.Fatalf("feature set %s", f)
	}
	if FeatureSet(0).String() != "none" {
		t.Fatalf("empty set renders %q", FeatureSet(0).String())
	}
}
