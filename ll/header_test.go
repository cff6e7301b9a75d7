package ll

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"

	"github.com/corvuslink/ble"
	"github.com/corvuslink/ble/wire"
)

func Test_DataHeader_BitLayout(t *testing.T) {
	h := NewDataHeader(LLIDControl).
		WithSN(SeqOne).
		WithPayloadLength(5)

	// LLID 0b11, SN bit 3, length in the second byte.
	if h.Uint16() != 0x050B {
		t.Fatalf("header 0x%04x, want 0x050b", h.Uint16())
	}

	h = NewDataHeader(LLIDDataStart).WithNESN(SeqOne).WithMD(true)
	if h.Uint16() != 0x0016 {
		t.Fatalf("header 0x%04x, want 0x0016", h.Uint16())
	}
}

func Test_DataHeader_Fields(t *testing.T) {
	h := NewDataHeader(LLIDDataCont).
		WithSN(SeqOne).
		WithNESN(SeqZero).
		WithMD(true).
		WithPayloadLength(27)

	if h.LLID() != LLIDDataCont || h.SN() != SeqOne || h.NESN() != SeqZero ||
		!h.MD() || h.PayloadLength() != 27 {
		t.Fatalf("field mismatch: %s", h)
	}

	// Clearing a bit must not disturb its neighbours.
	h = h.WithSN(SeqZero)
	if h.SN() != SeqZero || h.NESN() != SeqZero || !h.MD() {
		t.Fatalf("WithSN clobbered other bits: %s", h)
	}
}

func Test_AdvHeader_BitLayout(t *testing.T) {
	h := NewAdvHeader(ConnectReq).
		WithTxAdd(true).
		WithPayloadLength(34)

	// type 0b0101, TxAdd bit 6, length 34 in bits 8..13.
	if h.Uint16() != 0x2245 {
		t.Fatalf("header 0x%04x, want 0x2245", h.Uint16())
	}

	if h.Type() != ConnectReq || !h.TxAdd() || h.RxAdd() || h.PayloadLength() != 34 {
		t.Fatalf("field mismatch: %s", h)
	}

	// The 6-bit length field must mask, not overflow into the RFU bits.
	h = NewAdvHeader(AdvInd).WithPayloadLength(0xFF)
	if h.PayloadLength() != 0x3F {
		t.Fatalf("length %d, want 63", h.PayloadLength())
	}
}

func Test_ConnectRequest_RoundTrip(t *testing.T) {
	init, _ := ble.ParseDeviceAddress("c0:aa:bb:cc:dd:ee", ble.AddressRandom)
	adv, _ := ble.ParseDeviceAddress("00:11:22:33:44:55", ble.AddressPublic)

	cr := ConnectRequest{
		InitAddr:      init,
		AdvAddr:       adv,
		AccessAddress: 0x50123456,
		CRCInit:       0xABCDEF,
		WinSize:       2,
		WinOffset:     4,
		Interval:      40,
		Latency:       3,
		Timeout:       200,
		Map:           AllChannels(),
		Hop:           9,
		SCA:           5,
	}

	var buf [34]byte
	w := wire.NewWriter(buf[:])
	if err := cr.Encode(&w); err != nil {
		t.Fatal(err)
	}
	if w.Len() != 34 {
		t.Fatalf("encoded %d bytes, want 34", w.Len())
	}

	r := wire.NewReader(w.Bytes())
	got, err := ParseConnectRequest(cr.Header(), &r)
	if err != nil {
		t.Fatal(err)
	}
	if got != cr {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, cr)
	}
	if !r.Empty() {
		t.Fatalf("%d bytes left after parse", r.Remaining())
	}
}

func Test_ConnectRequest_Wire(t *testing.T) {
	// CONNECT_REQ payload assembled by hand: both addresses, then LLData.
	raw, _ := hex.DecodeString(
		"eeddccbbaac0" + // InitA, wire order
			"554433221100" + // AdvA
			"56341250" + // AA 0x50123456 little endian
			"efcdab" + // CRCInit 0xabcdef
			"02" + "0400" + "2800" + "0300" + "c800" + // win/interval/latency/timeout
			"ffffffff1f" + // channel map
			"a9") // sca 5 << 5 | hop 9

	h := NewAdvHeader(ConnectReq).WithTxAdd(true).WithPayloadLength(34)
	r := wire.NewReader(raw)
	cr, err := ParseConnectRequest(h, &r)
	if err != nil {
		t.Fatal(err)
	}

	if cr.AccessAddress != 0x50123456 {
		t.Fatalf("aa 0x%08x", cr.AccessAddress)
	}
	if cr.CRCInit != 0xABCDEF {
		t.Fatalf("crc init 0x%06x", cr.CRCInit)
	}
	if cr.Hop != 9 || cr.SCA != 5 {
		t.Fatalf("hop %d sca %d", cr.Hop, cr.SCA)
	}
	if cr.InitAddr.String() != "c0:aa:bb:cc:dd:ee" || !cr.InitAddr.IsRandom() {
		t.Fatalf("init addr %s", cr.InitAddr)
	}
	if cr.AdvAddr.String() != "00:11:22:33:44:55" || cr.AdvAddr.IsRandom() {
		t.Fatalf("adv addr %s", cr.AdvAddr)
	}
	if cr.IntervalDuration() != 50*time.Millisecond {
		t.Fatalf("interval %s", cr.IntervalDuration())
	}
}

func Test_ConnectRequest_Validate(t *testing.T) {
	cr := ConnectRequest{
		Interval: 40,
		Timeout:  200,
		Map:      AllChannels(),
		Hop:      9,
	}
	if err := cr.Validate(); err != nil {
		t.Fatal(err)
	}

	bad := cr
	bad.Hop = 4
	if err := bad.Validate(); err == nil {
		t.Fatal("hop 4 accepted")
	}
	bad = cr
	bad.Interval = 5
	if err := bad.Validate(); err == nil {
		t.Fatal("interval 5 accepted")
	}
	bad = cr
	bad.Timeout = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("zero timeout accepted")
	}
	bad = cr
	bad.Map = ChannelMapFromRaw([5]byte{0x01})
	if err := bad.Validate(); err == nil {
		t.Fatal("single-channel map accepted")
	}
}

func Test_EncodeAdvPayload(t *testing.T) {
	addr, _ := ble.ParseDeviceAddress("c0:11:22:33:44:55", ble.AddressRandom)
	data := []byte{0x02, 0x01, 0x06}

	var buf [MaxAdvPayload]byte
	w := wire.NewWriter(buf[:])
	h, err := EncodeAdvPayload(AdvInd, addr, data, &w)
	if err != nil {
		t.Fatal(err)
	}
	if h.Type() != AdvInd || !h.TxAdd() || h.PayloadLength() != 9 {
		t.Fatalf("header %s", h)
	}
	want := append([]byte{0x55, 0x44, 0x33, 0x22, 0x11, 0xc0}, data...)
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("payload [% x], want [% x]", w.Bytes(), want)
	}

	w = wire.NewWriter(buf[:])
	if _, err := EncodeAdvPayload(AdvInd, addr, make([]byte, MaxAdvData+1), &w); err == nil {
		t.Fatal("oversized advertising data accepted")
	}
}
