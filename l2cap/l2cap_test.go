package l2cap

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"

	"github.com/corvuslink/ble/ll"
	"github.com/corvuslink/ble/llq"
)

// pair builds a mux whose tx queue drains into consumer txc and whose rx
// queue is fed through producer rxp, the way a link layer would sit on the
// other side.
func pair(t *testing.T, opts ...Option) (*Mux, *llq.Consumer, *llq.Producer) {
	t.Helper()
	txp, txc := llq.New().Split()
	rxp, rxc := llq.New().Split()
	m, err := New(txp, rxc, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return m, txc, rxp
}

func drain(t *testing.T, txc *llq.Consumer) []*llq.PDU {
	t.Helper()
	var out []*llq.PDU
	for {
		pdu, ok := txc.Peek()
		if !ok {
			return out
		}
		cp := *pdu
		out = append(out, &cp)
		txc.Pop()
	}
}

func Test_Send_SingleFragment(t *testing.T) {
	m, txc, _ := pair(t)
	m.Handle(CIDAtt, func([]byte) {})

	sdu := []byte{0x02, 0x17, 0x00} // ATT exchange MTU request
	if err := m.Send(CIDAtt, sdu); err != nil {
		t.Fatal(err)
	}

	pdus := drain(t, txc)
	if len(pdus) != 1 {
		t.Fatalf("%d fragments, want 1", len(pdus))
	}
	h := ll.DataHeader(pdus[0].Header())
	if h.LLID() != ll.LLIDDataStart || h.PayloadLength() != 7 {
		t.Fatalf("fragment header %s", h)
	}
	want := []byte{0x03, 0x00, 0x04, 0x00, 0x02, 0x17, 0x00}
	if !bytes.Equal(pdus[0].Payload(), want) {
		t.Fatalf("fragment [% x], want [% x]", pdus[0].Payload(), want)
	}
}

func Test_Send_Segmentation(t *testing.T) {
	m, txc, _ := pair(t, OptMTU(64))
	m.Handle(CIDAtt, func([]byte) {})

	// 40 byte SDU frames to 44 bytes: fragments of 27 and 17.
	sdu := make([]byte, 40)
	for i := range sdu {
		sdu[i] = byte(i)
	}
	if err := m.Send(CIDAtt, sdu); err != nil {
		t.Fatal(err)
	}

	pdus := drain(t, txc)
	if len(pdus) != 2 {
		t.Fatalf("%d fragments, want 2", len(pdus))
	}

	first := ll.DataHeader(pdus[0].Header())
	if first.LLID() != ll.LLIDDataStart || first.PayloadLength() != 27 {
		t.Fatalf("first fragment %s", first)
	}
	second := ll.DataHeader(pdus[1].Header())
	if second.LLID() != ll.LLIDDataCont || second.PayloadLength() != 17 {
		t.Fatalf("second fragment %s", second)
	}

	// The first fragment opens with the basic header.
	head := pdus[0].Payload()
	if head[0] != 40 || head[1] != 0 || head[2] != 0x04 || head[3] != 0x00 {
		t.Fatalf("basic header [% x]", head[:4])
	}
	whole := append(append([]byte{}, head[4:]...), pdus[1].Payload()...)
	if !bytes.Equal(whole, sdu) {
		t.Fatalf("reassembled [% x]", whole)
	}
}

func Test_Send_Validation(t *testing.T) {
	m, txc, _ := pair(t)
	m.Handle(CIDAtt, func([]byte) {})

	if err := m.Send(CIDAtt, make([]byte, DefaultMTU+1)); errors.Cause(err) != ErrPayloadTooLarge {
		t.Fatalf("oversized SDU: %v", err)
	}
	if err := m.Send(CIDLESignal, []byte{0x01}); errors.Cause(err) != ErrUnknownChannel {
		t.Fatalf("unregistered channel: %v", err)
	}
	if pdus := drain(t, txc); len(pdus) != 0 {
		t.Fatalf("rejected sends queued %d fragments", len(pdus))
	}
}

func Test_Send_AllOrNothing(t *testing.T) {
	m, txc, _ := pair(t, OptMTU(64))
	m.Handle(CIDAtt, func([]byte) {})

	// Leave exactly one free slot, then send an SDU needing two.
	for i := 0; i < llq.Capacity-1; i++ {
		if err := m.Send(CIDAtt, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.Send(CIDAtt, make([]byte, 40)); err != llq.ErrQueueFull {
		t.Fatalf("partial send: %v", err)
	}

	// The single remaining slot is still usable for a small SDU.
	if err := m.Send(CIDAtt, []byte{0xaa}); err != nil {
		t.Fatal(err)
	}
	if pdus := drain(t, txc); len(pdus) != llq.Capacity {
		t.Fatalf("%d fragments queued", len(pdus))
	}
}

// feed queues one inbound fragment as the link layer would.
func feed(t *testing.T, rxp *llq.Producer, llid ll.LLID, payload []byte) {
	t.Helper()
	h := ll.NewDataHeader(llid).WithPayloadLength(uint8(len(payload)))
	if err := rxp.Produce(h.Uint16(), payload); err != nil {
		t.Fatal(err)
	}
}

func Test_Poll_Reassembly(t *testing.T) {
	m, _, rxp := pair(t, OptMTU(64))

	var got [][]byte
	m.Handle(CIDAtt, func(sdu []byte) {
		got = append(got, append([]byte(nil), sdu...))
	})

	// One single-fragment SDU, then one split across two fragments.
	feed(t, rxp, ll.LLIDDataStart, []byte{0x02, 0x00, 0x04, 0x00, 0xbe, 0xef})

	long := make([]byte, 40)
	for i := range long {
		long[i] = byte(0x80 + i)
	}
	frame := append([]byte{40, 0, 0x04, 0x00}, long...)
	feed(t, rxp, ll.LLIDDataStart, frame[:27])
	feed(t, rxp, ll.LLIDDataCont, frame[27:])

	if n := m.Poll(); n != 2 {
		t.Fatalf("delivered %d SDUs, want 2", n)
	}
	if len(got) != 2 {
		t.Fatalf("handler saw %d SDUs, want 2", len(got))
	}
	if !bytes.Equal(got[0], []byte{0xbe, 0xef}) || !bytes.Equal(got[1], long) {
		t.Fatalf("handler saw [% x] and [% x]", got[0], got[1])
	}
}

func Test_Poll_RestartOnNewStart(t *testing.T) {
	m, _, rxp := pair(t, OptMTU(64))

	var got [][]byte
	m.Handle(CIDAtt, func(sdu []byte) {
		got = append(got, append([]byte(nil), sdu...))
	})

	// A start fragment of an SDU that never completes, then a fresh SDU.
	feed(t, rxp, ll.LLIDDataStart, append([]byte{40, 0, 0x04, 0x00}, make([]byte, 23)...))
	feed(t, rxp, ll.LLIDDataStart, []byte{0x01, 0x00, 0x04, 0x00, 0x42})

	if n := m.Poll(); n != 1 {
		t.Fatalf("delivered %d SDUs, want 1", n)
	}
	if !bytes.Equal(got[0], []byte{0x42}) {
		t.Fatalf("handler saw [% x]", got[0])
	}
}

func Test_Poll_Discards(t *testing.T) {
	m, _, rxp := pair(t)

	delivered := 0
	m.Handle(CIDAtt, func([]byte) { delivered++ })

	// Orphan continuation with nothing in progress.
	feed(t, rxp, ll.LLIDDataCont, []byte{0x01, 0x02})

	// SDU above the MTU is dropped at the start fragment.
	feed(t, rxp, ll.LLIDDataStart, append([]byte{0xff, 0x01, 0x04, 0x00}, make([]byte, 23)...))

	// Start fragment too short for the basic header.
	feed(t, rxp, ll.LLIDDataStart, []byte{0x01, 0x00})

	// Continuation overrunning the announced length kills the SDU.
	feed(t, rxp, ll.LLIDDataStart, append([]byte{10, 0, 0x04, 0x00}, make([]byte, 5)...))
	feed(t, rxp, ll.LLIDDataCont, make([]byte, 20))

	// SDU for a channel nobody handles.
	feed(t, rxp, ll.LLIDDataStart, []byte{0x01, 0x00, 0x06, 0x00, 0x42})

	if n := m.Poll(); n != 0 {
		t.Fatalf("delivered %d SDUs, want 0", n)
	}
	if delivered != 0 {
		t.Fatalf("handler called %d times", delivered)
	}

	// The discards must not wedge reassembly for what follows.
	feed(t, rxp, ll.LLIDDataStart, []byte{0x01, 0x00, 0x04, 0x00, 0x07})
	if n := m.Poll(); n != 1 || delivered != 1 {
		t.Fatalf("delivered %d SDUs after discards", n)
	}
}
