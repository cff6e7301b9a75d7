package ll

import (
	"bytes"
	"testing"

	"github.com/corvuslink/ble/wire"
)

func Test_AdvData_Build(t *testing.T) {
	var a AdvData
	if err := a.AppendFlags(FlagGeneralDiscoverable | FlagBREDRNotSupported); err != nil {
		t.Fatal(err)
	}
	if err := a.AppendCompleteLocalName("corvus"); err != nil {
		t.Fatal(err)
	}
	if err := a.AppendServiceUUID16(0x180F, 0x180A); err != nil {
		t.Fatal(err)
	}

	want := []byte{
		0x02, 0x01, 0x06,
		0x07, 0x09, 'c', 'o', 'r', 'v', 'u', 's',
		0x05, 0x03, 0x0f, 0x18, 0x0a, 0x18,
	}
	if !bytes.Equal(a.Bytes(), want) {
		t.Fatalf("encoded [% x], want [% x]", a.Bytes(), want)
	}
	if a.Len() != len(want) {
		t.Fatalf("length %d, want %d", a.Len(), len(want))
	}
}

func Test_AdvData_ManufacturerData(t *testing.T) {
	var a AdvData
	if err := a.AppendManufacturerData(0x0059, []byte{0xca, 0xfe}); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x05, 0xff, 0x59, 0x00, 0xca, 0xfe}
	if !bytes.Equal(a.Bytes(), want) {
		t.Fatalf("encoded [% x], want [% x]", a.Bytes(), want)
	}
}

func Test_AdvData_Overflow(t *testing.T) {
	var a AdvData
	if err := a.AppendFlags(FlagGeneralDiscoverable); err != nil {
		t.Fatal(err)
	}
	// 3 used, 28 left: a name needs its 2 byte structure header too.
	if err := a.AppendCompleteLocalName(string(make([]byte, 27))); err == nil {
		t.Fatal("27 byte name accepted with 28 bytes left")
	}
	if a.Len() != 3 {
		t.Fatalf("failed append changed the data: %d bytes", a.Len())
	}
	if err := a.AppendCompleteLocalName(string(make([]byte, 26))); err != nil {
		t.Fatal(err)
	}
	if a.Len() != MaxAdvData {
		t.Fatalf("length %d, want %d", a.Len(), MaxAdvData)
	}
}

func Test_NextADStructure(t *testing.T) {
	raw := []byte{
		0x02, 0x01, 0x06,
		0x04, 0xff, 0x59, 0x00, 0x01,
	}
	r := wire.NewReader(raw)

	s, err := NextADStructure(&r)
	if err != nil {
		t.Fatal(err)
	}
	if s.Type != ADFlags || !bytes.Equal(s.Data, []byte{0x06}) {
		t.Fatalf("first structure %+v", s)
	}

	s, err = NextADStructure(&r)
	if err != nil {
		t.Fatal(err)
	}
	if s.Type != ADManufacturerData || !bytes.Equal(s.Data, []byte{0x59, 0x00, 0x01}) {
		t.Fatalf("second structure %+v", s)
	}
	if !r.Empty() {
		t.Fatalf("%d bytes left", r.Remaining())
	}

	// A length byte running past the data is an error, not a panic.
	r = wire.NewReader([]byte{0x05, 0x09, 'x'})
	if _, err := NextADStructure(&r); err == nil {
		t.Fatal("truncated structure accepted")
	}
}

func Test_LocalName(t *testing.T) {
	// Shortened name first, complete name later: complete wins.
	raw := []byte{
		0x03, 0x08, 'c', 'o',
		0x07, 0x09, 'c', 'o', 'r', 'v', 'u', 's',
	}
	if name, ok := LocalName(raw); !ok || name != "corvus" {
		t.Fatalf("name %q ok=%v", name, ok)
	}

	// Only the shortened form present.
	if name, ok := LocalName(raw[:4]); !ok || name != "co" {
		t.Fatalf("name %q ok=%v", name, ok)
	}

	// No name at all.
	if _, ok := LocalName([]byte{0x02, 0x01, 0x06}); ok {
		t.Fatal("found a name in flags-only data")
	}

	// A zero length terminates the data early.
	padded := []byte{0x00, 0x07, 0x09, 'i', 'g', 'n', 'o', 'r', 'e'}
	if _, ok := LocalName(padded); ok {
		t.Fatal("read past an early terminator")
	}
}
