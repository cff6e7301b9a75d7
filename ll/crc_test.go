package ll

import "testing"

func Test_CRC24_SingleBit(t *testing.T) {
	// A lone 0x01 pushes exactly the polynomial out of the register.
	if got := CRC24([]byte{0x01}, 0); got != 0x00065B {
		t.Fatalf("crc 0x%06x, want 0x00065b", got)
	}
}

func Test_CRC24_Preset(t *testing.T) {
	if got := CRC24(nil, CRCPreset); got != CRCPreset {
		t.Fatalf("empty data must return the preset, got 0x%06x", got)
	}
	if got := CRC24(make([]byte, 8), 0); got != 0 {
		t.Fatalf("all-zero data with zero preset must stay zero, got 0x%06x", got)
	}
}

func Test_CRC24_Residue(t *testing.T) {
	// Appending the CRC (MSB first, as transmitted) must drive the
	// register to zero. This is how a receiver checks a packet.
	pdu := []byte{0x00, 0x06, 0xc0, 0x11, 0x22, 0x33, 0x44, 0x55}
	crc := CRC24(pdu, CRCPreset)

	whole := append(append([]byte{}, pdu...), byte(crc>>16), byte(crc>>8), byte(crc))
	if got := CRC24(whole, CRCPreset); got != 0 {
		t.Fatalf("residue 0x%06x, want 0", got)
	}
}

func Test_CRC24_Sensitivity(t *testing.T) {
	pdu := []byte{0x40, 0x0b, 0x01, 0x02, 0x03}
	ref := CRC24(pdu, CRCPreset)

	for i := range pdu {
		mod := append([]byte{}, pdu...)
		mod[i] ^= 0x10
		if CRC24(mod, CRCPreset) == ref {
			t.Fatalf("flipping a bit in byte %d did not change the CRC", i)
		}
	}
}

func Test_Whitening_Channel37(t *testing.T) {
	// First two whitening bytes for channel 37 (IV 0x65), computed by
	// clocking the x^7+x^4+1 LFSR by hand.
	buf := make([]byte, 2)
	Whiten(37, buf)
	if buf[0] != 0x8D || buf[1] != 0xD2 {
		t.Fatalf("whitening sequence [% x], want [8d d2]", buf)
	}
}

func Test_Whitening_Involution(t *testing.T) {
	orig := []byte{0x40, 0x0b, 0xde, 0xad, 0xbe, 0xef, 0x00, 0x55}
	buf := append([]byte{}, orig...)

	Whiten(9, buf)
	changed := false
	for i := range buf {
		if buf[i] != orig[i] {
			changed = true
		}
	}
	if !changed {
		t.Fatal("whitening left the buffer untouched")
	}
	Whiten(9, buf)

	for i := range buf {
		if buf[i] != orig[i] {
			t.Fatalf("byte %d not restored: 0x%02x != 0x%02x", i, buf[i], orig[i])
		}
	}
}

func Test_Whitening_ChannelsDiffer(t *testing.T) {
	a := make([]byte, 4)
	b := make([]byte, 4)
	Whiten(0, a)
	Whiten(36, b)

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
	}
	if same {
		t.Fatal("channels 0 and 36 produced the same whitening sequence")
	}
}
