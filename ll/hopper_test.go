package ll

import "testing"

func mapFromChannels(t *testing.T, chans ...uint8) ChannelMap {
	t.Helper()
	var raw [5]byte
	for _, c := range chans {
		raw[c/8] |= 1 << (c % 8)
	}
	return ChannelMapFromRaw(raw)
}

func Test_Hopper_AllChannels_Hop7(t *testing.T) {
	h, err := NewHopper(7, AllChannels())
	if err != nil {
		t.Fatal(err)
	}

	// With every channel used the sequence is just (n+7) mod 37.
	want := []uint8{7, 14, 21, 28, 35, 5, 12, 19, 26, 33, 3, 10, 17, 24, 31, 1}
	for i, w := range want {
		if got := h.Next(uint16(i)).Index(); got != w {
			t.Fatalf("event %d: channel %d, want %d", i, got, w)
		}
	}
}

func Test_Hopper_FullCycle(t *testing.T) {
	// Any hop increment visits all 37 channels exactly once per 37 events
	// when every channel is used (hop and 37 are coprime).
	for hop := uint8(MinHopIncrement); hop <= MaxHopIncrement; hop++ {
		h, err := NewHopper(hop, AllChannels())
		if err != nil {
			t.Fatal(err)
		}
		seen := map[uint8]bool{}
		for ev := 0; ev < NumDataChannels; ev++ {
			seen[h.Next(uint16(ev)).Index()] = true
		}
		if len(seen) != NumDataChannels {
			t.Fatalf("hop %d visited %d distinct channels", hop, len(seen))
		}
	}
}

func Test_Hopper_Remap(t *testing.T) {
	// Only channels 0..8 used. Unused unmapped channels remap to the
	// (unmapped mod 9)-th used channel.
	m := mapFromChannels(t, 0, 1, 2, 3, 4, 5, 6, 7, 8)
	h, err := NewHopper(7, m)
	if err != nil {
		t.Fatal(err)
	}

	// unmapped: 7, 14, 21, 28, 35, 5, ...
	want := []uint8{7, 14 % 9, 21 % 9, 28 % 9, 35 % 9, 5}
	for i, w := range want {
		if got := h.Next(uint16(i)).Index(); got != w {
			t.Fatalf("event %d: channel %d, want %d", i, got, w)
		}
	}
}

func Test_Hopper_RemapAscendingTable(t *testing.T) {
	// Non-contiguous map: used channels in ascending order are
	// 2, 9, 17, 30. unmapped 7 is unused, 7 mod 4 = 3 -> channel 30.
	m := mapFromChannels(t, 2, 9, 17, 30)
	h, err := NewHopper(7, m)
	if err != nil {
		t.Fatal(err)
	}
	if got := h.Next(0).Index(); got != 30 {
		t.Fatalf("channel %d, want 30", got)
	}
}

func Test_Hopper_PendingMapInstant(t *testing.T) {
	h, err := NewHopper(7, AllChannels())
	if err != nil {
		t.Fatal(err)
	}

	// From instant 3 on, only channels 0..8 remain.
	narrow := mapFromChannels(t, 0, 1, 2, 3, 4, 5, 6, 7, 8)
	if err := h.SetPendingMap(narrow, 3); err != nil {
		t.Fatal(err)
	}

	// Events 1 and 2 still run on the full map.
	if got := h.Next(1).Index(); got != 7 {
		t.Fatalf("event 1: channel %d, want 7", got)
	}
	if got := h.Next(2).Index(); got != 14 {
		t.Fatalf("event 2 before instant: channel %d, want 14 (old map)", got)
	}
	if !h.HasPendingMap() {
		t.Fatal("pending map activated early")
	}

	// At the instant the new map takes over: unmapped 21 remaps to 21%9=3.
	if got := h.Next(3).Index(); got != 3 {
		t.Fatalf("event 3 at instant: channel %d, want 3 (new map)", got)
	}
	if h.HasPendingMap() {
		t.Fatal("pending map still staged after its instant")
	}
	if h.ActiveMap() != narrow {
		t.Fatal("active map not replaced")
	}
}

func Test_Hopper_RejectsBadParameters(t *testing.T) {
	if _, err := NewHopper(4, AllChannels()); err == nil {
		t.Fatal("hop 4 accepted")
	}
	if _, err := NewHopper(17, AllChannels()); err == nil {
		t.Fatal("hop 17 accepted")
	}
	if _, err := NewHopper(7, mapFromChannels(t, 12)); err == nil {
		t.Fatal("single-channel map accepted")
	}

	h, err := NewHopper(7, AllChannels())
	if err != nil {
		t.Fatal(err)
	}
	if err := h.SetPendingMap(mapFromChannels(t, 12), 10); err == nil {
		t.Fatal("single-channel pending map accepted")
	}
}

func Test_ChannelMap_RFUBitsCleared(t *testing.T) {
	m := ChannelMapFromRaw([5]byte{0xff, 0xff, 0xff, 0xff, 0xff})
	if m.NumUsed() != NumDataChannels {
		t.Fatalf("used %d, want %d", m.NumUsed(), NumDataChannels)
	}
	if raw := m.Raw(); raw[4] != 0x1f {
		t.Fatalf("RFU bits kept: 0x%02x", raw[4])
	}
}

func Test_ChannelMap_ByIndex(t *testing.T) {
	m := mapFromChannels(t, 2, 9, 17, 30)
	for i, want := range []uint8{2, 9, 17, 30} {
		ch, err := m.ByIndex(uint8(i))
		if err != nil {
			t.Fatal(err)
		}
		if ch.Index() != want {
			t.Fatalf("index %d: channel %d, want %d", i, ch.Index(), want)
		}
	}
	if _, err := m.ByIndex(4); err == nil {
		t.Fatal("out-of-range index accepted")
	}
}

func Test_Channel_Frequencies(t *testing.T) {
	// The three advertising channels sit at the band edges and middle.
	cases := []struct {
		ch   AdvertisingChannel
		freq uint16
	}{
		{37, 2402},
		{38, 2426},
		{39, 2480},
	}
	for _, c := range cases {
		if got := c.ch.Freq(); got != c.freq {
			t.Fatalf("channel %d at %d MHz, want %d", c.ch, got, c.freq)
		}
	}

	// Data channels skip the advertising frequencies.
	if got := DataChannel(0).Freq(); got != 2404 {
		t.Fatalf("data channel 0 at %d MHz, want 2404", got)
	}
	if got := DataChannel(11).Freq(); got != 2428 {
		t.Fatalf("data channel 11 at %d MHz, want 2428", got)
	}
	if got := DataChannel(36).Freq(); got != 2478 {
		t.Fatalf("data channel 36 at %d MHz, want 2478", got)
	}
}
