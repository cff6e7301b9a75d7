package ll

// whiteningIV returns the 7-bit whitening LFSR seed for a channel index:
// position 0 fixed to one, positions 1..6 holding the channel index.
func whiteningIV(channelIdx uint8) uint8 {
	return 0x40 | channelIdx
}

// Whiten applies the data whitening sequence of the given channel index to
// buf in place (polynomial x^7 + x^4 + 1, LSb of each byte first).
// Whitening is an XOR stream, so the same call also de-whitens. It covers
// PDU and CRC; radios with hardware whitening skip this.
func Whiten(channelIdx uint8, buf []byte) {
	lfsr := whiteningIV(channelIdx)

	for i := range buf {
		b := buf[i]
		for bit := uint8(1); bit != 0; bit <<= 1 {
			if lfsr&0x01 != 0 {
				lfsr ^= 0x88
				b ^= bit
			}
			lfsr >>= 1
		}
		buf[i] = b
	}
}
