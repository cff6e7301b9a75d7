package ll

// CRCPoly is the BLE CRC-24 polynomial
// x^24 + x^10 + x^9 + x^6 + x^4 + x^3 + x + 1, with bit k set for term x^k
// (including the implicit x^24).
const CRCPoly uint32 = 0x0100065B

// CRC24 computes the link-layer CRC over a PDU (header and payload) with
// the given 24-bit preset: CRCPreset for advertising channels, the
// connection's CRCInit for data channels. The result occupies the low 24
// bits. Note that on the air the CRC, unlike everything else, is sent MSb
// first.
func CRC24(data []byte, preset uint32) uint32 {
	const poly = CRCPoly & 0x00FFFFFF
	crc := preset

	for _, b := range data {
		crc ^= uint32(b) << 16
		for i := 0; i < 8; i++ {
			msb := crc&0x00800000 != 0
			crc <<= 1
			if msb {
				crc ^= poly
			}
		}
	}

	return crc & 0x00FFFFFF
}
