package ll

// SeqNum is the 1-bit packet sequence number used by the stop-and-wait
// acknowledgement scheme. Increment wraps: 0, 1, 0, 1, ...
type SeqNum uint8

const (
	SeqZero SeqNum = 0
	SeqOne  SeqNum = 1
)

// Next returns the sequence number incremented by one (mod 2).
func (s SeqNum) Next() SeqNum {
	return s ^ 1
}
