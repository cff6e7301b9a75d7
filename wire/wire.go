// Package wire implements the allocation-free cursor codec every wire
// structure in the stack is encoded and decoded through.
//
// A Reader wraps a received byte slice and hands out typed fields and
// zero-copy subslices; a Writer fills a caller-owned buffer. Neither ever
// allocates, and every access is bounds-checked up front: reads past the
// end fail with ErrTruncated, writes past the end with ErrBufferFull, and
// the buffer is left unchanged on failure.
//
// All multi-byte integers are little-endian, matching the air interface.
package wire

import "errors"

var (
	// ErrTruncated is returned when a read would pass the end of the buffer.
	ErrTruncated = errors.New("wire: truncated data")

	// ErrBufferFull is returned when a write would pass the end of the buffer.
	ErrBufferFull = errors.New("wire: buffer full")
)

// Reader decodes typed fields from a byte slice.
//
// Subslices returned by ReadSlice and Rest alias the underlying buffer and
// are only valid while that buffer is; they must not be retained past the
// processing of the packet they came from.
type Reader struct {
	buf []byte
}

// NewReader returns a Reader over b. The zero Reader reads from an empty
// buffer.
func NewReader(b []byte) Reader {
	return Reader{buf: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf)
}

// Empty reports whether all bytes have been consumed.
func (r *Reader) Empty() bool {
	return len(r.buf) == 0
}

// Skip discards n bytes without looking at them.
func (r *Reader) Skip(n int) error {
	if len(r.buf) < n {
		return ErrTruncated
	}
	r.buf = r.buf[n:]
	return nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if len(r.buf) < 1 {
		return 0, ErrTruncated
	}
	v := r.buf[0]
	r.buf = r.buf[1:]
	return v, nil
}

// ReadUint16 reads a little-endian 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	if len(r.buf) < 2 {
		return 0, ErrTruncated
	}
	v := uint16(r.buf[0]) | uint16(r.buf[1])<<8
	r.buf = r.buf[2:]
	return v, nil
}

// ReadUint24 reads a little-endian 24-bit integer into the low bits of a
// uint32. Used for CRC initialization values.
func (r *Reader) ReadUint24() (uint32, error) {
	if len(r.buf) < 3 {
		return 0, ErrTruncated
	}
	v := uint32(r.buf[0]) | uint32(r.buf[1])<<8 | uint32(r.buf[2])<<16
	r.buf = r.buf[3:]
	return v, nil
}

// ReadUint32 reads a little-endian 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	if len(r.buf) < 4 {
		return 0, ErrTruncated
	}
	v := uint32(r.buf[0]) | uint32(r.buf[1])<<8 | uint32(r.buf[2])<<16 | uint32(r.buf[3])<<24
	r.buf = r.buf[4:]
	return v, nil
}

// ReadUint64 reads a little-endian 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	if len(r.buf) < 8 {
		return 0, ErrTruncated
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(r.buf[i]) << (8 * uint(i))
	}
	r.buf = r.buf[8:]
	return v, nil
}

// ReadSlice returns the next n bytes as a view into the underlying buffer.
// No copy is made.
func (r *Reader) ReadSlice(n int) ([]byte, error) {
	if n < 0 || len(r.buf) < n {
		return nil, ErrTruncated
	}
	s := r.buf[:n:n]
	r.buf = r.buf[n:]
	return s, nil
}

// ReadCopy fills dst from the buffer. Unlike ReadSlice the result does not
// alias the input.
func (r *Reader) ReadCopy(dst []byte) error {
	if len(r.buf) < len(dst) {
		return ErrTruncated
	}
	copy(dst, r.buf)
	r.buf = r.buf[len(dst):]
	return nil
}

// Rest returns all unread bytes as a view and leaves the reader empty.
func (r *Reader) Rest() []byte {
	s := r.buf
	r.buf = nil
	return s
}

// Writer encodes typed fields into a caller-owned byte slice.
type Writer struct {
	buf []byte
	pos int
}

// NewWriter returns a Writer filling b from the start.
func NewWriter(b []byte) Writer {
	return Writer{buf: b}
}

// Space returns the number of bytes that can still be written.
func (w *Writer) Space() int {
	return len(w.buf) - w.pos
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.pos
}

// Bytes returns the written prefix of the underlying buffer.
func (w *Writer) Bytes() []byte {
	return w.buf[:w.pos]
}

// Skip advances the cursor without writing. The skipped bytes keep whatever
// content the buffer had; the caller is expected to fill them via WriteAt.
func (w *Writer) Skip(n int) error {
	if w.Space() < n {
		return ErrBufferFull
	}
	w.pos += n
	return nil
}

// WriteAt overwrites already-reserved bytes at offset off. Used to patch a
// length field after the payload size is known.
func (w *Writer) WriteAt(off int, b []byte) error {
	if off < 0 || off+len(b) > w.pos {
		return ErrBufferFull
	}
	copy(w.buf[off:], b)
	return nil
}

// WriteUint8 writes a single byte.
func (w *Writer) WriteUint8(v uint8) error {
	if w.Space() < 1 {
		return ErrBufferFull
	}
	w.buf[w.pos] = v
	w.pos++
	return nil
}

// WriteUint16 writes a little-endian 16-bit integer.
func (w *Writer) WriteUint16(v uint16) error {
	if w.Space() < 2 {
		return ErrBufferFull
	}
	w.buf[w.pos] = byte(v)
	w.buf[w.pos+1] = byte(v >> 8)
	w.pos += 2
	return nil
}

// WriteUint24 writes the low 24 bits of v, little-endian.
func (w *Writer) WriteUint24(v uint32) error {
	if w.Space() < 3 {
		return ErrBufferFull
	}
	w.buf[w.pos] = byte(v)
	w.buf[w.pos+1] = byte(v >> 8)
	w.buf[w.pos+2] = byte(v >> 16)
	w.pos += 3
	return nil
}

// WriteUint32 writes a little-endian 32-bit integer.
func (w *Writer) WriteUint32(v uint32) error {
	if w.Space() < 4 {
		return ErrBufferFull
	}
	for i := 0; i < 4; i++ {
		w.buf[w.pos+i] = byte(v >> (8 * uint(i)))
	}
	w.pos += 4
	return nil
}

// WriteUint64 writes a little-endian 64-bit integer.
func (w *Writer) WriteUint64(v uint64) error {
	if w.Space() < 8 {
		return ErrBufferFull
	}
	for i := 0; i < 8; i++ {
		w.buf[w.pos+i] = byte(v >> (8 * uint(i)))
	}
	w.pos += 8
	return nil
}

// WriteSlice appends all of b. On ErrBufferFull nothing is written.
func (w *Writer) WriteSlice(b []byte) error {
	if w.Space() < len(b) {
		return ErrBufferFull
	}
	copy(w.buf[w.pos:], b)
	w.pos += len(b)
	return nil
}
