package ll

import (
	"github.com/pkg/errors"

	"github.com/corvuslink/ble/wire"
)

// AD structure types used in advertising and scan response data.
const (
	ADFlags            = 0x01
	ADIncompleteUUID16 = 0x02
	ADCompleteUUID16   = 0x03
	ADShortenedName    = 0x08
	ADCompleteName     = 0x09
	ADManufacturerData = 0xFF
)

// Advertising flag bits.
const (
	FlagLimitedDiscoverable = 0x01
	FlagGeneralDiscoverable = 0x02
	FlagBREDRNotSupported   = 0x04
)

// AdvData builds advertising or scan response data out of AD structures,
// bounded by the 31 byte payload budget.
type AdvData struct {
	buf [MaxAdvData]byte
	n   int
}

// Bytes returns the encoded AD structures.
func (a *AdvData) Bytes() []byte {
	return a.buf[:a.n]
}

// Len returns the encoded length in bytes.
func (a *AdvData) Len() int {
	return a.n
}

func (a *AdvData) append(typ uint8, data ...[]byte) error {
	n := 0
	for _, d := range data {
		n += len(d)
	}
	if n > 0xFF-1 || a.n+2+n > len(a.buf) {
		return errors.Wrap(ErrInvalidParameter, "advertising data overflow")
	}
	a.buf[a.n] = uint8(1 + n)
	a.buf[a.n+1] = typ
	a.n += 2
	for _, d := range data {
		a.n += copy(a.buf[a.n:], d)
	}
	return nil
}

// AppendFlags adds a Flags structure. Connectable undirected advertising
// data must carry one.
func (a *AdvData) AppendFlags(flags uint8) error {
	return a.append(ADFlags, []byte{flags})
}

// AppendCompleteLocalName adds the device name.
func (a *AdvData) AppendCompleteLocalName(name string) error {
	return a.append(ADCompleteName, []byte(name))
}

// AppendShortenedLocalName adds a truncated device name.
func (a *AdvData) AppendShortenedLocalName(name string) error {
	return a.append(ADShortenedName, []byte(name))
}

// AppendServiceUUID16 adds a complete list of 16-bit service UUIDs.
func (a *AdvData) AppendServiceUUID16(uuids ...uint16) error {
	var b [2 * 14]byte
	if len(uuids) > len(b)/2 {
		return errors.Wrap(ErrInvalidParameter, "too many UUIDs")
	}
	for i, u := range uuids {
		b[2*i] = byte(u)
		b[2*i+1] = byte(u >> 8)
	}
	return a.append(ADCompleteUUID16, b[:2*len(uuids)])
}

// AppendManufacturerData adds a manufacturer specific data structure with
// the given company identifier.
func (a *AdvData) AppendManufacturerData(company uint16, data []byte) error {
	return a.append(ADManufacturerData, []byte{byte(company), byte(company >> 8)}, data)
}

// ADStructure is one decoded element of advertising data. Data aliases
// the input buffer.
type ADStructure struct {
	Type uint8
	Data []byte
}

// NextADStructure decodes the structure at the reader's position.
// Zero-length structures terminate the data early by convention; they are
// returned as-is with Type 0.
func NextADStructure(r *wire.Reader) (ADStructure, error) {
	var s ADStructure
	n, err := r.ReadUint8()
	if err != nil {
		return s, err
	}
	if n == 0 {
		return s, nil
	}
	if s.Type, err = r.ReadUint8(); err != nil {
		return s, err
	}
	s.Data, err = r.ReadSlice(int(n) - 1)
	return s, err
}

// LocalName extracts the device name from raw advertising data, if any,
// preferring the complete over the shortened form.
func LocalName(data []byte) (string, bool) {
	var short string
	var haveShort bool

	r := wire.NewReader(data)
	for !r.Empty() {
		s, err := NextADStructure(&r)
		if err != nil || (s.Type == 0 && len(s.Data) == 0) {
			break
		}
		switch s.Type {
		case ADCompleteName:
			return string(s.Data), true
		case ADShortenedName:
			short, haveShort = string(s.Data), true
		}
	}
	return short, haveShort
}
