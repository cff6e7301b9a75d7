package ll

import (
	"errors"
	"time"
)

const (
	// TIFS is the inter-frame space: the gap between the end of one packet
	// and the start of the response on the same channel.
	TIFS = 150 * time.Microsecond

	// MaxDataPayload is the largest data channel payload without the data
	// length extension (Bluetooth 4.1).
	MaxDataPayload = 27

	// MaxAdvPayload is the largest advertising channel payload.
	MaxAdvPayload = 37

	// MaxPDU covers both channel types: 2-byte header plus the larger
	// payload bound.
	MaxPDU = 2 + MaxAdvPayload

	// MaxAdvData is the AD-structure capacity of ADV_IND and SCAN_RSP
	// payloads (payload minus the 6-byte advertiser address).
	MaxAdvData = 31

	// connUnit is the 1.25 ms base unit of window/interval fields.
	connUnit = 1250 * time.Microsecond

	// timeoutUnit is the 10 ms base unit of the supervision timeout field.
	timeoutUnit = 10 * time.Millisecond

	// eventMargin is added to the expected anchor point when arming the
	// connection event timeout, absorbing clock drift between both sides.
	eventMargin = 500 * time.Microsecond

	// establishEvents is how many connection events a half-open link is
	// given before the missed transmit window abandons it.
	establishEvents = 6
)

var (
	// ErrInvalidParameter rejects state-entry or connection parameters
	// outside their allowed ranges. The state machine stays unchanged.
	ErrInvalidParameter = errors.New("ll: invalid parameter")

	// ErrInvalidState is returned when an API call does not apply to the
	// current link-layer state.
	ErrInvalidState = errors.New("ll: operation invalid in current state")

	// ErrRxTimeout is returned by Radio.Receive when the deadline passes
	// without a packet.
	ErrRxTimeout = errors.New("ll: receive timeout")
)

// BluetoothVersion is the VersNr value reported in LL_VERSION_IND
// (Bluetooth 4.2).
const BluetoothVersion uint8 = 8

// CompanyID is the 16-bit company identifier reported in LL_VERSION_IND.
// 0xFFFF is reserved for testing before a real identifier is assigned.
const CompanyID uint16 = 0xFFFF
