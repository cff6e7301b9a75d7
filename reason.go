package ble

// DisconnectReason is reported to the upper layer when a connection ends.
type DisconnectReason uint8

const (
	// ReasonNone means no connection existed or no reason applies.
	ReasonNone DisconnectReason = iota

	// ReasonLocalTermination: the local host asked for the disconnect.
	ReasonLocalTermination

	// ReasonRemoteTermination: the peer sent LL_TERMINATE_IND.
	ReasonRemoteTermination

	// ReasonSupervisionTimeout: no successful radio activity within the
	// connection's supervision timeout.
	ReasonSupervisionTimeout

	// ReasonTransmitWindowMissed: the first packet of the connection never
	// arrived inside the transmit window.
	ReasonTransmitWindowMissed

	// ReasonIntegrityFailure: the encryption collaborator reported a MIC
	// check failure. Always fatal.
	ReasonIntegrityFailure

	// ReasonProtocolError: an unrecoverable link-layer protocol violation.
	ReasonProtocolError
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLocalTermination:
		return "local termination"
	case ReasonRemoteTermination:
		return "remote termination"
	case ReasonSupervisionTimeout:
		return "supervision timeout"
	case ReasonTransmitWindowMissed:
		return "transmit window missed"
	case ReasonIntegrityFailure:
		return "integrity failure"
	case ReasonProtocolError:
		return "protocol error"
	default:
		return "unknown"
	}
}
