package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Subscription handling.
	ErrBadSubscribe    = "E_BAD_SUBSCRIBE"
	ErrVersionMismatch = "E_VERSION_MISMATCH"
	ErrUnknownCond     = "E_UNKNOWN_CONDITION"

	// Server state.
	ErrBusy     = "E_BUSY"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadSubscribe:    {},
	ErrVersionMismatch: {},
	ErrUnknownCond:     {},
	ErrBusy:            {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
