package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrBusy            = "E_BUSY"

	// Archival rule layer.
	ErrNotFound     = "E_NOT_FOUND"
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrPrecondition = "E_PRECONDITION"
	ErrConflict     = "E_CONFLICT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBusy:            {},
	ErrNotFound:        {},
	ErrBadRequest:      {},
	ErrPrecondition:    {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
