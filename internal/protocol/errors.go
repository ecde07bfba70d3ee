package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest        = "E_BAD_REQUEST"
	ErrUnknownCommand    = "E_UNKNOWN_COMMAND"
	ErrInsufficientFunds = "E_INSUFFICIENT_FUNDS"
	ErrInvalidTarget     = "E_INVALID_TARGET"
	ErrLimit             = "E_LIMIT"
	ErrGoalNotReached    = "E_GOAL_NOT_REACHED"
	ErrNoPhase           = "E_NO_PHASE"
	ErrInternal          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrBadRequest:        {},
	ErrUnknownCommand:    {},
	ErrInsufficientFunds: {},
	ErrInvalidTarget:     {},
	ErrLimit:             {},
	ErrGoalNotReached:    {},
	ErrNoPhase:           {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
