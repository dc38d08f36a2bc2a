package realtime

import "errors"

var (
	// ErrAuthentication is fatal to a connection attempt.
	ErrAuthentication = errors.New("authentication failed")

	ErrInvalidRoom    = errors.New("invalid room")
	ErrInvalidMessage = errors.New("invalid message")
	ErrNotMember      = errors.New("not a member of room")

	// ErrDuplicateConnection means a connection id was registered twice.
	ErrDuplicateConnection = errors.New("duplicate connection")

	ErrGatewayClosed = errors.New("gateway closed")
)

// errorCode maps client-facing errors to the code carried by error events.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRoom):
		return "invalid_room"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrAuthentication):
		return "unauthorized"
	default:
		return "internal"
	}
}
