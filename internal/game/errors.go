package game

import "fmt"

// ErrorKind is the stable error vocabulary surfaced in acks and error
// broadcasts.
type ErrorKind string

const (
	ErrInvalidPayload ErrorKind = "INVALID_PAYLOAD"
	ErrNotSeated      ErrorKind = "NOT_SEATED"
	ErrOutOfTurn      ErrorKind = "OUT_OF_TURN"
	ErrIllegalMove    ErrorKind = "ILLEGAL_MOVE"
	ErrRoomFull       ErrorKind = "ROOM_FULL"
	ErrRoomGone       ErrorKind = "ROOM_GONE"
	ErrRoomLimit      ErrorKind = "ROOM_LIMIT"
	ErrRateLimited    ErrorKind = "RATE_LIMITED"
	ErrBusy           ErrorKind = "BUSY"
	ErrSessionUnknown ErrorKind = "SESSION_UNKNOWN"
	ErrQaydOutOfStep  ErrorKind = "QAYD_OUT_OF_STEP"
	ErrDoubleJeopardy ErrorKind = "DOUBLE_JEOPARDY"
)

// Error is a rule or protocol rejection carrying a stable kind. Rejected
// actions never mutate game state.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a kind-tagged rejection.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from an error, defaulting to
// INVALID_PAYLOAD for foreign errors.
func KindOf(err error) ErrorKind {
	if ge, ok := err.(*Error); ok {
		return ge.Kind
	}
	return ErrInvalidPayload
}
