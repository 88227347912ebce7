package reservations

import "errors"

var (
	ErrUnauthenticated  = errors.New("authentication required")
	ErrMissingField     = errors.New("roomId, start and end are required")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrRoomNotFound     = errors.New("room not found")
	ErrInThePast        = errors.New("cannot book in the past")
	ErrInvalidRange     = errors.New("end must be after start")
	ErrDurationTooShort = errors.New("minimum booking is 30 minutes")
	ErrDurationTooLong  = errors.New("maximum booking is 8 hours")
	ErrConflict         = errors.New("room already booked for this time")
	ErrNotFound         = errors.New("booking not found")
	ErrForbidden        = errors.New("not allowed to cancel this booking")
)

// ValidationError is returned for input the engine rejects before taking the
// write lock. It unwraps to one of the sentinels above.
type ValidationError struct {
	msg  string
	kind error
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

func validationError(kind error) error {
	return &ValidationError{msg: kind.Error(), kind: kind}
}
