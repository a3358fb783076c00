package model

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the reservation core.  Validation and
// conflict outcomes are expected results of normal traffic and are
// compared with errors.Is; only ErrUnexpectedFault signals that
// something below the core went wrong.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrSeatNotFound        = errors.New("seat not found")
	ErrInvalidRoom         = errors.New("invalid room")
	ErrInvalidInterval     = errors.New("start time must be before end time")
	ErrInvalidUsername     = errors.New("username cannot be empty")
	ErrSeatAlreadyReserved = errors.New("seat is already reserved during this time interval")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrOverloaded          = errors.New("reservation queue is full")
	ErrTimeout             = errors.New("reservation request timed out")
	ErrShuttingDown        = errors.New("reservation processor is shutting down")
	ErrUnexpectedFault     = errors.New("unexpected fault")
)

// fault carries a lower-layer error while still matching ErrUnexpectedFault.
type fault struct {
	cause error
}

func (f *fault) Error() string {
	return fmt.Sprintf("%s: %v", ErrUnexpectedFault.Error(), f.cause)
}

func (f *fault) Unwrap() error { return f.cause }

func (f *fault) Is(target error) bool { return target == ErrUnexpectedFault }

// Fault wraps err as an unexpected fault.  Errors that already belong to
// the domain taxonomy are returned unchanged so that a conflict surfaced
// through a storage layer keeps its kind.
func Fault(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnexpectedFault {
		return err
	}
	var f *fault
	if errors.As(err, &f) {
		return err
	}
	return &fault{cause: err}
}

// Error kinds exposed to callers such as the HTTP layer.
const (
	KindRoomNotFound        = "ROOM_NOT_FOUND"
	KindSeatNotFound        = "SEAT_NOT_FOUND"
	KindInvalidRoom         = "INVALID_ROOM"
	KindInvalidInterval     = "INVALID_INTERVAL"
	KindInvalidUsername     = "INVALID_USERNAME"
	KindSeatAlreadyReserved = "SEAT_ALREADY_RESERVED"
	KindReservationNotFound = "RESERVATION_NOT_FOUND"
	KindOverloaded          = "OVERLOADED"
	KindTimeout             = "TIMEOUT"
	KindShuttingDown        = "SHUTTING_DOWN"
	KindUnexpectedFault     = "UNEXPECTED_FAULT"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrRoomNotFound, KindRoomNotFound},
	{ErrSeatNotFound, KindSeatNotFound},
	{ErrInvalidRoom, KindInvalidRoom},
	{ErrInvalidInterval, KindInvalidInterval},
	{ErrInvalidUsername, KindInvalidUsername},
	{ErrSeatAlreadyReserved, KindSeatAlreadyReserved},
	{ErrReservationNotFound, KindReservationNotFound},
	{ErrOverloaded, KindOverloaded},
	{ErrTimeout, KindTimeout},
	{ErrShuttingDown, KindShuttingDown},
}

// KindOf maps err onto its stable error code.  Any error outside the
// taxonomy, including nil-free wrapped storage errors, is reported as
// an unexpected fault.  KindOf(nil) returns the empty string.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnexpectedFault
}
