// Package reservation implements the admission pipeline for seat
// reservations: a FIFO queue drained by a fixed pool of workers, each of
// which validates a request, resolves its room and user and commits the
// candidate through the conflict store's atomic insert.
package reservation

import (
	"context"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// RoomDirectory resolves rooms and the room owning a seat.  Both lookups
// return model.ErrRoomNotFound when nothing matches.
type RoomDirectory interface {
	GetRoom(ctx context.Context, roomID uint64) (*model.Room, error)
	FindRoomOwningSeat(ctx context.Context, seatID uint64) (*model.Room, error)
}

// ConflictStore is the single authority on committed reservations.
// InsertIfNoConflict must check for an overlapping reservation on the
// candidate's seat and insert the candidate as one indivisible step with
// respect to every other caller; it returns model.ErrSeatAlreadyReserved
// when the interval is taken.  ReservationsForSeat need not be
// linearizable with concurrent inserts.
type ConflictStore interface {
	InsertIfNoConflict(ctx context.Context, candidate *model.Reservation) (*model.Reservation, error)
	ReservationsForSeat(ctx context.Context, seatID uint64) ([]model.Reservation, error)
}

// UserResolver maps a username onto a user id, creating the user on
// first sight.
type UserResolver interface {
	ResolveOrCreateUser(ctx context.Context, username string) (uint64, error)
}

// EventPublisher is notified after a reservation has been committed.
type EventPublisher interface {
	PublishReservationCreated(ctx context.Context, r model.Reservation) error
}
