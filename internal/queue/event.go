// Package queue carries reservation events over RabbitMQ: a publisher
// used by the admission pipeline and a consumer that keeps an audit log.
package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// ReservationCreatedQueue is the durable queue receiving
// ReservationCreatedEvent messages.
const ReservationCreatedQueue = "reservation.created"

// ReservationCreatedEvent is published after a reservation commits.  It
// carries enough to audit the booking without querying the database.
// Times are RFC 3339 in UTC.
type ReservationCreatedEvent struct {
	ReservationID uint64 `json:"reservation_id"`
	SeatID        uint64 `json:"seat_id"`
	RoomID        uint64 `json:"room_id"`
	UserID        uint64 `json:"user_id"`
	Username      string `json:"username"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	CreatedAt     string `json:"created_at"`
}

// NewReservationCreatedEvent describes r.
func NewReservationCreatedEvent(r model.Reservation) ReservationCreatedEvent {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return ReservationCreatedEvent{
		ReservationID: r.ID,
		SeatID:        r.SeatID,
		RoomID:        r.RoomID,
		UserID:        r.UserID,
		Username:      r.Username,
		StartTime:     r.StartTime.UTC().Format(time.RFC3339),
		EndTime:       r.EndTime.UTC().Format(time.RFC3339),
		CreatedAt:     created.UTC().Format(time.RFC3339),
	}
}

func (e ReservationCreatedEvent) validate() error {
	if e.ReservationID == 0 || e.SeatID == 0 {
		return fmt.Errorf("event without reservation or seat id")
	}
	return nil
}

// line renders the single-line audit entry for e.
func (e ReservationCreatedEvent) line() string {
	return fmt.Sprintf("[%s] Reservation created | reservation_id=%d | room_id=%d | seat_id=%d | user_id=%d | username=%q | from=%s | to=%s\n",
		e.CreatedAt, e.ReservationID, e.RoomID, e.SeatID, e.UserID, e.Username, e.StartTime, e.EndTime)
}
