package model

import (
	"strings"
	"time"
)

// Reservation is a booking of one seat for the half-open interval
// [StartTime, EndTime).  ID is zero until the conflict store commits the
// row.  IsConfirmed is an administrative flag and does not affect
// conflict detection.
//
// Fields:
//  ID          – reservation.id, assigned on commit.
//  SeatID      – reserved seat.
//  RoomID      – room owning the seat (not persisted on the row).
//  UserID      – reservation.user_id.
//  Username    – resolved username, carried for logging and responses.
//  StartTime   – inclusive start, whole seconds, UTC.
//  EndTime     – exclusive end, whole seconds, UTC.
//  IsConfirmed – reservation.is_confirmed.
//  CreatedAt   – commit time.
type Reservation struct {
	ID          uint64    `json:"id"`
	SeatID      uint64    `json:"seatId"`
	RoomID      uint64    `json:"roomId"`
	UserID      uint64    `json:"userId"`
	Username    string    `json:"username"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	IsConfirmed bool      `json:"isConfirmed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewReservation builds an unsaved candidate.  Timestamps are normalised
// to whole seconds in UTC before the interval is validated.
func NewReservation(seatID, roomID, userID uint64, username string, start, end time.Time) (*Reservation, error) {
	start, end = TruncateSecond(start), TruncateSecond(end)
	if !start.Before(end) {
		return nil, ErrInvalidInterval
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	return &Reservation{
		SeatID:    seatID,
		RoomID:    roomID,
		UserID:    userID,
		Username:  username,
		StartTime: start,
		EndTime:   end,
	}, nil
}

// Overlaps reports whether r and other claim the same seat time.
func (r Reservation) Overlaps(other Reservation) bool {
	return r.SeatID == other.SeatID && Overlaps(r.StartTime, r.EndTime, other.StartTime, other.EndTime)
}

// Covers reports whether the reservation is active at instant t.
func (r Reservation) Covers(t time.Time) bool {
	return !t.Before(r.StartTime) && t.Before(r.EndTime)
}

// Overlaps implements the half-open interval rule: [s1,e1) and [s2,e2)
// conflict iff s1 < e2 and s2 < e1.  Back-to-back intervals do not.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// TruncateSecond drops sub-second precision and converts t to UTC.
func TruncateSecond(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// ReservationDetail joins a reservation with its user and room for
// administrative listings.
type ReservationDetail struct {
	Reservation
	UserRole Role   `json:"userRole"`
	RoomName string `json:"roomName"`
}
