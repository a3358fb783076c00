package model

import "strings"

// Room is a study room holding a fixed set of seats.  The seats are owned
// by the room; equipment entries are shared catalogue references.
//
// Fields:
//  ID        – positive identifier, immutable once assigned.
//  Name      – non-empty display name.
//  Capacity  – number of seats created with the room.
//  Floor     – optional floor number.
//  Seats     – owned seats, ordered by id.
//  Equipment – equipment available in the room (not owned).
type Room struct {
	ID        uint64      `json:"id"`
	Name      string      `json:"name"`
	Capacity  int         `json:"capacity"`
	Floor     *int        `json:"floor,omitempty"`
	Seats     []Seat      `json:"seats"`
	Equipment []Equipment `json:"equipment,omitempty"`
}

// NewRoom builds a room with exactly capacity seats numbered 1..capacity.
// The id may be zero for rooms that have not been persisted yet.
func NewRoom(id uint64, name string, capacity int, floor *int) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || capacity <= 0 {
		return nil, ErrInvalidRoom
	}
	r := &Room{
		ID:       id,
		Name:     name,
		Capacity: capacity,
		Floor:    floor,
		Seats:    make([]Seat, 0, capacity),
	}
	for i := 1; i <= capacity; i++ {
		r.Seats = append(r.Seats, Seat{ID: uint64(i), RoomID: id})
	}
	return r, nil
}

// Seat returns the seat with the given id.
func (r *Room) Seat(id uint64) (Seat, bool) {
	for _, s := range r.Seats {
		if s.ID == id {
			return s, true
		}
	}
	return Seat{}, false
}

// HasSeat reports whether the room owns a seat with the given id.
func (r *Room) HasSeat(id uint64) bool {
	_, ok := r.Seat(id)
	return ok
}
