package model

// Seat is a single place in a room.  RoomID identifies the owner only;
// reservation state for a seat lives in the conflict store.
type Seat struct {
	ID     uint64 `json:"id"`     // seat.id
	RoomID uint64 `json:"roomId"` // seat.room_id
}

// SeatView is a derived read model telling whether a seat is taken at a
// given instant.  It is rebuilt from committed reservations and never
// written back.
type SeatView struct {
	Seat
	IsReserved bool   `json:"isReserved"`
	ReservedBy string `json:"reservedBy,omitempty"`
}
