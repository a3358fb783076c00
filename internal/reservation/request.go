package reservation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Request is the input envelope for one reservation attempt.  RoomID may
// be zero, in which case the room is looked up from SeatID.  ID is
// assigned on submission when left empty and is used to correlate logs.
type Request struct {
	ID        uuid.UUID
	RoomID    uint64
	SeatID    uint64
	Username  string
	StartTime time.Time
	EndTime   time.Time
}

func (r Request) String() string {
	return fmt.Sprintf("request %s room=%d seat=%d user=%q [%s, %s)",
		r.ID, r.RoomID, r.SeatID, r.Username,
		r.StartTime.UTC().Format(time.RFC3339), r.EndTime.UTC().Format(time.RFC3339))
}
