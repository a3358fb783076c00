package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// RoomCatalog is the read side of the room directory.
type RoomCatalog interface {
	ListRooms(ctx context.Context) ([]model.Room, error)
	GetRoom(ctx context.Context, roomID uint64) (*model.Room, error)
}

// ReservationReader lists committed reservations per seat and per room.
type ReservationReader interface {
	ReservationsForSeat(ctx context.Context, seatID uint64) ([]model.Reservation, error)
	ListForRoom(ctx context.Context, roomID uint64) ([]model.Reservation, error)
}

// RoomHandler serves the public room catalogue and seat availability.
type RoomHandler struct {
	rooms        RoomCatalog
	reservations ReservationReader
	now          func() time.Time
}

// NewRoomHandler constructs a RoomHandler.  Both dependencies must be
// non-nil.
func NewRoomHandler(rooms RoomCatalog, reservations ReservationReader) *RoomHandler {
	if rooms == nil || reservations == nil {
		panic("nil dependency passed to NewRoomHandler")
	}
	return &RoomHandler{rooms: rooms, reservations: reservations, now: time.Now}
}

// parseID reads a positive uint64 path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// ListRooms handles GET /api/rooms.
func (h *RoomHandler) ListRooms(c echo.Context) error {
	rooms, err := h.rooms.ListRooms(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	return c.JSON(http.StatusOK, rooms)
}

// GetRoom handles GET /api/rooms/:id.
func (h *RoomHandler) GetRoom(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}
	room, err := h.rooms.GetRoom(c.Request().Context(), id)
	if err != nil {
		return lookupError(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

// RoomReservations handles GET /api/rooms/:id/reservations.  An unknown
// room is a 404 rather than an empty list.
func (h *RoomHandler) RoomReservations(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}
	ctx := c.Request().Context()
	if _, err := h.rooms.GetRoom(ctx, id); err != nil {
		return lookupError(c, err)
	}
	rows, err := h.reservations.ListForRoom(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(rows))
}

// SeatReservations handles GET /api/seats/:id/reservations.
func (h *RoomHandler) SeatReservations(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	rows, err := h.reservations.ReservationsForSeat(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(rows))
}

// RoomSeats handles GET /api/rooms/:id/seats?at=.  Each seat is reported
// as reserved when a committed reservation covers the instant at, which
// defaults to now.  The view is derived on every call.
func (h *RoomHandler) RoomSeats(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}
	at := h.now()
	if raw := c.QueryParam("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "at must be an RFC3339 timestamp"})
		}
		at = t
	}
	ctx := c.Request().Context()
	room, err := h.rooms.GetRoom(ctx, id)
	if err != nil {
		return lookupError(c, err)
	}
	rows, err := h.reservations.ListForRoom(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, seatViews(room.Seats, rows, at))
}

// lookupError answers 404 for a missing room on the read routes; the
// reserve routes keep reporting it as a bad request.
func lookupError(c echo.Context, err error) error {
	if kind := model.KindOf(err); kind == model.KindRoomNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error(), "kind": kind})
	}
	return writeError(c, err)
}

func seatViews(seats []model.Seat, rows []model.Reservation, at time.Time) []model.SeatView {
	active := make(map[uint64]string, len(rows))
	for _, r := range rows {
		if r.Covers(at) {
			active[r.SeatID] = r.Username
		}
	}
	views := make([]model.SeatView, 0, len(seats))
	for _, s := range seats {
		by, taken := active[s.ID]
		views = append(views, model.SeatView{Seat: s, IsReserved: taken, ReservedBy: by})
	}
	return views
}

func nonNil(rows []model.Reservation) []model.Reservation {
	if rows == nil {
		return []model.Reservation{}
	}
	return rows
}
