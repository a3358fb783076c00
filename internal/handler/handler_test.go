package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/studyroom-reservation/internal/model"
	"github.com/iliyamo/studyroom-reservation/internal/repository"
	"github.com/iliyamo/studyroom-reservation/internal/reservation"
)

type env struct {
	e         *echo.Echo
	rooms     *repository.MemoryRoomDirectory
	store     *repository.MemoryConflictStore
	processor *reservation.Processor
}

// newEnv wires the handlers over in-memory stores with one room of
// three seats (ids 1..3).  When start is false the processor never picks
// up work, which lets tests observe the wait timeout.
func newEnv(t *testing.T, start bool, wait time.Duration) *env {
	t.Helper()
	rooms := repository.NewMemoryRoomDirectory()
	_, err := rooms.CreateRoom(context.Background(), "Quiet Room", 3, nil)
	require.NoError(t, err)
	store := repository.NewMemoryConflictStore()
	svc := reservation.NewService(rooms, store, repository.NewMemoryUserStore(), nil, nil)
	p := reservation.NewProcessor(svc, reservation.Options{})
	if start {
		require.NoError(t, p.Start(2))
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	e := echo.New()
	rh := NewReservationHandler(p, svc, wait, nil)
	room := NewRoomHandler(rooms, store)
	admin := NewAdminHandler(store, rooms, nil, nil)
	e.GET("/healthz", Health(p))
	e.POST("/api/reserve", rh.Reserve)
	e.POST("/api/reserve/sync", rh.ReserveSync)
	e.GET("/api/rooms", room.ListRooms)
	e.GET("/api/rooms/:id", room.GetRoom)
	e.GET("/api/rooms/:id/seats", room.RoomSeats)
	e.GET("/api/rooms/:id/reservations", room.RoomReservations)
	e.GET("/api/seats/:id/reservations", room.SeatReservations)
	e.GET("/api/reservations", admin.ListReservations)
	e.POST("/api/reservations/:id/confirm", admin.Confirm)
	e.PUT("/api/reservations/:id", admin.Reschedule)
	e.DELETE("/api/reservations/:id", admin.Delete)
	e.POST("/api/import/rooms", admin.ImportRooms)
	e.POST("/api/import/equipment", admin.ImportEquipment)
	e.GET("/api/reports/summary", admin.Summary)
	return &env{e: e, rooms: rooms, store: store, processor: p}
}

func (v *env) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		if strings.HasPrefix(strings.TrimSpace(body), "{") {
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		} else {
			req.Header.Set(echo.HeaderContentType, "text/csv")
		}
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func reserveBody(seat int, user, start, end string) string {
	return `{"seatId":` + itoa(seat) + `,"username":"` + user +
		`","startTime":"` + start + `","endTime":"` + end + `"}`
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestReserveCommitsThroughQueue(t *testing.T) {
	v := newEnv(t, true, 2*time.Second)

	rec := v.do(http.MethodPost, "/api/reserve",
		reserveBody(1, "alice", "2025-03-10T09:00:00Z", "2025-03-10T10:00:00Z"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[model.Reservation](t, rec)
	assert.NotZero(t, res.ID)
	assert.Equal(t, uint64(1), res.RoomID)
	assert.Equal(t, "alice", res.Username)

	rec = v.do(http.MethodPost, "/api/reserve",
		reserveBody(1, "bob", "2025-03-10T09:30:00Z", "2025-03-10T10:30:00Z"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, model.KindSeatAlreadyReserved, body["kind"])

	// touching interval is fine
	rec = v.do(http.MethodPost, "/api/reserve/sync",
		reserveBody(1, "bob", "2025-03-10T10:00:00Z", "2025-03-10T11:00:00Z"))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestReserveValidation(t *testing.T) {
	v := newEnv(t, true, time.Second)
	cases := []struct {
		name string
		body string
		kind string
	}{
		{"malformed json", `{"seatId":`, KindMissingField},
		{"missing seat", `{"username":"a","startTime":"2025-03-10T09:00:00Z","endTime":"2025-03-10T10:00:00Z"}`, KindMissingField},
		{"negative seat", reserveBody(-4, "a", "2025-03-10T09:00:00Z", "2025-03-10T10:00:00Z"), KindMissingField},
		{"missing end", `{"seatId":1,"username":"a","startTime":"2025-03-10T09:00:00Z"}`, KindMissingField},
		{"blank username", reserveBody(1, "  ", "2025-03-10T09:00:00Z", "2025-03-10T10:00:00Z"), model.KindInvalidUsername},
		{"empty interval", reserveBody(1, "a", "2025-03-10T09:00:00Z", "2025-03-10T09:00:00Z"), model.KindInvalidInterval},
		{"unknown seat", reserveBody(99, "a", "2025-03-10T09:00:00Z", "2025-03-10T10:00:00Z"), model.KindRoomNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := v.do(http.MethodPost, "/api/reserve", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.kind, decode[map[string]string](t, rec)["kind"])
		})
	}
}

func TestReserveWaitTimeout(t *testing.T) {
	v := newEnv(t, false, 30*time.Millisecond)

	rec := v.do(http.MethodPost, "/api/reserve",
		reserveBody(1, "alice", "2025-03-10T09:00:00Z", "2025-03-10T10:00:00Z"))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, model.KindTimeout, body["kind"])
	assert.NotEmpty(t, body["requestId"])
	assert.Equal(t, 1, v.processor.QueueDepth())
}

func TestReserveAfterShutdown(t *testing.T) {
	v := newEnv(t, true, time.Second)
	require.NoError(t, v.processor.Shutdown(context.Background()))

	rec := v.do(http.MethodPost, "/api/reserve",
		reserveBody(1, "alice", "2025-03-10T09:00:00Z", "2025-03-10T10:00:00Z"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, model.KindShuttingDown, decode[map[string]string](t, rec)["kind"])
}

func TestRoomEndpoints(t *testing.T) {
	v := newEnv(t, true, time.Second)
	rec := v.do(http.MethodPost, "/api/reserve/sync",
		reserveBody(2, "carol", "2025-03-10T09:00:00Z", "2025-03-10T10:00:00Z"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = v.do(http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rooms := decode[[]model.Room](t, rec)
	require.Len(t, rooms, 1)
	assert.Len(t, rooms[0].Seats, 3)

	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodGet, "/api/rooms/abc", "").Code)
	rec = v.do(http.MethodGet, "/api/rooms/7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.KindRoomNotFound, decode[map[string]string](t, rec)["kind"])

	rec = v.do(http.MethodGet, "/api/rooms/1/seats?at=2025-03-10T09:30:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]model.SeatView](t, rec)
	require.Len(t, views, 3)
	for _, sv := range views {
		if sv.ID == 2 {
			assert.True(t, sv.IsReserved)
			assert.Equal(t, "carol", sv.ReservedBy)
		} else {
			assert.False(t, sv.IsReserved)
		}
	}

	// end is exclusive
	rec = v.do(http.MethodGet, "/api/rooms/1/seats?at=2025-03-10T10:00:00Z", "")
	for _, sv := range decode[[]model.SeatView](t, rec) {
		assert.False(t, sv.IsReserved)
	}

	assert.Equal(t, http.StatusBadRequest, v.do(http.MethodGet, "/api/rooms/1/seats?at=noon", "").Code)

	rec = v.do(http.MethodGet, "/api/rooms/1/reservations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Reservation](t, rec), 1)

	assert.Equal(t, http.StatusNotFound, v.do(http.MethodGet, "/api/rooms/7/seats", "").Code)

	rec = v.do(http.MethodGet, "/api/seats/3/reservations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestAdminReservationLifecycle(t *testing.T) {
	v := newEnv(t, true, time.Second)
	first := decode[model.Reservation](t, v.do(http.MethodPost, "/api/reserve/sync",
		reserveBody(1, "alice", "2025-03-10T09:00:00Z", "2025-03-10T10:00:00Z")))
	second := decode[model.Reservation](t, v.do(http.MethodPost, "/api/reserve/sync",
		reserveBody(1, "bob", "2025-03-10T11:00:00Z", "2025-03-10T12:00:00Z")))

	rec := v.do(http.MethodPost, "/api/reservations/"+itoa(int(first.ID))+"/confirm", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = v.do(http.MethodPost, "/api/reservations/999/confirm", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.KindReservationNotFound, decode[map[string]string](t, rec)["kind"])

	// moving bob onto alice's slot conflicts
	rec = v.do(http.MethodPut, "/api/reservations/"+itoa(int(second.ID)),
		`{"startTime":"2025-03-10T09:30:00Z","endTime":"2025-03-10T10:30:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.KindSeatAlreadyReserved, decode[map[string]string](t, rec)["kind"])

	rec = v.do(http.MethodPut, "/api/reservations/"+itoa(int(second.ID)),
		`{"startTime":"2025-03-10T10:00:00Z","endTime":"2025-03-10T10:45:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[model.Reservation](t, rec)
	assert.Equal(t, time.Date(2025, 3, 10, 10, 45, 0, 0, time.UTC), moved.EndTime.UTC())

	rec = v.do(http.MethodPut, "/api/reservations/"+itoa(int(second.ID)),
		`{"startTime":"2025-03-10T10:00:00Z","endTime":"2025-03-10T09:00:00Z"}`)
	assert.Equal(t, model.KindInvalidInterval, decode[map[string]string](t, rec)["kind"])

	rec = v.do(http.MethodGet, "/api/reservations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]model.ReservationDetail](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest start first")

	rec = v.do(http.MethodGet, "/api/reservations?start=2025-03-10T08:00:00Z&end=2025-03-10T09:30:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	inRange := decode[[]model.ReservationDetail](t, rec)
	require.Len(t, inRange, 1)
	assert.True(t, inRange[0].IsConfirmed)

	assert.Equal(t, http.StatusBadRequest,
		v.do(http.MethodGet, "/api/reservations?start=2025-03-10T08:00:00Z", "").Code)

	rec = v.do(http.MethodDelete, "/api/reservations/"+itoa(int(first.ID)), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = v.do(http.MethodDelete, "/api/reservations/"+itoa(int(first.ID)), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// freed slot can be taken again
	rec = v.do(http.MethodPost, "/api/reserve",
		reserveBody(1, "dave", "2025-03-10T09:00:00Z", "2025-03-10T09:30:00Z"))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestImportEndpoints(t *testing.T) {
	v := newEnv(t, true, time.Second)

	rec := v.do(http.MethodPost, "/api/import/rooms", "name,capacity,floor\nLab,2,1\nAnnex,4\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["imported"])

	rooms, err := v.rooms.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Len(t, rooms, 3)

	rec = v.do(http.MethodPost, "/api/import/rooms", "Broken,zero\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_CSV", decode[map[string]string](t, rec)["kind"])

	rec = v.do(http.MethodPost, "/api/import/rooms", "Lab,3\n")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = v.do(http.MethodPost, "/api/import/equipment", "name,room_id\nProjector,1\nWhiteboard\nProjector\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decode[map[string]any](t, rec)["imported"])
}

func TestSummaryWithoutReporter(t *testing.T) {
	v := newEnv(t, true, time.Second)
	assert.Equal(t, http.StatusNotImplemented, v.do(http.MethodGet, "/api/reports/summary", "").Code)
}

type stubReporter struct {
	summary *model.Summary
	err     error
}

func (s stubReporter) Summary(context.Context) (*model.Summary, error) { return s.summary, s.err }

func TestSummary(t *testing.T) {
	store := repository.NewMemoryConflictStore()
	rooms := repository.NewMemoryRoomDirectory()
	e := echo.New()

	h := NewAdminHandler(store, rooms, stubReporter{summary: &model.Summary{TotalReservations: 4, TotalRooms: 1}}, nil)
	e.GET("/ok", h.Summary)
	failing := NewAdminHandler(store, rooms, stubReporter{err: errors.New("db gone")}, nil)
	e.GET("/fail", failing.Summary)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decode[model.Summary](t, rec).TotalReservations)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, model.KindUnexpectedFault, body["kind"])
	assert.NotContains(t, body["error"], "db gone")
}

func TestHealth(t *testing.T) {
	v := newEnv(t, false, time.Second)
	rec := v.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["queueDepth"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(model.KindSeatAlreadyReserved))
	assert.Equal(t, http.StatusNotFound, statusFor(model.KindReservationNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(model.KindOverloaded))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(model.KindTimeout))
	assert.Equal(t, http.StatusInternalServerError, statusFor(model.KindUnexpectedFault))
}
