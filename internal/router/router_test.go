package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/studyroom-reservation/internal/config"
	"github.com/iliyamo/studyroom-reservation/internal/handler"
	"github.com/iliyamo/studyroom-reservation/internal/middleware"
	"github.com/iliyamo/studyroom-reservation/internal/repository"
	"github.com/iliyamo/studyroom-reservation/internal/reservation"
)

func newServer(t *testing.T, limiter echo.MiddlewareFunc) *echo.Echo {
	t.Helper()
	rooms := repository.NewMemoryRoomDirectory()
	_, err := rooms.CreateRoom(context.Background(), "Reading Room", 2, nil)
	require.NoError(t, err)
	store := repository.NewMemoryConflictStore()
	svc := reservation.NewService(rooms, store, repository.NewMemoryUserStore(), nil, nil)

	reg := prometheus.NewRegistry()
	p := reservation.NewProcessor(svc, reservation.Options{Metrics: reservation.NewMetrics(reg)})
	require.NoError(t, p.Start(1))
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	cache := middleware.NewResponseCache(config.CacheConfig{}, nil, nil)
	e := echo.New()
	RegisterRoutes(e, p, reg)
	RegisterReservations(e, handler.NewReservationHandler(p, svc, time.Second, nil), limiter)
	RegisterRooms(e, handler.NewRoomHandler(rooms, store), cache)
	RegisterAdmin(e, handler.NewAdminHandler(store, rooms, nil, nil), cache)
	return e
}

func serve(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutesAreRegistered(t *testing.T) {
	e := newServer(t, nil)
	body := `{"seatId":1,"username":"alice","startTime":"2025-03-10T09:00:00Z","endTime":"2025-03-10T10:00:00Z"}`

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/api/reserve", body).Code)
	assert.Equal(t, http.StatusBadRequest, serve(e, http.MethodPost, "/api/reserve/sync", body).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/rooms", "").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/rooms/1/seats", "").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/seats/1/reservations", "").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/reservations", "").Code)
	assert.Equal(t, http.StatusNotImplemented, serve(e, http.MethodGet, "/api/reports/summary", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newServer(t, nil)
	body := `{"seatId":2,"username":"bob","startTime":"2025-03-10T09:00:00Z","endTime":"2025-03-10T10:00:00Z"}`
	require.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/api/reserve", body).Code)

	rec := serve(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reservation_requests_total")
}

func TestReserveRoutesUseLimiter(t *testing.T) {
	var hits atomic.Int32
	limiter := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			hits.Add(1)
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded"})
		}
	}
	e := newServer(t, limiter)

	assert.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodPost, "/api/reserve", "{}").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodPost, "/api/reserve/sync", "{}").Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/rooms", "").Code)
	assert.Equal(t, int32(2), hits.Load())
}
