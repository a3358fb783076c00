package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studyroom-reservation/internal/handler"
	"github.com/iliyamo/studyroom-reservation/internal/middleware"
)

// RegisterReservations registers the reservation entry points under /api.
// limiter wraps both routes; pass middleware.NewTokenBucket's result, which
// is a pass-through when rate limiting is off.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, limiter echo.MiddlewareFunc) {
	if limiter == nil {
		limiter = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	g := e.Group("/api/reserve", limiter)
	g.POST("", h.Reserve)
	g.POST("/sync", h.ReserveSync)
}

// RegisterRooms registers the public catalogue.  Room listings are served
// through cache; seat views and reservation lists always hit the store
// since they change with every commit.
func RegisterRooms(e *echo.Echo, h *handler.RoomHandler, cache *middleware.ResponseCache) {
	cached := cache.Middleware()
	e.GET("/api/rooms", h.ListRooms, cached)
	e.GET("/api/rooms/:id", h.GetRoom, cached)
	e.GET("/api/rooms/:id/seats", h.RoomSeats)
	e.GET("/api/rooms/:id/reservations", h.RoomReservations)
	e.GET("/api/seats/:id/reservations", h.SeatReservations)
}
