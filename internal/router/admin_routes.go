package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studyroom-reservation/internal/handler"
	"github.com/iliyamo/studyroom-reservation/internal/middleware"
)

// RegisterAdmin registers reservation management, CSV imports and
// reports.  Successful imports change the room catalogue, so they purge
// the response cache.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, cache *middleware.ResponseCache) {
	e.GET("/api/reservations", h.ListReservations)
	e.POST("/api/reservations/:id/confirm", h.Confirm)
	e.PUT("/api/reservations/:id", h.Reschedule)
	e.DELETE("/api/reservations/:id", h.Delete)

	imports := e.Group("/api/import", cache.PurgeOnSuccess())
	imports.POST("/rooms", h.ImportRooms)
	imports.POST("/equipment", h.ImportEquipment)

	e.GET("/api/reports/summary", h.Summary)
}
