package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/studyroom-reservation/internal/model"
	"github.com/iliyamo/studyroom-reservation/internal/repository"
)

// maxImportBytes caps CSV upload bodies.
const maxImportBytes = 4 << 20

// ReservationAdmin is the administrative side of the conflict store.
type ReservationAdmin interface {
	ListAll(ctx context.Context) ([]model.ReservationDetail, error)
	ListInRange(ctx context.Context, start, end time.Time) ([]model.ReservationDetail, error)
	Confirm(ctx context.Context, id uint64) error
	Delete(ctx context.Context, id uint64) error
	Reschedule(ctx context.Context, id uint64, start, end time.Time) (*model.Reservation, error)
}

// Importer loads rooms and equipment from CSV.
type Importer interface {
	ImportRooms(ctx context.Context, src io.Reader) (int, error)
	ImportEquipment(ctx context.Context, src io.Reader) (int, error)
}

// Reporter builds the usage summary.
type Reporter interface {
	Summary(ctx context.Context) (*model.Summary, error)
}

// AdminHandler groups the administrative endpoints.  reports may be nil
// when the storage driver has no reporting support; the summary route
// then answers 501.
type AdminHandler struct {
	reservations ReservationAdmin
	importer     Importer
	reports      Reporter
	logger       *zap.Logger
}

// NewAdminHandler constructs an AdminHandler.  reservations and importer
// must be non-nil.
func NewAdminHandler(reservations ReservationAdmin, importer Importer, reports Reporter, logger *zap.Logger) *AdminHandler {
	if reservations == nil || importer == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{reservations: reservations, importer: importer, reports: reports, logger: logger}
}

// ListReservations handles GET /api/reservations[?start=&end=].  start
// and end must be given together; the result then holds reservations
// overlapping [start, end).
func (h *AdminHandler) ListReservations(c echo.Context) error {
	rawStart, rawEnd := c.QueryParam("start"), c.QueryParam("end")
	ctx := c.Request().Context()
	var (
		rows []model.ReservationDetail
		err  error
	)
	switch {
	case rawStart == "" && rawEnd == "":
		rows, err = h.reservations.ListAll(ctx)
	case rawStart == "" || rawEnd == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start and end must be given together"})
	default:
		start, end, perr := parseRange(rawStart, rawEnd)
		if perr != nil {
			return writeError(c, perr)
		}
		rows, err = h.reservations.ListInRange(ctx, start, end)
	}
	if err != nil {
		return writeError(c, err)
	}
	if rows == nil {
		rows = []model.ReservationDetail{}
	}
	return c.JSON(http.StatusOK, rows)
}

func parseRange(rawStart, rawEnd string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, model.ErrInvalidInterval
	}
	end, err := time.Parse(time.RFC3339, rawEnd)
	if err != nil || !start.Before(end) {
		return time.Time{}, time.Time{}, model.ErrInvalidInterval
	}
	return start, end, nil
}

// Confirm handles POST /api/reservations/:id/confirm.
func (h *AdminHandler) Confirm(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	if err := h.reservations.Confirm(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "isConfirmed": true})
}

type rescheduleRequest struct {
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

// Reschedule handles PUT /api/reservations/:id.  The new interval is
// checked against the other reservations of the same seat.
func (h *AdminHandler) Reschedule(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body rescheduleRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.StartTime == nil || body.EndTime == nil {
		return badRequest(c, "startTime and endTime are required")
	}
	start, end := model.TruncateSecond(*body.StartTime), model.TruncateSecond(*body.EndTime)
	if !start.Before(end) {
		return writeError(c, model.ErrInvalidInterval)
	}
	res, err := h.reservations.Reschedule(c.Request().Context(), id, start, end)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /api/reservations/:id.
func (h *AdminHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	if err := h.reservations.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ImportRooms handles POST /api/import/rooms with a CSV body.
func (h *AdminHandler) ImportRooms(c echo.Context) error {
	return h.importCSV(c, "rooms", h.importer.ImportRooms)
}

// ImportEquipment handles POST /api/import/equipment with a CSV body.
func (h *AdminHandler) ImportEquipment(c echo.Context) error {
	return h.importCSV(c, "equipment", h.importer.ImportEquipment)
}

func (h *AdminHandler) importCSV(c echo.Context, what string, load func(context.Context, io.Reader) (int, error)) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxImportBytes)
	n, err := load(c.Request().Context(), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "import body too large"})
		case errors.Is(err, repository.ErrInvalidCSV):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "kind": "INVALID_CSV"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		if model.KindOf(err) == model.KindUnexpectedFault {
			h.logger.Error("import failed", zap.String("what", what), zap.Error(err))
		}
		return writeError(c, err)
	}
	h.logger.Info("import finished", zap.String("what", what), zap.Int("imported", n))
	return c.JSON(http.StatusOK, echo.Map{"imported": n})
}

// Summary handles GET /api/reports/summary.
func (h *AdminHandler) Summary(c echo.Context) error {
	if h.reports == nil {
		return c.JSON(http.StatusNotImplemented, echo.Map{"error": "reports are not available with this storage driver"})
	}
	s, err := h.reports.Summary(c.Request().Context())
	if err != nil {
		h.logger.Error("summary failed", zap.Error(err))
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}
