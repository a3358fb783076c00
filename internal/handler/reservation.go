package handler

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/studyroom-reservation/internal/middleware"
	"github.com/iliyamo/studyroom-reservation/internal/model"
	"github.com/iliyamo/studyroom-reservation/internal/reservation"
)

// Submitter hands a request to the admission pipeline.
type Submitter interface {
	Submit(req reservation.Request) *reservation.Handle
}

// Creator commits a request synchronously, bypassing the queue.
type Creator interface {
	CreateReservation(ctx context.Context, req reservation.Request) (*model.Reservation, error)
}

// reserveRequest is the JSON body of POST /api/reserve.  roomId may be
// omitted; the room is then looked up from the seat.  Blank usernames are
// left for the core to reject so the response carries INVALID_USERNAME.
type reserveRequest struct {
	RoomID    uint64     `json:"roomId"`
	SeatID    int64      `json:"seatId" validate:"gt=0"`
	Username  string     `json:"username"`
	StartTime *time.Time `json:"startTime" validate:"required"`
	EndTime   *time.Time `json:"endTime" validate:"required"`
}

// newValidator reports failures under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ReservationHandler accepts reservation requests.  Reserve goes
// through the queue and waits for the outcome up to wait; ReserveSync
// commits on the request goroutine.
type ReservationHandler struct {
	submitter Submitter
	creator   Creator
	wait      time.Duration
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewReservationHandler constructs a ReservationHandler.  submitter and
// creator must be non-nil.  A non-positive wait waits until the request
// context ends.
func NewReservationHandler(submitter Submitter, creator Creator, wait time.Duration, logger *zap.Logger) *ReservationHandler {
	if submitter == nil || creator == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationHandler{
		submitter: submitter,
		creator:   creator,
		wait:      wait,
		validate:  newValidator(),
		logger:    logger,
	}
}

// bind decodes and checks the body.  ok is false when a response has
// already been written.
func (h *ReservationHandler) bind(c echo.Context) (reservation.Request, bool, error) {
	var body reserveRequest
	if err := c.Bind(&body); err != nil {
		return reservation.Request{}, false, badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(body); err != nil {
		return reservation.Request{}, false, badRequest(c, validationMessage(err))
	}
	id := middleware.RequestUUID(c)
	if id == uuid.Nil {
		id = uuid.New()
	}
	return reservation.Request{
		ID:        id,
		RoomID:    body.RoomID,
		SeatID:    uint64(body.SeatID),
		Username:  body.Username,
		StartTime: *body.StartTime,
		EndTime:   *body.EndTime,
	}, true, nil
}

// Reserve handles POST /api/reserve.  The request is queued and the
// handler waits for its resolution.  When the wait elapses first the
// client gets 504 with the request id; the request itself still
// completes in the background.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	req, ok, err := h.bind(c)
	if !ok {
		return err
	}
	handle := h.submitter.Submit(req)

	ctx := c.Request().Context()
	if h.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.wait)
		defer cancel()
	}
	res, err := handle.Wait(ctx)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, res)
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("reservation still pending after wait",
			zap.String("request_id", req.ID.String()), zap.Duration("wait", h.wait))
		return c.JSON(http.StatusGatewayTimeout, echo.Map{
			"error":     "reservation is still being processed",
			"kind":      model.KindTimeout,
			"requestId": req.ID.String(),
		})
	case errors.Is(err, context.Canceled):
		// client went away
		return nil
	default:
		return writeError(c, err)
	}
}

// ReserveSync handles POST /api/reserve/sync.
func (h *ReservationHandler) ReserveSync(c echo.Context) error {
	req, ok, err := h.bind(c)
	if !ok {
		return err
	}
	res, err := h.creator.CreateReservation(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
