package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// KindMissingField is reported when a required request field is absent.
const KindMissingField = "MISSING_FIELD"

// statusFor maps an error kind onto the HTTP status returned to clients.
// Expected outcomes such as conflicts are client errors; only faults
// become 500.
func statusFor(kind string) int {
	switch kind {
	case model.KindRoomNotFound, model.KindSeatNotFound, model.KindInvalidRoom,
		model.KindInvalidInterval, model.KindInvalidUsername, model.KindSeatAlreadyReserved,
		KindMissingField:
		return http.StatusBadRequest
	case model.KindReservationNotFound:
		return http.StatusNotFound
	case model.KindOverloaded, model.KindShuttingDown:
		return http.StatusServiceUnavailable
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": ..., "kind": ...}.  Fault details
// stay in the logs.
func writeError(c echo.Context, err error) error {
	kind := model.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return c.JSON(status, echo.Map{"error": msg, "kind": kind})
}

// badRequest reports a malformed request that never reached the core.
func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "kind": KindMissingField})
}

// validationMessage turns the first validator failure into a short
// message naming the JSON field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return "valid " + fe.Field() + " is required"
	default:
		return fe.Field() + " is invalid"
	}
}
