package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Sentinel kinds for failures the handlers translate at the boundary.
// Wrap them with fmt.Errorf("...: %w", Kind) and match with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrAuthentication     = errors.New("authentication failed")
	ErrAuthorization      = errors.New("not permitted")
	ErrValidation         = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrInternal           = errors.New("internal error")
)

func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts a service error into the echo error the router's
// error handler renders as {"error": ..., "message": ...}.
func HTTPError(err error) *echo.HTTPError {
	status := Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	return echo.NewHTTPError(status, msg)
}

// ErrorHandler renders every error as a small JSON object. Plain errors are
// treated as internal so database details never leak to the client.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	he, ok := err.(*echo.HTTPError)
	if !ok {
		he = HTTPError(err)
	}

	msg, ok := he.Message.(string)
	if !ok {
		msg = http.StatusText(he.Code)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, echo.Map{"error": http.StatusText(he.Code), "message": msg})
}
