package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/surveyhub/portal/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

const (
	msgSessionExpired = "session expired, please log in again"
	msgUpstream       = "upstream unavailable, please try again"
)

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps the error taxonomy to HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "fields": {...}}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, proxy 502, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, errorResponse{Error: ve.Message, Fields: ve.Fields}
	}

	switch {
	case errors.Is(err, domain.ErrBadLogin):
		return http.StatusUnauthorized, errorResponse{Error: domain.UserMessage(err)}
	case errors.Is(err, domain.ErrAuthenticationRequired):
		return http.StatusUnauthorized, errorResponse{Error: domain.ErrAuthenticationRequired.Error()}
	case errors.Is(err, domain.ErrInvalidCredential):
		return http.StatusUnauthorized, errorResponse{Error: msgSessionExpired}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: domain.UserMessage(err)}
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		log.Warn().
			Err(err).
			Str("path", c.Path()).
			Msg("upstream unavailable")
		return http.StatusServiceUnavailable, errorResponse{Error: msgUpstream}
	case errors.Is(err, domain.ErrValidation):
		// Issuer-side validation: the issuer's field messages are shown as is.
		var ie *domain.IssuerError
		if errors.As(err, &ie) {
			return http.StatusBadRequest, errorResponse{Error: ie.UserMessage(), Fields: ie.Fields}
		}
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}
