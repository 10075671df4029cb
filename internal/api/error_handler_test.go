package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyhub/portal/internal/core/domain"
)

func render(t *testing.T, err error) (int, errorResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	NewHTTPErrorHandler(zerolog.Nop())(err, c)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestErrorHandler_Mapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"bad login", &domain.IssuerError{Op: "login", Status: 401, Message: "No active account found", Kind: domain.ErrBadLogin}, 401, "No active account found"},
		{"auth required", domain.ErrAuthenticationRequired, 401, "authentication required"},
		{"invalid credential", fmt.Errorf("refresh: %w", domain.ErrInvalidCredential), 401, msgSessionExpired},
		{"forbidden reason", &domain.AccessDenied{Code: "inactive", Reason: "account is inactive"}, 403, "account is inactive"},
		{"upstream", &domain.IssuerError{Op: "me", Kind: domain.ErrUpstreamUnavailable}, 503, msgUpstream},
		{"echo http error", echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), 400, "invalid payload"},
		{"unknown", errors.New("boom"), 500, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := render(t, tc.err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.msg, body.Error)
			assert.Empty(t, body.Fields)
		})
	}
}

func TestErrorHandler_LocalValidationCarriesFields(t *testing.T) {
	code, body := render(t, domain.NewValidationError(map[string]string{"password": "password is required"}))

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "password: password is required", body.Error)
	assert.Equal(t, map[string]string{"password": "password is required"}, body.Fields)
}

func TestErrorHandler_IssuerValidationCarriesFields(t *testing.T) {
	err := &domain.IssuerError{
		Op: "register", Status: 400, Message: "username: already taken",
		Fields: map[string]string{"username": "already taken"}, Kind: domain.ErrValidation,
	}
	code, body := render(t, err)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "username: already taken", body.Error)
	assert.Equal(t, "already taken", body.Fields["username"])
}

func TestErrorHandler_SkipsCommittedResponse(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), rec)
	require.NoError(t, c.String(http.StatusOK, "done"))

	NewHTTPErrorHandler(zerolog.Nop())(errors.New("late"), c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
}
