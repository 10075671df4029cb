package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/surveyhub/portal/internal/api/middleware"
	"github.com/surveyhub/portal/internal/core/domain"
)

func newTenantContext(target string, tc *domain.TenantContext) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if tc != nil {
		middleware.WithTenant(c, tc)
	}
	return c, rec
}

func TestMeHandler_ReturnsTenantContext(t *testing.T) {
	c, rec := newTenantContext("/api/v1/me", &domain.TenantContext{
		SubjectID: "u-7", Role: domain.RoleViewer, TenantID: "inst-1", AccessToken: "tok",
	})
	if err := NewMeHandler().Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp meResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.SubjectID != "u-7" || resp.TenantID != "inst-1" || len(resp.Permissions) == 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestMeHandler_NoContext(t *testing.T) {
	c, _ := newTenantContext("/api/v1/me", nil)
	if err := NewMeHandler().Me(c); !errors.Is(err, domain.ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}
}

func TestMeHandler_TenantBoundRoleWithoutTenant(t *testing.T) {
	c, _ := newTenantContext("/api/v1/me", &domain.TenantContext{SubjectID: "u-7", Role: domain.RoleSurveyor})
	err := NewMeHandler().Me(c)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestMeHandler_SuperAdminWithoutTenant(t *testing.T) {
	c, rec := newTenantContext("/api/v1/me", &domain.TenantContext{SubjectID: "root", Role: domain.RoleSuperAdmin})
	if err := NewMeHandler().Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
