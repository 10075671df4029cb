package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/surveyhub/portal/internal/api/middleware"
	"github.com/surveyhub/portal/internal/core/domain"
)

// tenantContext extracts the tenant context attached by the authorization chain and
// performs a fast-fail check before any upstream call:
//   - a context must be present (presence proves Stage A ran).
//   - roles bound to a tenant need a non-empty tenant ID; without it the credential
//     is valid but operationally unusable.
func tenantContext(c echo.Context) (*domain.TenantContext, error) {
	tc, ok := middleware.TenantFrom(c)
	if !ok {
		return nil, domain.ErrAuthenticationRequired
	}
	if tc.Role.RequiresTenant() && tc.TenantID == "" {
		return nil, &domain.AccessDenied{Code: "no_tenant", Reason: "no institution assigned to this account"}
	}
	return tc, nil
}
