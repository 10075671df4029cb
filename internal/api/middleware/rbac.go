package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/permission"
)

// RequireCapability admits requests whose role grants capability.
func (a *Authenticator) RequireCapability(capability permission.Capability) echo.MiddlewareFunc {
	return a.gate(func(echo.Context) permission.Capability { return capability })
}

// RequireResource admits requests whose role grants the capability the HTTP method
// needs on resource.
func (a *Authenticator) RequireResource(resource string) echo.MiddlewareFunc {
	return a.gate(func(c echo.Context) permission.Capability {
		return permission.ForRequest(resource, c.Request().Method)
	})
}

func (a *Authenticator) gate(need func(echo.Context) permission.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tc, ok := TenantFrom(c)
			if !ok {
				err := fmt.Errorf("capability check: %w", domain.ErrAuthenticationRequired)
				a.reject(c, "capability", err)
				return err
			}
			capability := need(c)
			if !permission.HasCapability(tc.Role, capability) {
				err := &domain.AccessDenied{Code: "capability", Reason: "insufficient permissions: " + string(capability) + " required"}
				a.reject(c, "capability", err)
				return err
			}
			return next(c)
		}
	}
}
