package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/surveyhub/portal/internal/core/domain"
)

var (
	errInactive    = &domain.AccessDenied{Code: "inactive", Reason: "account is inactive"}
	errNoTenant    = &domain.AccessDenied{Code: "no_tenant", Reason: "no institution assigned to this account"}
	errUnknownRole = &domain.AccessDenied{Code: "unknown_role", Reason: "account role is not recognised"}
)

// Tenant is Stage B. It must be layered after Require: it reads the credential Stage A
// attached, fetches the full identity record and re-derives role and tenant from it.
// Without a Stage A context every request is rejected.
func (a *Authenticator) Tenant() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			prev, ok := TenantFrom(c)
			if !ok || prev.AccessToken == "" {
				err := fmt.Errorf("tenant context: %w", domain.ErrAuthenticationRequired)
				a.reject(c, "tenant", err)
				return err
			}

			id, err := a.issuer.Me(c.Request().Context(), prev.AccessToken)
			if err != nil {
				err = fmt.Errorf("fetch identity: %w", classify(err))
				a.reject(c, "tenant", err)
				return err
			}
			if err := checkTenant(id); err != nil {
				a.reject(c, "tenant", err)
				return err
			}

			WithTenant(c, &domain.TenantContext{
				SubjectID:   id.ID,
				Role:        id.Role,
				TenantID:    id.TenantID,
				AccessToken: prev.AccessToken,
			})
			return next(c)
		}
	}
}

func checkTenant(id *domain.Identity) error {
	switch {
	case !id.Active:
		return errInactive
	case !id.Role.Valid():
		return errUnknownRole
	case id.Role.RequiresTenant() && id.TenantID == "":
		return errNoTenant
	}
	return nil
}
