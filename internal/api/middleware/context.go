package middleware

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/surveyhub/portal/internal/core/domain"
)

const tenantKey = "tenant_context"

type tenantCtxKey struct{}

// WithTenant attaches tc to both the echo context and the request context, replacing
// whatever an earlier stage attached.
func WithTenant(c echo.Context, tc *domain.TenantContext) {
	c.Set(tenantKey, tc)
	req := c.Request()
	c.SetRequest(req.WithContext(context.WithValue(req.Context(), tenantCtxKey{}, tc)))
}

// TenantFrom returns the tenant context of the request, if any stage attached one.
func TenantFrom(c echo.Context) (*domain.TenantContext, bool) {
	tc, ok := c.Get(tenantKey).(*domain.TenantContext)
	return tc, ok && tc != nil
}

// TenantFromContext is TenantFrom for code that only holds the request context.
func TenantFromContext(ctx context.Context) (*domain.TenantContext, bool) {
	tc, ok := ctx.Value(tenantCtxKey{}).(*domain.TenantContext)
	return tc, ok && tc != nil
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
