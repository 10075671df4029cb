package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/surveyhub/portal/internal/api/middleware"
)

// HeaderTenantID carries the tenant to the data API. Only the proxy sets it.
const HeaderTenantID = "X-Tenant-ID"

// Client-supplied tenant selectors. They are removed before forwarding so a caller can
// never choose a tenant other than the one its credential resolves to.
var (
	tenantHeaders = []string{HeaderTenantID, "X-Institution-ID", "X-Institucion-ID"}
	tenantParams  = []string{"tenant_id", "tenantId", "institucion", "institucion_id", "institution_id"}
)

// ScopeToTenant rewrites the outgoing request from the tenant context: it replaces the
// caller's credentials with the validated bearer token and pins the tenant. Requests
// without a tenant context are forwarded anonymously.
func ScopeToTenant() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, h := range tenantHeaders {
				req.Header.Del(h)
			}
			req.Header.Del(echo.HeaderAuthorization)
			req.Header.Del("Cookie")

			q := req.URL.Query()
			stripped := false
			for _, p := range tenantParams {
				if q.Has(p) {
					q.Del(p)
					stripped = true
				}
			}
			if stripped {
				req.URL.RawQuery = q.Encode()
				// The proxy rewrites from RequestURI, not URL.
				req.RequestURI = req.URL.RequestURI()
			}

			if tc, ok := middleware.TenantFrom(c); ok {
				req.Header.Set(echo.HeaderAuthorization, "Bearer "+tc.AccessToken)
				if tc.TenantID != "" {
					req.Header.Set(HeaderTenantID, tc.TenantID)
				}
			}
			return next(c)
		}
	}
}

// NewUpstreamProxy forwards /api/v1/<path> to <target>/<path>.
func NewUpstreamProxy(target *url.URL) echo.MiddlewareFunc {
	return echomiddleware.ProxyWithConfig(echomiddleware.ProxyConfig{
		Balancer: echomiddleware.NewRoundRobinBalancer([]*echomiddleware.ProxyTarget{{Name: "data-api", URL: target}}),
		Rewrite: map[string]string{
			"/api/v1/*": "/$1",
		},
		ModifyResponse: func(resp *http.Response) error {
			// Upstream sessions must not leak into the browser.
			resp.Header.Del("Set-Cookie")
			return nil
		},
	})
}

// ParseUpstream validates the data API base URL.
func ParseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url %q: missing scheme or host", raw)
	}
	return u, nil
}

// Unreachable is the terminal handler behind the proxy middleware, which never
// calls next.
func Unreachable(echo.Context) error {
	return echo.ErrNotFound
}
