package api

import (
	"net/url"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/surveyhub/portal/docs"
	"github.com/surveyhub/portal/internal/api/handler"
	"github.com/surveyhub/portal/internal/api/middleware"
	"github.com/surveyhub/portal/internal/core/permission"
	"github.com/surveyhub/portal/internal/core/ports"
	"github.com/surveyhub/portal/internal/infrastructure/http/handlers"
)

// Resources proxied to the data API behind the full authorization chain.
var Resources = []string{"surveys", "responses", "institutions", "users", "reports"}

// Deps are the collaborators the router wires into handlers and middleware.
type Deps struct {
	Issuer   ports.Issuer
	Sessions ports.AuthService
	// Audit is nil when no audit store is configured; the listing route is then omitted.
	Audit    ports.AuditReader
	Upstream *url.URL

	Cookie       handler.SessionCookie
	AccessCookie string
	Checks       map[string]handlers.Check

	// Registerer and Gatherer default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	Log zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	registerer, gatherer := d.Registerer, d.Gatherer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: func() string { return ulid.Make().String() },
	}))
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "portal",
		Subsystem:  "http",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/health" || c.Path() == "/health/ready"
		},
	}))

	// --- Dependencies ---
	cookieName := d.Cookie.Name
	if cookieName == "" {
		cookieName = "portal_session"
	}
	authn := middleware.NewAuthenticator(d.Issuer, d.Sessions, middleware.Cookies{
		Access:  d.AccessCookie,
		Session: cookieName,
	}, d.Log)
	authHandler := handler.NewAuthHandler(d.Sessions, d.Cookie)
	meHandler := handler.NewMeHandler()

	// --- Session routes ---
	auth := e.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/logout", authHandler.Logout)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/session", authHandler.Session)

	// --- Tenant-scoped API ---
	v1 := e.Group("/api/v1")
	v1.GET("/me", meHandler.Me, authn.Require(), authn.Tenant())
	if d.Audit != nil {
		auditHandler := handler.NewAuditHandler(d.Audit)
		v1.GET("/audit/sessions", auditHandler.List,
			authn.Require(), authn.Tenant(), authn.RequireCapability(permission.UsersRead))
	}

	proxy := handler.NewUpstreamProxy(d.Upstream)
	for _, res := range Resources {
		chain := []echo.MiddlewareFunc{
			authn.Require(), authn.Tenant(), authn.RequireResource(res), handler.ScopeToTenant(), proxy,
		}
		v1.Any("/"+res, handler.Unreachable, chain...)
		v1.Any("/"+res+"/*", handler.Unreachable, chain...)
	}
	v1.Any("/public/*", handler.Unreachable, authn.Optional(), handler.ScopeToTenant(), proxy)

	// --- Health checks (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	readinessHandler := handlers.NewReadinessHandler(d.Checks)

	e.GET("/health", healthHandler.Liveness)          // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?

	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
