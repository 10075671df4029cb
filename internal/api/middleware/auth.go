package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/ports"
	"github.com/surveyhub/portal/internal/core/token"
	"github.com/surveyhub/portal/internal/pkg/metrics"
)

// SessionResolver turns a server-side session cookie into a current access token.
type SessionResolver interface {
	AccessToken(ctx context.Context, sessionID string) (string, error)
}

// Cookies names the cookies Stage A falls back to when no bearer header is sent.
type Cookies struct {
	Access  string
	Session string
}

// Authenticator builds the authorization stages on top of the issuer.
type Authenticator struct {
	issuer   ports.Issuer
	sessions SessionResolver
	cookies  Cookies
	log      zerolog.Logger
}

// NewAuthenticator returns an Authenticator. sessions may be nil to disable the
// session cookie fallback.
func NewAuthenticator(issuer ports.Issuer, sessions SessionResolver, cookies Cookies, log zerolog.Logger) *Authenticator {
	return &Authenticator{issuer: issuer, sessions: sessions, cookies: cookies, log: log}
}

// Require is Stage A: a request without a credential the issuer accepts is rejected.
func (a *Authenticator) Require() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tc, err := a.authenticate(c)
			if err != nil {
				a.reject(c, "credential", err)
				return err
			}
			WithTenant(c, tc)
			a.log.Debug().
				Str("request_id", requestID(c)).
				Str("subject", tc.SubjectID).
				Msg("credential accepted")
			return next(c)
		}
	}
}

// Optional is Stage A for endpoints open to anonymous callers: a missing or unusable
// credential lets the request through without a tenant context.
func (a *Authenticator) Optional() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tc, err := a.authenticate(c)
			switch {
			case err == nil:
				WithTenant(c, tc)
			case errors.Is(err, domain.ErrAuthenticationRequired):
			default:
				a.log.Debug().Err(err).Str("request_id", requestID(c)).Msg("optional credential ignored")
			}
			return next(c)
		}
	}
}

func (a *Authenticator) authenticate(c echo.Context) (*domain.TenantContext, error) {
	ctx := c.Request().Context()

	access, err := a.extract(c)
	if err != nil {
		return nil, err
	}

	res, err := a.issuer.Validate(ctx, access)
	if err != nil {
		return nil, fmt.Errorf("validate credential: %w", classify(err))
	}
	if !res.Valid {
		return nil, fmt.Errorf("validate credential: %w", domain.ErrInvalidCredential)
	}

	tc := &domain.TenantContext{AccessToken: access}
	if id := res.Identity; id != nil {
		tc.SubjectID, tc.Role, tc.TenantID = id.ID, id.Role, id.TenantID
	} else {
		claims := token.Decode(access)
		tc.SubjectID, tc.Role, tc.TenantID = claims.SubjectID, domain.Role(claims.Role), claims.TenantID
	}
	return tc, nil
}

// extract looks for a credential in the Authorization header, then the access cookie,
// then the server-side session cookie.
func (a *Authenticator) extract(c echo.Context) (string, error) {
	if tok := bearer(c.Request().Header.Get(echo.HeaderAuthorization)); tok != "" {
		return tok, nil
	}
	if a.cookies.Access != "" {
		if ck, err := c.Cookie(a.cookies.Access); err == nil && ck.Value != "" {
			return ck.Value, nil
		}
	}
	if a.sessions != nil && a.cookies.Session != "" {
		if ck, err := c.Cookie(a.cookies.Session); err == nil && ck.Value != "" {
			tok, err := a.sessions.AccessToken(c.Request().Context(), ck.Value)
			if err != nil {
				return "", fmt.Errorf("session credential: %w", classify(err))
			}
			return tok, nil
		}
	}
	return "", domain.ErrAuthenticationRequired
}

func bearer(header string) string {
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// classify keeps taxonomy errors intact and treats anything unknown as an upstream
// failure, so a transport problem never reads as a rejected credential.
func classify(err error) error {
	for _, kind := range []error{
		domain.ErrAuthenticationRequired,
		domain.ErrInvalidCredential,
		domain.ErrForbidden,
		domain.ErrUpstreamUnavailable,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}

func (a *Authenticator) reject(c echo.Context, stage string, err error) {
	reason := reasonOf(err)
	metrics.AuthRejectionsTotal.WithLabelValues(stage, reason).Inc()
	a.log.Warn().
		Str("request_id", requestID(c)).
		Str("stage", stage).
		Str("reason", reason).
		Str("path", c.Path()).
		Err(err).
		Msg("request rejected")
}

func reasonOf(err error) string {
	var denied *domain.AccessDenied
	switch {
	case errors.Is(err, domain.ErrAuthenticationRequired):
		return "missing"
	case errors.Is(err, domain.ErrInvalidCredential):
		return "invalid"
	case errors.As(err, &denied):
		return denied.Code
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream"
	default:
		return "error"
	}
}
