package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/ports"
)

// stubIssuer accepts the tokens in identities and rejects everything else.
type stubIssuer struct {
	identities map[string]*domain.Identity
	// bareValidate makes Validate omit the identity, as some issuers do.
	bareValidate bool
	validateErr  error
	meErr        error

	validates, mes atomic.Int32
}

func (s *stubIssuer) Validate(_ context.Context, access string) (*ports.ValidationResult, error) {
	s.validates.Add(1)
	if s.validateErr != nil {
		return nil, s.validateErr
	}
	id, ok := s.identities[access]
	if !ok {
		return &ports.ValidationResult{Valid: false}, nil
	}
	if s.bareValidate {
		return &ports.ValidationResult{Valid: true}, nil
	}
	// The validation response carries a coarser view than /users/me.
	return &ports.ValidationResult{Valid: true, Identity: &domain.Identity{ID: id.ID, Role: id.Role}}, nil
}

func (s *stubIssuer) Me(_ context.Context, access string) (*domain.Identity, error) {
	s.mes.Add(1)
	if s.meErr != nil {
		return nil, s.meErr
	}
	id, ok := s.identities[access]
	if !ok {
		return nil, &domain.IssuerError{Op: "me", Status: 401, Kind: domain.ErrInvalidCredential}
	}
	return id.Clone(), nil
}

func (s *stubIssuer) Login(context.Context, string, string) (*ports.AuthResult, error) {
	panic("not used")
}

func (s *stubIssuer) Register(context.Context, domain.Registration) (*ports.AuthResult, error) {
	panic("not used")
}

func (s *stubIssuer) Refresh(context.Context, string) (domain.Credentials, error) {
	panic("not used")
}

func (s *stubIssuer) Logout(context.Context, domain.Credentials) error { panic("not used") }

type stubSessions map[string]string

func (s stubSessions) AccessToken(_ context.Context, sid string) (string, error) {
	tok, ok := s[sid]
	if !ok {
		return "", domain.ErrAuthenticationRequired
	}
	return tok, nil
}

func fixtureIssuer() *stubIssuer {
	return &stubIssuer{identities: map[string]*domain.Identity{
		"tok-root":     {ID: "u-root", Username: "root", Role: domain.RoleSuperAdmin, Active: true},
		"tok-admin":    {ID: "u-admin", Username: "ana", Role: domain.RoleInstitutionAdmin, TenantID: "inst-1", Active: true},
		"tok-orphan":   {ID: "u-orphan", Username: "olga", Role: domain.RoleInstitutionAdmin, Active: true},
		"tok-inactive": {ID: "u-off", Username: "ivan", Role: domain.RoleCoordinator, TenantID: "inst-1", Active: false},
		"tok-viewer":   {ID: "u-view", Username: "vera", Role: domain.RoleViewer, TenantID: "inst-2", Active: true},
	}}
}

func newAuthenticator(issuer *stubIssuer, sessions SessionResolver) *Authenticator {
	return NewAuthenticator(issuer, sessions, Cookies{Access: "access_token", Session: "portal_session"}, zerolog.Nop())
}

// run pushes req through the chain and returns the error the chain produced and the
// tenant context the final handler saw.
func run(req *http.Request, chain ...echo.MiddlewareFunc) (*domain.TenantContext, bool, error) {
	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())

	var seen *domain.TenantContext
	reached := false
	h := func(c echo.Context) error {
		reached = true
		seen, _ = TenantFrom(c)
		if fromReq, ok := TenantFromContext(c.Request().Context()); ok && fromReq != seen {
			panic("request context and echo context disagree")
		}
		return c.NoContent(http.StatusOK)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	err := h(c)
	return seen, reached, err
}

func withBearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/surveys", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	return req
}
