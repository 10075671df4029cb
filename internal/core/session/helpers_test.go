package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Fake timers
// ---------------------------------------------------------------------------

type fakeTimer struct {
	owner   *fakeTimers
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	wasLive := !t.stopped && !t.fired
	t.stopped = true
	return wasLive
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) New(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{owner: ft, d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (ft *fakeTimers) live() []*fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the single live timer's callback on the calling goroutine.
func (ft *fakeTimers) fire(t *testing.T) {
	t.Helper()
	live := ft.live()
	require.Len(t, live, 1, "expected exactly one live timer")
	ft.mu.Lock()
	live[0].fired = true
	ft.mu.Unlock()
	live[0].f()
}

// ---------------------------------------------------------------------------
// Stub issuer
// ---------------------------------------------------------------------------

type stubIssuer struct {
	loginFn    func(ctx context.Context, username, password string) (*ports.AuthResult, error)
	registerFn func(ctx context.Context, reg domain.Registration) (*ports.AuthResult, error)
	refreshFn  func(ctx context.Context, refresh string) (domain.Credentials, error)
	validateFn func(ctx context.Context, access string) (*ports.ValidationResult, error)
	meFn       func(ctx context.Context, access string) (*domain.Identity, error)
	logoutFn   func(ctx context.Context, creds domain.Credentials) error

	logins, registers, refreshes, validates, mes, logouts atomic.Int32
}

func (s *stubIssuer) Login(ctx context.Context, username, password string) (*ports.AuthResult, error) {
	s.logins.Add(1)
	return s.loginFn(ctx, username, password)
}

func (s *stubIssuer) Register(ctx context.Context, reg domain.Registration) (*ports.AuthResult, error) {
	s.registers.Add(1)
	return s.registerFn(ctx, reg)
}

func (s *stubIssuer) Refresh(ctx context.Context, refresh string) (domain.Credentials, error) {
	s.refreshes.Add(1)
	return s.refreshFn(ctx, refresh)
}

func (s *stubIssuer) Validate(ctx context.Context, access string) (*ports.ValidationResult, error) {
	s.validates.Add(1)
	return s.validateFn(ctx, access)
}

func (s *stubIssuer) Me(ctx context.Context, access string) (*domain.Identity, error) {
	s.mes.Add(1)
	return s.meFn(ctx, access)
}

func (s *stubIssuer) Logout(ctx context.Context, creds domain.Credentials) error {
	s.logouts.Add(1)
	if s.logoutFn == nil {
		return nil
	}
	return s.logoutFn(ctx, creds)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func accessToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": exp.Unix(),
		"iat": exp.Add(-time.Hour).Unix(),
	}).SignedString([]byte("test"))
	require.NoError(t, err)
	return signed
}

func alice() *domain.Identity {
	return &domain.Identity{
		ID:          "u-alice",
		Username:    "alice",
		Role:        domain.RoleInstitutionAdmin,
		TenantID:    "inst-1",
		DisplayName: "Alice Díaz",
		Active:      true,
	}
}

func rejected(op string) error {
	return &domain.IssuerError{Op: op, Status: 401, Message: "token not valid", Kind: domain.ErrInvalidCredential}
}

func unavailable(op string) error {
	return &domain.IssuerError{Op: op, Status: 502, Message: "bad gateway", Kind: domain.ErrUpstreamUnavailable}
}
