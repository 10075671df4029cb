// Package session is the client runtime for one authenticated principal: a credential
// store, a refresh scheduler, and the actions that talk to the issuer.
//
// Actions of one Session are serialized. Across Sessions nothing is shared.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/permission"
	"github.com/surveyhub/portal/internal/core/ports"
	"github.com/surveyhub/portal/internal/core/token"
	"github.com/surveyhub/portal/internal/core/validation"
)

const refreshTimeout = 30 * time.Second

// Option configures a Session.
type Option func(*options)

type options struct {
	interval    time.Duration
	renewBuffer time.Duration
	newTimer    TimerFunc
	now         func() time.Time
	log         zerolog.Logger
	creds       domain.Credentials
}

// WithRefreshInterval overrides DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) Option { return func(o *options) { o.interval = d } }

// WithRenewBuffer overrides token.DefaultRenewBuffer for EnsureFresh.
func WithRenewBuffer(d time.Duration) Option { return func(o *options) { o.renewBuffer = d } }

// WithTimerFunc replaces the scheduler's timer source.
func WithTimerFunc(f TimerFunc) Option { return func(o *options) { o.newTimer = f } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option { return func(o *options) { o.log = log } }

// WithCredentials seeds the store with a persisted credential pair, to be confirmed by
// ValidateCurrentSession.
func WithCredentials(c domain.Credentials) Option { return func(o *options) { o.creds = c } }

// Session binds a Store and a Scheduler to an Issuer.
type Session struct {
	issuer      ports.Issuer
	store       *Store
	scheduler   *Scheduler
	renewBuffer time.Duration
	now         func() time.Time
	log         zerolog.Logger

	// opMu is the single-operation queue: one action at a time.
	opMu    sync.Mutex
	refresh singleflight.Group
}

// New builds a Session. The scheduler starts DISARMED since no identity is present yet.
func New(issuer ports.Issuer, opts ...Option) *Session {
	o := options{
		interval:    DefaultRefreshInterval,
		renewBuffer: token.DefaultRenewBuffer,
		now:         time.Now,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		issuer:      issuer,
		store:       NewStore(),
		renewBuffer: o.renewBuffer,
		now:         o.now,
		log:         o.log,
	}
	if !o.creds.Empty() {
		creds := o.creds
		s.store.Update(func(st *State) { st.Credentials = creds })
	}
	s.scheduler = NewScheduler(s.store, s.RefreshToken, o.interval, o.newTimer, o.log)
	return s
}

// Store exposes the credential store for observation.
func (s *Session) Store() *Store { return s.store }

// Scheduler exposes the refresh scheduler.
func (s *Session) Scheduler() *Scheduler { return s.scheduler }

// Close tears the scheduler down. The store keeps its last state.
func (s *Session) Close() { s.scheduler.Close() }

type loginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login authenticates against the issuer. On failure the error is recorded in the store
// and any identity already present is left untouched.
func (s *Session) Login(ctx context.Context, username, password string) (*domain.Identity, error) {
	if err := validation.Struct(loginInput{Username: username, Password: password}); err != nil {
		s.fail(err)
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.begin()
	res, err := s.issuer.Login(ctx, username, password)
	if err == nil {
		err = checkAuthResult(res)
	}
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.authenticated(res)
	return res.Identity.Clone(), nil
}

// Register creates an account and signs it in.
func (s *Session) Register(ctx context.Context, reg domain.Registration) (*domain.Identity, error) {
	if err := validation.Struct(reg); err != nil {
		s.fail(err)
		return nil, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.begin()
	res, err := s.issuer.Register(ctx, reg)
	if err == nil {
		err = checkAuthResult(res)
	}
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.authenticated(res)
	return res.Identity.Clone(), nil
}

// Logout ends the session locally whatever the issuer answers.
func (s *Session) Logout(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	creds := s.store.Snapshot().Credentials
	if !creds.Empty() {
		if err := s.issuer.Logout(ctx, creds); err != nil {
			s.log.Warn().Err(err).Msg("issuer logout failed, clearing local session anyway")
		}
	}
	s.store.Update(func(st *State) {
		st.Identity = nil
		st.Credentials = domain.Credentials{}
		st.Status = StatusIdle
		st.Err = nil
	})
}

// RefreshToken mints a new access token. Concurrent callers share one issuer call.
// When the issuer rejects the refresh credential the identity is cleared.
// The shared call is detached from the leading caller's cancellation and bounded by
// refreshTimeout instead, so one abandoned request cannot fail the others.
func (s *Session) RefreshToken(ctx context.Context) error {
	_, err, _ := s.refresh.Do("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		s.opMu.Lock()
		defer s.opMu.Unlock()
		return nil, s.refreshLocked(rctx)
	})
	return err
}

func (s *Session) refreshLocked(ctx context.Context) error {
	refresh := s.store.Snapshot().Credentials.Refresh
	if refresh == "" {
		s.clear(domain.ErrAuthenticationRequired)
		return fmt.Errorf("refresh token: %w", domain.ErrAuthenticationRequired)
	}

	s.begin()
	creds, err := s.issuer.Refresh(ctx, refresh)
	if err == nil && creds.Access == "" {
		err = &domain.IssuerError{Op: "refresh", Message: "issuer returned no access token", Kind: domain.ErrUpstreamUnavailable}
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredential) {
			s.clear(err)
		} else {
			s.fail(err)
		}
		return fmt.Errorf("refresh token: %w", err)
	}

	now := s.now()
	s.store.Update(func(st *State) {
		st.Credentials.Access = creds.Access
		if creds.Refresh != "" {
			st.Credentials.Refresh = creds.Refresh
		}
		st.LastRenewalAt = now
		st.Renewals++
		st.Status = StatusIdle
		st.Err = nil
	})
	return nil
}

// EnsureFresh renews the access token when it is within the renew buffer of expiry and
// returns the token to use.
func (s *Session) EnsureFresh(ctx context.Context) (string, error) {
	st := s.store.Snapshot()
	if !st.Authenticated() {
		return "", domain.ErrAuthenticationRequired
	}
	if !token.ShouldRenewAt(st.Credentials.Access, s.renewBuffer, s.now()) {
		return st.Credentials.Access, nil
	}
	if err := s.RefreshToken(ctx); err != nil {
		return "", err
	}
	return s.store.Snapshot().Credentials.Access, nil
}

// ValidateCurrentSession restores the identity behind the held credentials. It never fails:
// any problem is reported as "no valid session". Only an issuer rejection clears the
// credentials; an unreachable issuer leaves them for a later attempt.
func (s *Session) ValidateCurrentSession(ctx context.Context) *domain.Identity {
	st := s.store.Snapshot()
	if st.Credentials.Empty() {
		return nil
	}

	if token.IsExpiredAt(st.Credentials.Access, s.now()) && st.Credentials.Refresh != "" {
		if err := s.RefreshToken(ctx); err != nil {
			s.log.Debug().Err(err).Msg("session restore: refresh failed")
			// Rejected: refreshLocked already cleared the credentials. Anything else
			// leaves them untouched; validating the expired token would read as a rejection.
			return nil
		}
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	access := s.store.Snapshot().Credentials.Access
	if access == "" {
		return nil
	}

	s.begin()
	id, err := s.resolveIdentity(ctx, access)
	if err != nil {
		s.log.Debug().Err(err).Msg("session restore: validation failed")
		if errors.Is(err, domain.ErrInvalidCredential) {
			s.clear(err)
		} else {
			s.fail(err)
		}
		return nil
	}

	now := s.now()
	s.store.Update(func(st *State) {
		st.Identity = id
		st.Status = StatusIdle
		st.Err = nil
		if st.LastRenewalAt.IsZero() {
			st.LastRenewalAt = now
		}
	})
	return id.Clone()
}

func (s *Session) resolveIdentity(ctx context.Context, access string) (*domain.Identity, error) {
	res, err := s.issuer.Validate(ctx, access)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, &domain.IssuerError{Op: "validate", Kind: domain.ErrInvalidCredential}
	}
	if res.Identity != nil && res.Identity.ID != "" {
		return res.Identity, nil
	}
	return s.issuer.Me(ctx, access)
}

// View projects the store into the fields the frontend reads.
func (s *Session) View() domain.SessionView {
	return ViewOf(s.store.Snapshot())
}

// ViewOf projects st.
func ViewOf(st State) domain.SessionView {
	if !st.Authenticated() {
		return domain.SessionView{Permissions: []string{}}
	}
	v := domain.SessionView{
		Authenticated: true,
		Role:          st.Identity.Role,
		TenantID:      st.Identity.TenantID,
		DisplayName:   displayName(st.Identity),
		Permissions:   permission.Strings(st.Identity.Role),
	}
	if !st.LastRenewalAt.IsZero() {
		at := st.LastRenewalAt
		v.LastRenewalAt = &at
	}
	return v
}

func displayName(id *domain.Identity) string {
	if name := strings.TrimSpace(id.DisplayName); name != "" {
		return name
	}
	return id.Username
}

func (s *Session) begin() {
	s.store.Update(func(st *State) {
		st.Status = StatusLoading
		st.Err = nil
	})
}

func (s *Session) fail(err error) {
	s.store.Update(func(st *State) {
		st.Status = StatusError
		st.Err = err
	})
}

func (s *Session) clear(err error) {
	s.store.Update(func(st *State) {
		st.Identity = nil
		st.Credentials = domain.Credentials{}
		st.Status = StatusError
		st.Err = err
	})
}

func (s *Session) authenticated(res *ports.AuthResult) {
	now := s.now()
	id := res.Identity.Clone()
	creds := res.Credentials
	s.store.Update(func(st *State) {
		st.Identity = id
		st.Credentials = creds
		st.LastRenewalAt = now
		st.Renewals++
		st.Status = StatusIdle
		st.Err = nil
	})
}

func checkAuthResult(res *ports.AuthResult) error {
	switch {
	case res == nil || res.Identity == nil:
		return &domain.IssuerError{Op: "login", Message: "issuer returned no identity", Kind: domain.ErrUpstreamUnavailable}
	case res.Credentials.Access == "" || res.Credentials.Refresh == "":
		return &domain.IssuerError{Op: "login", Message: "issuer returned an incomplete credential pair", Kind: domain.ErrUpstreamUnavailable}
	}
	return nil
}
