package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/ports"
	"github.com/surveyhub/portal/internal/core/session"
	"github.com/surveyhub/portal/internal/pkg/metrics"
)

const persistTimeout = 3 * time.Second

// SessionConfig tunes every session created by the AuthService.
type SessionConfig struct {
	RefreshInterval time.Duration
	RenewBuffer     time.Duration
	// TimerFunc and Now are replaced in tests.
	TimerFunc session.TimerFunc
	Now       func() time.Time
	NewID     func() string
}

type entry struct {
	id          string
	tag         string
	sess        *session.Session
	unsubscribe func()

	// Touched only from the store observer, which the store serializes.
	authenticated bool
	persisted     domain.Credentials
}

// AuthService keeps one session runtime per browser session ID.
type AuthService struct {
	issuer ports.Issuer
	repo   ports.CredentialRepository
	audit  ports.AuditRecorder
	cfg    SessionConfig
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool

	restores singleflight.Group
}

// NewAuthService returns an AuthService. audit may be nil to disable lifecycle events.
func NewAuthService(
	issuer ports.Issuer,
	repo ports.CredentialRepository,
	audit ports.AuditRecorder,
	cfg SessionConfig,
	log zerolog.Logger,
) *AuthService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &AuthService{
		issuer:   issuer,
		repo:     repo,
		audit:    audit,
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*entry),
	}
}

var _ ports.AuthService = (*AuthService)(nil)

// Login authenticates the browser session sid. A live session is reused so a failed
// re-login leaves the current identity in place; otherwise a new session ID is issued.
func (s *AuthService) Login(ctx context.Context, sid, username, password string) (*ports.SessionResult, error) {
	e, fresh := s.entryForLogin(sid)

	id, err := e.sess.Login(ctx, username, password)
	observe("login", err)
	if err != nil {
		s.record(e, domain.EventLoginFailed, nil, domain.UserMessage(err))
		s.log.Info().Str("session", e.tag).Str("username", username).Err(err).Msg("login failed")
		if fresh {
			s.discard(e)
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if fresh {
		s.adopt(ctx, e, sid)
	}
	s.record(e, domain.EventLoginSucceeded, id, "")
	s.log.Info().Str("session", e.tag).Str("subject", id.ID).Str("role", string(id.Role)).Msg("login succeeded")
	return &ports.SessionResult{SessionID: e.id, View: e.sess.View()}, nil
}

// Register creates an account through the issuer and signs it in.
func (s *AuthService) Register(ctx context.Context, sid string, reg domain.Registration) (*ports.SessionResult, error) {
	e, fresh := s.entryForLogin(sid)

	id, err := e.sess.Register(ctx, reg)
	observe("register", err)
	if err != nil {
		s.log.Info().Str("session", e.tag).Str("username", reg.Username).Err(err).Msg("registration failed")
		if fresh {
			s.discard(e)
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	if fresh {
		s.adopt(ctx, e, sid)
	}
	s.record(e, domain.EventRegistered, id, "")
	return &ports.SessionResult{SessionID: e.id, View: e.sess.View()}, nil
}

// Logout never fails. A sid with no live session (e.g. after a restart) still has its
// persisted credentials revoked upstream before the record is removed.
func (s *AuthService) Logout(ctx context.Context, sid string) {
	if sid == "" {
		return
	}
	e := s.get(sid)
	if e == nil {
		s.logoutPersisted(ctx, sid)
		return
	}

	st := e.sess.Store().Snapshot()
	s.record(e, domain.EventLogout, st.Identity, "")
	e.sess.Logout(ctx)
	observe("logout", nil)
}

func (s *AuthService) logoutPersisted(ctx context.Context, sid string) {
	rec, err := s.repo.Load(ctx, sid)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return
	case err != nil:
		s.log.Warn().Err(err).Str("session", fingerprint(sid)).Msg("logout: load persisted session")
	case !rec.Credentials.Empty():
		if err := s.issuer.Logout(ctx, rec.Credentials); err != nil {
			s.log.Warn().Err(err).Str("session", fingerprint(sid)).Msg("issuer logout failed, removing persisted session anyway")
		}
	}
	if err := s.repo.Delete(ctx, sid); err != nil {
		s.log.Warn().Err(err).Msg("logout: delete persisted session")
	}
	observe("logout", nil)
}

// Refresh renews the access token of sid.
func (s *AuthService) Refresh(ctx context.Context, sid string) (*ports.SessionResult, error) {
	e, err := s.lookup(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	before := e.sess.Store().Snapshot()
	err = e.sess.RefreshToken(ctx)
	observe("refresh", err)
	if err != nil {
		s.record(e, domain.EventRefreshFailed, before.Identity, domain.UserMessage(err))
		return nil, fmt.Errorf("refresh: %w", err)
	}
	s.record(e, domain.EventRefreshSucceeded, before.Identity, "")
	return &ports.SessionResult{SessionID: e.id, View: e.sess.View()}, nil
}

// Current returns the view of sid, restoring it from persisted credentials when the
// process has no live session for it. A missing or rejected session yields an
// unauthenticated view without error.
func (s *AuthService) Current(ctx context.Context, sid string) (*ports.SessionResult, error) {
	e, err := s.lookup(ctx, sid)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return &ports.SessionResult{View: session.ViewOf(session.State{})}, nil
	case err != nil:
		return nil, fmt.Errorf("current session: %w", err)
	}
	return &ports.SessionResult{SessionID: e.id, View: e.sess.View()}, nil
}

// AccessToken returns a usable access token for sid, renewing it first when it is about
// to expire.
func (s *AuthService) AccessToken(ctx context.Context, sid string) (string, error) {
	e, err := s.lookup(ctx, sid)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return "", domain.ErrAuthenticationRequired
	}
	if err != nil {
		return "", err
	}
	return e.sess.EnsureFresh(ctx)
}

// Active reports the number of live sessions.
func (s *AuthService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops every scheduler. Persisted credentials are kept so sessions survive a
// restart.
func (s *AuthService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		e.unsubscribe()
		e.sess.Close()
		metrics.SessionsActive.Dec()
	}
}

func (s *AuthService) get(sid string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sid]
}

func (s *AuthService) entryForLogin(sid string) (*entry, bool) {
	if sid != "" {
		if e := s.get(sid); e != nil {
			return e, false
		}
	}
	return s.newEntry(s.cfg.NewID()), true
}

func (s *AuthService) newEntry(id string, opts ...session.Option) *entry {
	e := &entry{id: id, tag: fingerprint(id)}
	base := []session.Option{
		session.WithRefreshInterval(s.cfg.RefreshInterval),
		session.WithTimerFunc(s.cfg.TimerFunc),
		session.WithClock(s.cfg.Now),
		session.WithLogger(s.log.With().Str("session", e.tag).Logger()),
	}
	if s.cfg.RenewBuffer > 0 {
		base = append(base, session.WithRenewBuffer(s.cfg.RenewBuffer))
	}
	opts = append(base, opts...)
	e.sess = session.New(s.issuer, opts...)
	e.unsubscribe = e.sess.Store().Subscribe(s.observer(e))
	return e
}

// adopt registers a freshly authenticated session and drops the record the browser
// presented before, so session IDs are never carried across a login.
func (s *AuthService) adopt(ctx context.Context, e *entry, previous string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		e.unsubscribe()
		e.sess.Close()
		return
	}
	s.sessions[e.id] = e
	s.mu.Unlock()
	metrics.SessionsActive.Inc()

	if previous != "" && previous != e.id {
		if err := s.repo.Delete(ctx, previous); err != nil {
			s.log.Warn().Err(err).Msg("delete superseded session record")
		}
	}
}

func (s *AuthService) discard(e *entry) {
	e.unsubscribe()
	e.sess.Close()
}

// unregister reports whether e was the live session for its ID.
func (s *AuthService) unregister(e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[e.id] != e {
		return false
	}
	delete(s.sessions, e.id)
	return true
}

func (s *AuthService) lookup(ctx context.Context, sid string) (*entry, error) {
	if sid == "" {
		return nil, domain.ErrSessionNotFound
	}
	if e := s.get(sid); e != nil {
		return e, nil
	}
	v, err, _ := s.restores.Do(sid, func() (any, error) {
		if e := s.get(sid); e != nil {
			return e, nil
		}
		return s.restore(ctx, sid)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

func (s *AuthService) restore(ctx context.Context, sid string) (*entry, error) {
	rec, err := s.repo.Load(ctx, sid)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.log.Warn().Err(err).Msg("load persisted session")
		}
		return nil, err
	}
	if rec.Credentials.Empty() {
		_ = s.repo.Delete(ctx, sid)
		return nil, domain.ErrSessionNotFound
	}

	e := s.newEntry(sid, session.WithCredentials(rec.Credentials))
	id := e.sess.ValidateCurrentSession(ctx)
	if id == nil {
		st := e.sess.Store().Snapshot()
		s.discard(e)
		if st.Credentials.Empty() {
			observe("restore", domain.ErrInvalidCredential)
			if err := s.repo.Delete(ctx, sid); err != nil {
				s.log.Warn().Err(err).Str("session", e.tag).Msg("delete rejected session record")
			}
			return nil, domain.ErrSessionNotFound
		}
		observe("restore", domain.ErrUpstreamUnavailable)
		return nil, fmt.Errorf("restore session: %w", domain.ErrUpstreamUnavailable)
	}

	s.adopt(ctx, e, "")
	observe("restore", nil)
	s.record(e, domain.EventSessionRestored, id, "")
	s.log.Debug().Str("session", e.tag).Str("subject", id.ID).Msg("session restored")
	return e, nil
}

// observer mirrors credential changes into the repository and tears the session down
// once its identity goes away.
func (s *AuthService) observer(e *entry) session.Observer {
	return func(st session.State) {
		switch {
		case st.Authenticated():
			e.authenticated = true
			if st.Credentials != e.persisted {
				s.persist(e, st)
			}
		case e.authenticated:
			e.authenticated = false
			s.end(e, st)
		}
	}
}

func (s *AuthService) persist(e *entry, st session.State) {
	if st.Credentials.Refresh == "" {
		s.log.Warn().Str("session", e.tag).Msg("not persisting credentials without a refresh token")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	rec := domain.PersistedSession{
		Credentials:   st.Credentials,
		SubjectID:     st.Identity.ID,
		LastRenewalAt: st.LastRenewalAt,
	}
	if err := s.repo.Save(ctx, e.id, rec); err != nil {
		s.log.Warn().Err(err).Str("session", e.tag).Msg("persist session credentials")
		return
	}
	e.persisted = st.Credentials
}

func (s *AuthService) end(e *entry, st session.State) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.repo.Delete(ctx, e.id); err != nil {
		s.log.Warn().Err(err).Str("session", e.tag).Msg("delete session record")
	}
	e.persisted = domain.Credentials{}

	if s.unregister(e) {
		metrics.SessionsActive.Dec()
	}
	e.unsubscribe()
	e.sess.Close()

	reason := "logout"
	if st.Err != nil {
		reason = domain.UserMessage(st.Err)
	}
	s.record(e, domain.EventSessionEnded, nil, reason)
	s.log.Debug().Str("session", e.tag).Str("reason", reason).Msg("session ended")
}

func (s *AuthService) record(e *entry, kind domain.SessionEventKind, id *domain.Identity, reason string) {
	if s.audit == nil {
		return
	}
	ev := domain.SessionEvent{
		SessionID: e.tag,
		Kind:      kind,
		Reason:    reason,
		At:        s.cfg.Now().UTC(),
	}
	if id != nil {
		ev.SubjectID = id.ID
		ev.Role = id.Role
		ev.TenantID = id.TenantID
	}
	s.audit.Record(ev)
}

// fingerprint identifies a session in logs and audit records without revealing the
// bearer value.
func fingerprint(sid string) string {
	sum := blake2b.Sum256([]byte(sid))
	return hex.EncodeToString(sum[:8])
}

func observe(action string, err error) {
	metrics.SessionActionsTotal.WithLabelValues(action, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrBadLogin), errors.Is(err, domain.ErrInvalidCredential),
		errors.Is(err, domain.ErrAuthenticationRequired):
		return "rejected"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream"
	default:
		return "error"
	}
}
