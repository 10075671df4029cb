package ports

import (
	"context"

	"github.com/surveyhub/portal/internal/core/domain"
)

// SessionResult binds a browser session ID to its current view.
type SessionResult struct {
	SessionID string
	View      domain.SessionView
}

// AuthService manages server-side browser sessions keyed by an opaque session ID.
type AuthService interface {
	Login(ctx context.Context, sessionID, username, password string) (*SessionResult, error)
	Register(ctx context.Context, sessionID string, reg domain.Registration) (*SessionResult, error)
	Logout(ctx context.Context, sessionID string)
	Refresh(ctx context.Context, sessionID string) (*SessionResult, error)
	Current(ctx context.Context, sessionID string) (*SessionResult, error)
	AccessToken(ctx context.Context, sessionID string) (string, error)
}
