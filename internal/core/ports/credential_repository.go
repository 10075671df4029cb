package ports

import (
	"context"

	"github.com/surveyhub/portal/internal/core/domain"
)

// CredentialRepository persists the credential pair of a server-side browser session.
// Load returns domain.ErrSessionNotFound when no record exists for sessionID.
type CredentialRepository interface {
	Save(ctx context.Context, sessionID string, record domain.PersistedSession) error
	Load(ctx context.Context, sessionID string) (*domain.PersistedSession, error)
	Delete(ctx context.Context, sessionID string) error
}
