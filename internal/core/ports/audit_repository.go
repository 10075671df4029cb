package ports

import (
	"context"

	"github.com/surveyhub/portal/internal/core/domain"
)

// AuditRepository stores session lifecycle events.
type AuditRepository interface {
	InsertEvent(ctx context.Context, e *domain.SessionEvent) error
}

// AuditRecorder accepts events without blocking the caller.
type AuditRecorder interface {
	Record(e domain.SessionEvent)
}

// AuditReader lists stored session events.
type AuditReader interface {
	ListByTenant(ctx context.Context, tenantID string, limit int64) ([]domain.SessionEvent, error)
}
