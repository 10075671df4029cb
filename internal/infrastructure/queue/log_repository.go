package queue

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/surveyhub/portal/internal/core/domain"
)

// LogRepository writes session events to the log. It backs the dispatcher when no
// MongoDB is configured.
type LogRepository struct {
	log zerolog.Logger
}

// NewLogRepository returns a LogRepository.
func NewLogRepository(log zerolog.Logger) *LogRepository {
	return &LogRepository{log: log}
}

// InsertEvent never fails.
func (r *LogRepository) InsertEvent(_ context.Context, e *domain.SessionEvent) error {
	r.log.Info().
		Str("session", e.SessionID).
		Str("kind", string(e.Kind)).
		Str("subject", e.SubjectID).
		Str("role", string(e.Role)).
		Str("tenant", e.TenantID).
		Str("reason", e.Reason).
		Time("at", e.At).
		Msg("session event")
	return nil
}
