package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/ports"
)

const auditCollection = "session_events"

// AuditRepository implements ports.AuditRepository on the session_events collection.
type AuditRepository struct {
	coll *mongo.Collection
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(auditCollection)}
}

type sessionEventDoc struct {
	SessionID  string    `bson:"session_id"`
	Kind       string    `bson:"kind"`
	SubjectID  string    `bson:"subject_id,omitempty"`
	Role       string    `bson:"role,omitempty"`
	TenantID   string    `bson:"tenant_id,omitempty"`
	Reason     string    `bson:"reason,omitempty"`
	At         time.Time `bson:"at"`
	RecordedAt time.Time `bson:"recorded_at"`
}

// EnsureIndexes creates the lookup indexes and, when retention is positive, a TTL
// index that expires events retention after they happened.
func (r *AuditRepository) EnsureIndexes(ctx context.Context, retention time.Duration) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "at", Value: 1}}},
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "at", Value: -1}}},
	}
	if retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "recorded_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
		})
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create audit indexes: %w", err)
	}
	return nil
}

// InsertEvent persists one lifecycle event.
func (r *AuditRepository) InsertEvent(ctx context.Context, e *domain.SessionEvent) error {
	if _, err := r.coll.InsertOne(ctx, toEventDoc(e, time.Now())); err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// ListByTenant returns the most recent events of a tenant, newest first.
func (r *AuditRepository) ListByTenant(ctx context.Context, tenantID string, limit int64) ([]domain.SessionEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find session events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []sessionEventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode session events: %w", err)
	}
	out := make([]domain.SessionEvent, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func toEventDoc(e *domain.SessionEvent, now time.Time) sessionEventDoc {
	return sessionEventDoc{
		SessionID:  e.SessionID,
		Kind:       string(e.Kind),
		SubjectID:  e.SubjectID,
		Role:       string(e.Role),
		TenantID:   e.TenantID,
		Reason:     e.Reason,
		At:         e.At.UTC(),
		RecordedAt: now.UTC(),
	}
}

func (d sessionEventDoc) toDomain() domain.SessionEvent {
	return domain.SessionEvent{
		SessionID: d.SessionID,
		Kind:      domain.SessionEventKind(d.Kind),
		SubjectID: d.SubjectID,
		Role:      domain.Role(d.Role),
		TenantID:  d.TenantID,
		Reason:    d.Reason,
		At:        d.At,
	}
}
