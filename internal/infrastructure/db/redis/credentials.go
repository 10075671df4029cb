package redis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/surveyhub/portal/internal/core/domain"
	"github.com/surveyhub/portal/internal/core/ports"
)

const defaultSessionTTL = 24 * time.Hour

// CredentialRepository stores server-side session credentials in Redis.
// Key format: session:<hex blake2b-256(session id)>. The raw session ID, which is a
// bearer secret held in the browser cookie, is never written.
type CredentialRepository struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ ports.CredentialRepository = (*CredentialRepository)(nil)

// NewCredentialRepository wraps client. Records expire ttl after their last write.
func NewCredentialRepository(client redis.Cmdable, ttl time.Duration) *CredentialRepository {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &CredentialRepository{client: client, ttl: ttl}
}

// Save overwrites the record for sessionID and resets its expiry.
func (r *CredentialRepository) Save(ctx context.Context, sessionID string, rec domain.PersistedSession) error {
	b, err := marshalSession(rec)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, sessionKey(sessionID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns domain.ErrSessionNotFound when no record exists.
func (r *CredentialRepository) Load(ctx context.Context, sessionID string) (*domain.PersistedSession, error) {
	b, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return unmarshalSession(b)
}

// Delete is a no-op for a missing record.
func (r *CredentialRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	sum := blake2b.Sum256([]byte(sessionID))
	return "session:" + hex.EncodeToString(sum[:])
}

func marshalSession(rec domain.PersistedSession) ([]byte, error) {
	if rec.Credentials.Access != "" && rec.Credentials.Refresh == "" {
		return nil, errors.New("save session: refusing to store an access token without a refresh token")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return b, nil
}

func unmarshalSession(b []byte) (*domain.PersistedSession, error) {
	var rec domain.PersistedSession
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("load session: decode: %w", err)
	}
	return &rec, nil
}
