package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-client/internal/session"
)

// SessionStore keeps session records as JSON strings under session:<id>.
type SessionStore struct {
	client *redis.Client
	prefix string
}

var _ session.Store = (*SessionStore)(nil)

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client, prefix: "session:"}
}

func (s *SessionStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

func (s *SessionStore) Save(ctx context.Context, rec session.Record, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(rec.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return session.ErrSessionExists
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context, id uuid.UUID) (session.Record, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Record{}, session.ErrSessionNotFound
	}
	if err != nil {
		return session.Record{}, fmt.Errorf("load session: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return session.Record{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, nil
}

var deleteScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if not val then
  return 0
end
if cjson.decode(val).token == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	n, err := deleteScript.Run(ctx, s.client, []string{s.key(id)}, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

// Ping reports whether Redis answers; used by readiness checks.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
