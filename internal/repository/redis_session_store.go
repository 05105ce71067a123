package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qrlink/internal/entity"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "qr:session:"

// retentionGrace keeps rows around past their deadline so a stale token is
// diagnosed as expired instead of unknown. Redis reclaims the key afterwards.
const retentionGrace = time.Hour

// confirmScript performs the pending -> confirmed transition in one atomic
// Redis call. Returns 1 when the row was won, 0 when absent, -1 when not
// pending.
var confirmScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local s = cjson.decode(raw)
if s.status ~= 'pending' then
	return -1
end
s.status = 'confirmed'
s.user_id = ARGV[1]
s.confirmed_at = ARGV[2]
redis.call('SET', KEYS[1], cjson.encode(s), 'KEEPTTL')
return 1
`)

type redisLoginSession struct {
	ID          string  `json:"id"`
	TokenHash   string  `json:"token_hash"`
	Status      string  `json:"status"`
	UserID      *string `json:"user_id,omitempty"`
	ExpiresAt   string  `json:"expires_at"`
	ConfirmedAt *string `json:"confirmed_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// RedisLoginSessionStore implements LoginSessionRepository over Redis as an
// alternative to the Postgres backend.
type RedisLoginSessionStore struct {
	client *redis.Client
}

func NewRedisLoginSessionStore(client *redis.Client) *RedisLoginSessionStore {
	return &RedisLoginSessionStore{client: client}
}

func (s *RedisLoginSessionStore) key(hash string) string {
	return redisKeyPrefix + hash
}

func (s *RedisLoginSessionStore) Create(ctx context.Context, session *entity.LoginSession) error {
	ttl := time.Until(session.ExpiresAt) + retentionGrace
	if ttl <= 0 {
		return fmt.Errorf("redis store: expires_at must be in the future")
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	data, err := json.Marshal(toRedisSession(session))
	if err != nil {
		return fmt.Errorf("redis store: marshal: %w", err)
	}
	return s.client.Set(ctx, s.key(session.TokenHash), data, ttl).Err()
}

func (s *RedisLoginSessionStore) FindByTokenHash(ctx context.Context, hash string) (*entity.LoginSession, error) {
	raw, err := s.client.Get(ctx, s.key(hash)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored redisLoginSession
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("redis store: unmarshal: %w", err)
	}
	return fromRedisSession(&stored)
}

func (s *RedisLoginSessionStore) ConfirmIfPending(
	ctx context.Context,
	hash string,
	userID uuid.UUID,
	confirmedAt time.Time,
) (bool, error) {
	result, err := confirmScript.Run(
		ctx,
		s.client,
		[]string{s.key(hash)},
		userID.String(),
		confirmedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// CleanupExpired is a no-op: key TTLs reclaim rows once the retention grace
// has passed.
func (s *RedisLoginSessionStore) CleanupExpired(ctx context.Context) error {
	return nil
}

func toRedisSession(session *entity.LoginSession) *redisLoginSession {
	stored := &redisLoginSession{
		ID:        session.ID.String(),
		TokenHash: session.TokenHash,
		Status:    string(session.Status),
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339Nano),
		CreatedAt: session.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if session.UserID != nil {
		id := session.UserID.String()
		stored.UserID = &id
	}
	if session.ConfirmedAt != nil {
		at := session.ConfirmedAt.UTC().Format(time.RFC3339Nano)
		stored.ConfirmedAt = &at
	}
	return stored
}

func fromRedisSession(stored *redisLoginSession) (*entity.LoginSession, error) {
	id, err := uuid.Parse(stored.ID)
	if err != nil {
		return nil, fmt.Errorf("redis store: bad session id: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, stored.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("redis store: bad expires_at: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("redis store: bad created_at: %w", err)
	}

	session := &entity.LoginSession{
		ID:        id,
		TokenHash: stored.TokenHash,
		Status:    entity.LoginStatus(stored.Status),
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}
	if stored.UserID != nil {
		userID, err := uuid.Parse(*stored.UserID)
		if err != nil {
			return nil, fmt.Errorf("redis store: bad user id: %w", err)
		}
		session.UserID = &userID
	}
	if stored.ConfirmedAt != nil {
		confirmedAt, err := time.Parse(time.RFC3339Nano, *stored.ConfirmedAt)
		if err != nil {
			return nil, fmt.Errorf("redis store: bad confirmed_at: %w", err)
		}
		session.ConfirmedAt = &confirmedAt
	}
	return session, nil
}
