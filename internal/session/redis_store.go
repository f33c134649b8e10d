package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:v1:"

// RedisStore keeps sessions in Redis so multiple service instances share
// login state. Records expire after the configured TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get fetches the session record, returning the anonymous state when the key
// is missing or expired.
func (s *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return Anonymous(), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("session lookup: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// BeginLogin stores a fresh pending login, overwriting whatever came before.
func (s *RedisStore) BeginLogin(ctx context.Context, id, phone, otp string) error {
	return s.put(ctx, id, Session{
		State:   StatePending,
		Pending: &PendingLogin{PhoneNumber: phone, OTP: otp},
	})
}

// Authenticate binds the session to the user and consumes the pending login.
func (s *RedisStore) Authenticate(ctx context.Context, id, userID string) error {
	return s.put(ctx, id, Session{State: StateAuthenticated, UserID: userID})
}

// Logout deletes the session record.
func (s *RedisStore) Logout(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) put(ctx context.Context, id string, sess Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+id, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}
