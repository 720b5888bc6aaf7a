package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MishC/NotatApp/core"
)

const defaultRedisPrefix = "notatapp:"

// RedisChallengeStore is a Redis implementation of the ChallengeStore interface.
// Keys expire with the challenge so an abandoned login never leaves a live code behind.
type RedisChallengeStore struct {
	client *redis.Client
	prefix string
}

// NewRedisChallengeStore creates a new Redis challenge store
func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{
		client: client,
		prefix: defaultRedisPrefix + "challenge:",
	}
}

func (s *RedisChallengeStore) key(subjectID string, channel core.Channel) string {
	return s.prefix + subjectID + ":" + string(channel)
}

// Put stores a challenge until its expiry
func (s *RedisChallengeStore) Put(ctx context.Context, challenge core.Challenge) error {
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: challenge already expired", core.ErrInternal)
	}
	raw, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}
	if err := s.client.Set(ctx, s.key(challenge.SubjectID, challenge.Channel), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// Get loads a live challenge
func (s *RedisChallengeStore) Get(ctx context.Context, subjectID string, channel core.Channel) (*core.Challenge, error) {
	raw, err := s.client.Get(ctx, s.key(subjectID, channel)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	var out core.Challenge
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}
	return &out, nil
}

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1]
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Consume deletes the challenge if it was not replaced since it was read;
// only the caller that removed the key wins
func (s *RedisChallengeStore) Consume(ctx context.Context, challenge core.Challenge) (bool, error) {
	raw, err := json.Marshal(challenge)
	if err != nil {
		return false, fmt.Errorf("failed to encode challenge: %w", err)
	}
	n, err := compareAndDelete.Run(ctx, s.client, []string{s.key(challenge.SubjectID, challenge.Channel)}, raw).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to consume challenge: %w", err)
	}
	return n > 0, nil
}

// RedisSessionStore is a Redis implementation of the SessionStore interface
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

type redisSession struct {
	SubjectID string    `json:"subject_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisSessionStore creates a new Redis session store
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: defaultRedisPrefix + "session:",
	}
}

func (s *RedisSessionStore) tokenKey(token string) string {
	return s.prefix + "token:" + token
}

func (s *RedisSessionStore) subjectKey(subjectID string) string {
	return s.prefix + "subject:" + subjectID
}

// Save replaces the subject's session; the previous token stops resolving
func (s *RedisSessionStore) Save(ctx context.Context, subjectID, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: session already expired", core.ErrInternal)
	}
	raw, err := json.Marshal(redisSession{SubjectID: subjectID, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	prev, err := s.client.Get(ctx, s.subjectKey(subjectID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to load previous session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev != "" && prev != token {
			p.Del(ctx, s.tokenKey(prev))
		}
		p.Set(ctx, s.tokenKey(token), raw, ttl)
		p.Set(ctx, s.subjectKey(subjectID), token, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// FindBySessionToken resolves a refresh token
func (s *RedisSessionStore) FindBySessionToken(ctx context.Context, token string) (*core.Session, error) {
	raw, err := s.client.Get(ctx, s.tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var stored redisSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &core.Session{SubjectID: stored.SubjectID, Token: token, ExpiresAt: stored.ExpiresAt}, nil
}

// Clear removes the subject's session if any
func (s *RedisSessionStore) Clear(ctx context.Context, subjectID string) error {
	token, err := s.client.Get(ctx, s.subjectKey(subjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to load session: %w", err)
	}
	if err := s.client.Del(ctx, s.tokenKey(token), s.subjectKey(subjectID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
