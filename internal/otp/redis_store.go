package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/breezeauth/riskgate/internal/database"
	"github.com/breezeauth/riskgate/internal/model"
)

const (
	challengePrefix = "otp_challenge:"
	failuresPrefix  = "otp_failures:"
)

// redisRecord is the stored form of a challenge; unlike the API form it keeps the issuer secret
type redisRecord struct {
	model.Challenge
	Secret string `json:"secret,omitempty"`
}

// RedisStore keeps challenges in Redis so every server instance sees the same gate
type RedisStore struct {
	rdb *database.Redis
}

// NewRedisStore creates a RedisStore
func NewRedisStore(rdb *database.Redis) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*model.Challenge, error) {
	var rec redisRecord
	if err := s.rdb.GetJSON(ctx, challengePrefix+sessionID, &rec); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	failures, err := s.rdb.GetInt(ctx, failuresPrefix+sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge failures: %w", err)
	}
	c := rec.Challenge
	c.Secret = rec.Secret
	c.Failures = failures
	return &c, nil
}

func (s *RedisStore) Create(ctx context.Context, c *model.Challenge, ttl time.Duration) (bool, error) {
	created, err := s.rdb.SetJSONIfAbsent(ctx, challengePrefix+c.SessionID, redisRecord{Challenge: *c, Secret: c.Secret}, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to create challenge: %w", err)
	}
	if created {
		// a stale counter from an expired challenge must not carry over
		if err := s.rdb.Delete(ctx, failuresPrefix+c.SessionID); err != nil {
			return true, fmt.Errorf("failed to reset challenge failures: %w", err)
		}
	}
	return created, nil
}

func (s *RedisStore) Save(ctx context.Context, c *model.Challenge, ttl time.Duration) error {
	if err := s.rdb.SetJSON(ctx, challengePrefix+c.SessionID, redisRecord{Challenge: *c, Secret: c.Secret}, ttl); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	if err := s.rdb.Expire(ctx, failuresPrefix+c.SessionID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to extend challenge failures: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordFailure(ctx context.Context, sessionID string, ttl time.Duration) (int, error) {
	n, err := s.rdb.IncrWithTTL(ctx, failuresPrefix+sessionID, ttl)
	if err != nil {
		return 0, fmt.Errorf("failed to record challenge failure: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Delete(ctx, challengePrefix+sessionID, failuresPrefix+sessionID); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}
