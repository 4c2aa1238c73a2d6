package redisrepo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLockValue = "LOCK"
	idemResPrefix = "RES:"
)

// IdemState is what an idempotency key currently guards.
type IdemState int

const (
	// IdemAcquired means the caller now owns the key and must either save
	// a result or release it.
	IdemAcquired IdemState = iota
	// IdemInProgress means another request holds the key.
	IdemInProgress
	// IdemDone means a result was saved for the key.
	IdemDone
)

// IdempotencyStore remembers the response of a completed request under an
// Idempotency-Key so a retried request gets the same answer.
type IdempotencyStore struct {
	rdb     *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &IdempotencyStore{rdb: rdb, ttl: ttl, lockTTL: time.Minute}
}

// Begin claims key, or reports that it is taken. For IdemDone the saved
// payload is returned.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (IdemState, string, error) {
	ok, err := s.rdb.SetNX(ctx, key, idemLockValue, s.lockTTL).Result()
	if err != nil {
		return 0, "", err
	}
	if ok {
		return IdemAcquired, "", nil
	}

	payload, done, err := s.GetResult(ctx, key)
	if err != nil {
		return 0, "", err
	}
	if done {
		return IdemDone, payload, nil
	}

	return IdemInProgress, "", nil
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemResPrefix+jsonPayload, s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if payload, ok := strings.CutPrefix(v, idemResPrefix); ok {
		return payload, true, nil
	}

	return "", false, nil
}

// Release frees a claimed key so the request may be retried.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
