package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"membership-api/pkg/logging"

	"github.com/redis/go-redis/v9"
)

const (
	lockTTL       = 30 * time.Second
	lockRetryWait = 50 * time.Millisecond
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisService provides cross-instance locks and rate limits.
type RedisService struct {
	client *redis.Client
	prefix string
}

// NewRedisService wraps an already connected client.
func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{client: client, prefix: "membership:"}
}

// Lock acquires key with SET NX and a random token, polling until ctx is done.
// The lock expires on its own if the holder dies.
func (r *RedisService) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := r.prefix + "lock:" + key
	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryWait):
		}
	}

	return func() {
		// Release even when the caller's context is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		released, err := unlockScript.Run(releaseCtx, r.client, []string{lockKey}, token).Int()
		if err != nil {
			logging.Warnf("Failed to release lock %s, it stays held until its TTL: %v", key, err)
			return
		}
		if released == 0 {
			logging.Warnf("Lock %s expired before release", key)
		}
	}, nil
}

// Allow sets a key for window and reports whether it was absent.
func (r *RedisService) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+"rate_limit:"+key, "1", window).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return ok, nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
