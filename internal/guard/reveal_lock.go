// Package guard keeps a second reveal of the same commitment from running
// while the first is still executing, across service instances.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"solana-intent-settlement/internal/observability"
	"solana-intent-settlement/internal/storage/redis"
)

// ErrRevealInFlight is returned when another reveal of the commitment holds
// the lock.
var ErrRevealInFlight = errors.New("reveal already in flight")

// DefaultTTL bounds how long a crashed holder can block a commitment.
const DefaultTTL = 30 * time.Second

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RevealLock is a Redis SETNX lock keyed by commitment address.
type RevealLock struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRevealLock creates a RevealLock. A non-positive ttl uses DefaultTTL.
func NewRevealLock(rdb *redis.Client, ttl time.Duration) (*RevealLock, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required to the reveal lock")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RevealLock{rdb: rdb, ttl: ttl}, nil
}

// Acquire takes the lock for key. The returned release is safe to call once
// the reveal finishes; it never deletes a lock re-acquired by someone else
// after expiry.
func (l *RevealLock) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.rdb.Key("reveal", key)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SetNX %s: %w", redisKey, err)
	}
	if !ok {
		observability.RecordRevealContended()
		return nil, fmt.Errorf("%w: %s", ErrRevealInFlight, key)
	}

	release := func() {
		// The request context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{redisKey}, token).Err()
	}
	return release, nil
}
