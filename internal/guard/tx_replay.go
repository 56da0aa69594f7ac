package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-intent-settlement/internal/storage/redis"
)

// TxReplay remembers executed transaction ids in Redis so every instance
// rejects a replayed batch.
type TxReplay struct {
	rdb *redis.Client
}

func NewTxReplay(rdb *redis.Client) (*TxReplay, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required to the replay guard")
	}
	return &TxReplay{rdb: rdb}, nil
}

// MarkOnce stores id for ttl and reports false when it was already stored.
func (g *TxReplay) MarkOnce(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	key := g.rdb.Key("tx", id)
	ok, err := g.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX %s: %w", key, err)
	}
	return ok, nil
}
