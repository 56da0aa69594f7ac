package guard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-intent-settlement/internal/config"
	"solana-intent-settlement/internal/storage/redis"
)

func TestTxReplay_MarkOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := redis.New(context.Background(), config.RedisConfig{Addr: mr.Addr(), Prefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	g, err := NewTxReplay(rdb)
	require.NoError(t, err)
	ctx := context.Background()

	fresh, err := g.MarkOnce(ctx, "abc", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.True(t, mr.Exists("test:tx:abc"))

	fresh, err = g.MarkOnce(ctx, "abc", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = g.MarkOnce(ctx, "def", 0)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, time.Second, mr.TTL("test:tx:def"))

	mr.FastForward(11 * time.Second)
	fresh, err = g.MarkOnce(ctx, "abc", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestTxReplay_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := redis.New(context.Background(), config.RedisConfig{Addr: mr.Addr(), Prefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	g, err := NewTxReplay(rdb)
	require.NoError(t, err)
	mr.Close()

	_, err = g.MarkOnce(context.Background(), "abc", time.Second)
	assert.Error(t, err)

	_, err = NewTxReplay(nil)
	assert.Error(t, err)
}
