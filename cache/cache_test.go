package cache

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2)
	a, b, d := Key{User: "a"}, Key{User: "b"}, Key{User: "d"}

	require.NoError(t, c.Set(ctx, a, "1"))
	require.NoError(t, c.Set(ctx, b, "2"))
	_, ok, _ := c.Get(ctx, a)
	require.True(t, ok)
	require.NoError(t, c.Set(ctx, d, "3"))

	_, ok, _ = c.Get(ctx, b)
	assert.False(t, ok)
	v, ok, _ := c.Get(ctx, a)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 2, c.Len())

	require.NoError(t, c.Set(ctx, a, "updated"))
	v, _, _ = c.Get(ctx, a)
	assert.Equal(t, "updated", v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUDefaultSize(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(0)
	for i := range DefaultSize + 5 {
		require.NoError(t, c.Set(ctx, Key{User: string(rune('a' + i))}, "x"))
	}
	assert.Equal(t, DefaultSize, c.Len())
}

func TestLRUConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(8)
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				k := Key{System: strconv.Itoa(w), User: strconv.Itoa(i % 10)}
				_ = c.Set(ctx, k, "v")
				_, _, _ = c.Get(ctx, k)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}

func TestKeyDigestSeparatesFields(t *testing.T) {
	assert.NotEqual(t, Key{System: "ab", User: "c"}.Digest(), Key{System: "a", User: "bc"}.Digest())
	assert.Equal(t, Key{System: "s", User: "u"}.Digest(), Key{System: "s", User: "u"}.Digest())
}

// Requires a reachable Redis; set REDIS_ADDR to run.
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	c := NewRedisWithClient(rdb, "test-"+time.Now().Format("150405.000"), time.Minute)
	key := Key{System: "sys", User: "weather"}

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, "Sunny"))
	v, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Sunny", v)

	ttl, err := rdb.TTL(ctx, c.key(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
