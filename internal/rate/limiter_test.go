package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiterFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, "rl:test:", 2, time.Minute)
	fixed := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "app_a|1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, "app_a|1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// otra key no comparte contador
	res, err = l.Allow(ctx, "app_b|1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	// ventana siguiente
	l.now = func() time.Time { return fixed.Add(time.Minute) }
	res, err = l.Allow(ctx, "app_a|1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiterFixedWindow(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	fixed := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, _ := l.Allow(ctx, "k")
		assert.True(t, res.Allowed, "hit %d", i)
	}
	res, _ := l.Allow(ctx, "k")
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, time.Minute, res.RetryAfter)
}
