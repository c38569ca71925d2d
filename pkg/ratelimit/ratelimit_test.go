package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := repository.NewRedisRepository(&config.RedisConfig{Addr: mr.Addr()})
	defer repo.Close()

	l := NewRedisLimiter(repo, "rl:")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "support:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
	}
	ok, err := l.Allow(ctx, "support:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "support:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are counted separately")

	assert.True(t, mr.Exists("rl:support:1.2.3.4"))
	mr.FastForward(time.Minute + time.Second)
	ok, err = l.Allow(ctx, "support:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window expired")
}

func TestRedisLimiterReportsErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := repository.NewRedisRepository(&config.RedisConfig{Addr: mr.Addr()})
	defer repo.Close()
	mr.Close()

	_, err := NewRedisLimiter(repo, "").Allow(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter()
	now := time.Now()
	l.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k", 2, time.Minute)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k", 2, time.Minute)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "k", 2, time.Minute)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "k", 2, time.Minute)
	assert.True(t, ok)
}

func TestMemoryLimiterSweepsExpiredBucketsPeriodically(t *testing.T) {
	l := NewMemoryLimiter()
	start := time.Now()
	now := start
	l.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, fmt.Sprintf("ip-%d", i), 1, 10*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Len(t, l.buckets, 100)

	now = start.Add(30 * time.Second)
	_, _ = l.Allow(ctx, "late", 1, 10*time.Second)
	assert.Len(t, l.buckets, 101, "expired buckets stay until the next sweep")

	now = start.Add(sweepInterval)
	_, _ = l.Allow(ctx, "fresh", 1, 10*time.Second)
	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "fresh")
}
