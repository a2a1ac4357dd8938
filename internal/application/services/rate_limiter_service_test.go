package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	impl "github.com/avatarctic/replaycache/internal/application/services"
	"github.com/avatarctic/replaycache/internal/mocks"
)

func TestRateLimiter_AllowsUpToBurst(t *testing.T) {
	count := 0
	repo := &mocks.RateLimitRepositoryMock{IncrementWindowFn: func(_ context.Context, subject string, window time.Duration, prefix string, ttl time.Duration) (int, time.Time, error) {
		require.Equal(t, "alice", subject)
		require.Equal(t, "ratelimit:identity", prefix)
		require.Equal(t, 2*window, ttl)
		count++
		return count, time.Now().Truncate(window), nil
	}}
	svc := impl.NewRateLimiterService(repo, &impl.RateLimiterConfig{DefaultRequestsPerMinute: 2, BurstMultiplier: 1.5}, nil)

	for i := 0; i < 3; i++ {
		allowed, _, limit, _, err := svc.Allow(context.Background(), "alice")
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, 2, limit)
	}
	allowed, remaining, _, _, err := svc.Allow(context.Background(), "alice")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 0, remaining)
}

func TestRateLimiter_OverridesPerIdentity(t *testing.T) {
	repo := &mocks.RateLimitRepositoryMock{}
	svc := impl.NewRateLimiterService(repo, &impl.RateLimiterConfig{Overrides: map[string]int{"batch": 1000}}, nil)

	_, _, limit, _, err := svc.Allow(context.Background(), "batch")
	require.NoError(t, err)
	require.Equal(t, 1000, limit)

	_, _, limit, _, err = svc.Allow(context.Background(), "other")
	require.NoError(t, err)
	require.Equal(t, 120, limit)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	repo := &mocks.RateLimitRepositoryMock{IncrementWindowFn: func(context.Context, string, time.Duration, string, time.Duration) (int, time.Time, error) {
		return 0, time.Now(), errors.New("redis down")
	}}
	svc := impl.NewRateLimiterService(repo, nil, nil)

	allowed, _, _, _, err := svc.Allow(context.Background(), "alice")
	require.Error(t, err)
	require.True(t, allowed)
}
