package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/findata/testkit"
)

// setupDistributed 创建分布式限流器，Redis 不可用时跳过
func setupDistributed(t *testing.T) Limiter {
	t.Helper()

	conn := testkit.GetRedisConnector(t)
	prefix := fmt.Sprintf("findata_test:ratelimit:%d:", time.Now().UnixNano())

	l, err := NewDistributed(conn, &DistributedConfig{Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestDistributed_NilConnector(t *testing.T) {
	_, err := NewDistributed(nil, nil)
	assert.ErrorIs(t, err, ErrConnectorNil)
}

func TestDistributed_MinuteWindow(t *testing.T) {
	l := setupDistributed(t)
	ctx := context.Background()

	l.Configure("alphavantage", Limit{PerMinute: 3})

	admitted := 0
	for i := 0; i < 5; i++ {
		allowed, err := l.TryAcquire(ctx, "alphavantage")
		require.NoError(t, err)
		if allowed {
			admitted++
		}
	}
	assert.Equal(t, 3, admitted)
}

func TestDistributed_AdmissionIncrementsBothCounts(t *testing.T) {
	l := setupDistributed(t)
	ctx := context.Background()

	l.Configure("finnhub", Limit{PerMinute: 10, PerDay: 100})

	allowed, err := l.TryAcquire(ctx, "finnhub")
	require.NoError(t, err)
	require.True(t, allowed)

	u, err := l.Usage(ctx, "finnhub")
	require.NoError(t, err)
	assert.Equal(t, 1, u.MinuteCount)
	assert.Equal(t, 1, u.DayCount)
}

func TestDistributed_UnconfiguredProviderUnlimited(t *testing.T) {
	l := setupDistributed(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := l.TryAcquire(ctx, "unknown")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestDistributed_SharedQuotaAcrossInstances(t *testing.T) {
	conn := testkit.GetRedisConnector(t)
	prefix := fmt.Sprintf("findata_test:ratelimit:%d:", time.Now().UnixNano())
	ctx := context.Background()

	// 两个限流器实例共享同一份 Redis 配额
	l1, err := NewDistributed(conn, &DistributedConfig{Prefix: prefix})
	require.NoError(t, err)
	l2, err := NewDistributed(conn, &DistributedConfig{Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() { l1.Close(); l2.Close() })

	l1.Configure("p", Limit{PerMinute: 2})
	l2.Configure("p", Limit{PerMinute: 2})

	allowed, err := l1.TryAcquire(ctx, "p")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = l2.TryAcquire(ctx, "p")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = l1.TryAcquire(ctx, "p")
	require.NoError(t, err)
	assert.False(t, allowed, "共享配额耗尽后任一实例都应拒绝")
}
