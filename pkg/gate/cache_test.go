package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monad-arcade/paygate/pkg/types"
)

func grantedResult() *types.SettlementResult {
	return &types.SettlementResult{Status: 200}
}

func TestGenerateSettlementKey(t *testing.T) {
	t.Parallel()

	key1 := GenerateSettlementKey("https://example.com/a", "auth")
	key2 := GenerateSettlementKey("https://example.com/a", "auth")
	assert.Equal(t, key1, key2)

	// Different resource or authorization yields a different key, and the
	// separator keeps (resource, auth) pairs from colliding on concatenation.
	assert.NotEqual(t, key1, GenerateSettlementKey("https://example.com/b", "auth"))
	assert.NotEqual(t, key1, GenerateSettlementKey("https://example.com/a", "other"))
	assert.NotEqual(t,
		GenerateSettlementKey("https://example.com/ab", "c"),
		GenerateSettlementKey("https://example.com/a", "bc"))
}

func TestCacheCheckAndMark(t *testing.T) {
	t.Parallel()

	cache := NewSettlementCache(time.Minute)
	key := GenerateSettlementKey("https://example.com/a", "auth")

	status, result, done := cache.CheckAndMark(key)
	require.Equal(t, StatusNotFound, status)
	assert.Nil(t, result)
	require.NotNil(t, done)

	// A second caller for the same key sees the in-flight attempt.
	status2, result2, done2 := cache.CheckAndMark(key)
	assert.Equal(t, StatusInFlight, status2)
	assert.Nil(t, result2)
	assert.Equal(t, done, done2)

	cache.Complete(key, grantedResult(), done)

	status3, result3, _ := cache.CheckAndMark(key)
	assert.Equal(t, StatusCached, status3)
	require.NotNil(t, result3)
	assert.Equal(t, 200, result3.Status)
}

func TestCacheFailReleasesSlot(t *testing.T) {
	t.Parallel()

	cache := NewSettlementCache(time.Minute)
	key := GenerateSettlementKey("https://example.com/a", "auth")

	status, _, done := cache.CheckAndMark(key)
	require.Equal(t, StatusNotFound, status)

	cache.Fail(key, done)
	assert.Nil(t, cache.Get(key))

	// The slot is free again for a retry.
	status, _, done = cache.CheckAndMark(key)
	assert.Equal(t, StatusNotFound, status)
	cache.Fail(key, done)
}

func TestCacheWaitForResult(t *testing.T) {
	t.Parallel()

	t.Run("waiter receives completed result", func(t *testing.T) {
		cache := NewSettlementCache(time.Minute)
		key := GenerateSettlementKey("https://example.com/a", "auth")

		_, _, done := cache.CheckAndMark(key)

		go func() {
			time.Sleep(10 * time.Millisecond)
			cache.Complete(key, grantedResult(), done)
		}()

		status, _, waitDone := cache.CheckAndMark(key)
		require.Equal(t, StatusInFlight, status)

		result, err := cache.WaitForResult(context.Background(), key, waitDone)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, 200, result.Status)
	})

	t.Run("waiter sees nil after failed attempt", func(t *testing.T) {
		cache := NewSettlementCache(time.Minute)
		key := GenerateSettlementKey("https://example.com/a", "auth")

		_, _, done := cache.CheckAndMark(key)

		go func() {
			time.Sleep(10 * time.Millisecond)
			cache.Fail(key, done)
		}()

		status, _, waitDone := cache.CheckAndMark(key)
		require.Equal(t, StatusInFlight, status)

		result, err := cache.WaitForResult(context.Background(), key, waitDone)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("waiter honors context cancellation", func(t *testing.T) {
		cache := NewSettlementCache(time.Minute)
		key := GenerateSettlementKey("https://example.com/a", "auth")

		_, _, done := cache.CheckAndMark(key)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := cache.WaitForResult(ctx, key, done)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCacheExpiry(t *testing.T) {
	t.Parallel()

	cache := NewSettlementCache(20 * time.Millisecond)
	key := GenerateSettlementKey("https://example.com/a", "auth")

	_, _, done := cache.CheckAndMark(key)
	cache.Complete(key, grantedResult(), done)

	require.NotNil(t, cache.Get(key))

	time.Sleep(40 * time.Millisecond)
	assert.Nil(t, cache.Get(key))

	// After expiry the key is free for a new settlement.
	status, _, done := cache.CheckAndMark(key)
	assert.Equal(t, StatusNotFound, status)
	cache.Fail(key, done)
}

func TestCacheConcurrentSingleOwner(t *testing.T) {
	t.Parallel()

	cache := NewSettlementCache(time.Minute)
	key := GenerateSettlementKey("https://example.com/a", "auth")

	const goroutines = 50
	var owners int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _, done := cache.CheckAndMark(key)
			if status == StatusNotFound {
				mu.Lock()
				owners++
				mu.Unlock()
				cache.Complete(key, grantedResult(), done)
				return
			}
			if status == StatusInFlight {
				_, _ = cache.WaitForResult(context.Background(), key, done)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, owners)
	assert.NotNil(t, cache.Get(key))
}
