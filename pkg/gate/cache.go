package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/monad-arcade/paygate/pkg/types"
)

// SettlementCache guards against duplicate settlement of the same
// authorization. Successful settlement results are cached per
// (resource, authorization) key and concurrent duplicates wait for the
// in-flight attempt instead of settling a second time, so a client retry
// after a timeout never pays twice.
type SettlementCache struct {
	mu       sync.Mutex
	results  map[string]*types.SettlementResult
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

// NewSettlementCache creates a settlement cache with the given TTL.
func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		results:  make(map[string]*types.SettlementResult),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// GenerateSettlementKey derives the dedup key from the canonical resource
// URL and the opaque authorization. The authorization already embeds the
// client's signature and nonce, so the hash is unique per payment attempt.
func GenerateSettlementKey(resourceURL, authorization string) string {
	hash := sha256.New()
	hash.Write([]byte(resourceURL))
	hash.Write([]byte{0})
	hash.Write([]byte(authorization))
	return hex.EncodeToString(hash.Sum(nil))
}

// CacheStatus is the result of checking the cache.
type CacheStatus int

const (
	// StatusNotFound means no cached result and no in-flight attempt; the
	// caller now owns the settlement slot.
	StatusNotFound CacheStatus = iota
	// StatusCached means a previously settled result was found.
	StatusCached
	// StatusInFlight means another request is settling this key right now.
	StatusInFlight
)

// CheckAndMark atomically checks the cache and, when the key is free, marks
// it in-flight. Exactly one concurrent caller per key receives
// StatusNotFound.
func (c *SettlementCache) CheckAndMark(key string) (CacheStatus, *types.SettlementResult, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, exists := c.expiry[key]; exists {
		if time.Now().Before(expiry) {
			if result, ok := c.results[key]; ok {
				return StatusCached, result, nil
			}
		}
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if done, exists := c.inFlight[key]; exists {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return StatusNotFound, nil, done
}

// WaitForResult blocks until the in-flight attempt completes or the context
// is cancelled. A nil result with nil error means the attempt failed and the
// caller may retry.
func (c *SettlementCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*types.SettlementResult, error) {
	select {
	case <-done:
		return c.Get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the cached result for key, or nil if absent or expired.
func (c *SettlementCache) Get(key string) *types.SettlementResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, exists := c.expiry[key]
	if !exists {
		return nil
	}
	if time.Now().After(expiry) {
		delete(c.results, key)
		delete(c.expiry, key)
		return nil
	}

	return c.results[key]
}

// Complete caches a settled result, releases the in-flight slot and wakes
// any waiters.
func (c *SettlementCache) Complete(key string, result *types.SettlementResult, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = result
	c.expiry[key] = time.Now().Add(c.ttl)

	delete(c.inFlight, key)
	close(done)

	c.evictExpiredLocked()
}

// Fail releases the in-flight slot without caching, so the settlement may
// be retried.
func (c *SettlementCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

// evictExpiredLocked removes expired entries. Caller must hold mu.
func (c *SettlementCache) evictExpiredLocked() {
	now := time.Now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}
}
