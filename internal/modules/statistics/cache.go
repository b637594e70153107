package statistics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// hashFunds creates a deterministic key from the fund set, the window end and the
// options that change the result. Funds are sorted so order never matters.
func hashFunds(funds []string, end time.Time, opts Options) string {
	sorted := make([]string, len(funds))
	copy(sorted, funds)
	sort.Strings(sorted)

	keyData := fmt.Sprintf("%s|%s|%s|%s|%d|%.4f",
		strings.Join(sorted, ","), end.Format("2006-01-02"),
		opts.ReturnKind, opts.Frequency, opts.MinObservations, opts.Shrinkage)
	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16])
}

type cacheEntry struct {
	estimate *Estimate
	expires  time.Time
}

// estimateCache is an in-memory TTL map shared across requests
type estimateCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newEstimateCache(ttl time.Duration) *estimateCache {
	return &estimateCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *estimateCache) get(key string) (*Estimate, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.estimate, true
}

func (c *estimateCache) put(key string, est *Estimate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{estimate: est, expires: c.now().Add(c.ttl)}
}

// Purge drops expired entries and returns how many were removed
func (e *Estimator) Purge() int {
	c := e.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// CachedEstimates is the number of live cache entries
func (e *Estimator) CachedEstimates() int {
	e.cache.mu.RLock()
	defer e.cache.mu.RUnlock()
	return len(e.cache.entries)
}
