package guard

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// DecisionCache memoizes evaluation outcomes keyed by authorization
// revision, subject, resource URI and action. Entries expire quickly; the
// cache only absorbs bursts of identical checks.
type DecisionCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// DecisionCacheConfig sizes the cache. Zero fields take defaults.
type DecisionCacheConfig struct {
	NumCounters int64
	MaxCost     int64
	TTL         time.Duration
}

// NewDecisionCache builds a cache, falling back to defaults for any unset
// field: 10k counters, 1Mi cost, 1s TTL.
func NewDecisionCache(cfg DecisionCacheConfig) (*DecisionCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e4
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 20
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Second
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &DecisionCache{cache: c, ttl: cfg.TTL}, nil
}

// Get returns the cached decision for key, reporting whether one was found.
func (d *DecisionCache) Get(key string) (bool, bool) {
	v, ok := d.cache.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Set stores a decision under key for the configured TTL.
func (d *DecisionCache) Set(key string, decision bool) {
	d.cache.SetWithTTL(key, decision, 1, d.ttl)
}

// Clear drops every cached decision.
func (d *DecisionCache) Clear() {
	d.cache.Clear()
}

// Wait blocks until buffered writes are applied. Writes are asynchronous;
// callers that must observe their own Set immediately call Wait first.
func (d *DecisionCache) Wait() {
	d.cache.Wait()
}
