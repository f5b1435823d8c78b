// Package cache remembers recent suggestions by the exact context they were
// generated for, so retyping the same text does not cost a backend call.
package cache

import (
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
)

// Suggestions is a TTL- and capacity-bounded suggestion cache. It is safe for
// concurrent use. A nil *Suggestions is a disabled cache.
type Suggestions struct {
	c *ttlcache.Cache[uint64, string]
}

// New creates a cache and starts its expiry loop. Call Close to stop it.
func New(ttl time.Duration, capacity int) *Suggestions {
	c := ttlcache.New[uint64, string](
		ttlcache.WithTTL[uint64, string](ttl),
		ttlcache.WithCapacity[uint64, string](uint64(capacity)),
		ttlcache.WithDisableTouchOnHit[uint64, string](),
	)
	go c.Start()
	return &Suggestions{c: c}
}

// Key hashes the backend id and the context window around the cursor.
func Key(backend, prefix, suffix string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(backend)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(prefix)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(suffix)
	return d.Sum64()
}

// Get returns the cached suggestion for key.
func (s *Suggestions) Get(key uint64) (string, bool) {
	if s == nil {
		return "", false
	}
	item := s.c.Get(key)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Put stores a non-empty suggestion.
func (s *Suggestions) Put(key uint64, text string) {
	if s == nil || text == "" {
		return
	}
	s.c.Set(key, text, ttlcache.DefaultTTL)
}

// Len returns the number of live entries.
func (s *Suggestions) Len() int {
	if s == nil {
		return 0
	}
	return s.c.Len()
}

// Close stops the expiry loop.
func (s *Suggestions) Close() {
	if s != nil {
		s.c.Stop()
	}
}
