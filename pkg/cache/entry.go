package cache

import (
	"time"
)

// CacheEntry represents a cached response body.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// Expires is when the entry becomes stale. Zero means the manager's TTL applies.
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
