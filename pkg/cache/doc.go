// Package cache provides a Redis-backed cache for call history page bodies.
//
// Re-running the same date range within the cache TTL skips the history
// API round trip for pages already seen. Recordings themselves are never
// cached.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	key := cache.CacheKey{
//		Endpoint: "api/histories",
//		Params:   url.Values{"page": []string{"1"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then manager.Set(ctx, key, &cache.CacheEntry{Data: body})
//	}
//
// # Metrics
//
//   - cdr_cache_hits_total - Cache hits
//   - cdr_cache_misses_total - Cache misses
//   - cdr_cache_stored_bytes_total - Bytes written
//   - cdr_cache_errors_total{operation} - Cache operation errors
package cache
