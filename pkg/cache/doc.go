// Package cache stores resolved Evergreen lookups in Redis.
//
// Patch details are fetched through the GraphQL API one identifier at a
// time. Re-running an export over an overlapping window asks for most of
// the same patches again, so the client keeps each decoded payload in
// Redis for a configurable TTL and consults it before going to the
// network.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Operation: "PatchQuery",
//		Params:    map[string]string{"id": patchID},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from Evergreen, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(payload, time.Hour))
//	}
//
// # Metrics
//
//   - evg_cache_hits_total - Cache hits
//   - evg_cache_misses_total - Cache misses
//   - evg_cache_written_bytes_total - Bytes written to Redis
//   - evg_cache_errors_total{operation} - Cache operation errors
//
// Cache failures are never fatal to a lookup: callers log them and fall
// back to the network.
package cache
