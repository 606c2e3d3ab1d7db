package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Load reads key and decodes its payload into a T. A payload that no
// longer decodes is deleted and reported as ErrInvalidEntry.
func Load[T any](ctx context.Context, m *Manager, key Key) (T, error) {
	var v T

	entry, err := m.Get(ctx, key)
	if err != nil {
		return v, err
	}

	if err := json.Unmarshal(entry.Data, &v); err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		_ = m.Delete(ctx, key)
		return v, fmt.Errorf("%w: decode %s: %v", ErrInvalidEntry, key, err)
	}
	return v, nil
}

// Store encodes v and writes it under key for ttl.
func Store(ctx context.Context, m *Manager, key Key, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		CacheErrors.WithLabelValues("encode").Inc()
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return m.Set(ctx, key, NewEntry(data, ttl))
}
