// Package cache provides a read-through TTL cache in front of a paste.Store.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pavel-fokin/paste-stash/internal/paste"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paste_stash_cache_hits_total",
		Help: "Store reads served from the cache",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paste_stash_cache_misses_total",
		Help: "Store reads that went to the backend",
	})
)

// Store caches values read from the backend for a fixed TTL. Each process has
// its own cache, so other instances may see stale values until they expire.
// Values longer than maxValueSize bytes are never cached, which bounds the
// cache to size*maxValueSize bytes.
type Store struct {
	backend      paste.Store
	lru          *expirable.LRU[string, string]
	maxValueSize int
}

// New wraps backend with a cache of at most size entries of at most
// maxValueSize bytes each
func New(backend paste.Store, size int, ttl time.Duration, maxValueSize int) *Store {
	return &Store{
		backend:      backend,
		lru:          expirable.NewLRU[string, string](size, nil, ttl),
		maxValueSize: maxValueSize,
	}
}

// Get returns the cached value or reads it from the backend. Missing keys
// are not cached.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok := s.lru.Get(key); ok {
		cacheHitsTotal.Inc()
		return v, true, nil
	}
	cacheMissesTotal.Inc()

	v, found, err := s.backend.Get(ctx, key)
	if err != nil || !found {
		return "", found, err
	}
	s.add(key, v)
	return v, true, nil
}

// Put writes through to the backend and refreshes the cached value
func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := s.backend.Put(ctx, key, value); err != nil {
		s.lru.Remove(key)
		return err
	}
	s.add(key, value)
	return nil
}

// add caches value, dropping any older value for key if value is too large
func (s *Store) add(key, value string) {
	if len(value) > s.maxValueSize {
		s.lru.Remove(key)
		return
	}
	s.lru.Add(key, value)
}

// Delete removes key from the backend and the cache
func (s *Store) Delete(ctx context.Context, key string) error {
	s.lru.Remove(key)
	return s.backend.Delete(ctx, key)
}

// List always asks the backend
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}
