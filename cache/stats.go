package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/apex/log"

	"github.com/AniketPatel148/CivicLens/metrics"
)

const (
	SummaryKey    = "stats:summary"
	zipcodePrefix = "stats:zipcode:"

	resultHit  = "hit"
	resultMiss = "miss"
)

func ZipcodeKey(zipcode string) string {
	return zipcodePrefix + zipcode
}

// StatsCache stores aggregation results as JSON. Cache failures are logged
// and treated as misses; they never fail a request.
//
// Writers read Generation before loading the rows they aggregate and pass
// it to Store. An Invalidate in between makes that Store a no-op, so a
// result computed from rows older than a write is never cached after the
// write. Across several service instances only the Redis delete applies
// and a stale entry can survive until its TTL.
type StatsCache struct {
	cache Cache
	ttl   time.Duration
	gen   atomic.Uint64
}

func NewStatsCache(c Cache, ttl time.Duration) *StatsCache {
	if c == nil {
		c = Noop{}
	}
	return &StatsCache{cache: c, ttl: ttl}
}

// Load decodes the cached value of key into dst and reports whether it was found.
func (s *StatsCache) Load(ctx context.Context, key string, dst any) bool {
	b, err := s.cache.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		metrics.RecordCacheLookup(resultMiss)
		return false
	}
	if err == nil {
		err = json.Unmarshal(b, dst)
	}
	if err != nil {
		metrics.RecordCacheLookup(metrics.ResultError)
		log.WithError(err).WithField("key", key).Warn("stats cache read failed")
		return false
	}
	metrics.RecordCacheLookup(resultHit)
	return true
}

// Generation identifies the current invalidation epoch.
func (s *StatsCache) Generation() uint64 {
	return s.gen.Load()
}

// Store caches v under key unless the cache was invalidated after gen.
func (s *StatsCache) Store(ctx context.Context, key string, v any, gen uint64) {
	if s.gen.Load() != gen {
		return
	}
	b, err := json.Marshal(v)
	if err == nil {
		err = s.cache.Set(ctx, key, b, s.ttl)
	}
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("stats cache write failed")
		return
	}
	// An Invalidate may have run between the check and the write.
	if s.gen.Load() != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			log.WithError(err).WithField("key", key).Warn("stats cache invalidation failed")
		}
	}
}

// Invalidate drops the citywide summary and, when given, one zipcode entry.
func (s *StatsCache) Invalidate(ctx context.Context, zipcode string) {
	s.gen.Add(1)
	keys := []string{SummaryKey}
	if zipcode != "" {
		keys = append(keys, ZipcodeKey(zipcode))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.WithError(err).Warn("stats cache invalidation failed")
	}
}
