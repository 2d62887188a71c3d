// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache stores successful query results keyed by normalized query
// shape, with a per-model TTL chosen at insertion time and an optional
// persistent tier that survives restarts.
package cache

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/erpquery/query"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	cacheLookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "erpquery",
		Subsystem: "cache",
		Name:      "lookup_total",
		Help:      "Cache lookups by outcome: hit, miss, expired, store_hit",
	}, []string{"outcome"})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "erpquery",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries evicted from the in-memory tier under size pressure",
	})
)

// =============================================================================
// TTL Policy
// =============================================================================

// TTLPolicy returns the lifetime for a result from the given model. The
// engine supplies config.ModelRegistry.TTL; tests supply fixed values.
type TTLPolicy func(model string) time.Duration

// DefaultMaxEntries bounds the in-memory tier. Eviction beyond this size is
// least-recently-used.
const DefaultMaxEntries = 1000

// =============================================================================
// ResultCache
// =============================================================================

// entry is one cached result with its insertion-time TTL.
type entry struct {
	result     *query.Result
	insertedAt time.Time
	ttl        time.Duration
}

// ResultCache is the shared result cache consulted before backend execution.
//
// # Description
//
// Two tiers: an in-memory LRU and an optional persistent Store. TTL is
// looked up by model at insertion time, not at lookup time, so a policy
// change never silently extends entries already written. Expiry is lazy:
// an expired entry is deleted on the read that discovers it. Only
// successful results are stored, since validation and backend errors may be
// transient or input-dependent.
//
// # Thread Safety
//
// Safe for concurrent use. The LRU serializes its own access; eviction and
// insertion cannot race with reads.
type ResultCache struct {
	mem    *lru.Cache[string, *entry]
	store  Store
	ttlFor TTLPolicy
	logger *slog.Logger

	// now is indirected for TTL tests.
	now func() time.Time
}

// Options configures a ResultCache.
type Options struct {
	// MaxEntries bounds the in-memory tier. Zero uses DefaultMaxEntries.
	MaxEntries int

	// Store is the optional persistent tier. Nil disables persistence
	// (the in-memory-only mode used by tests).
	Store Store

	// TTLFor is the per-model TTL policy. Must not be nil.
	TTLFor TTLPolicy

	// Logger may be nil.
	Logger *slog.Logger
}

// New creates a ResultCache.
//
// # Inputs
//
//   - opts: Cache options. TTLFor must not be nil.
//
// # Outputs
//
//   - *ResultCache: Ready-to-use cache. Never nil on success.
//   - error: Non-nil when opts.TTLFor is nil or the LRU cannot be built.
func New(opts Options) (*ResultCache, error) {
	if opts.TTLFor == nil {
		return nil, query.NewError(query.ErrCodeValidationRejected, "cache: TTL policy must not be nil")
	}
	size := opts.MaxEntries
	if size <= 0 {
		size = DefaultMaxEntries
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mem, err := lru.NewWithEvict[string, *entry](size, func(string, *entry) {
		cacheEvictions.Inc()
	})
	if err != nil {
		return nil, err
	}

	return &ResultCache{
		mem:    mem,
		store:  opts.Store,
		ttlFor: opts.TTLFor,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Get returns the cached result for p, marked Cached, or (nil, false).
//
// # Description
//
// Checks the in-memory tier first; an expired entry is removed and treated
// as absent. On a memory miss the persistent tier is consulted and a hit is
// promoted back into memory with its remaining lifetime. The returned
// result is a shallow copy with Cached set, so the stored value is never
// mutated.
func (c *ResultCache) Get(ctx context.Context, p *query.Params) (*query.Result, bool) {
	key := Key(p)

	if e, ok := c.mem.Get(key); ok {
		if c.expired(e) {
			c.mem.Remove(key)
			cacheLookupTotal.WithLabelValues("expired").Inc()
		} else {
			cacheLookupTotal.WithLabelValues("hit").Inc()
			c.logger.Debug("cache hit", slog.String("key", shortKey(key)))
			return markCached(e.result), true
		}
	}

	if c.store != nil {
		e, err := c.store.Load(ctx, key)
		if err != nil {
			c.logger.Warn("cache store load failed",
				slog.String("key", shortKey(key)),
				slog.String("error", err.Error()),
			)
		} else if e != nil && !c.expired(e) {
			c.mem.Add(key, e)
			cacheLookupTotal.WithLabelValues("store_hit").Inc()
			c.logger.Debug("cache hit from store", slog.String("key", shortKey(key)))
			return markCached(e.result), true
		}
	}

	cacheLookupTotal.WithLabelValues("miss").Inc()
	return nil, false
}

// Set stores a successful result for p.
//
// # Description
//
// Failed results are never stored. TTL is resolved from the model at this
// moment and pinned to the entry. When the in-memory tier is full the LRU
// evicts to make room. Persistent-tier write failures are non-fatal: the
// result is recomputed after the next restart.
func (c *ResultCache) Set(ctx context.Context, p *query.Params, res *query.Result) {
	if res == nil || !res.Success {
		return
	}

	key := Key(p)
	e := &entry{
		result:     res,
		insertedAt: c.now(),
		ttl:        c.ttlFor(p.Model),
	}
	c.mem.Add(key, e)

	if c.store != nil {
		if err := c.store.Save(ctx, key, e); err != nil {
			c.logger.Warn("cache store save failed",
				slog.String("key", shortKey(key)),
				slog.String("error", err.Error()),
			)
		}
	}

	c.logger.Debug("cached result",
		slog.String("key", shortKey(key)),
		slog.String("model", p.Model),
		slog.Duration("ttl", e.ttl),
	)
}

// Len returns the number of entries in the in-memory tier, including any
// not yet discovered to be expired.
func (c *ResultCache) Len() int {
	return c.mem.Len()
}

func (c *ResultCache) expired(e *entry) bool {
	return c.now().Sub(e.insertedAt) >= e.ttl
}

// markCached returns a shallow copy of r with the cached flag set.
func markCached(r *query.Result) *query.Result {
	out := *r
	out.Cached = true
	return &out
}
