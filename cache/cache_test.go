// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/AleutianAI/erpquery/query"
)

func fixedTTL(d time.Duration) TTLPolicy {
	return func(string) time.Duration { return d }
}

func newTestCache(t *testing.T, opts Options) *ResultCache {
	t.Helper()
	if opts.TTLFor == nil {
		opts.TTLFor = fixedTTL(time.Minute)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func stockParams() *query.Params {
	return &query.Params{
		Model: "stock.quant",
		Predicates: []query.Predicate{
			{Field: "product_id.name", Op: query.OpILike, Value: "Widget"},
			{Field: "quantity", Op: query.OpGt, Value: 0},
		},
		Fields: []string{"product_id", "quantity", "location_id"},
		Limit:  50,
		Order:  "product_id asc",
		Mode:   query.ModeSearch,
	}
}

func okResult(model string) *query.Result {
	return &query.Result{
		Success: true,
		Model:   model,
		Records: []map[string]any{{"id": 1.0, "name": "Widget"}},
		Count:   1,
	}
}

// =============================================================================
// KEY DETERMINISM
// =============================================================================

func TestKey_IndependentOfConstructionOrder(t *testing.T) {
	a := stockParams()

	b := stockParams()
	b.Predicates = []query.Predicate{b.Predicates[1], b.Predicates[0]}
	b.Fields = []string{"quantity", "location_id", "product_id"}

	if Key(a) != Key(b) {
		t.Errorf("keys differ for reordered params:\n a=%s\n b=%s", Key(a), Key(b))
	}
}

func TestKey_SensitiveToShape(t *testing.T) {
	base := stockParams()

	mutations := map[string]func(*query.Params){
		"model":     func(p *query.Params) { p.Model = "res.partner" },
		"predicate": func(p *query.Params) { p.Predicates[0].Value = "Gadget" },
		"fields":    func(p *query.Params) { p.Fields = p.Fields[:2] },
		"limit":     func(p *query.Params) { p.Limit = 10 },
		"order":     func(p *query.Params) { p.Order = "id desc" },
		"mode":      func(p *query.Params) { p.Mode = query.ModeCount },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := stockParams()
			mutate(p)
			if Key(p) == Key(base) {
				t.Errorf("key unchanged after mutating %s", name)
			}
		})
	}
}

// =============================================================================
// TTL EXPIRY
// =============================================================================

func TestCache_ExpiresAtModelTTL(t *testing.T) {
	now := time.Now()
	c := newTestCache(t, Options{TTLFor: fixedTTL(30 * time.Second)})
	c.now = func() time.Time { return now }

	p := stockParams()
	c.Set(context.Background(), p, okResult("stock.quant"))

	if _, ok := c.Get(context.Background(), p); !ok {
		t.Fatal("fresh entry not returned")
	}

	now = now.Add(29 * time.Second)
	if _, ok := c.Get(context.Background(), p); !ok {
		t.Error("entry expired before its TTL")
	}

	now = now.Add(2 * time.Second)
	if _, ok := c.Get(context.Background(), p); ok {
		t.Error("entry still served after its TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed lazily, Len=%d", c.Len())
	}
}

func TestCache_TTLPinnedAtInsert(t *testing.T) {
	now := time.Now()
	ttl := 30 * time.Second
	c := newTestCache(t, Options{TTLFor: func(string) time.Duration { return ttl }})
	c.now = func() time.Time { return now }

	p := stockParams()
	c.Set(context.Background(), p, okResult("stock.quant"))

	// A policy change after insertion must not extend the entry.
	ttl = time.Hour
	now = now.Add(31 * time.Second)
	if _, ok := c.Get(context.Background(), p); ok {
		t.Error("entry lifetime followed the policy change instead of its insertion-time TTL")
	}
}

func TestCache_HitIsMarkedCachedWithoutMutatingStored(t *testing.T) {
	c := newTestCache(t, Options{})
	p := stockParams()
	original := okResult("stock.quant")
	c.Set(context.Background(), p, original)

	got, ok := c.Get(context.Background(), p)
	if !ok {
		t.Fatal("miss after Set")
	}
	if !got.Cached {
		t.Error("returned result not marked cached")
	}
	if original.Cached {
		t.Error("stored result mutated by Get")
	}
}

// =============================================================================
// FAILURE RESULTS
// =============================================================================

func TestCache_NeverStoresFailures(t *testing.T) {
	c := newTestCache(t, Options{})
	p := stockParams()

	c.Set(context.Background(), p, &query.Result{Success: false, Error: "backend_failed: boom"})
	c.Set(context.Background(), p, nil)

	if _, ok := c.Get(context.Background(), p); ok {
		t.Error("failure result was cached")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

// =============================================================================
// EVICTION
// =============================================================================

func TestCache_EvictsUnderSizePressure(t *testing.T) {
	c := newTestCache(t, Options{MaxEntries: 3})

	for i := 0; i < 5; i++ {
		p := stockParams()
		p.Limit = i + 1
		c.Set(context.Background(), p, okResult("stock.quant"))
	}

	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}

	// The most recent entries survive.
	p := stockParams()
	p.Limit = 5
	if _, ok := c.Get(context.Background(), p); !ok {
		t.Error("most recent entry was evicted")
	}
	p.Limit = 1
	if _, ok := c.Get(context.Background(), p); ok {
		t.Error("oldest entry survived beyond capacity")
	}
}

// =============================================================================
// PERSISTENT TIER
// =============================================================================

// memStore is an in-process Store for tier tests.
type memStore struct {
	entries  map[string]*entry
	loads    int
	saves    int
	loadErr  error
	saveErr  error
	saveFail bool
}

func newMemStore() *memStore { return &memStore{entries: map[string]*entry{}} }

func (s *memStore) Load(_ context.Context, key string) (*entry, error) {
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.entries[key], nil
}

func (s *memStore) Save(_ context.Context, key string, e *entry) error {
	s.saves++
	if s.saveFail {
		return s.saveErr
	}
	s.entries[key] = e
	return nil
}

func TestCache_StoreTierServesAfterMemoryLoss(t *testing.T) {
	store := newMemStore()
	p := stockParams()

	first := newTestCache(t, Options{Store: store})
	first.Set(context.Background(), p, okResult("stock.quant"))
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1", store.saves)
	}

	// Fresh cache simulating a restart: memory empty, store intact.
	second := newTestCache(t, Options{Store: store})
	got, ok := second.Get(context.Background(), p)
	if !ok {
		t.Fatal("store tier did not serve after memory loss")
	}
	if !got.Cached {
		t.Error("store hit not marked cached")
	}

	// The hit is promoted: the next lookup stays in memory.
	loadsBefore := store.loads
	if _, ok := second.Get(context.Background(), p); !ok {
		t.Fatal("promoted entry missing from memory")
	}
	if store.loads != loadsBefore {
		t.Error("promoted entry still consulted the store")
	}
}

func TestCache_StoreFailuresAreNonFatal(t *testing.T) {
	store := newMemStore()
	store.saveFail = true
	store.saveErr = fmt.Errorf("disk full")
	store.loadErr = fmt.Errorf("disk on fire")

	c := newTestCache(t, Options{Store: store})
	p := stockParams()

	c.Set(context.Background(), p, okResult("stock.quant"))

	// The in-memory tier still works despite both store failures.
	if _, ok := c.Get(context.Background(), p); !ok {
		t.Error("memory tier broken by store failure")
	}
}

func TestCache_StoreRespectsTTL(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	c := newTestCache(t, Options{Store: store, TTLFor: fixedTTL(30 * time.Second)})
	c.now = func() time.Time { return now }

	p := stockParams()
	c.Set(context.Background(), p, okResult("stock.quant"))

	second := newTestCache(t, Options{Store: store, TTLFor: fixedTTL(30 * time.Second)})
	second.now = func() time.Time { return now.Add(31 * time.Second) }
	if _, ok := second.Get(context.Background(), p); ok {
		t.Error("store served an expired entry")
	}
}
