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

// =============================================================================
// Persistent Result Store
// =============================================================================
//
// Warm query results are cheap to keep and annoying to lose on restart:
// the first conversation after a deploy otherwise pays a backend round-trip
// for every question it had already answered. This store persists entries in
// BadgerDB between restarts.
//
// Design choices:
//
//	1. BadgerDB: embedded, no network call, no availability dependency.
//	   Results are service infrastructure, not user data.
//
//	2. The cache key (SHA256 of the normalized query shape) doubles as the
//	   storage key, prefixed with a versioned namespace so a future format
//	   change cannot collide with old entries.
//
//	3. BadgerDB native TTL mirrors the entry's own TTL, so expired keys
//	   vanish without application-level GC. The entry additionally records
//	   its insertion time, and the in-memory tier re-checks expiry after a
//	   load. Native TTL is an optimization, not the source of truth.
//
//	4. Values are JSON-encoded. Record values arrive from a JSON-RPC
//	   backend, so every value already has a JSON-representable type.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/erpquery/query"
)

// resultKeyPrefix is prepended to the cache key to form the BadgerDB key.
// Versioned (v1) to allow future format changes without collision.
const resultKeyPrefix = "erpquery/result/v1/"

// Store persists cache entries across process restarts.
//
// # Description
//
// Nil-safe by convention: ResultCache checks for a nil Store and skips
// persistence, operating in in-memory-only mode. This is the correct
// behavior for tests and deployments without a cache directory.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load retrieves the entry for key. Returns (nil, nil) on miss
	// (absent or TTL expired), (nil, error) on storage failure.
	Load(ctx context.Context, key string) (*entry, error)

	// Save persists the entry under key with its TTL. Non-nil error only
	// on storage failure; the caller logs and continues.
	Save(ctx context.Context, key string, e *entry) error
}

// persistedEntry is the JSON storage form of an entry.
type persistedEntry struct {
	Result     *query.Result `json:"result"`
	InsertedAt time.Time     `json:"inserted_at"`
	TTLSeconds float64       `json:"ttl_seconds"`
}

// =============================================================================
// BadgerStore
// =============================================================================

// BadgerStore implements Store backed by a BadgerDB instance.
//
// # Description
//
// The DB is expected to be opened at startup with its own path. The caller
// owns the DB lifecycle; this store does not close it.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type BadgerStore struct {
	db *dgbadger.DB
}

// NewBadgerStore creates a BadgerStore backed by the given DB.
func NewBadgerStore(db *dgbadger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, errors.New("cache: badger db must not be nil")
	}
	return &BadgerStore{db: db}, nil
}

// Load retrieves the entry for key, or (nil, nil) on miss.
func (s *BadgerStore) Load(ctx context.Context, key string) (*entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.db.View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(resultKeyPrefix + key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache store load: %w", err)
	}

	var pe persistedEntry
	if err := json.Unmarshal(raw, &pe); err != nil {
		return nil, fmt.Errorf("cache store decode: %w", err)
	}
	return &entry{
		result:     pe.Result,
		insertedAt: pe.InsertedAt,
		ttl:        time.Duration(pe.TTLSeconds * float64(time.Second)),
	}, nil
}

// Save persists the entry under key with BadgerDB native TTL.
func (s *BadgerStore) Save(ctx context.Context, key string, e *entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(persistedEntry{
		Result:     e.result,
		InsertedAt: e.insertedAt,
		TTLSeconds: e.ttl.Seconds(),
	})
	if err != nil {
		return fmt.Errorf("cache store encode: %w", err)
	}

	err = s.db.Update(func(txn *dgbadger.Txn) error {
		be := dgbadger.NewEntry([]byte(resultKeyPrefix+key), raw).WithTTL(e.ttl)
		return txn.SetEntry(be)
	})
	if err != nil {
		return fmt.Errorf("cache store save: %w", err)
	}
	return nil
}
