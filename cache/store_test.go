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
	"testing"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

func openTestBadger(t *testing.T) *dgbadger.DB {
	t.Helper()
	opts := dgbadger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := dgbadger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close badger: %v", err)
		}
	})
	return db
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	store, err := NewBadgerStore(openTestBadger(t))
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}

	in := &entry{
		result:     okResult("stock.quant"),
		insertedAt: time.Now().UTC().Truncate(time.Second),
		ttl:        30 * time.Second,
	}
	if err := store.Save(context.Background(), "abc123", in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := store.Load(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out == nil {
		t.Fatal("Load returned miss for saved key")
	}
	if !out.result.Success || out.result.Model != "stock.quant" {
		t.Errorf("loaded result = %+v", out.result)
	}
	if out.ttl != in.ttl {
		t.Errorf("ttl = %v, want %v", out.ttl, in.ttl)
	}
	if !out.insertedAt.Equal(in.insertedAt) {
		t.Errorf("insertedAt = %v, want %v", out.insertedAt, in.insertedAt)
	}
}

func TestBadgerStore_MissIsNotAnError(t *testing.T) {
	store, err := NewBadgerStore(openTestBadger(t))
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}

	out, err := store.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Load miss: %v", err)
	}
	if out != nil {
		t.Errorf("Load miss returned entry %+v", out)
	}
}

func TestBadgerStore_RespectsCancelledContext(t *testing.T) {
	store, err := NewBadgerStore(openTestBadger(t))
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Load(ctx, "k"); err == nil {
		t.Error("Load ignored cancelled context")
	}
	if err := store.Save(ctx, "k", &entry{result: okResult("m"), insertedAt: time.Now(), ttl: time.Minute}); err == nil {
		t.Error("Save ignored cancelled context")
	}
}

func TestNewBadgerStore_RejectsNilDB(t *testing.T) {
	if _, err := NewBadgerStore(nil); err == nil {
		t.Error("nil db accepted")
	}
}
