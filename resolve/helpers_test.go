// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/AleutianAI/erpquery/backend"
	"github.com/AleutianAI/erpquery/query"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// call records one backend invocation for assertions.
type call struct {
	op         string
	model      string
	predicates []query.Predicate
	fields     []string
	limit      int
	order      string
}

// fakeBackend is an in-process Backend with per-model canned responses.
type fakeBackend struct {
	mu    sync.Mutex
	calls []call

	// records maps model to the rows returned by SearchRead.
	records map[string][]map[string]any

	// counts maps model to the value returned by SearchCount.
	counts map[string]int

	// err, when set, fails every call.
	err error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		records: map[string][]map[string]any{},
		counts:  map[string]int{},
	}
}

func (f *fakeBackend) SearchRead(_ context.Context, model string, predicates []query.Predicate, fields []string, limit int, order string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{"search_read", model, predicates, fields, limit, order})
	if f.err != nil {
		return nil, &backend.Error{Op: "search_read", Model: model, Err: f.err}
	}
	return f.records[model], nil
}

func (f *fakeBackend) SearchCount(_ context.Context, model string, predicates []query.Predicate) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "search_count", model: model, predicates: predicates})
	if f.err != nil {
		return 0, &backend.Error{Op: "search_count", Model: model, Err: f.err}
	}
	return f.counts[model], nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) callsFor(model string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.model == model {
			out = append(out, c)
		}
	}
	return out
}
