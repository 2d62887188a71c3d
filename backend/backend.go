// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package backend abstracts the remote business-records store. The resolution
// engine depends only on the Backend interface; the Odoo JSON-RPC client in
// this package is one implementation of it.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/erpquery/query"
)

// ErrNotConnected is returned, wrapped in an *Error, when a client is used
// without the connection settings it needs to authenticate.
var ErrNotConnected = errors.New("backend: not connected")

// Error wraps a failed backend call so the orchestrator can distinguish a
// backend execution failure (fall through, do not cache) from every other
// error shape.
type Error struct {
	// Op is the remote operation (search_read, search_count, authenticate).
	Op string

	// Model is the target model, when applicable.
	Model string

	Err error
}

func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("backend %s on %s: %v", e.Op, e.Model, e.Err)
	}
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsBackendError reports whether err originated from a backend call.
func IsBackendError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}

// Backend is the read-only record store consumed by the resolution engine.
//
// # Description
//
// Both methods fail with a *Error (never panic) on invalid model or field,
// transport failure, or context cancellation. The engine treats any such
// error as a backend execution failure: it falls through to the next
// strategy and caches nothing.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// SearchRead returns up to limit records matching the predicates,
	// projected to fields, optionally ordered ("field direction").
	SearchRead(ctx context.Context, model string, predicates []query.Predicate, fields []string, limit int, order string) ([]map[string]any, error)

	// SearchCount returns the number of records matching the predicates.
	SearchCount(ctx context.Context, model string, predicates []query.Predicate) (int, error)
}
