// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query defines the canonical query shapes shared by every layer of
// the resolution engine: the executable QueryParams, the tagged Result
// returned to the conversational layer, the intermediate Components produced
// by the generic pattern engine, and the error taxonomy.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Operators
// =============================================================================

// Operator is a predicate comparison operator in the backend's native form.
type Operator string

const (
	OpEq    Operator = "="
	OpNeq   Operator = "!="
	OpGt    Operator = ">"
	OpLt    Operator = "<"
	OpGte   Operator = ">="
	OpLte   Operator = "<="
	OpLike  Operator = "like"
	OpILike Operator = "ilike"
	OpIn    Operator = "in"
	OpNotIn Operator = "not in"
)

// =============================================================================
// Mode
// =============================================================================

// Mode selects between a record search and a bare count.
type Mode string

const (
	// ModeSearch executes search_read and returns records.
	ModeSearch Mode = "search"

	// ModeCount executes search_count and returns only a count. Limit is
	// ignored in this mode.
	ModeCount Mode = "count"
)

// =============================================================================
// Predicate
// =============================================================================

// Predicate is a single (field, operator, value) filter condition.
// Predicates on a Params are AND-combined; OR and nesting are not supported.
type Predicate struct {
	Field string
	Op    Operator
	Value any
}

// String renders the predicate in a stable form used for cache-key hashing
// and log output. Slice values are rendered element by element so that the
// representation does not depend on Go's default formatting of interface
// slices across versions.
func (p Predicate) String() string {
	return fmt.Sprintf("%s|%s|%s", p.Field, p.Op, renderValue(p.Value))
}

func renderValue(v any) string {
	switch val := v.(type) {
	case []string:
		return "[" + strings.Join(val, ",") + "]"
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = renderValue(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// =============================================================================
// Params
// =============================================================================

// DefaultLimit is applied to search queries that do not specify a limit.
const DefaultLimit = 50

// MaxLimit is the hard ceiling enforced by the validator.
const MaxLimit = 1000

// Params is the canonical, executable query shape produced by the template
// and generic strategies and checked by the validator before any backend
// call.
//
// # Description
//
// Model names the target entity type and must survive the validator's
// whitelist check. Predicates are AND-combined filters. Fields is the
// projection; insertion order is preserved for output shaping but is
// irrelevant for cache keying (fields are sorted before hashing).
//
// # Thread Safety
//
// Params is a plain value; callers must not mutate it after handing it to
// the cache.
type Params struct {
	Model      string
	Predicates []Predicate
	Fields     []string
	Limit      int
	Order      string
	Mode       Mode
}

// Normalize fills defaults in place: empty Mode becomes ModeSearch and a
// non-positive Limit becomes DefaultLimit for search queries. Count queries
// keep Limit zero since it is ignored.
func (p *Params) Normalize() {
	if p.Mode == "" {
		p.Mode = ModeSearch
	}
	if p.Mode == ModeSearch && p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
}

// SortedFields returns a sorted copy of Fields for deterministic hashing.
func (p *Params) SortedFields() []string {
	fields := make([]string, len(p.Fields))
	copy(fields, p.Fields)
	sort.Strings(fields)
	return fields
}

// SortedPredicateStrings returns the stable string form of each predicate,
// sorted, for deterministic hashing regardless of construction order.
func (p *Params) SortedPredicateStrings() []string {
	preds := make([]string, len(p.Predicates))
	for i, pr := range p.Predicates {
		preds[i] = pr.String()
	}
	sort.Strings(preds)
	return preds
}

// =============================================================================
// Method
// =============================================================================

// Method identifies which strategy resolved a query.
type Method string

const (
	MethodExact      Method = "exact-pattern"
	MethodTemplate   Method = "template"
	MethodGeneric    Method = "generic-dynamic"
	MethodUnresolved Method = "unresolved"
)

// =============================================================================
// Result
// =============================================================================

// Result is the outcome of one resolution attempt, returned to the upstream
// conversational layer.
//
// # Description
//
// On success either Records (search) or Count (count, and also the record
// count for searches) is populated. Summary carries strategy-specific
// aggregates computed by exact-pattern handlers (outstanding totals,
// per-warehouse quantities). Error is set only when Success is false.
// Method tags the resolving strategy; MethodUnresolved signals the caller
// that upstream LLM-based generation should be attempted.
type Result struct {
	Success bool `json:"success"`

	// Model is the entity type the result was read from, when known.
	Model string `json:"model,omitempty"`

	// Records holds field→value mappings for search results.
	Records []map[string]any `json:"records,omitempty"`

	// Count is the entity count for count queries, or len(Records).
	Count int `json:"count"`

	// Summary holds aggregates computed by exact-pattern handlers.
	Summary map[string]any `json:"summary,omitempty"`

	// Error is a human-readable failure message. Present only when
	// Success is false.
	Error string `json:"error,omitempty"`

	Method Method `json:"method"`

	// Cached reports whether the result was served from the cache.
	Cached bool `json:"cached"`

	// Duration is the end-to-end resolution time.
	Duration time.Duration `json:"duration"`
}

// =============================================================================
// Components
// =============================================================================

// Components is the intermediate output of the generic pattern engine's
// parse step. It is never persisted.
type Components struct {
	// Entities maps semantic slot name (customer_name, product_name,
	// warehouse_name, date_range, ...) to the extracted string. First
	// match per slot wins.
	Entities map[string]string

	// Operations is the set of detected operation verbs, in detection
	// order (search, count, sum, filter_open, filter_closed, filter_draft).
	Operations []string

	// Model is the best-guess entity type from keyword matching, or empty.
	Model string
}

// HasOperation reports whether op was detected.
func (c *Components) HasOperation(op string) bool {
	for _, o := range c.Operations {
		if o == op {
			return true
		}
	}
	return false
}
