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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/AleutianAI/erpquery/query"
)

// Key computes a deterministic cache key for the normalized query shape.
//
// # Description
//
// The digest covers model, sorted predicate strings, sorted fields, limit,
// order, and mode. Sorting makes the key independent of construction order:
// two params differing only in field or predicate ordering hash identically.
// Mode is included so a count query and a search query over the same domain
// never share an entry.
//
// # Outputs
//
//   - string: Lowercase hex-encoded SHA256 digest (64 characters).
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
func Key(p *query.Params) string {
	h := sha256.New()
	fmt.Fprintf(h, "model=%s\n", p.Model)
	fmt.Fprintf(h, "predicates=%s\n", strings.Join(p.SortedPredicateStrings(), ";"))
	fmt.Fprintf(h, "fields=%s\n", strings.Join(p.SortedFields(), ","))
	fmt.Fprintf(h, "limit=%d\n", p.Limit)
	fmt.Fprintf(h, "order=%s\n", p.Order)
	fmt.Fprintf(h, "mode=%s\n", p.Mode)
	return hex.EncodeToString(h.Sum(nil))
}

// shortKey returns the first 8 characters of a key for log display.
func shortKey(k string) string {
	if len(k) > 8 {
		return k[:8] + "..."
	}
	return k
}
