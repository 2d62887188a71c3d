// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate enforces the safety boundary on any query before it may
// reach the backend.
package validate

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/erpquery/config"
	"github.com/AleutianAI/erpquery/query"
)

// Validator is the final, independent safety backstop.
//
// # Description
//
// Every strategy that produces a generic QueryParams must pass it through
// Validate before execution. The check is pure: no side effects, no
// retries. A rejection always carries a human-readable reason; the caller
// produces a corrected QueryParams or falls through to the next strategy.
// Rejection reasons are safe to log but must not be shown verbatim to end
// users, since they reveal the existence of blocked fields and models.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent use.
type Validator struct {
	policy  config.SecurityPolicy
	allowed map[string]bool
}

// New creates a Validator from the given security policy.
func New(policy config.SecurityPolicy) *Validator {
	allowed := make(map[string]bool, len(policy.AllowedModels))
	for _, m := range policy.AllowedModels {
		allowed[m] = true
	}
	return &Validator{policy: policy, allowed: allowed}
}

// Validate checks that p is safe to execute.
//
// # Description
//
// Rejects when the model is off the whitelist, when any requested field or
// predicate field path contains a blacklisted substring, when a dotted
// predicate path reaches into another entity's credential fields, or when
// the limit exceeds the hard ceiling. Count queries skip the limit check
// since limit is ignored in that mode.
//
// # Outputs
//
//   - error: Nil when the query is safe. Otherwise a *query.Error with
//     code validation_rejected and the reason.
func (v *Validator) Validate(p *query.Params) error {
	if !v.allowed[p.Model] {
		return query.NewError(query.ErrCodeValidationRejected,
			fmt.Sprintf("access to model %q is not allowed", p.Model))
	}

	for _, f := range p.Fields {
		if blocked := v.blockedIn(f); blocked != "" {
			return query.NewError(query.ErrCodeValidationRejected,
				fmt.Sprintf("access to field %q is restricted (%s)", f, blocked))
		}
	}

	if p.Mode != query.ModeCount && p.Limit > v.maxRecords() {
		return query.NewError(query.ErrCodeValidationRejected,
			fmt.Sprintf("record limit %d exceeds maximum %d", p.Limit, v.maxRecords()))
	}

	for _, pred := range p.Predicates {
		if blocked := v.blockedIn(pred.Field); blocked != "" {
			return query.NewError(query.ErrCodeValidationRejected,
				fmt.Sprintf("filter on field %q is restricted (%s)", pred.Field, blocked))
		}
		for _, path := range v.policy.BlockedRelationPaths {
			if strings.Contains(pred.Field, path) {
				return query.NewError(query.ErrCodeValidationRejected,
					fmt.Sprintf("filter path %q reaches a restricted relation", pred.Field))
			}
		}
	}

	return nil
}

// blockedIn returns the blacklisted substring contained in field, or "".
func (v *Validator) blockedIn(field string) string {
	lower := strings.ToLower(field)
	for _, blocked := range v.policy.BlockedFields {
		if strings.Contains(lower, blocked) {
			return blocked
		}
	}
	return ""
}

func (v *Validator) maxRecords() int {
	if v.policy.MaxRecords > 0 {
		return v.policy.MaxRecords
	}
	return query.MaxLimit
}
