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
	"fmt"
	"strings"
	"testing"

	"github.com/AleutianAI/erpquery/query"
)

func TestFormat_InvoiceListing(t *testing.T) {
	res := &query.Result{
		Success: true,
		Model:   "account.move",
		Records: []map[string]any{
			{"name": "INV/001", "partner_id": []any{1.0, "Acme"}, "amount_total": 100.0, "payment_state": "not_paid"},
		},
		Count:  1,
		Method: query.MethodTemplate,
	}

	out := Format(res)
	for _, want := range []string{"Found 1 invoice", "INV/001", "Acme", "100.00", "not_paid"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormat_CapsLongListings(t *testing.T) {
	res := &query.Result{Success: true, Model: "res.partner", Count: 25, Method: query.MethodTemplate}
	for i := 0; i < 25; i++ {
		res.Records = append(res.Records, map[string]any{"name": fmt.Sprintf("Partner %02d", i)})
	}

	out := Format(res)
	if !strings.Contains(out, "and 15 more") {
		t.Errorf("long listing not capped:\n%s", out)
	}
	if strings.Contains(out, "Partner 11") {
		t.Errorf("record beyond the cap printed:\n%s", out)
	}
}

func TestFormat_SummaryAndCachedMarker(t *testing.T) {
	res := &query.Result{
		Success: true,
		Model:   "stock.quant",
		Count:   2,
		Summary: map[string]any{
			"product":   "Steel Bolt M8",
			"locations": map[string]float64{"WH/Main": 45, "WH/East": 10},
		},
		Method: query.MethodExact,
		Cached: true,
	}

	out := Format(res)
	for _, want := range []string{"Steel Bolt M8", "WH/East 10", "WH/Main 45", "(cached)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormat_UnresolvedAndFailure(t *testing.T) {
	unresolved := Format(&query.Result{Method: query.MethodUnresolved})
	if !strings.Contains(unresolved, "could not map") {
		t.Errorf("unresolved output = %q", unresolved)
	}

	failed := Format(&query.Result{Method: query.MethodGeneric, Error: "validation_rejected: nope"})
	if !strings.Contains(failed, "Query failed") {
		t.Errorf("failure output = %q", failed)
	}
}
