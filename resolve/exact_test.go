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
	"errors"
	"testing"
)

// =============================================================================
// MATCHING
// =============================================================================

func TestExact_Match(t *testing.T) {
	lib := NewExactLibrary(newFakeBackend(), testLogger())

	tests := []struct {
		name        string
		query       string
		wantHandler string
		wantEntity  string
	}{
		{"owe phrasing", "how much does Acme Corp owe us?", "customer_balance", "Acme Corp"},
		{"balance phrasing", "what's the outstanding balance for Globex", "customer_balance", "Globex"},
		{"stored phrasing", "where is the Steel Bolt M8 stored?", "product_locations", "Steel Bolt M8"},
		{"on hand phrasing", "how many Widgets do we have in stock", "product_on_hand", "Widgets"},
		{"history phrasing", "show the full invoice history for Initech", "customer_invoice_history", "Initech"},
		{"details phrasing", "tell me about product Widget", "product_details", "Widget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, entity, ok := lib.Match(tt.query)
			if !ok {
				t.Fatalf("Match(%q) missed", tt.query)
			}
			if handler != tt.wantHandler || entity != tt.wantEntity {
				t.Errorf("Match(%q) = (%q, %q), want (%q, %q)",
					tt.query, handler, entity, tt.wantHandler, tt.wantEntity)
			}
		})
	}
}

func TestExact_DoesNotSwallowTemplateQueries(t *testing.T) {
	// Single-step phrasings belong to the template and generic tiers.
	lib := NewExactLibrary(newFakeBackend(), testLogger())

	for _, q := range []string{
		"open invoices for customer Acme",
		"stock of product Widget",
		"list all customers",
		"recent sales orders",
		"how many customers do we have",
	} {
		if handler, _, ok := lib.Match(q); ok {
			t.Errorf("Match(%q) fired handler %q, want pass-through", q, handler)
		}
	}
}

// =============================================================================
// EXECUTION
// =============================================================================

func TestExact_CustomerBalanceAggregates(t *testing.T) {
	be := newFakeBackend()
	be.records["res.partner"] = []map[string]any{{"id": 7.0, "name": "Acme Corp"}}
	be.records["account.move"] = []map[string]any{
		{"name": "INV/001", "amount_residual": 150.5},
		{"name": "INV/002", "amount_residual": 49.5},
	}
	lib := NewExactLibrary(be, testLogger())

	res, err := lib.Execute(context.Background(), "customer_balance", "Acme Corp")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if got := res.Summary["total_outstanding"]; got != 200.0 {
		t.Errorf("total_outstanding = %v, want 200", got)
	}
	if got := res.Summary["customer"]; got != "Acme Corp" {
		t.Errorf("customer = %v", got)
	}

	// Two steps: partner lookup, then invoice read.
	if len(be.callsFor("res.partner")) == 0 || len(be.callsFor("account.move")) == 0 {
		t.Errorf("calls = %+v, want partner lookup and invoice read", be.calls)
	}
}

func TestExact_ProductLocationsGroupsByLocation(t *testing.T) {
	be := newFakeBackend()
	be.records["product.template"] = []map[string]any{{"id": 3.0, "name": "Steel Bolt M8"}}
	be.records["stock.quant"] = []map[string]any{
		{"location_id": []any{1.0, "WH/Main"}, "quantity": 40.0},
		{"location_id": []any{2.0, "WH/East"}, "quantity": 10.0},
		{"location_id": []any{1.0, "WH/Main"}, "quantity": 5.0},
	}
	lib := NewExactLibrary(be, testLogger())

	res, err := lib.Execute(context.Background(), "product_locations", "Steel Bolt M8")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	locations, ok := res.Summary["locations"].(map[string]float64)
	if !ok {
		t.Fatalf("locations summary = %T", res.Summary["locations"])
	}
	if locations["WH/Main"] != 45 || locations["WH/East"] != 10 {
		t.Errorf("locations = %v", locations)
	}
}

func TestExact_UnknownEntityIsNonMatchNotError(t *testing.T) {
	be := newFakeBackend() // no partner rows
	lib := NewExactLibrary(be, testLogger())

	res, err := lib.Execute(context.Background(), "customer_balance", "Nobody Inc")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success {
		t.Error("missing entity reported as success")
	}
	if res.Error == "" {
		t.Error("missing entity carries no message")
	}
}

func TestExact_BackendFailurePropagates(t *testing.T) {
	be := newFakeBackend()
	be.err = errors.New("connection refused")
	lib := NewExactLibrary(be, testLogger())

	if _, err := lib.Execute(context.Background(), "customer_balance", "Acme"); err == nil {
		t.Error("backend failure swallowed")
	}
}
