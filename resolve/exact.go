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
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/erpquery/backend"
	"github.com/AleutianAI/erpquery/query"
)

// =============================================================================
// Exact-pattern library
// =============================================================================

// exactHandler pairs a set of phrasing patterns with a hand-written
// multi-step procedure. Registration order decides precedence.
type exactHandler struct {
	name     string
	patterns []*regexp.Regexp
	run      func(ctx context.Context, lib *ExactLibrary, entity string) (*query.Result, error)
}

// ExactLibrary holds the fixed repertoire of multi-step query procedures.
//
// # Description
//
// Each handler covers one well-known phrasing that a single structured query
// cannot answer (entity lookup followed by a dependent read, aggregation on
// the client side). Handlers execute against the backend directly and are
// never cached: their intermediate lookups make a shape key meaningless.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type ExactLibrary struct {
	backend  backend.Backend
	handlers []exactHandler
	logger   *slog.Logger
}

// NewExactLibrary compiles the built-in handlers.
func NewExactLibrary(be backend.Backend, logger *slog.Logger) *ExactLibrary {
	if logger == nil {
		logger = slog.Default()
	}
	lib := &ExactLibrary{backend: be, logger: logger}
	lib.handlers = []exactHandler{
		{
			name: "customer_balance",
			patterns: compile(
				`^(?:how much|what) (?:does|do) (.+?) owe(?: us)?\s*\??$`,
				`^(?:what(?:'s| is) )?(?:the )?(?:outstanding )?balance (?:for|of) (.+?)\s*\??$`,
			),
			run: runCustomerBalance,
		},
		{
			name: "product_locations",
			patterns: compile(
				`^where (?:is|are) (?:the )?(.+?) (?:stored|located|kept)\s*\??$`,
			),
			run: runProductLocations,
		},
		{
			name: "product_on_hand",
			patterns: compile(
				`^how (?:many|much) (.+?) (?:do we have in stock|(?:is|are) (?:in stock|on hand))\s*\??$`,
			),
			run: runProductOnHand,
		},
		{
			name: "customer_invoice_history",
			patterns: compile(
				`^(?:show |list )?(?:the )?(?:full |complete )?invoice history (?:for|of) (.+?)\s*\??$`,
			),
			run: runCustomerInvoiceHistory,
		},
		{
			name: "product_details",
			patterns: compile(
				`^(?:tell me about|give me details (?:for|on)|describe) (?:the )?(?:product )?(.+?)\s*\??$`,
			),
			run: runProductDetails,
		},
	}
	return lib
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// Match returns the first handler whose pattern matches, with the captured
// entity name, or ("", "", false).
func (l *ExactLibrary) Match(text string) (handler, entity string, ok bool) {
	trimmed := strings.TrimSpace(text)
	for _, h := range l.handlers {
		for _, re := range h.patterns {
			if m := re.FindStringSubmatch(trimmed); m != nil {
				return h.name, cleanEntity(m[1]), true
			}
		}
	}
	return "", "", false
}

// Execute runs the named handler. A non-nil error means the backend failed;
// a clean run that finds no matching entity returns a result with Success
// false. The caller falls through to the next strategy in either case.
func (l *ExactLibrary) Execute(ctx context.Context, handler, entity string) (*query.Result, error) {
	for _, h := range l.handlers {
		if h.name == handler {
			res, err := h.run(ctx, l, entity)
			if err != nil {
				l.logger.Warn("exact handler failed",
					slog.String("handler", handler),
					slog.String("error", err.Error()),
				)
				return nil, err
			}
			res.Method = query.MethodExact
			return res, nil
		}
	}
	return nil, fmt.Errorf("unknown exact handler %q", handler)
}

// cleanEntity strips quotes, a leading article, and trailing punctuation from
// a captured entity name.
func cleanEntity(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSuffix(s, "?")
	s = strings.TrimSuffix(s, ".")
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "the ") {
		s = s[4:]
	}
	return strings.TrimSpace(s)
}

// -----------------------------------------------------------------------------
// Shared lookups
// -----------------------------------------------------------------------------

// findRecord resolves a display name to a record, exact match first and a
// case-insensitive contains match second.
func findRecord(ctx context.Context, be backend.Backend, model, name string, fields []string) (map[string]any, error) {
	for _, op := range []query.Operator{query.OpEq, query.OpILike} {
		records, err := be.SearchRead(ctx, model,
			[]query.Predicate{{Field: "name", Op: op, Value: name}},
			fields, 1, "")
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records[0], nil
		}
	}
	return nil, nil
}

func recordID(rec map[string]any) int {
	switch v := rec["id"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func recordName(rec map[string]any) string {
	s, _ := rec["name"].(string)
	return s
}

// relationName extracts the display name from an Odoo many2one value, which
// arrives on the wire as [id, name].
func relationName(v any) string {
	pair, ok := v.([]any)
	if !ok || len(pair) < 2 {
		return ""
	}
	s, _ := pair[1].(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func notFound(model, kind, entity string) *query.Result {
	return &query.Result{
		Success: false,
		Model:   model,
		Error:   fmt.Sprintf("no %s matching %q", kind, entity),
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func runCustomerBalance(ctx context.Context, lib *ExactLibrary, entity string) (*query.Result, error) {
	partner, err := findRecord(ctx, lib.backend, "res.partner", entity, []string{"id", "name"})
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return notFound("res.partner", "customer", entity), nil
	}

	invoices, err := lib.backend.SearchRead(ctx, "account.move",
		[]query.Predicate{
			{Field: "partner_id", Op: query.OpEq, Value: recordID(partner)},
			{Field: "move_type", Op: query.OpEq, Value: "out_invoice"},
			{Field: "state", Op: query.OpEq, Value: "posted"},
			{Field: "payment_state", Op: query.OpIn, Value: []string{"not_paid", "partial"}},
		},
		[]string{"name", "amount_residual", "invoice_date_due"}, 0, "invoice_date_due asc")
	if err != nil {
		return nil, err
	}

	var total float64
	for _, inv := range invoices {
		total += asFloat(inv["amount_residual"])
	}
	return &query.Result{
		Success: true,
		Model:   "account.move",
		Records: invoices,
		Count:   len(invoices),
		Summary: map[string]any{
			"customer":          recordName(partner),
			"open_invoices":     len(invoices),
			"total_outstanding": total,
		},
	}, nil
}

func runProductLocations(ctx context.Context, lib *ExactLibrary, entity string) (*query.Result, error) {
	product, err := findRecord(ctx, lib.backend, "product.template", entity, []string{"id", "name"})
	if err != nil {
		return nil, err
	}
	if product == nil {
		return notFound("product.template", "product", entity), nil
	}

	quants, err := lib.backend.SearchRead(ctx, "stock.quant",
		[]query.Predicate{{Field: "product_id", Op: query.OpEq, Value: recordID(product)}},
		[]string{"location_id", "quantity"}, 0, "")
	if err != nil {
		return nil, err
	}

	byLocation := map[string]float64{}
	for _, q := range quants {
		loc := relationName(q["location_id"])
		if loc == "" {
			continue
		}
		byLocation[loc] += asFloat(q["quantity"])
	}
	return &query.Result{
		Success: true,
		Model:   "stock.quant",
		Records: quants,
		Count:   len(quants),
		Summary: map[string]any{
			"product":   recordName(product),
			"locations": byLocation,
		},
	}, nil
}

func runProductOnHand(ctx context.Context, lib *ExactLibrary, entity string) (*query.Result, error) {
	product, err := findRecord(ctx, lib.backend, "product.template", entity, []string{"id", "name"})
	if err != nil {
		return nil, err
	}
	if product == nil {
		return notFound("product.template", "product", entity), nil
	}

	quants, err := lib.backend.SearchRead(ctx, "stock.quant",
		[]query.Predicate{{Field: "product_id", Op: query.OpEq, Value: recordID(product)}},
		[]string{"quantity"}, 0, "")
	if err != nil {
		return nil, err
	}

	var onHand float64
	for _, q := range quants {
		onHand += asFloat(q["quantity"])
	}
	return &query.Result{
		Success: true,
		Model:   "stock.quant",
		Count:   len(quants),
		Summary: map[string]any{
			"product": recordName(product),
			"on_hand": onHand,
		},
	}, nil
}

func runCustomerInvoiceHistory(ctx context.Context, lib *ExactLibrary, entity string) (*query.Result, error) {
	partner, err := findRecord(ctx, lib.backend, "res.partner", entity, []string{"id", "name"})
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return notFound("res.partner", "customer", entity), nil
	}

	invoices, err := lib.backend.SearchRead(ctx, "account.move",
		[]query.Predicate{
			{Field: "partner_id", Op: query.OpEq, Value: recordID(partner)},
			{Field: "move_type", Op: query.OpEq, Value: "out_invoice"},
		},
		[]string{"name", "invoice_date", "amount_total", "payment_state", "state"},
		0, "invoice_date desc")
	if err != nil {
		return nil, err
	}

	return &query.Result{
		Success: true,
		Model:   "account.move",
		Records: invoices,
		Count:   len(invoices),
		Summary: map[string]any{"customer": recordName(partner)},
	}, nil
}

func runProductDetails(ctx context.Context, lib *ExactLibrary, entity string) (*query.Result, error) {
	product, err := findRecord(ctx, lib.backend, "product.template", entity,
		[]string{"id", "name", "default_code", "list_price", "standard_price", "qty_available", "categ_id"})
	if err != nil {
		return nil, err
	}
	if product == nil {
		return notFound("product.template", "product", entity), nil
	}

	return &query.Result{
		Success: true,
		Model:   "product.template",
		Records: []map[string]any{product},
		Count:   1,
		Summary: map[string]any{
			"product":  recordName(product),
			"category": relationName(product["categ_id"]),
		},
	}, nil
}
