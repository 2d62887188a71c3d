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
	"sort"
	"strings"

	"github.com/AleutianAI/erpquery/query"
)

// =============================================================================
// Result formatting
// =============================================================================

// maxFormattedRecords caps the per-result record listing; the remainder is
// summarized as a trailing count.
const maxFormattedRecords = 10

// modelLabels maps a model to the noun used in formatted output.
var modelLabels = map[string]string{
	"account.move":     "invoice",
	"res.partner":      "contact",
	"product.template": "product",
	"sale.order":       "sales order",
	"purchase.order":   "purchase order",
	"stock.quant":      "stock record",
	"crm.lead":         "lead",
	"hr.employee":      "employee",
}

// Format renders a result as plain text for a conversational reply.
func Format(res *query.Result) string {
	if res == nil {
		return "No result."
	}
	if !res.Success {
		if res.Method == query.MethodUnresolved {
			return "I could not map that question to a known query."
		}
		if res.Error != "" {
			return "Query failed: " + res.Error
		}
		return "Query failed."
	}

	var b strings.Builder

	label := modelLabels[res.Model]
	if label == "" {
		label = "record"
	}

	if len(res.Records) == 0 {
		fmt.Fprintf(&b, "Found %d %s.\n", res.Count, plural(label, res.Count))
	} else {
		fmt.Fprintf(&b, "Found %d %s:\n", res.Count, plural(label, res.Count))
		shown := res.Records
		if len(shown) > maxFormattedRecords {
			shown = shown[:maxFormattedRecords]
		}
		for _, rec := range shown {
			fmt.Fprintf(&b, "  - %s\n", formatRecord(res.Model, rec))
		}
		if remaining := len(res.Records) - len(shown); remaining > 0 {
			fmt.Fprintf(&b, "  ... and %d more\n", remaining)
		}
	}

	if len(res.Summary) > 0 {
		keys := make([]string, 0, len(res.Summary))
		for k := range res.Summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", strings.ReplaceAll(k, "_", " "), formatValue(res.Summary[k]))
		}
	}

	if res.Cached {
		b.WriteString("(cached)\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func plural(label string, n int) string {
	if n == 1 {
		return label
	}
	return label + "s"
}

// formatRecord picks the most useful columns per model rather than dumping
// every projected field.
func formatRecord(model string, rec map[string]any) string {
	name, _ := rec["name"].(string)
	switch model {
	case "account.move":
		return joinNonEmpty(name, relationName(rec["partner_id"]), money(rec["amount_total"]), str(rec["payment_state"]))
	case "res.partner":
		return joinNonEmpty(name, str(rec["email"]), str(rec["city"]))
	case "product.template":
		return joinNonEmpty(name, str(rec["default_code"]), money(rec["list_price"]))
	case "sale.order", "purchase.order":
		return joinNonEmpty(name, relationName(rec["partner_id"]), money(rec["amount_total"]), str(rec["state"]))
	case "stock.quant":
		return joinNonEmpty(relationName(rec["product_id"]), relationName(rec["location_id"]),
			fmt.Sprintf("qty %.0f", asFloat(rec["quantity"])))
	case "crm.lead":
		return joinNonEmpty(name, relationName(rec["stage_id"]), money(rec["expected_revenue"]))
	case "hr.employee":
		return joinNonEmpty(name, str(rec["job_title"]), relationName(rec["department_id"]))
	}
	if name != "" {
		return name
	}
	return fmt.Sprintf("%v", rec)
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func money(v any) string {
	f := asFloat(v)
	if f == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f", f)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", val)
	case map[string]float64:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s %.0f", k, val[k]))
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
