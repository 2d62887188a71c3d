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
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/erpquery/config"
	"github.com/AleutianAI/erpquery/query"
)

// =============================================================================
// Generic pattern engine
// =============================================================================

// entityExtractor pulls one named slot out of the query text. Extractors run
// in registration order; the first value per slot wins.
type entityExtractor struct {
	slot    string
	pattern *regexp.Regexp
}

// entityStop terminates a lazy name capture before trailing clauses
// ("customer Acme from the last 30 days" captures only "Acme").
const entityStop = `(?:\s+(?:from|since|in|at|during|over|between|last|this|past|with)\b|\s*[,?.]|\s*$)`

var extractors = []entityExtractor{
	{"customer_name", regexp.MustCompile(`(?i)(?:customer|client)\s+(?:named\s+)?([a-z0-9][a-z0-9\s&.\-']*?)` + entityStop)},
	{"product_name", regexp.MustCompile(`(?i)product\s+(?:named\s+)?([a-z0-9][a-z0-9\s&.\-']*?)` + entityStop)},
	{"warehouse_name", regexp.MustCompile(`(?i)(?:warehouse|location)\s+([a-z0-9][a-z0-9\s&.\-'/]*?)` + entityStop)},
	{"limit", regexp.MustCompile(`(?i)(?:top|first|limit)\s+(\d+)`)},
	{"date_last", regexp.MustCompile(`(?i)(?:last|past)\s+(\d+)\s+(day|week|month|year)s?`)},
	{"date_period", regexp.MustCompile(`(?i)\b(today|yesterday|this week|this month|this quarter|this year)\b`)},
	{"date_since", regexp.MustCompile(`(?i)since\s+(\d{4}-\d{2}-\d{2})`)},
}

// operationKeywords maps an operation verb to the phrasings that imply it.
// The plain search operation is implicit and always present.
var operationKeywords = map[string][]string{
	"count":         {"how many", "count", "number of"},
	"sum":           {"total", "sum of"},
	"filter_open":   {"open", "unpaid", "outstanding", "pending", "overdue"},
	"filter_closed": {"paid", "closed", "done", "completed"},
	"filter_draft":  {"draft", "quotation"},
	"customer":      {"customer", "client"},
	"vendor":        {"vendor", "supplier"},
}

// operationOrder keeps Components.Operations deterministic.
var operationOrder = []string{"count", "sum", "filter_open", "filter_closed", "filter_draft", "customer", "vendor"}

// PatternEngine is the last structured strategy: it decomposes free text into
// Components and hands them to the safe builder.
//
// # Description
//
// Parsing is three independent passes over the text: entity extraction
// (named regex slots), operation detection (keyword sets), and model
// detection (the registry's per-model keyword lists). The builder then
// assembles query parameters strictly from the registry's allow-list
// configuration for the detected model, so free text never reaches a field
// name or operator position.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type PatternEngine struct {
	registry *config.ModelRegistry
	logger   *slog.Logger

	// now is injectable for deterministic date-window tests.
	now func() time.Time
}

// NewPatternEngine builds the generic strategy over the model registry.
func NewPatternEngine(registry *config.ModelRegistry, logger *slog.Logger) *PatternEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &PatternEngine{registry: registry, logger: logger, now: time.Now}
}

// Name implements ParamStrategy.
func (e *PatternEngine) Name() string { return "generic" }

// Method implements ParamStrategy.
func (e *PatternEngine) Method() query.Method { return query.MethodGeneric }

// Match implements ParamStrategy. It returns false only when no model can be
// detected; every other parse produces buildable parameters and any safety
// problem is left for the validator.
func (e *PatternEngine) Match(text string) (*query.Params, bool) {
	comps := e.Parse(text)
	if comps.Model == "" {
		return nil, false
	}
	params := e.build(comps)
	e.logger.Debug("generic parse",
		slog.String("model", comps.Model),
		slog.Any("operations", comps.Operations),
		slog.Int("entities", len(comps.Entities)),
	)
	return params, true
}

// Parse decomposes the query text into entities, operations, and a model
// guess. Exposed for direct testing of the extraction passes.
func (e *PatternEngine) Parse(text string) *query.Components {
	lower := strings.ToLower(strings.TrimSpace(text))

	comps := &query.Components{Entities: map[string]string{}}
	for _, ex := range extractors {
		if _, seen := comps.Entities[ex.slot]; seen {
			continue
		}
		if m := ex.pattern.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
			if ex.slot == "date_last" {
				comps.Entities[ex.slot] = m[1] + " " + strings.ToLower(m[2])
			} else {
				comps.Entities[ex.slot] = cleanEntity(m[1])
			}
		}
	}

	for _, op := range operationOrder {
		for _, kw := range operationKeywords[op] {
			if containsWord(lower, kw) {
				comps.Operations = append(comps.Operations, op)
				break
			}
		}
	}
	if len(comps.Operations) == 0 {
		comps.Operations = []string{"search"}
	}

	comps.Model = e.registry.DetectModel(lower)
	return comps
}

// containsWord reports whether phrase appears in text on word boundaries, so
// "open" does not fire inside "reopened".
func containsWord(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// -----------------------------------------------------------------------------
// Safe builder
// -----------------------------------------------------------------------------

// entitySlotFields maps (model, slot) to the predicate field the builder may
// use for it. Slots without an entry for the model are ignored.
var entitySlotFields = map[string]map[string]string{
	"res.partner":      {"customer_name": "name"},
	"product.template": {"product_name": "name"},
	"stock.quant": {
		"product_name":   "product_id.name",
		"warehouse_name": "location_id.name",
	},
	"account.move":   {"customer_name": "partner_id.name"},
	"sale.order":     {"customer_name": "partner_id.name"},
	"purchase.order": {"customer_name": "partner_id.name"},
	"crm.lead":       {"customer_name": "partner_id.name"},
}

// build assembles query parameters from components using only registry
// configuration for the detected model. The output is not validated here;
// the validator is the single enforcement point.
func (e *PatternEngine) build(comps *query.Components) *query.Params {
	cfg, ok := e.registry.Config(comps.Model)
	if !ok {
		cfg = &config.ModelConfig{}
	}

	params := &query.Params{Model: comps.Model, Mode: query.ModeSearch}

	if slotFields, ok := entitySlotFields[comps.Model]; ok {
		for slot, field := range slotFields {
			if v, ok := comps.Entities[slot]; ok && v != "" {
				params.Predicates = append(params.Predicates, query.Predicate{
					Field: field, Op: query.OpILike, Value: v,
				})
			}
		}
	}

	for _, op := range comps.Operations {
		if op == "count" {
			params.Mode = query.ModeCount
			continue
		}
		for _, clause := range cfg.Filters[op] {
			params.Predicates = append(params.Predicates, query.Predicate{
				Field: clause.Field,
				Op:    query.Operator(clause.Op),
				Value: clause.Value,
			})
		}
	}

	if cfg.DateField != "" {
		if from, to, ok := e.dateWindow(comps); ok {
			params.Predicates = append(params.Predicates, query.Predicate{
				Field: cfg.DateField, Op: query.OpGte, Value: from,
			})
			if to != "" {
				params.Predicates = append(params.Predicates, query.Predicate{
					Field: cfg.DateField, Op: query.OpLte, Value: to,
				})
			}
		}
	}

	if params.Mode == query.ModeSearch {
		params.Fields = append([]string(nil), cfg.DefaultFields...)
		if raw, ok := comps.Entities["limit"]; ok {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				params.Limit = n
			}
		}
		params.Order = cfg.DefaultOrder
		if params.Order == "" {
			params.Order = "id desc"
		}
	}

	params.Normalize()
	return params
}

// dateWindow converts the extracted date slot into an inclusive ISO date
// range. An empty "to" means open-ended.
func (e *PatternEngine) dateWindow(comps *query.Components) (from, to string, ok bool) {
	const day = 24 * time.Hour
	now := e.now()

	if v, found := comps.Entities["date_last"]; found {
		parts := strings.SplitN(v, " ", 2)
		n, err := strconv.Atoi(parts[0])
		if err != nil || len(parts) != 2 {
			return "", "", false
		}
		var d time.Duration
		switch parts[1] {
		case "day":
			d = time.Duration(n) * day
		case "week":
			d = time.Duration(n) * 7 * day
		case "month":
			d = time.Duration(n) * 30 * day
		case "year":
			d = time.Duration(n) * 365 * day
		}
		return now.Add(-d).Format("2006-01-02"), "", true
	}

	if v, found := comps.Entities["date_period"]; found {
		switch v {
		case "today":
			return now.Format("2006-01-02"), "", true
		case "yesterday":
			y := now.Add(-day).Format("2006-01-02")
			return y, y, true
		case "this week":
			offset := (int(now.Weekday()) + 6) % 7
			return now.Add(-time.Duration(offset) * day).Format("2006-01-02"), "", true
		case "this month":
			return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format("2006-01-02"), "", true
		case "this quarter":
			q := (int(now.Month()) - 1) / 3
			return time.Date(now.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, now.Location()).Format("2006-01-02"), "", true
		case "this year":
			return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()).Format("2006-01-02"), "", true
		}
	}

	if v, found := comps.Entities["date_since"]; found {
		return v, "", true
	}

	return "", "", false
}
