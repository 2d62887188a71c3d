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
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/erpquery/config"
	"github.com/AleutianAI/erpquery/query"
)

// =============================================================================
// Template engine
// =============================================================================

type compiledTemplate struct {
	name     string
	patterns []*regexp.Regexp
	param    string
	model    string
	clauses  []config.FilterClause
	fields   []string
	order    string
	limit    int
}

// TemplateEngine materializes pre-defined query shapes from phrasing
// patterns. Templates are matched in definition order; the first matching
// pattern wins.
type TemplateEngine struct {
	templates []compiledTemplate
	logger    *slog.Logger
}

// NewTemplateEngine compiles the template definitions. Every pattern is
// matched case-insensitively against the raw query text so that captured
// entity names keep their original casing.
func NewTemplateEngine(templates []config.Template, logger *slog.Logger) (*TemplateEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	eng := &TemplateEngine{logger: logger}
	for _, t := range templates {
		ct := compiledTemplate{
			name:    t.Name,
			param:   t.Param,
			model:   t.Model,
			clauses: t.Predicates,
			fields:  t.Fields,
			order:   t.Order,
			limit:   t.Limit,
		}
		for _, p := range t.Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("template %s: pattern %q: %w", t.Name, p, err)
			}
			ct.patterns = append(ct.patterns, re)
		}
		eng.templates = append(eng.templates, ct)
	}
	return eng, nil
}

// Name implements ParamStrategy.
func (e *TemplateEngine) Name() string { return "template" }

// Method implements ParamStrategy.
func (e *TemplateEngine) Method() query.Method { return query.MethodTemplate }

// Match implements ParamStrategy. On a hit it returns the materialized
// query parameters; placeholder predicates whose capture is unbound are
// dropped rather than defaulted.
func (e *TemplateEngine) Match(text string) (*query.Params, bool) {
	trimmed := strings.TrimSpace(text)
	for _, t := range e.templates {
		for _, re := range t.patterns {
			m := re.FindStringSubmatch(trimmed)
			if m == nil {
				continue
			}
			captured := ""
			if len(m) > 1 {
				captured = cleanEntity(m[1])
			}
			params := e.materialize(t, captured)
			e.logger.Debug("template matched",
				slog.String("template", t.name),
				slog.String("model", t.model),
				slog.String("captured", captured),
			)
			return params, true
		}
	}
	return nil, false
}

func (e *TemplateEngine) materialize(t compiledTemplate, captured string) *query.Params {
	placeholder := ""
	if t.param != "" {
		placeholder = "{" + t.param + "}"
	}

	preds := make([]query.Predicate, 0, len(t.clauses))
	for _, c := range t.clauses {
		value := c.Value
		if s, ok := value.(string); ok && placeholder != "" && strings.Contains(s, placeholder) {
			if captured == "" {
				continue
			}
			value = strings.ReplaceAll(s, placeholder, captured)
		}
		preds = append(preds, query.Predicate{
			Field: c.Field,
			Op:    query.Operator(c.Op),
			Value: value,
		})
	}

	fields := make([]string, len(t.fields))
	copy(fields, t.fields)

	return &query.Params{
		Model:      t.model,
		Predicates: preds,
		Fields:     fields,
		Limit:      t.limit,
		Order:      t.order,
		Mode:       query.ModeSearch,
	}
}
