// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve is the tiered resolution engine. It tries progressively
// more general strategies against a natural-language query: a fixed library
// of exact-pattern procedures, pre-defined templates, and a generic pattern
// engine backed by a safe query builder. A query no strategy can resolve is
// returned as unresolved so the caller may escalate to LLM-based generation.
package resolve

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/erpquery/backend"
	"github.com/AleutianAI/erpquery/cache"
	"github.com/AleutianAI/erpquery/config"
	"github.com/AleutianAI/erpquery/query"
	"github.com/AleutianAI/erpquery/validate"
)

// =============================================================================
// Strategies
// =============================================================================

// ParamStrategy is a resolution strategy that produces executable query
// parameters from free text. The engine owns validation, caching, and
// execution; strategies only translate.
type ParamStrategy interface {
	Name() string
	Method() query.Method

	// Match returns the materialized parameters and true on a hit. The
	// returned parameters need not be normalized or validated.
	Match(text string) (*query.Params, bool)
}

// =============================================================================
// Engine
// =============================================================================

// Options configures an Engine. Backend is required; everything else has a
// working default.
type Options struct {
	Backend backend.Backend

	// Registry defaults to the embedded model registry.
	Registry *config.ModelRegistry

	// Templates defaults to the embedded template set.
	Templates []config.Template

	// Cache defaults to an in-memory result cache sized at
	// cache.DefaultMaxEntries with the registry's TTL policy.
	Cache *cache.ResultCache

	Logger *slog.Logger
}

// Engine orchestrates the strategy chain.
//
// # Description
//
// Resolution order is fixed: exact-pattern, template, generic. Exact-pattern
// hits execute directly and bypass the cache. Template and generic hits go
// through cache lookup, validation, deduplicated execution, and cache
// insertion. A backend failure, a validation rejection, or an exact procedure
// that finds nothing all fall through to the next tier; the only failure the
// caller ever sees is the unresolved result.
//
// # Thread Safety
//
// Safe for concurrent use. Stats counters are atomic; identical in-flight
// executions are collapsed via singleflight.
type Engine struct {
	exact      *ExactLibrary
	strategies []ParamStrategy
	validator  *validate.Validator
	cache      *cache.ResultCache
	backend    backend.Backend
	logger     *slog.Logger
	tracer     trace.Tracer
	group      singleflight.Group

	stats engineStats
}

type engineStats struct {
	total                atomic.Int64
	exactHits            atomic.Int64
	templateHits         atomic.Int64
	genericHits          atomic.Int64
	unresolved           atomic.Int64
	cacheHits            atomic.Int64
	validationRejections atomic.Int64
	backendErrors        atomic.Int64
}

// New assembles the engine. The zero-value options fall back to the embedded
// configuration tables.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := opts.Registry
	if registry == nil {
		var err error
		registry, err = config.LoadModelRegistry()
		if err != nil {
			return nil, err
		}
	}

	templates := opts.Templates
	if templates == nil {
		var err error
		templates, err = config.LoadTemplates()
		if err != nil {
			return nil, err
		}
	}
	templateEngine, err := NewTemplateEngine(templates, logger)
	if err != nil {
		return nil, err
	}

	resultCache := opts.Cache
	if resultCache == nil {
		resultCache, err = cache.New(cache.Options{TTLFor: registry.TTL, Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		exact: NewExactLibrary(opts.Backend, logger),
		strategies: []ParamStrategy{
			templateEngine,
			NewPatternEngine(registry, logger),
		},
		validator: validate.New(registry.Security),
		cache:     resultCache,
		backend:   opts.Backend,
		logger:    logger,
		tracer:    otel.Tracer("erpquery/resolve"),
	}, nil
}

// Resolve runs the strategy chain for one query.
//
// # Description
//
// Never returns nil and never panics on malformed text. An unresolved
// outcome is a normal result with Method set to unresolved and Success
// false; no backend call is made for it.
//
// # Inputs
//
//   - ctx: Cancels in-flight backend calls.
//   - text: The raw natural-language query.
func (e *Engine) Resolve(ctx context.Context, text string) *query.Result {
	start := time.Now()
	qid := uuid.NewString()
	e.stats.total.Add(1)

	ctx, span := e.tracer.Start(ctx, "resolve.query",
		trace.WithAttributes(attribute.String("query.id", qid)))
	defer span.End()

	res := e.resolve(ctx, span, qid, text)
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("resolve.method", string(res.Method)),
		attribute.Bool("resolve.cached", res.Cached),
		attribute.Bool("resolve.success", res.Success),
	)
	resolutionsTotal.WithLabelValues(string(res.Method)).Inc()
	resolutionLatency.WithLabelValues(string(res.Method)).Observe(res.Duration.Seconds())

	e.logger.Info("query resolved",
		slog.String("query_id", qid),
		slog.String("method", string(res.Method)),
		slog.Bool("success", res.Success),
		slog.Bool("cached", res.Cached),
		slog.Duration("took", res.Duration),
	)
	return res
}

func (e *Engine) resolve(ctx context.Context, span trace.Span, qid, text string) *query.Result {
	if strings.TrimSpace(text) == "" {
		return e.unresolved(span, "empty query")
	}

	if handler, entity, ok := e.exact.Match(text); ok {
		res, err := e.exact.Execute(ctx, handler, entity)
		switch {
		case err != nil:
			e.stats.backendErrors.Add(1)
			backendErrors.WithLabelValues(string(query.MethodExact)).Inc()
			span.AddEvent("exact handler failed", trace.WithAttributes(
				attribute.String("handler", handler),
			))
		case !res.Success:
			// A clean run that found no matching entity is a non-match,
			// not an answer. The later tiers get their turn.
			span.AddEvent("exact handler found nothing", trace.WithAttributes(
				attribute.String("handler", handler),
			))
		default:
			e.stats.exactHits.Add(1)
			return res
		}
	}

	for _, strategy := range e.strategies {
		params, ok := strategy.Match(text)
		if !ok {
			continue
		}
		params.Normalize()

		if cached, ok := e.cache.Get(ctx, params); ok {
			e.stats.cacheHits.Add(1)
			e.recordStrategyHit(strategy.Method())
			cached.Method = strategy.Method()
			return cached
		}

		if err := e.validator.Validate(params); err != nil {
			e.stats.validationRejections.Add(1)
			validationRejections.Inc()
			span.AddEvent("validation rejected", trace.WithAttributes(
				attribute.String("strategy", strategy.Name()),
			))
			// The reason stays in the log. Surfacing it to the caller
			// would reveal which models and fields are blocked.
			e.logger.Warn("query rejected",
				slog.String("query_id", qid),
				slog.String("strategy", strategy.Name()),
				slog.String("model", params.Model),
				slog.String("reason", err.Error()),
			)
			continue
		}

		res, err := e.execute(ctx, params)
		if err != nil {
			e.stats.backendErrors.Add(1)
			backendErrors.WithLabelValues(string(strategy.Method())).Inc()
			e.logger.Warn("backend execution failed",
				slog.String("query_id", qid),
				slog.String("strategy", strategy.Name()),
				slog.String("model", params.Model),
				slog.String("error", err.Error()),
			)
			continue
		}

		res.Method = strategy.Method()
		e.cache.Set(ctx, params, res)
		e.recordStrategyHit(strategy.Method())
		return res
	}

	return e.unresolved(span, "no strategy matched")
}

// execute runs the structured query, collapsing identical concurrent
// executions onto a single backend call.
func (e *Engine) execute(ctx context.Context, params *query.Params) (*query.Result, error) {
	v, err, shared := e.group.Do(cache.Key(params), func() (any, error) {
		if params.Mode == query.ModeCount {
			count, err := e.backend.SearchCount(ctx, params.Model, params.Predicates)
			if err != nil {
				return nil, err
			}
			return &query.Result{Success: true, Model: params.Model, Count: count}, nil
		}

		records, err := e.backend.SearchRead(ctx, params.Model, params.Predicates,
			params.Fields, params.Limit, params.Order)
		if err != nil {
			return nil, err
		}
		return &query.Result{
			Success: true,
			Model:   params.Model,
			Records: records,
			Count:   len(records),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	res := v.(*query.Result)
	if shared {
		clone := *res
		res = &clone
	}
	return res, nil
}

func (e *Engine) unresolved(span trace.Span, reason string) *query.Result {
	e.stats.unresolved.Add(1)
	span.SetStatus(codes.Error, "unresolved")
	return &query.Result{
		Success: false,
		Error:   query.NewError(query.ErrCodeUnresolved, reason).Error(),
		Method:  query.MethodUnresolved,
	}
}

func (e *Engine) recordStrategyHit(m query.Method) {
	switch m {
	case query.MethodTemplate:
		e.stats.templateHits.Add(1)
	case query.MethodGeneric:
		e.stats.genericHits.Add(1)
	}
}

// =============================================================================
// Stats
// =============================================================================

// Stats is a point-in-time snapshot of the engine's counters. Rates are
// percentages of total queries.
type Stats struct {
	TotalQueries         int64   `json:"total_queries"`
	ExactHits            int64   `json:"exact_hits"`
	TemplateHits         int64   `json:"template_hits"`
	GenericHits          int64   `json:"generic_hits"`
	Unresolved           int64   `json:"unresolved"`
	CacheHits            int64   `json:"cache_hits"`
	ValidationRejections int64   `json:"validation_rejections"`
	BackendErrors        int64   `json:"backend_errors"`
	ExactRate            float64 `json:"exact_rate"`
	TemplateRate         float64 `json:"template_rate"`
	GenericRate          float64 `json:"generic_rate"`
	UnresolvedRate       float64 `json:"unresolved_rate"`
	CacheHitRate         float64 `json:"cache_hit_rate"`
}

// Stats returns a consistent-enough snapshot for reporting. Counters are
// read individually; a snapshot taken under concurrent load may be off by
// in-flight increments.
func (e *Engine) Stats() Stats {
	s := Stats{
		TotalQueries:         e.stats.total.Load(),
		ExactHits:            e.stats.exactHits.Load(),
		TemplateHits:         e.stats.templateHits.Load(),
		GenericHits:          e.stats.genericHits.Load(),
		Unresolved:           e.stats.unresolved.Load(),
		CacheHits:            e.stats.cacheHits.Load(),
		ValidationRejections: e.stats.validationRejections.Load(),
		BackendErrors:        e.stats.backendErrors.Load(),
	}
	if s.TotalQueries > 0 {
		total := float64(s.TotalQueries)
		s.ExactRate = 100 * float64(s.ExactHits) / total
		s.TemplateRate = 100 * float64(s.TemplateHits) / total
		s.GenericRate = 100 * float64(s.GenericHits) / total
		s.UnresolvedRate = 100 * float64(s.Unresolved) / total
		s.CacheHitRate = 100 * float64(s.CacheHits) / total
	}
	return s
}
