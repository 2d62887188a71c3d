// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the typed configuration tables that drive the
// resolution engine: the security policy (model whitelist, field blacklist),
// the per-model registry used by the generic safe builder, and the query
// template set. Defaults are embedded YAML; loaders return fresh values so
// the engine owns its tables explicitly instead of sharing package-level
// singletons.
package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed models.yaml
var defaultModelsYAML []byte

// =============================================================================
// Configuration Types
// =============================================================================

// FilterClause is one predicate fragment in a model's named filter set or a
// template skeleton.
type FilterClause struct {
	// Field is the predicate field path (may be dotted, e.g. partner_id.name).
	Field string `yaml:"field" validate:"required"`

	// Op is the comparison operator in the backend's native form.
	Op string `yaml:"op" validate:"required"`

	// Value is the comparison value. For in/not-in operators this is a list.
	Value any `yaml:"value"`
}

// ModelConfig is the generic safe builder's allow-list entry for one model.
//
// # Description
//
// Fields enumerates every field the builder may project; DefaultFields is
// the projection used when the query does not narrow it. Filters maps
// operation keywords (filter_open, filter_draft, customer, ...) to the
// predicate fragments they contribute. Keywords drive model detection from
// query text. TTLSeconds overrides the registry default cache TTL.
type ModelConfig struct {
	Fields        []string                  `yaml:"fields" validate:"required,min=1"`
	DefaultFields []string                  `yaml:"default_fields" validate:"required,min=1"`
	Keywords      []string                  `yaml:"keywords"`
	Filters       map[string][]FilterClause `yaml:"filters" validate:"omitempty,dive,dive"`
	DefaultOrder  string                    `yaml:"default_order"`

	// DateField is the field used for relative date-range predicates
	// ("last 30 days"). Empty disables date filtering for the model.
	DateField string `yaml:"date_field"`

	TTLSeconds int `yaml:"ttl_seconds" validate:"gte=0"`
}

// SecurityPolicy is the validator's configuration.
//
// # Description
//
// AllowedModels is the whitelist; everything else is refused even when
// correctly parsed, as defense-in-depth against models holding credentials
// or system configuration. BlockedFields are substrings refused anywhere in
// a requested field or predicate path. BlockedRelationPaths refuse dotted
// paths that reach into another entity's credential fields.
type SecurityPolicy struct {
	AllowedModels        []string `yaml:"allowed_models" validate:"required,min=1"`
	BlockedFields        []string `yaml:"blocked_fields" validate:"required,min=1"`
	BlockedRelationPaths []string `yaml:"blocked_relation_paths"`
	MaxRecords           int      `yaml:"max_records" validate:"required,gt=0"`
}

// ModelRegistry bundles the security policy, the cache TTL policy, and the
// per-model builder configuration.
//
// # Thread Safety
//
// Immutable after LoadModelRegistry returns; safe for concurrent use.
type ModelRegistry struct {
	Security          SecurityPolicy          `yaml:"security" validate:"required"`
	DefaultTTLSeconds int                     `yaml:"default_ttl_seconds" validate:"required,gt=0"`
	Models            map[string]*ModelConfig `yaml:"models" validate:"required,min=1,dive,required"`

	// allowed is the whitelist as a set, built at load time.
	allowed map[string]bool

	// modelOrder is the sorted model-name iteration order, so keyword
	// detection is deterministic when several keyword sets match.
	modelOrder []string
}

// =============================================================================
// Loading
// =============================================================================

// LoadModelRegistry parses and validates the embedded default registry.
//
// # Description
//
// Parses models.yaml, runs struct validation, and cross-checks each model
// entry: default_fields and date_field must be drawn from fields. Returns a
// fresh value on every call; the caller (typically the engine constructor)
// owns it.
//
// # Outputs
//
//   - *ModelRegistry: The validated registry. Never nil on success.
//   - error: Non-nil on parse or validation failure.
func LoadModelRegistry() (*ModelRegistry, error) {
	return ParseModelRegistry(defaultModelsYAML)
}

// ParseModelRegistry parses and validates a registry from raw YAML.
// Exposed so deployments can ship their own model tables.
func ParseModelRegistry(raw []byte) (*ModelRegistry, error) {
	var reg ModelRegistry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}
	if err := validator.New().Struct(&reg); err != nil {
		return nil, fmt.Errorf("validate model registry: %w", err)
	}

	for name, mc := range reg.Models {
		fieldSet := make(map[string]bool, len(mc.Fields))
		for _, f := range mc.Fields {
			fieldSet[f] = true
		}
		for _, f := range mc.DefaultFields {
			if !fieldSet[f] {
				return nil, fmt.Errorf("model %s: default field %q not in fields", name, f)
			}
		}
		if mc.DateField != "" && !fieldSet[mc.DateField] {
			return nil, fmt.Errorf("model %s: date_field %q not in fields", name, mc.DateField)
		}
	}

	reg.allowed = make(map[string]bool, len(reg.Security.AllowedModels))
	for _, m := range reg.Security.AllowedModels {
		reg.allowed[m] = true
	}

	reg.modelOrder = make([]string, 0, len(reg.Models))
	for name := range reg.Models {
		reg.modelOrder = append(reg.modelOrder, name)
	}
	sort.Strings(reg.modelOrder)

	return &reg, nil
}

// =============================================================================
// Lookup
// =============================================================================

// Allowed reports whether model is on the security whitelist.
func (r *ModelRegistry) Allowed(model string) bool {
	return r.allowed[model]
}

// Config returns the builder configuration for model, if any.
func (r *ModelRegistry) Config(model string) (*ModelConfig, bool) {
	mc, ok := r.Models[model]
	return mc, ok
}

// TTL returns the cache TTL for model, falling back to the registry default
// for unconfigured models or entries without an override.
func (r *ModelRegistry) TTL(model string) time.Duration {
	if mc, ok := r.Models[model]; ok && mc.TTLSeconds > 0 {
		return time.Duration(mc.TTLSeconds) * time.Second
	}
	return time.Duration(r.DefaultTTLSeconds) * time.Second
}

// DetectModel returns the first configured model whose keyword appears in
// queryLower, iterating models in sorted-name order for determinism.
// Returns "" when nothing matches.
func (r *ModelRegistry) DetectModel(queryLower string) string {
	for _, name := range r.modelOrder {
		for _, kw := range r.Models[name].Keywords {
			if strings.Contains(queryLower, kw) {
				return name
			}
		}
	}
	return ""
}
