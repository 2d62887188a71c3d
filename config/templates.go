// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	_ "embed"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// =============================================================================
// Template Types
// =============================================================================

// Template is a parameterized query skeleton bound to one or more regex
// patterns.
//
// # Description
//
// Patterns are compiled case-insensitively by the template engine; the first
// pattern with a match wins. When a pattern has a capture group, the first
// group's text is bound to Param and substituted into any predicate value
// written as {param}. Predicates whose placeholder stays unbound are dropped
// at materialization, never defaulted to an empty value.
type Template struct {
	Name     string   `yaml:"name" validate:"required"`
	Patterns []string `yaml:"patterns" validate:"required,min=1"`

	// Param names the capture-group binding (customer_name, product_name).
	// Empty when the patterns have no capture group.
	Param string `yaml:"param"`

	Model      string         `yaml:"model" validate:"required"`
	Predicates []FilterClause `yaml:"predicates" validate:"dive"`
	Fields     []string       `yaml:"fields" validate:"required,min=1"`
	Order      string         `yaml:"order"`

	// Limit overrides the default search limit when positive.
	Limit int `yaml:"limit" validate:"gte=0"`
}

type templateSet struct {
	Templates []Template `yaml:"templates" validate:"required,min=1,dive"`
}

// =============================================================================
// Loading
// =============================================================================

// LoadTemplates parses and validates the embedded default template set.
func LoadTemplates() ([]Template, error) {
	return ParseTemplates(defaultTemplatesYAML)
}

// ParseTemplates parses and validates a template set from raw YAML.
func ParseTemplates(raw []byte) ([]Template, error) {
	var set templateSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if err := validator.New().Struct(&set); err != nil {
		return nil, fmt.Errorf("validate templates: %w", err)
	}
	return set.Templates, nil
}
