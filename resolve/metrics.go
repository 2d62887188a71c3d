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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Resolution metrics
// =============================================================================

var (
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "erpquery",
			Subsystem: "resolve",
			Name:      "resolutions_total",
			Help:      "Resolution attempts by terminal method (exact-pattern, template, generic-dynamic, unresolved).",
		},
		[]string{"method"},
	)

	resolutionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "erpquery",
			Subsystem: "resolve",
			Name:      "latency_seconds",
			Help:      "End-to-end resolution latency by terminal method.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	validationRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "erpquery",
			Subsystem: "resolve",
			Name:      "validation_rejections_total",
			Help:      "Structured queries rejected by the safety validator.",
		},
	)

	backendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "erpquery",
			Subsystem: "resolve",
			Name:      "backend_errors_total",
			Help:      "Backend execution failures by strategy.",
		},
		[]string{"method"},
	)
)
