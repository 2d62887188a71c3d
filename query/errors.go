// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import "errors"

// =============================================================================
// Error Taxonomy
// =============================================================================
//
// Three of the four codes are handled locally by the orchestrator (a strategy
// that fails falls through to the next one); only unresolved ever reaches the
// caller, and it does so as a normal Result value, not as a returned error.

// ErrCode classifies a resolution failure.
type ErrCode string

const (
	// ErrCodeNoMatch means a strategy's pattern simply did not fire.
	// A negative result, not an error condition.
	ErrCodeNoMatch ErrCode = "no_match"

	// ErrCodeValidationRejected means the safety boundary refused the
	// query. Always carries a human-readable reason. Never retried.
	ErrCodeValidationRejected ErrCode = "validation_rejected"

	// ErrCodeBackendFailed means the backend call failed (transport,
	// timeout, or remote error). Not cached, not retried with the same
	// params.
	ErrCodeBackendFailed ErrCode = "backend_failed"

	// ErrCodeUnresolved means every strategy was exhausted. The caller
	// must escalate to the out-of-scope LLM generator.
	ErrCodeUnresolved ErrCode = "unresolved"
)

// Error is a classified resolution error.
//
// # Description
//
// Reason is safe to log but should not be shown verbatim to end users:
// validation reasons can reveal the existence of blocked fields or models.
// The upstream layer maps them to a generic refusal message.
type Error struct {
	Code   ErrCode
	Reason string
}

// NewError creates a classified error with the given code and reason.
func NewError(code ErrCode, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Reason
}

// CodeOf extracts the ErrCode from err, or "" if err is not a *Error.
func CodeOf(err error) ErrCode {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}
