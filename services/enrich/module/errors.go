// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package module

import (
	"errors"
	"fmt"
)

// ErrDependencyUnavailable is returned by a module whose required
// upstream result is absent this run and for which no documented
// fallback exists. It records the module's own failure; the orchestrator
// never propagates it further up.
var ErrDependencyUnavailable = errors.New("required dependency result unavailable")

// FetchError reports that every configured source for a module failed.
// Transient by nature: the fallback retry has already been consumed by
// the time one escapes a module.
type FetchError struct {
	// ModuleID names the failing module.
	ModuleID string

	// SourceName is the last source attempted.
	SourceName string

	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.SourceName != "" {
		return fmt.Sprintf("module %s: fetch from %s failed: %v", e.ModuleID, e.SourceName, e.Err)
	}
	return fmt.Sprintf("module %s: fetch failed: %v", e.ModuleID, e.Err)
}

// Unwrap exposes the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed or mismatched payload. Validation
// failures indicate a data-integrity problem (most often upstream source
// confusion) and are never retried or swallowed.
type ValidationError struct {
	// ModuleID names the failing module.
	ModuleID string

	// Field is the offending payload field, when identifiable.
	Field string

	// Reason describes the violation.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("module %s: invalid payload field %s: %s", e.ModuleID, e.Field, e.Reason)
	}
	return fmt.Sprintf("module %s: invalid payload: %s", e.ModuleID, e.Reason)
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsFetch reports whether err is (or wraps) a *FetchError.
func IsFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
