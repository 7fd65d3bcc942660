// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for registry operations.
var (
	// ErrDuplicateModule is returned when registering an id that already
	// exists in the catalog.
	ErrDuplicateModule = errors.New("module already registered")

	// ErrUnknownModule is returned when looking up an id that is not in
	// the catalog.
	ErrUnknownModule = errors.New("unknown module")

	// ErrNotFinalized is returned by lookups before Finalize has sealed
	// the registry.
	ErrNotFinalized = errors.New("registry is not finalized")

	// ErrFinalized is returned when mutating a sealed registry.
	ErrFinalized = errors.New("registry is finalized")
)

// GraphError reports an inconsistency in the dependency graph: a cycle,
// a wave-ordering violation, or a malformed definition. GraphErrors are
// fatal at Finalize time; the process must not start with one.
type GraphError struct {
	// ModuleID names the offending module.
	ModuleID string

	// Cycle holds the full cycle path when Reason is a dependency cycle,
	// e.g. [m05, m10, m05].
	Cycle []string

	// Reason describes the violation.
	Reason string
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("registry: %s: %s (%s)", e.ModuleID, e.Reason, strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("registry: %s: %s", e.ModuleID, e.Reason)
}

// AsGraphError unwraps err into a *GraphError if it is one.
func AsGraphError(err error) (*GraphError, bool) {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
