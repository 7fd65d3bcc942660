// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import "errors"

var (
	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotPending indicates a Run on a job that already started
	// or finished.
	ErrJobNotPending = errors.New("job is not pending")

	// ErrJobFinished indicates a Cancel on a job already in a terminal
	// state.
	ErrJobFinished = errors.New("job already finished")

	// ErrNoModuleInstance indicates a planned module id with no
	// constructed module behind it.
	ErrNoModuleInstance = errors.New("no module instance for planned id")
)
