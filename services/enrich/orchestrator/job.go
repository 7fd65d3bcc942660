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

import (
	"time"

	"github.com/prospectiq/enrich/services/enrich/module"
)

// Status is a job's position in its state machine.
type Status string

const (
	// StatusPending marks a submitted job that has not started running.
	StatusPending Status = "PENDING"

	// StatusRunning marks a job whose waves are executing.
	StatusRunning Status = "RUNNING"

	// StatusCompleted marks a job where every module succeeded.
	StatusCompleted Status = "COMPLETED"

	// StatusPartial marks a job where some but not all modules
	// succeeded.
	StatusPartial Status = "PARTIAL"

	// StatusFailed marks a job where no module succeeded.
	StatusFailed Status = "FAILED"

	// StatusCancelled marks a job stopped at a wave boundary by Cancel.
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ModuleState is one module's outcome within a job.
type ModuleState string

const (
	// ModulePending marks a scheduled module that has not run.
	ModulePending ModuleState = "pending"

	// ModuleRunning marks a module currently executing.
	ModuleRunning ModuleState = "running"

	// ModuleSucceeded marks a module that produced a result.
	ModuleSucceeded ModuleState = "succeeded"

	// ModuleFailed marks a module whose enrich call errored.
	ModuleFailed ModuleState = "failed"

	// ModuleSkipped marks a module whose wave never started because the
	// job was cancelled first.
	ModuleSkipped ModuleState = "skipped"
)

// ModuleStatus is the per-module record kept on a job.
type ModuleStatus struct {
	// State is the module's current outcome.
	State ModuleState `json:"state"`

	// Wave is the zero-based wave the module was scheduled in.
	Wave int `json:"wave"`

	// Error describes the failure when State is ModuleFailed.
	Error string `json:"error,omitempty"`

	// Duration is how long the enrich call took, set on terminal
	// states.
	Duration time.Duration `json:"duration,omitempty"`

	// FromCache is true when the result was served without a fetch.
	FromCache bool `json:"from_cache,omitempty"`
}

// JobError is one recorded failure, in occurrence order.
type JobError struct {
	ModuleID string    `json:"module_id"`
	Wave     int       `json:"wave"`
	Err      string    `json:"error"`
	At       time.Time `json:"at"`
}

// Job is the unit of orchestration: one domain enriched by a set of
// modules.
//
// Description:
//
//	Created by Submit in StatusPending; mutated only by the Service
//	that owns it. Callers observe jobs through Status snapshots, never
//	through shared pointers, so a Job value returned by the API is
//	immutable from the caller's point of view.
type Job struct {
	// ID is the unique job identifier.
	ID string `json:"id"`

	// Domain is the business domain being enriched.
	Domain string `json:"domain"`

	// Modules are the requested target module ids; empty means the
	// whole registered catalog.
	Modules []string `json:"modules,omitempty"`

	// Force bypasses cache reads for every module in the job.
	Force bool `json:"force,omitempty"`

	// Status is the job's state machine position.
	Status Status `json:"status"`

	// ModuleStatuses maps module id to its outcome record.
	ModuleStatuses map[string]ModuleStatus `json:"module_statuses"`

	// Errors lists failures in the order they occurred.
	Errors []JobError `json:"errors,omitempty"`

	// Results holds the successful module results.
	Results module.Results `json:"-"`

	// SubmittedAt, StartedAt, and FinishedAt bound the job's lifetime.
	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// snapshot deep-copies the job for hand-off outside the service lock.
func (j *Job) snapshot() Job {
	out := *j
	out.Modules = append([]string(nil), j.Modules...)
	out.Errors = append([]JobError(nil), j.Errors...)
	out.ModuleStatuses = make(map[string]ModuleStatus, len(j.ModuleStatuses))
	for id, st := range j.ModuleStatuses {
		out.ModuleStatuses[id] = st
	}
	out.Results = make(module.Results, len(j.Results))
	for id, res := range j.Results {
		out.Results[id] = res
	}
	return out
}

// counts tallies terminal module outcomes.
func (j *Job) counts() (succeeded, failed int) {
	for _, st := range j.ModuleStatuses {
		switch st.State {
		case ModuleSucceeded:
			succeeded++
		case ModuleFailed:
			failed++
		}
	}
	return succeeded, failed
}

// terminalStatus derives the end state from module outcomes: every
// scheduled module succeeded → COMPLETED, none → FAILED, otherwise
// PARTIAL.
func (j *Job) terminalStatus() Status {
	succeeded, _ := j.counts()
	switch {
	case succeeded == 0:
		return StatusFailed
	case succeeded == len(j.ModuleStatuses):
		return StatusCompleted
	default:
		return StatusPartial
	}
}
