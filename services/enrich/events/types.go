// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events publishes enrichment job progress to subscribers.
//
// The orchestrator publishes one event per lifecycle transition: job
// start and finish, each wave's boundaries, and per-module outcomes
// (including cache hits, which complete without a fetch). Consumers
// subscribe with optional type and custom filters; delivery is fan-out
// with panic recovery, so one broken consumer cannot starve the rest.
package events

import (
	"time"
)

// Type classifies a progress event.
type Type string

// Job lifecycle events.
const (
	TypeJobStarted   Type = "job.started"
	TypeJobCompleted Type = "job.completed"
	TypeJobCancelled Type = "job.cancelled"
)

// Wave lifecycle events.
const (
	TypeWaveStarted   Type = "wave.started"
	TypeWaveCompleted Type = "wave.completed"
)

// Module lifecycle events.
const (
	TypeModuleStarted   Type = "module.started"
	TypeModuleCompleted Type = "module.completed"
	TypeModuleFailed    Type = "module.failed"
	TypeModuleCached    Type = "module.cached"
)

// Event is a single progress notification.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type classifies the transition.
	Type Type `json:"type"`

	// JobID is the enrichment job this event belongs to.
	JobID string `json:"job_id"`

	// Domain is the business domain being enriched.
	Domain string `json:"domain"`

	// Timestamp is when the transition happened.
	Timestamp time.Time `json:"timestamp"`

	// Data carries the transition-specific payload, one of the Data
	// structs below.
	Data any `json:"data,omitempty"`
}

// JobData is the payload for job lifecycle events.
type JobData struct {
	// Modules is the scheduled module set in execution order.
	Modules []string `json:"modules,omitempty"`

	// Status is the terminal job status, set on job.completed.
	Status string `json:"status,omitempty"`

	// Succeeded and Failed count module outcomes, set on job.completed.
	Succeeded int `json:"succeeded,omitempty"`
	Failed    int `json:"failed,omitempty"`
}

// WaveData is the payload for wave lifecycle events.
type WaveData struct {
	// Index is the zero-based wave position in the plan.
	Index int `json:"index"`

	// Modules are the module IDs scheduled in this wave.
	Modules []string `json:"modules"`
}

// ModuleData is the payload for module lifecycle events.
type ModuleData struct {
	// ModuleID identifies the module.
	ModuleID string `json:"module_id"`

	// Wave is the zero-based wave the module ran in.
	Wave int `json:"wave"`

	// Duration is how long the module took, set on terminal events.
	Duration time.Duration `json:"duration,omitempty"`

	// Error describes the failure, set on module.failed.
	Error string `json:"error,omitempty"`

	// FromCache is true when the result was served without a fetch.
	FromCache bool `json:"from_cache,omitempty"`
}
