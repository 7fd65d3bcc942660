// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives enrichment jobs wave by wave.
//
// A job enriches one domain through the modules the caller targeted
// (or the whole catalog). Waves come from the resolver, modules within
// a wave run concurrently under a bounded pool, and a full barrier
// separates waves so later modules always see a settled dependency
// map. Cancellation is honored at wave boundaries only: the in-flight
// wave finishes, the rest never starts.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/prospectiq/enrich/services/enrich/events"
	"github.com/prospectiq/enrich/services/enrich/module"
	"github.com/prospectiq/enrich/services/enrich/registry"
	"github.com/prospectiq/enrich/services/enrich/waves"
)

var (
	tracer = otel.Tracer("enrich.orchestrator")
	meter  = otel.Meter("enrich.orchestrator")
)

// DefaultMaxConcurrency bounds how many modules of one wave run at
// once when the service is not configured otherwise.
const DefaultMaxConcurrency = 4

// jobEntry pairs a job with its cancellation flag. The flag, not the
// context, is what wave boundaries consult, so an in-flight wave is
// never interrupted mid-module.
type jobEntry struct {
	job       *Job
	cancelled bool
}

// Service owns job lifecycle and wave execution.
//
// Description:
//
//	Submit creates jobs, Run drives them to a terminal status, Status
//	and Subscribe observe them, Cancel stops them at the next wave
//	boundary. Jobs are retained in memory until the process ends;
//	durable job history is an external collaborator's concern.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple jobs can run concurrently on one
//	Service.
type Service struct {
	registry *registry.Registry
	runner   *module.Runner
	modules  map[string]module.Module
	tracker  *events.Tracker
	logger   *slog.Logger

	maxConcurrency int
	now            func() time.Time

	mu   sync.Mutex
	jobs map[string]*jobEntry

	// Metrics (initialized lazily)
	metricsOnce    sync.Once
	moduleLatency  metric.Float64Histogram
	moduleOutcomes metric.Int64Counter
	activeModules  metric.Int64UpDownCounter
	jobLatency     metric.Float64Histogram
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxConcurrency bounds the per-wave worker pool.
func WithMaxConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an orchestrator over a finalized registry.
//
// Inputs:
//
//	reg - Finalized module registry. Must not be nil.
//	runner - The enrich pipeline runner. Must not be nil.
//	mods - Constructed module instances, keyed by module id. Every id
//	       the resolver can plan must have an instance here.
//	tracker - Progress event tracker. If nil, a fresh one is created.
//	logger - Logger for job logs. If nil, uses slog.Default().
//
// Outputs:
//
//	*Service - The configured service.
//	error - Non-nil if inputs are invalid.
func NewService(reg *registry.Registry, runner *module.Runner, mods []module.Module, tracker *events.Tracker, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry must not be nil")
	}
	if !reg.Finalized() {
		return nil, fmt.Errorf("registry must be finalized")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner must not be nil")
	}
	if tracker == nil {
		tracker = events.NewTracker()
	}
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[string]module.Module, len(mods))
	for _, m := range mods {
		byID[m.Definition().ModuleID] = m
	}

	s := &Service{
		registry:       reg,
		runner:         runner,
		modules:        byID,
		tracker:        tracker,
		logger:         logger,
		maxConcurrency: DefaultMaxConcurrency,
		now:            time.Now,
		jobs:           make(map[string]*jobEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tracker returns the progress tracker jobs publish to.
func (s *Service) Tracker() *events.Tracker {
	return s.tracker
}

// SubmitOption configures a submitted job.
type SubmitOption func(*Job)

// WithModules targets a subset of the catalog. The resolver expands
// the set to its transitive dependency closure.
func WithModules(ids ...string) SubmitOption {
	return func(j *Job) {
		j.Modules = append([]string(nil), ids...)
	}
}

// WithForce bypasses cache reads for every module in the job.
func WithForce() SubmitOption {
	return func(j *Job) {
		j.Force = true
	}
}

// Submit creates a pending job for domain.
//
// Outputs:
//
//	Job - Snapshot of the pending job; its ID drives Run/Status/Cancel.
//	error - Non-nil when the domain is empty or a targeted module id
//	        is not registered.
func (s *Service) Submit(domain string, opts ...SubmitOption) (Job, error) {
	if domain == "" {
		return Job{}, fmt.Errorf("domain must not be empty")
	}

	j := &Job{
		ID:             uuid.NewString(),
		Domain:         domain,
		Status:         StatusPending,
		ModuleStatuses: make(map[string]ModuleStatus),
		Results:        make(module.Results),
		SubmittedAt:    s.now(),
	}
	for _, opt := range opts {
		opt(j)
	}

	for _, id := range j.Modules {
		if _, err := s.registry.Get(id); err != nil {
			return Job{}, fmt.Errorf("submit %s: %w", domain, err)
		}
	}

	s.mu.Lock()
	s.jobs[j.ID] = &jobEntry{job: j}
	s.mu.Unlock()

	s.logger.Info("job submitted",
		slog.String("job_id", j.ID),
		slog.String("domain", domain),
		slog.Int("targets", len(j.Modules)),
	)
	return j.snapshot(), nil
}

// Status returns a snapshot of the job.
func (s *Service) Status(jobID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("status %s: %w", jobID, ErrJobNotFound)
	}
	return entry.job.snapshot(), nil
}

// Cancel requests that the job stop at the next wave boundary. The
// in-flight wave, if any, runs to completion.
func (s *Service) Cancel(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("cancel %s: %w", jobID, ErrJobNotFound)
	}
	if entry.job.Status.Terminal() {
		return fmt.Errorf("cancel %s: %w", jobID, ErrJobFinished)
	}
	entry.cancelled = true
	s.logger.Info("job cancellation requested", slog.String("job_id", jobID))
	return nil
}

// Subscribe streams the job's progress events until ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context, jobID string) (<-chan events.Event, error) {
	s.mu.Lock()
	_, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("subscribe %s: %w", jobID, ErrJobNotFound)
	}

	ch := make(chan events.Event, 64)
	sub := s.tracker.SubscribeWithFilter(func(event *events.Event) {
		select {
		case ch <- *event:
		default:
			// Slow consumer; drop rather than stall the job.
		}
	}, events.JobEvents(jobID))

	go func() {
		<-ctx.Done()
		s.tracker.Unsubscribe(sub)
		close(ch)
	}()
	return ch, nil
}

// initMetrics lazily initializes metrics. Creation failures degrade
// observability, never execution.
func (s *Service) initMetrics() {
	s.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		s.moduleLatency, err = meter.Float64Histogram("enrich_module_duration_seconds",
			metric.WithDescription("Time spent in each module's enrich call"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "module_latency: "+err.Error())
		}

		s.moduleOutcomes, err = meter.Int64Counter("enrich_module_outcomes_total",
			metric.WithDescription("Module enrich outcomes by module and result"),
		)
		if err != nil {
			initErrors = append(initErrors, "module_outcomes: "+err.Error())
		}

		s.activeModules, err = meter.Int64UpDownCounter("enrich_active_modules",
			metric.WithDescription("Modules currently executing"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_modules: "+err.Error())
		}

		s.jobLatency, err = meter.Float64Histogram("enrich_job_duration_seconds",
			metric.WithDescription("Total job execution time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "job_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			s.logger.Error("failed to initialize some orchestrator metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run drives a pending job to a terminal status.
//
// Description:
//
//	Resolves the wave plan, then executes wave by wave: all modules of
//	a wave concurrently under the bounded pool, full barrier, then the
//	next wave with the accumulated results as its dependency map. A
//	module failure is recorded and its siblings continue; downstream
//	modules see an absent dependency entry. Cancellation (via Cancel
//	or ctx) is observed between waves.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	jobID - A job in StatusPending.
//
// Outputs:
//
//	Job - Terminal snapshot.
//	error - Non-nil for unknown or non-pending jobs, or when the wave
//	        plan cannot be resolved. Module failures are recorded on
//	        the job, not returned.
func (s *Service) Run(ctx context.Context, jobID string) (Job, error) {
	if ctx == nil {
		return Job{}, fmt.Errorf("ctx must not be nil")
	}
	s.initMetrics()

	s.mu.Lock()
	entry, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return Job{}, fmt.Errorf("run %s: %w", jobID, ErrJobNotFound)
	}
	j := entry.job
	if j.Status != StatusPending {
		s.mu.Unlock()
		return j.snapshot(), fmt.Errorf("run %s: %w (status %s)", jobID, ErrJobNotPending, j.Status)
	}
	j.Status = StatusRunning
	j.StartedAt = s.now()
	s.mu.Unlock()

	plan, err := waves.Resolve(s.registry, j.Modules...)
	if err != nil {
		return s.finish(j, StatusFailed, fmt.Errorf("resolve plan: %w", err))
	}

	ctx, span := tracer.Start(ctx, "enrich.Job",
		trace.WithAttributes(
			attribute.String("job.id", j.ID),
			attribute.String("job.domain", j.Domain),
			attribute.Int("job.waves", plan.Len()),
			attribute.Int("job.modules", len(plan.Modules())),
		),
	)
	defer span.End()

	scheduled := plan.Modules()
	s.mu.Lock()
	for wave, ids := range plan.Waves {
		for _, id := range ids {
			j.ModuleStatuses[id] = ModuleStatus{State: ModulePending, Wave: wave}
		}
	}
	s.mu.Unlock()

	s.tracker.Publish(events.TypeJobStarted, j.ID, j.Domain, events.JobData{Modules: scheduled})
	s.logger.Info("job started",
		slog.String("job_id", j.ID),
		slog.String("domain", j.Domain),
		slog.Int("waves", plan.Len()),
		slog.Int("modules", len(scheduled)),
	)

	start := s.now()
	for wave, ids := range plan.Waves {
		if cancelled := s.checkCancelled(ctx, j); cancelled {
			s.markSkipped(j, plan, wave)
			span.SetStatus(codes.Error, "cancelled")
			snap, _ := s.finish(j, StatusCancelled, nil)
			s.tracker.Publish(events.TypeJobCancelled, j.ID, j.Domain, nil)
			s.logger.Info("job cancelled",
				slog.String("job_id", j.ID),
				slog.Int("completed_waves", wave),
			)
			return snap, nil
		}

		s.tracker.Publish(events.TypeWaveStarted, j.ID, j.Domain, events.WaveData{Index: wave, Modules: ids})
		s.runWave(ctx, j, wave, ids)
		s.tracker.Publish(events.TypeWaveCompleted, j.ID, j.Domain, events.WaveData{Index: wave, Modules: ids})
	}

	duration := s.now().Sub(start)
	if s.jobLatency != nil {
		s.jobLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("domain", j.Domain)),
		)
	}

	s.mu.Lock()
	terminal := j.terminalStatus()
	s.mu.Unlock()
	snap, _ := s.finish(j, terminal, nil)

	succeeded, failed := snap.counts()
	s.tracker.Publish(events.TypeJobCompleted, j.ID, j.Domain, events.JobData{
		Status:    string(terminal),
		Succeeded: succeeded,
		Failed:    failed,
	})

	if terminal == StatusCompleted {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, string(terminal))
	}
	s.logger.Info("job finished",
		slog.String("job_id", j.ID),
		slog.String("status", string(terminal)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
		slog.Duration("duration", duration),
	)
	return snap, nil
}

// checkCancelled consults the cancel flag and the context at a wave
// boundary.
func (s *Service) checkCancelled(ctx context.Context, j *Job) bool {
	if ctx.Err() != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[j.ID]
	return ok && entry.cancelled
}

// markSkipped records skipped state for every module of wave and
// later.
func (s *Service) markSkipped(j *Job, plan waves.Plan, from int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for wave := from; wave < len(plan.Waves); wave++ {
		for _, id := range plan.Waves[wave] {
			j.ModuleStatuses[id] = ModuleStatus{State: ModuleSkipped, Wave: wave}
		}
	}
}

// runWave executes one wave's modules concurrently and blocks until
// all of them settle.
func (s *Service) runWave(ctx context.Context, j *Job, wave int, ids []string) {
	// Snapshot the dependency map once; it does not change while the
	// wave runs.
	s.mu.Lock()
	deps := make(module.Results, len(j.Results))
	for id, res := range j.Results {
		deps[id] = res
	}
	force := j.Force
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			s.runModule(gctx, j, wave, id, deps, force)
			// Failures are recorded on the job; returning them would
			// cancel sibling modules through the group context.
			return nil
		})
	}
	_ = g.Wait()
}

// runModule drives one module through the runner and records the
// outcome on the job.
func (s *Service) runModule(ctx context.Context, j *Job, wave int, id string, deps module.Results, force bool) {
	ctx, span := tracer.Start(ctx, "enrich.Module",
		trace.WithAttributes(
			attribute.String("module.id", id),
			attribute.String("job.id", j.ID),
			attribute.Int("module.wave", wave),
		),
	)
	defer span.End()

	if s.activeModules != nil {
		s.activeModules.Add(ctx, 1)
		defer s.activeModules.Add(ctx, -1)
	}

	s.setModuleStatus(j, id, ModuleStatus{State: ModuleRunning, Wave: wave})
	s.tracker.Publish(events.TypeModuleStarted, j.ID, j.Domain, events.ModuleData{ModuleID: id, Wave: wave})

	start := s.now()
	m, ok := s.modules[id]
	var (
		res module.Result
		err error
	)
	if !ok {
		err = fmt.Errorf("module %s: %w", id, ErrNoModuleInstance)
	} else {
		res, err = s.runner.Enrich(ctx, m, j.Domain, deps, force)
	}
	duration := s.now().Sub(start)

	if s.moduleLatency != nil {
		s.moduleLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("module", id)),
		)
	}

	if err != nil {
		if s.moduleOutcomes != nil {
			s.moduleOutcomes.Add(ctx, 1, metric.WithAttributes(
				attribute.String("module", id),
				attribute.String("outcome", "failure"),
			))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		s.mu.Lock()
		j.ModuleStatuses[id] = ModuleStatus{State: ModuleFailed, Wave: wave, Error: err.Error(), Duration: duration}
		j.Errors = append(j.Errors, JobError{ModuleID: id, Wave: wave, Err: err.Error(), At: s.now()})
		s.mu.Unlock()

		s.tracker.Publish(events.TypeModuleFailed, j.ID, j.Domain, events.ModuleData{
			ModuleID: id, Wave: wave, Duration: duration, Error: err.Error(),
		})
		s.logger.Error("module failed",
			slog.String("job_id", j.ID),
			slog.String("module", id),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return
	}

	fromCache := res.FetchedAt.Before(start)
	if s.moduleOutcomes != nil {
		s.moduleOutcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("module", id),
			attribute.String("outcome", "success"),
		))
	}
	span.SetStatus(codes.Ok, "")

	s.mu.Lock()
	j.ModuleStatuses[id] = ModuleStatus{State: ModuleSucceeded, Wave: wave, Duration: duration, FromCache: fromCache}
	j.Results[id] = res
	s.mu.Unlock()

	eventType := events.TypeModuleCompleted
	if fromCache {
		eventType = events.TypeModuleCached
	}
	s.tracker.Publish(eventType, j.ID, j.Domain, events.ModuleData{
		ModuleID: id, Wave: wave, Duration: duration, FromCache: fromCache,
	})
	s.logger.Info("module completed",
		slog.String("job_id", j.ID),
		slog.String("module", id),
		slog.Duration("duration", duration),
		slog.Bool("from_cache", fromCache),
	)
}

func (s *Service) setModuleStatus(j *Job, id string, st ModuleStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.ModuleStatuses[id] = st
}

// finish records the terminal state and returns the final snapshot.
func (s *Service) finish(j *Job, status Status, cause error) (Job, error) {
	s.mu.Lock()
	j.Status = status
	j.FinishedAt = s.now()
	if cause != nil {
		j.Errors = append(j.Errors, JobError{Err: cause.Error(), At: j.FinishedAt})
	}
	snap := j.snapshot()
	s.mu.Unlock()
	if cause != nil {
		return snap, cause
	}
	return snap, nil
}
