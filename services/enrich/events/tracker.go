// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler processes a published event.
type Handler func(event *Event)

// Filter decides whether a subscription wants an event.
type Filter func(event *Event) bool

// subscription pairs a handler with its filters.
type subscription struct {
	id      string
	handler Handler
	filter  Filter
	types   []Type
}

// Tracker broadcasts job progress events to subscribers and keeps a
// bounded replay buffer so a consumer attaching mid-job can catch up.
//
// Thread Safety: Tracker is safe for concurrent use.
type Tracker struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	buffer        []Event
	bufferSize    int
	now           func() time.Time
	logger        *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithBufferSize sets the replay buffer size.
func WithBufferSize(size int) TrackerOption {
	return func(t *Tracker) {
		if size > 0 {
			t.bufferSize = size
		}
	}
}

// WithClock overrides the event timestamp clock.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLogger sets the logger for handler panics.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		subscriptions: make(map[string]*subscription),
		bufferSize:    1000,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.buffer = make([]Event, 0, t.bufferSize)
	return t
}

// Subscribe registers a handler for events.
//
// Inputs:
//
//	handler - Function called for each matching event.
//	types - Event types to receive (none = all types).
//
// Outputs:
//
//	string - Subscription ID for Unsubscribe.
func (t *Tracker) Subscribe(handler Handler, types ...Type) string {
	return t.SubscribeWithFilter(handler, nil, types...)
}

// SubscribeWithFilter registers a handler with a custom filter on top
// of the type filter. A nil filter matches everything.
func (t *Tracker) SubscribeWithFilter(handler Handler, filter Filter, types ...Type) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := &subscription{
		id:      uuid.NewString(),
		handler: handler,
		filter:  filter,
		types:   types,
	}
	t.subscriptions[sub.id] = sub
	return sub.id
}

// Unsubscribe removes a subscription. Returns false if the ID is
// unknown.
func (t *Tracker) Unsubscribe(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subscriptions[id]; ok {
		delete(t.subscriptions, id)
		return true
	}
	return false
}

// Publish broadcasts an event to all matching subscribers.
//
// Description:
//
//	Stamps the event with an ID and timestamp, appends it to the replay
//	buffer (evicting the oldest entry when full), and invokes matching
//	handlers synchronously with panic recovery.
//
// Thread Safety: Safe for concurrent use.
func (t *Tracker) Publish(eventType Type, jobID, domain string, data any) {
	t.mu.Lock()
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		JobID:     jobID,
		Domain:    domain,
		Timestamp: t.now(),
		Data:      data,
	}
	if len(t.buffer) >= t.bufferSize {
		t.buffer = t.buffer[1:]
	}
	t.buffer = append(t.buffer, event)

	subs := make([]*subscription, 0, len(t.subscriptions))
	for _, sub := range t.subscriptions {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		if matches(sub, &event) {
			t.invoke(sub.handler, &event)
		}
	}
}

func (t *Tracker) invoke(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("progress handler panicked",
				slog.String("event_type", string(event.Type)),
				slog.String("event_id", event.ID),
				slog.Any("panic", r),
			)
		}
	}()
	handler(event)
}

func matches(sub *subscription, event *Event) bool {
	if len(sub.types) > 0 {
		found := false
		for _, typ := range sub.types {
			if typ == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if sub.filter != nil && !sub.filter(event) {
		return false
	}
	return true
}

// Stream bridges a subscription onto a channel for select-based
// consumers. The subscription ends and the channel closes when ctx is
// cancelled. Events are dropped, not blocked on, when the consumer
// falls more than buffer behind.
func (t *Tracker) Stream(ctx context.Context, buffer int, types ...Type) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	var once sync.Once
	id := t.Subscribe(func(event *Event) {
		select {
		case ch <- *event:
		case <-ctx.Done():
		default:
			// Consumer is behind; drop rather than stall publishers.
		}
	}, types...)

	go func() {
		<-ctx.Done()
		t.Unsubscribe(id)
		once.Do(func() { close(ch) })
	}()

	return ch
}

// JobEvents returns a filter matching a single job's events.
func JobEvents(jobID string) Filter {
	return func(event *Event) bool {
		return event.JobID == jobID
	}
}

// Buffer returns a copy of the replay buffer in publish order.
func (t *Tracker) Buffer() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Event, len(t.buffer))
	copy(out, t.buffer)
	return out
}

// BufferByType returns buffered events of one type.
func (t *Tracker) BufferByType(eventType Type) []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Event
	for _, event := range t.buffer {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// SubscriptionCount returns the number of active subscriptions.
func (t *Tracker) SubscriptionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscriptions)
}
