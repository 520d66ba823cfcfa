// Copyright (C) 2026 Tidewater AI (oss@tidewater.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package events fans registry state transitions out to dashboard
// subscribers.
package events

import (
	"sync"
	"time"

	"github.com/tidewater-ai/mend/services/mend"
)

// Event is one observable registry occurrence.
type Event struct {
	// Type is "error_added", "state_transition" or "outcome".
	Type string `json:"type"`

	// ErrorID identifies the record the event concerns.
	ErrorID string `json:"error_id"`

	// From and To are set for state transitions.
	From mend.ErrorStatus `json:"from,omitempty"`
	To   mend.ErrorStatus `json:"to,omitempty"`

	// Outcome is the outcome kind for "outcome" events.
	Outcome string `json:"outcome,omitempty"`

	// Detail carries a human-readable cause, when there is one.
	Detail string `json:"detail,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer bounds each subscriber's pending events. A subscriber
// that falls further behind loses events rather than blocking the
// registry.
const subscriberBuffer = 64

// Bus is a non-blocking fan-out broadcaster.
//
// # Thread Safety
//
// Safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber.
//
// # Outputs
//
//   - <-chan Event: The subscriber's event stream.
//   - func(): Cancel function; closes the stream and releases the slot.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
// Slow subscribers drop events.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
