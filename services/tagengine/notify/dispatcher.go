// Copyright (C) 2025 Tribo (eng@tribo.social)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify delivers tag transition notifications to the
// notification transport. Delivery is best-effort and fully decoupled
// from tag state: a failed or dropped notification never affects a
// committed assignment.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tribo-social/tribo/services/tagengine/engine"
)

// Sink is the delivery transport behind the dispatcher.
type Sink interface {
	// Deliver sends one notification event. Blocking and fallible;
	// the dispatcher serializes and rate-limits calls.
	Deliver(ctx context.Context, event Event) error
}

// Event is one tag transition notification.
type Event struct {
	UserID string                `json:"userId"`
	TagID  string                `json:"tagId"`
	Kind   engine.TransitionKind `json:"kind"`
}

// DropCounter records dropped or failed notifications for metrics export.
// May be nil.
type DropCounter interface {
	NotificationDropped(reason string)
	NotificationDelivered()
}

// Dispatcher is the engine-facing Notifier.
//
// # Description
//
// Notify enqueues onto a buffered channel drained by a single delivery
// goroutine, so the reconciler never blocks on the transport. When the
// buffer is full the event is dropped with a warning: the engine
// contract is fire-and-forget, retry belongs to the transport. Delivery
// is rate-limited; the limiter is constructor-injected state, not a
// process-wide map.
//
// # Thread Safety
//
// Notify is safe for concurrent use from any number of workers.
type Dispatcher struct {
	sink    Sink
	limiter *rate.Limiter
	counter DropCounter

	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// DispatcherConfig configures queue depth and delivery rate.
type DispatcherConfig struct {
	// BufferSize is the queue depth before drops. Default: 1024.
	BufferSize int

	// RatePerSecond caps deliveries per second. Default: 50.
	RatePerSecond float64

	// Burst is the limiter burst. Default: 10.
	Burst int

	// DeliverTimeout bounds one delivery attempt. Default: 5s.
	DeliverTimeout time.Duration
}

// DefaultDispatcherConfig returns production defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BufferSize:     1024,
		RatePerSecond:  50,
		Burst:          10,
		DeliverTimeout: 5 * time.Second,
	}
}

// NewDispatcher creates and starts a dispatcher draining into sink.
//
// # Inputs
//
//   - sink: The delivery transport.
//   - counter: Metrics sink for delivered/dropped counts. May be nil.
//   - cfg: Queue and rate configuration.
//
// The caller must Stop the dispatcher during shutdown to drain the queue.
func NewDispatcher(sink Sink, counter DropCounter, cfg DispatcherConfig) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultDispatcherConfig().BufferSize
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultDispatcherConfig().RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultDispatcherConfig().Burst
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = DefaultDispatcherConfig().DeliverTimeout
	}

	d := &Dispatcher{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		counter: counter,
		events:  make(chan Event, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	d.wg.Add(1)
	go d.drain(cfg.DeliverTimeout)
	return d
}

// Notify enqueues a notification. Never blocks: a full queue drops the
// event with a warning.
func (d *Dispatcher) Notify(userID, tagID string, kind engine.TransitionKind) {
	event := Event{UserID: userID, TagID: tagID, Kind: kind}
	select {
	case d.events <- event:
	default:
		slog.Warn("notification queue full, dropping event",
			"user_id", userID, "tag_id", tagID, "kind", string(kind))
		if d.counter != nil {
			d.counter.NotificationDropped("queue_full")
		}
	}
}

// Stop closes the queue and waits for the drain goroutine to deliver
// what is already enqueued.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

func (d *Dispatcher) drain(deliverTimeout time.Duration) {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.events:
			d.deliver(event, deliverTimeout)
		case <-d.done:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case event := <-d.events:
					d.deliver(event, deliverTimeout)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		slog.Warn("notification rate wait aborted, dropping event",
			"user_id", event.UserID, "tag_id", event.TagID, "error", err)
		if d.counter != nil {
			d.counter.NotificationDropped("rate_wait")
		}
		return
	}

	if err := d.sink.Deliver(ctx, event); err != nil {
		// Logged and dropped, never retried here.
		slog.Warn("notification delivery failed",
			"user_id", event.UserID, "tag_id", event.TagID,
			"kind", string(event.Kind), "error", err)
		if d.counter != nil {
			d.counter.NotificationDropped("delivery_failed")
		}
		return
	}
	if d.counter != nil {
		d.counter.NotificationDelivered()
	}
}

// Ensure Dispatcher satisfies the engine's Notifier contract.
var _ engine.Notifier = (*Dispatcher)(nil)
