// Package queue buffers discrete analytics events and flushes them in
// FIFO batches. Unlike pointer batches, discrete events get at-least-once
// treatment: a failed flush re-prepends its events ahead of anything that
// arrived in the meantime, preserving chronological order.
package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse-go/pkg/models"
)

const (
	// DefaultMaxBatchSize triggers an immediate flush when reached
	DefaultMaxBatchSize = 10
	// DefaultFlushInterval is the unconditional periodic flush cadence
	DefaultFlushInterval = 5 * time.Second
)

// Sender delivers one batch of events. Returning an error requeues them.
type Sender func(ctx context.Context, events []models.DiscreteEvent) error

// EventQueue accumulates discrete events between flushes
type EventQueue struct {
	mu     sync.Mutex
	events []models.DiscreteEvent

	// flushMu serializes flushes so a size-triggered flush and the
	// periodic one cannot interleave their requeue ordering
	flushMu sync.Mutex

	maxBatch int
	interval time.Duration
	send     Sender
	debug    bool

	done      chan struct{}
	wg        sync.WaitGroup
	started   bool
	destroyed bool
}

// New creates an event queue. Zero values select the defaults.
func New(maxBatch int, interval time.Duration, send Sender, debug bool) *EventQueue {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &EventQueue{
		maxBatch: maxBatch,
		interval: interval,
		send:     send,
		debug:    debug,
		done:     make(chan struct{}),
	}
}

// Start launches the periodic flush loop
func (q *EventQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.destroyed {
		return
	}
	q.started = true

	q.wg.Add(1)
	go q.run()
}

// Enqueue appends one event. Reaching the batch ceiling triggers an
// immediate out-of-band flush. After Destroy this is a no-op.
func (q *EventQueue) Enqueue(event models.DiscreteEvent) {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, event)
	full := len(q.events) >= q.maxBatch
	q.mu.Unlock()

	if full {
		go func() {
			if err := q.Flush(context.Background()); err != nil && q.debug {
				log.Printf("pagepulse: size-triggered flush failed, events requeued: %v", err)
			}
		}()
	}
}

// Flush freezes the queued events and sends them. On failure the frozen
// events are re-prepended ahead of newer arrivals and the error is
// surfaced to the caller.
func (q *EventQueue) Flush(ctx context.Context) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	frozen := q.events
	q.events = nil
	q.mu.Unlock()

	if len(frozen) == 0 {
		return nil
	}

	if err := q.send(ctx, frozen); err != nil {
		q.mu.Lock()
		requeued := make([]models.DiscreteEvent, 0, len(frozen)+len(q.events))
		requeued = append(requeued, frozen...)
		requeued = append(requeued, q.events...)
		q.events = requeued
		q.mu.Unlock()
		return err
	}
	return nil
}

// FlushOnUnload freezes the queued events and hands them to a
// best-effort sender (single attempt, no retry). A rejected send
// requeues the events like an ordinary failed flush.
func (q *EventQueue) FlushOnUnload(send func(events []models.DiscreteEvent) bool) bool {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	frozen := q.events
	q.events = nil
	q.mu.Unlock()

	if len(frozen) == 0 {
		return true
	}
	if !send(frozen) {
		q.mu.Lock()
		q.events = append(frozen, q.events...)
		q.mu.Unlock()
		return false
	}
	return true
}

// Len returns the number of queued events
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Destroy stops the flush loop, performs one final flush, and makes all
// further Enqueue calls no-ops. Safe to call more than once.
func (q *EventQueue) Destroy(ctx context.Context) error {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return nil
	}
	q.destroyed = true
	started := q.started
	q.mu.Unlock()

	if started {
		close(q.done)
		q.wg.Wait()
	}
	return q.Flush(ctx)
}

func (q *EventQueue) run() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			if err := q.Flush(context.Background()); err != nil && q.debug {
				log.Printf("pagepulse: periodic flush failed, events requeued: %v", err)
			}
		}
	}
}
