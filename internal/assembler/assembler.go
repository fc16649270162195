// Package assembler merges buffered coordinates, an optional screenshot
// and session metadata into closed batches. It owns the window protocol:
// freeze the buffer synchronously, then capture, then hand off to
// delivery without waiting for it.
package assembler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse-go/internal/buffer"
	"github.com/pagepulse/pagepulse-go/internal/capture"
	"github.com/pagepulse/pagepulse-go/internal/delivery"
	"github.com/pagepulse/pagepulse-go/pkg/models"
	"github.com/pagepulse/pagepulse-go/pkg/platform"
)

const (
	// DefaultScrollStopDelay is the debounce window after the last scroll
	DefaultScrollStopDelay = 150 * time.Millisecond
	// DefaultMaxWindowAge forces a batch out even under continuous activity
	DefaultMaxWindowAge = 30 * time.Second
	// captureBudget bounds one rasterization, which normally takes 100-500ms
	captureBudget = 5 * time.Second
)

// Trigger identifies why an assembly window was closed
type Trigger string

const (
	TriggerFirstInteraction Trigger = "first_interaction"
	TriggerScrollStop       Trigger = "scroll_stop"
	TriggerOverflow         Trigger = "buffer_overflow"
	TriggerMaxAge           Trigger = "max_age"
	TriggerUnload           Trigger = "unload"
)

// CapturePolicy decides whether a trigger warrants a screenshot. The
// trigger-to-screenshot mapping is product policy, not contract, so it
// stays pluggable.
type CapturePolicy func(t Trigger) bool

// CaptureOnScrollStop takes a screenshot on scroll-stop and for the
// baseline batch. This is the default policy.
func CaptureOnScrollStop(t Trigger) bool {
	return t == TriggerScrollStop || t == TriggerFirstInteraction
}

// CaptureEveryBatch takes a screenshot on every trigger except unload,
// where there is no time for asynchronous capture
func CaptureEveryBatch(t Trigger) bool {
	return t != TriggerUnload
}

// Config tunes the assembler
type Config struct {
	ScrollStopDelay time.Duration
	MaxWindowAge    time.Duration
	CaptureOptions  platform.CaptureOptions
	CapturePolicy   CapturePolicy
	Debug           bool
}

func (c Config) withDefaults() Config {
	if c.ScrollStopDelay <= 0 {
		c.ScrollStopDelay = DefaultScrollStopDelay
	}
	if c.MaxWindowAge <= 0 {
		c.MaxWindowAge = DefaultMaxWindowAge
	}
	if c.CapturePolicy == nil {
		c.CapturePolicy = CaptureOnScrollStop
	}
	return c
}

// Meta supplies the session and site fields of a batch skeleton. Called
// at assembly time so a changing URL (SPA navigation) is picked up.
type Meta func() models.Batch

// Assembler drives the window state machine: IDLE until the first
// qualifying interaction, then ARMED, closing one window per trigger.
type Assembler struct {
	cfg      Config
	buf      *buffer.CoordinateBuffer
	capturer *capture.Adapter
	pipeline *delivery.Pipeline
	clock    platform.Clock
	meta     Meta

	mu          sync.Mutex
	armed       bool
	destroyed   bool
	windowStart time.Time
	scrollTimer *time.Timer
	maxAgeTimer *time.Timer
}

// New creates an assembler over the given buffer, capture adapter and
// delivery pipeline
func New(cfg Config, buf *buffer.CoordinateBuffer, capturer *capture.Adapter, pipeline *delivery.Pipeline, clock platform.Clock, meta Meta) *Assembler {
	return &Assembler{
		cfg:         cfg.withDefaults(),
		buf:         buf,
		capturer:    capturer,
		pipeline:    pipeline,
		clock:       clock,
		meta:        meta,
		windowStart: clock.Now(),
	}
}

// OnFirstInteraction arms the assembler and emits the baseline batch.
// Subsequent calls are no-ops.
func (a *Assembler) OnFirstInteraction() {
	a.mu.Lock()
	if a.armed || a.destroyed {
		a.mu.Unlock()
		return
	}
	a.armed = true
	a.windowStart = a.clock.Now()
	a.maxAgeTimer = time.AfterFunc(a.cfg.MaxWindowAge, a.onMaxAge)
	a.mu.Unlock()

	go a.assembleWindow(TriggerFirstInteraction)
}

// OnScroll restarts the scroll-stop debounce timer. The window closes
// when no scroll arrives for the debounce delay.
func (a *Assembler) OnScroll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.armed || a.destroyed {
		return
	}
	if a.scrollTimer == nil {
		a.scrollTimer = time.AfterFunc(a.cfg.ScrollStopDelay, a.onScrollStop)
		return
	}
	a.scrollTimer.Reset(a.cfg.ScrollStopDelay)
}

// OnBufferOverflow closes the window out of band. Wired as the coordinate
// buffer's overflow callback; runs even before the first interaction so a
// full buffer never drops samples.
func (a *Assembler) OnBufferOverflow() {
	go a.assembleWindow(TriggerOverflow)
}

// FlushOnUnload closes the current window synchronously through the
// best-effort page-exit transport. No screenshot: there is no time for
// an asynchronous capture during teardown.
func (a *Assembler) FlushOnUnload() bool {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return false
	}
	batch := a.freezeWindow()
	a.mu.Unlock()

	if batch.Empty() {
		return false
	}
	return a.pipeline.DeliverBatchOnUnload(&batch)
}

// Destroy cancels the timers and delivers whatever is buffered, waiting
// for the delivery attempt. Safe to call more than once.
func (a *Assembler) Destroy(ctx context.Context) {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	if a.scrollTimer != nil {
		a.scrollTimer.Stop()
	}
	if a.maxAgeTimer != nil {
		a.maxAgeTimer.Stop()
	}
	batch := a.freezeWindow()
	a.mu.Unlock()

	if !batch.Empty() {
		a.pipeline.DeliverBatch(ctx, &batch)
	}
}

func (a *Assembler) onScrollStop() {
	a.assembleWindow(TriggerScrollStop)
}

func (a *Assembler) onMaxAge() {
	a.assembleWindow(TriggerMaxAge)
}

// freezeWindow drains the buffer and rolls the window boundary. Callers
// hold a.mu; no I/O happens under the lock.
func (a *Assembler) freezeWindow() models.Batch {
	coords := a.buf.Drain()
	now := a.clock.Now()

	batch := a.meta()
	batch.WindowStart = a.windowStart.UnixMilli()
	batch.WindowEnd = now.UnixMilli()
	batch.Coordinates = coords

	a.windowStart = now
	return batch
}

func (a *Assembler) assembleWindow(trigger Trigger) {
	a.mu.Lock()
	if a.destroyed || (!a.armed && trigger != TriggerOverflow) {
		a.mu.Unlock()
		return
	}
	batch := a.freezeWindow()
	// The forced-flush timer always re-arms so a batch is emitted even
	// under continuous scrolling
	if a.maxAgeTimer != nil {
		a.maxAgeTimer.Reset(a.cfg.MaxWindowAge)
	}
	a.mu.Unlock()

	if a.cfg.CapturePolicy(trigger) {
		ctx, cancel := context.WithTimeout(context.Background(), captureBudget)
		result, err := a.capturer.CaptureViewport(ctx, a.cfg.CaptureOptions)
		cancel()

		switch {
		case err == nil:
			batch.Capture = result
		case errors.Is(err, capture.ErrCaptureInFlight):
			a.debugf("capture busy, batch %s proceeds without screenshot", trigger)
		default:
			a.debugf("capture failed (%v), batch %s proceeds without screenshot", err, trigger)
		}
	}

	// Empty windows are skipped, except the mandatory baseline batch
	if batch.Empty() && trigger != TriggerFirstInteraction {
		return
	}

	go a.pipeline.DeliverBatch(context.Background(), &batch)
}

func (a *Assembler) debugf(format string, args ...any) {
	if a.cfg.Debug {
		log.Printf("pagepulse: "+format, args...)
	}
}
