// Package sdk is the public entry point of the PagePulse telemetry SDK.
// A Client owns all state for one attachment to a page: identifiers,
// buffers, queues, timers. Hosts feed it interaction events; the client
// batches and ships them. The client never panics and never surfaces an
// error into the host's control flow once initialized.
package sdk

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagepulse/pagepulse-go/internal/assembler"
	"github.com/pagepulse/pagepulse-go/internal/buffer"
	"github.com/pagepulse/pagepulse-go/internal/capture"
	"github.com/pagepulse/pagepulse-go/internal/delivery"
	"github.com/pagepulse/pagepulse-go/internal/identity"
	"github.com/pagepulse/pagepulse-go/internal/queue"
	"github.com/pagepulse/pagepulse-go/pkg/models"
	"github.com/pagepulse/pagepulse-go/pkg/platform"
)

// ErrDestroyed is returned by Init on a client that was already torn
// down. A destroyed client never resurrects its timers.
var ErrDestroyed = errors.New("pagepulse: client destroyed")

// State is the lifecycle phase of a client
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDestroyed
)

// Deps are the injected platform capabilities. Nil fields fall back to
// the production defaults; a nil Rasterizer disables screenshots.
type Deps struct {
	Clock             platform.Clock
	PersistentStorage platform.Storage
	SessionStorage    platform.Storage
	Rasterizer        platform.Rasterizer
	Transport         platform.Transport
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = platform.SystemClock{}
	}
	if d.PersistentStorage == nil {
		d.PersistentStorage = platform.NewMemoryStorage()
	}
	if d.SessionStorage == nil {
		d.SessionStorage = platform.NewMemoryStorage()
	}
	if d.Transport == nil {
		d.Transport = platform.NewHTTPTransport()
	}
	if d.Rasterizer == nil {
		d.Rasterizer = disabledRasterizer{}
	}
	return d
}

// disabledRasterizer stands in when the host provides no capture engine
type disabledRasterizer struct{}

func (disabledRasterizer) CaptureViewport(context.Context, platform.CaptureOptions) (*models.CaptureResult, error) {
	return nil, errors.New("no rasterizer configured")
}

// Client is one SDK instance
type Client struct {
	cfg   Config
	deps  Deps
	clock platform.Clock

	mu    sync.Mutex
	state State

	identity *identity.Store
	buf      *buffer.CoordinateBuffer
	events   *queue.EventQueue
	asm      *assembler.Assembler
	pipeline *delivery.Pipeline

	currentURL   string
	startedAt    time.Time
	pageViews    atomic.Int64
	interactions atomic.Int64
}

// New wires a client from config and platform capabilities. The client
// is inert until Init.
func New(cfg Config, deps Deps) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	deps = deps.withDefaults()

	c := &Client{
		cfg:        cfg,
		deps:       deps,
		clock:      deps.Clock,
		currentURL: cfg.PageURL,
	}

	c.identity = identity.NewStore(deps.PersistentStorage, deps.SessionStorage, deps.Clock, cfg.SessionTimeout)

	c.pipeline = delivery.NewPipeline(delivery.Config{
		Endpoint: cfg.Endpoint,
		Debug:    cfg.Debug,
	}, deps.Transport)

	c.buf = buffer.New(cfg.MaxBufferSize, func() {
		c.asm.OnBufferOverflow()
	})

	capturer := capture.NewAdapter(deps.Rasterizer, deps.Clock)

	policy := assembler.CaptureOnScrollStop
	if cfg.CaptureTrigger == CaptureEveryBatch {
		policy = assembler.CaptureEveryBatch
	}
	c.asm = assembler.New(assembler.Config{
		ScrollStopDelay: cfg.ScrollStopDelay,
		MaxWindowAge:    cfg.MaxWindowAge,
		CaptureOptions: platform.CaptureOptions{
			Quality:         cfg.ScreenshotQuality,
			UseCORS:         cfg.UseCORS,
			BackgroundColor: cfg.BackgroundColor,
		},
		CapturePolicy: policy,
		Debug:         cfg.Debug,
	}, c.buf, capturer, c.pipeline, deps.Clock, c.batchMeta)

	c.events = queue.New(cfg.MaxBatchSize, cfg.FlushInterval, c.pipeline.SendEvents, cfg.Debug)

	return c, nil
}

// Init transitions the client to READY: announces the session, starts
// the flush loop and begins accepting tracking calls. Calling Init on a
// READY client logs a warning and is otherwise a no-op.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReady, StateInitializing:
		c.mu.Unlock()
		log.Printf("pagepulse: Init called twice for project %s, ignoring", c.cfg.ProjectID)
		return nil
	case StateDestroyed:
		c.mu.Unlock()
		return ErrDestroyed
	}
	c.state = StateInitializing
	c.mu.Unlock()

	sessionID := c.identity.GetOrCreateSessionID()
	anonymousID := c.identity.GetOrCreateAnonymousID()

	// Session start is advisory; a failure must not keep telemetry off
	if _, err := c.pipeline.SessionStart(ctx, models.SessionStartRequest{
		SessionID: sessionID,
		User:      models.UserInfo{AnonymousID: anonymousID},
		Context: models.SessionContext{
			URL:        c.cfg.PageURL,
			Referrer:   c.cfg.Referrer,
			UserAgent:  c.cfg.UserAgent,
			ScreenSize: c.cfg.ScreenSize,
			Timezone:   c.cfg.Timezone,
			Locale:     c.cfg.Locale,
		},
	}); err != nil {
		log.Printf("pagepulse: session start failed for %s: %v", sessionID, err)
	}

	c.events.Start()

	c.mu.Lock()
	// Destroy may have run while the session-start call was in flight.
	// A destroyed client never resurrects: tear down what Init started
	// instead of going READY.
	if c.state == StateDestroyed {
		c.mu.Unlock()
		c.asm.Destroy(ctx)
		if err := c.events.Destroy(ctx); err != nil {
			c.debugf("final event flush failed: %v", err)
		}
		return ErrDestroyed
	}
	c.startedAt = c.clock.Now()
	c.state = StateReady
	c.mu.Unlock()

	c.debugf("initialized session=%s anonymous=%s", sessionID, anonymousID)
	return nil
}

// State returns the current lifecycle phase
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TrackPointerMove records one raw pointer sample. A zero timestamp is
// filled from the clock.
func (c *Client) TrackPointerMove(sample models.Coordinate) {
	if !c.ready() {
		return
	}
	if sample.Timestamp == 0 {
		sample.Timestamp = c.clock.Now().UnixMilli()
	}
	c.identity.ExtendSessionExpiry()
	c.buf.Push(sample)
}

// TrackScroll notes scroll activity, restarting the scroll-stop debounce
func (c *Client) TrackScroll() {
	if !c.ready() {
		return
	}
	c.identity.ExtendSessionExpiry()
	c.asm.OnScroll()
}

// TrackClick records a click event. The first click (or form submit, or
// custom event) arms the batch assembler and emits the baseline batch.
func (c *Client) TrackClick(data map[string]any) {
	c.trackInteraction(models.EventClick, "", data)
}

// TrackFormSubmit records a form submission event
func (c *Client) TrackFormSubmit(data map[string]any) {
	c.trackInteraction(models.EventForm, "", data)
}

// TrackCustom records a named custom event with an opaque payload
func (c *Client) TrackCustom(name string, data map[string]any) {
	c.trackInteraction(models.EventCustom, name, data)
}

// TrackPageView records a page view and updates the current URL
func (c *Client) TrackPageView(url string) {
	if !c.ready() {
		return
	}
	c.mu.Lock()
	if url != "" {
		c.currentURL = url
	}
	c.mu.Unlock()

	c.pageViews.Add(1)
	c.identity.ExtendSessionExpiry()
	c.events.Enqueue(c.newEvent(models.EventPageView, "", nil))
}

// TrackError records a host-page error. Errors do not count as
// interactions and never arm the assembler.
func (c *Client) TrackError(message string, data map[string]any) {
	if !c.ready() {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["message"] = message
	c.events.Enqueue(c.newEvent(models.EventError, "", data))
}

// OnVisibilityHidden flushes pending telemetry through the best-effort
// transport. The page may come back; nothing is torn down.
func (c *Client) OnVisibilityHidden() {
	if !c.ready() {
		return
	}
	c.asm.FlushOnUnload()
	c.events.FlushOnUnload(c.pipeline.SendEventsOnUnload)
}

// OnUnload performs the final synchronous flush during page teardown:
// remaining coordinates without a screenshot, queued events, and the
// session-end notification, all via the best-effort transport.
func (c *Client) OnUnload() {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return
	}
	c.state = StateDestroyed
	started := c.startedAt
	c.mu.Unlock()

	c.asm.FlushOnUnload()
	c.events.FlushOnUnload(c.pipeline.SendEventsOnUnload)

	// Stop the timers so nothing re-arms after teardown
	ctx := context.Background()
	c.asm.Destroy(ctx)
	if err := c.events.Destroy(ctx); err != nil {
		c.debugf("final event flush failed: %v", err)
	}
	c.stopAndNotifyEnd(ctx, started, true)
}

// Destroy tears the client down: cancels every timer, flushes pending
// buffers and queues, and sends the session-end notification with the
// aggregate counters. Idempotent; tracking calls after Destroy are
// no-ops.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return nil
	}
	wasReady := c.state == StateReady
	c.state = StateDestroyed
	started := c.startedAt
	c.mu.Unlock()

	if !wasReady {
		return nil
	}

	c.asm.Destroy(ctx)
	if err := c.events.Destroy(ctx); err != nil {
		c.debugf("final event flush failed: %v", err)
	}
	c.stopAndNotifyEnd(ctx, started, false)
	return nil
}

func (c *Client) stopAndNotifyEnd(ctx context.Context, started time.Time, beacon bool) {
	// Timers owned by the assembler and queue are already cancelled by
	// the callers of this method
	req := models.SessionEndRequest{
		SessionID:    c.identity.GetOrCreateSessionID(),
		Duration:     c.clock.Now().Sub(started).Milliseconds(),
		PageViews:    int(c.pageViews.Load()),
		Interactions: int(c.interactions.Load()),
	}
	if beacon {
		c.pipeline.SessionEndOnUnload(req)
		return
	}
	if err := c.pipeline.SessionEnd(ctx, req); err != nil {
		log.Printf("pagepulse: session end failed for %s: %v", req.SessionID, err)
	}
}

func (c *Client) trackInteraction(kind models.EventType, name string, data map[string]any) {
	if !c.ready() {
		return
	}
	c.interactions.Add(1)
	c.identity.ExtendSessionExpiry()
	c.events.Enqueue(c.newEvent(kind, name, data))
	c.asm.OnFirstInteraction()
}

func (c *Client) newEvent(kind models.EventType, name string, data map[string]any) models.DiscreteEvent {
	c.mu.Lock()
	url := c.currentURL
	c.mu.Unlock()

	return models.DiscreteEvent{
		Type:        kind,
		Name:        name,
		Timestamp:   c.clock.Now().UnixMilli(),
		URL:         url,
		Referrer:    c.cfg.Referrer,
		Data:        data,
		UserAgent:   c.cfg.UserAgent,
		ScreenSize:  c.cfg.ScreenSize,
		SessionID:   c.identity.GetOrCreateSessionID(),
		AnonymousID: c.identity.GetOrCreateAnonymousID(),
	}
}

func (c *Client) batchMeta() models.Batch {
	c.mu.Lock()
	url := c.currentURL
	c.mu.Unlock()

	return models.Batch{
		SessionID:   c.identity.GetOrCreateSessionID(),
		URL:         url,
		Site:        c.cfg.Site,
		Hostname:    c.cfg.Hostname,
		Environment: c.cfg.Environment,
	}
}

func (c *Client) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady
}

func (c *Client) debugf(format string, args ...any) {
	if c.cfg.Debug {
		log.Printf("pagepulse: "+format, args...)
	}
}
