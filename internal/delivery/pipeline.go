// Package delivery ships assembled batches and discrete events to the
// ingestion endpoint. Failures never propagate to producers: interaction
// batches are best-effort and dropped on terminal failure, discrete event
// sends return their error so the queue can requeue.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pagepulse/pagepulse-go/pkg/models"
	"github.com/pagepulse/pagepulse-go/pkg/platform"
)

const (
	pathSessionStart     = "/v1/session/start"
	pathSessionEnd       = "/v1/session/end"
	pathTrack            = "/v1/track"
	pathBatch            = "/v1/batch"
	pathInteractionBatch = "/v1/interaction-batch"

	contentTypeJSON = "application/json"
)

// Config tunes the delivery pipeline
type Config struct {
	Endpoint       string        // base URL of the ingestion server
	MaxRetries     int           // retries after the first attempt (default 3, negative disables)
	AttemptTimeout time.Duration // per-attempt budget, not cumulative (default 10s)
	RetryBackoff   time.Duration // base backoff, doubled per retry (default 500ms)
	Debug          bool
}

func (c Config) withDefaults() Config {
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = 3
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Pipeline serializes and sends payloads over the injected transport
type Pipeline struct {
	cfg       Config
	transport platform.Transport
}

// NewPipeline creates a delivery pipeline
func NewPipeline(cfg Config, transport platform.Transport) *Pipeline {
	return &Pipeline{
		cfg:       cfg.withDefaults(),
		transport: transport,
	}
}

// DeliverBatch sends one interaction batch. Terminal failures are logged
// and swallowed: a lost window must never block subsequent windows.
// Callers run this in its own goroutine and do not wait for it.
func (p *Pipeline) DeliverBatch(ctx context.Context, batch *models.Batch) {
	body, contentType, err := encodeBatch(batch)
	if err != nil {
		log.Printf("pagepulse: failed to encode batch for session %s: %v", batch.SessionID, err)
		return
	}

	if _, err := p.postWithRetry(ctx, pathInteractionBatch, contentType, body); err != nil {
		log.Printf("pagepulse: dropping batch for session %s after delivery failure: %v", batch.SessionID, err)
		return
	}
	p.debugf("delivered batch session=%s coords=%d screenshot=%t",
		batch.SessionID, len(batch.Coordinates), batch.Capture != nil)
}

// DeliverBatchOnUnload sends a final batch through the best-effort
// page-exit transport: one attempt, no retry. Returns whether the send
// was accepted.
func (p *Pipeline) DeliverBatchOnUnload(batch *models.Batch) bool {
	body, contentType, err := encodeBatch(batch)
	if err != nil {
		log.Printf("pagepulse: failed to encode unload batch: %v", err)
		return false
	}
	accepted := p.transport.SendBeacon(p.cfg.Endpoint+pathInteractionBatch, contentType, body)
	p.debugf("unload batch session=%s accepted=%t", batch.SessionID, accepted)
	return accepted
}

// SendEvents ships a slice of discrete events. The error is returned so
// the event queue can requeue on failure.
func (p *Pipeline) SendEvents(ctx context.Context, events []models.DiscreteEvent) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	_, err = p.postWithRetry(ctx, pathBatch, contentTypeJSON, body)
	return err
}

// SendEventsOnUnload ships discrete events through the best-effort
// page-exit transport
func (p *Pipeline) SendEventsOnUnload(events []models.DiscreteEvent) bool {
	body, err := json.Marshal(events)
	if err != nil {
		return false
	}
	return p.transport.SendBeacon(p.cfg.Endpoint+pathBatch, contentTypeJSON, body)
}

// SendEvent ships one discrete event via the single-event endpoint
func (p *Pipeline) SendEvent(ctx context.Context, event models.DiscreteEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = p.postWithRetry(ctx, pathTrack, contentTypeJSON, body)
	return err
}

// SessionStart announces a new session to the ingestion server
func (p *Pipeline) SessionStart(ctx context.Context, req models.SessionStartRequest) (*models.SessionStartResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session start: %w", err)
	}
	resp, err := p.postWithRetry(ctx, pathSessionStart, contentTypeJSON, body)
	if err != nil {
		return nil, err
	}

	var out models.SessionStartResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("invalid session start response: %w", err)
	}
	return &out, nil
}

// SessionEnd reports session aggregates. On page teardown prefer
// SessionEndOnUnload.
func (p *Pipeline) SessionEnd(ctx context.Context, req models.SessionEndRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal session end: %w", err)
	}
	_, err = p.postWithRetry(ctx, pathSessionEnd, contentTypeJSON, body)
	return err
}

// SessionEndOnUnload reports session aggregates through the best-effort
// page-exit transport
func (p *Pipeline) SessionEndOnUnload(req models.SessionEndRequest) bool {
	body, err := json.Marshal(req)
	if err != nil {
		return false
	}
	return p.transport.SendBeacon(p.cfg.Endpoint+pathSessionEnd, contentTypeJSON, body)
}

// postWithRetry performs up to 1+MaxRetries attempts, each with its own
// timeout budget. Network errors and retryable statuses are retried with
// doubling backoff; anything else is terminal.
func (p *Pipeline) postWithRetry(ctx context.Context, path, contentType string, body []byte) (*platform.Response, error) {
	url := p.cfg.Endpoint + path
	attempts := 1 + p.cfg.MaxRetries
	backoff := p.cfg.RetryBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		resp, err := p.transport.Post(attemptCtx, url, contentType, body)
		cancel()

		switch {
		case err != nil:
			lastErr = fmt.Errorf("attempt %d: %w", attempt, err)
		case resp.StatusCode >= 400:
			transportErr := &TransportError{Status: resp.StatusCode}
			lastErr = fmt.Errorf("attempt %d: %w", attempt, transportErr)
			if !transportErr.Retryable() {
				return nil, lastErr
			}
		default:
			return resp, nil
		}

		if attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.debugf("retrying %s after failure: %v", path, lastErr)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (p *Pipeline) debugf(format string, args ...any) {
	if p.cfg.Debug {
		log.Printf("pagepulse: "+format, args...)
	}
}
