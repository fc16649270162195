// Package capture wraps the external rasterization engine behind a
// uniform contract and owns the single-in-flight guard. The engine is
// main-thread bound and not reentrant: overlapping captures could produce
// corrupt or doubled frames, so a second caller always skips.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pagepulse/pagepulse-go/pkg/models"
	"github.com/pagepulse/pagepulse-go/pkg/platform"
)

// Adapter mediates access to the rasterizer
type Adapter struct {
	rasterizer platform.Rasterizer
	clock      platform.Clock
	inFlight   *semaphore.Weighted
}

// NewAdapter creates an adapter around the given rasterizer
func NewAdapter(rasterizer platform.Rasterizer, clock platform.Clock) *Adapter {
	return &Adapter{
		rasterizer: rasterizer,
		clock:      clock,
		inFlight:   semaphore.NewWeighted(1),
	}
}

// CaptureViewport requests one rasterization. If another capture is still
// running it returns ErrCaptureInFlight immediately rather than queueing.
func (a *Adapter) CaptureViewport(ctx context.Context, opts platform.CaptureOptions) (*models.CaptureResult, error) {
	if !a.inFlight.TryAcquire(1) {
		return nil, ErrCaptureInFlight
	}
	defer a.inFlight.Release(1)

	result, err := a.rasterizer.CaptureViewport(ctx, opts)
	if err != nil {
		if errors.Is(err, platform.ErrCrossOrigin) {
			return nil, &CorsError{Cause: err}
		}
		return nil, &CaptureError{Cause: err}
	}
	if result == nil {
		return nil, &CaptureError{Cause: errors.New("rasterizer returned no result")}
	}

	if result.Filename == "" {
		result.Filename = fmt.Sprintf("screenshot-%s.png", uuid.New().String())
	}
	if result.Timestamp == 0 {
		result.Timestamp = a.clock.Now().UnixMilli()
	}
	return result, nil
}

// Busy reports whether a capture is currently in flight
func (a *Adapter) Busy() bool {
	if !a.inFlight.TryAcquire(1) {
		return true
	}
	a.inFlight.Release(1)
	return false
}
