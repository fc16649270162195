package platform

import (
	"context"
	"errors"

	"github.com/pagepulse/pagepulse-go/pkg/models"
)

// ErrCrossOrigin signals that rasterization failed because cross-origin
// content tainted the rendering surface. Implementations wrap or return
// this sentinel so the capture adapter can classify the failure.
var ErrCrossOrigin = errors.New("cross-origin content tainted the capture surface")

// CaptureOptions tune a single viewport rasterization
type CaptureOptions struct {
	Quality         float64 // 0..1, encoder quality
	UseCORS         bool    // attempt to load cross-origin images with CORS
	BackgroundColor string  // CSS color painted behind transparent regions
}

// Rasterizer converts the current viewport into a pixel buffer. The engine
// is CPU and DOM bound, typically takes 100-500ms, is not reentrant, and
// may fail on cross-origin content. Callers must never run two captures
// concurrently; the capture adapter enforces that.
type Rasterizer interface {
	CaptureViewport(ctx context.Context, opts CaptureOptions) (*models.CaptureResult, error)
}
