package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse-go/pkg/models"
	"github.com/pagepulse/pagepulse-go/pkg/platform"
)

// syntheticRasterizer stands in for a real rendering engine: it paints a
// small noise image and sleeps to mimic the 100-500ms capture latency.
type syntheticRasterizer struct {
	mu      sync.Mutex
	width   int
	height  int
	scrollY float64
	rng     *rand.Rand
}

func newSyntheticRasterizer(width, height int) *syntheticRasterizer {
	return &syntheticRasterizer{
		width:  width,
		height: height,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// setScroll records the simulated scroll position reported as viewport info
func (s *syntheticRasterizer) setScroll(y float64) {
	s.mu.Lock()
	s.scrollY = y
	s.mu.Unlock()
}

func (s *syntheticRasterizer) CaptureViewport(ctx context.Context, _ platform.CaptureOptions) (*models.CaptureResult, error) {
	s.mu.Lock()
	scrollY := s.scrollY
	delay := 100 + time.Duration(s.rng.Intn(400))
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = uint8(s.rng.Intn(256))
	}
	img.Set(0, 0, color.White)
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay * time.Millisecond):
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &models.CaptureResult{
		PixelBuffer: buf.Bytes(),
		Viewport: models.ViewportInfo{
			ScrollY: scrollY,
			Width:   s.width,
			Height:  s.height,
		},
		UserAgent: "pagepulse-simulator",
	}, nil
}
