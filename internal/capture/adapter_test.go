package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse-go/pkg/models"
	"github.com/pagepulse/pagepulse-go/pkg/platform"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakeRasterizer blocks on release when set, so tests can hold a capture
// open while probing the guard.
type fakeRasterizer struct {
	release chan struct{}
	result  *models.CaptureResult
	err     error
	calls   int
}

func (r *fakeRasterizer) CaptureViewport(ctx context.Context, opts platform.CaptureOptions) (*models.CaptureResult, error) {
	r.calls++
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.result, r.err
}

func setupTest(t *testing.T, r *fakeRasterizer) *Adapter {
	t.Helper()
	return NewAdapter(r, &fakeClock{now: time.UnixMilli(1700000000000)})
}

func TestCaptureFillsMetadata(t *testing.T) {
	raster := &fakeRasterizer{result: &models.CaptureResult{PixelBuffer: []byte{1, 2, 3}}}
	adapter := setupTest(t, raster)

	result, err := adapter.CaptureViewport(context.Background(), platform.CaptureOptions{})
	if err != nil {
		t.Fatalf("CaptureViewport failed: %v", err)
	}
	if !strings.HasPrefix(result.Filename, "screenshot-") || !strings.HasSuffix(result.Filename, ".png") {
		t.Errorf("Unexpected filename %q", result.Filename)
	}
	if result.Timestamp != 1700000000000 {
		t.Errorf("Expected clock timestamp, got %d", result.Timestamp)
	}
}

func TestCaptureKeepsProvidedMetadata(t *testing.T) {
	raster := &fakeRasterizer{result: &models.CaptureResult{
		Filename:  "frame.png",
		Timestamp: 42,
	}}
	adapter := setupTest(t, raster)

	result, err := adapter.CaptureViewport(context.Background(), platform.CaptureOptions{})
	if err != nil {
		t.Fatalf("CaptureViewport failed: %v", err)
	}
	if result.Filename != "frame.png" || result.Timestamp != 42 {
		t.Errorf("Adapter overwrote caller metadata: %+v", result)
	}
}

func TestSecondCaptureSkips(t *testing.T) {
	raster := &fakeRasterizer{
		release: make(chan struct{}),
		result:  &models.CaptureResult{},
	}
	adapter := setupTest(t, raster)

	firstDone := make(chan error, 1)
	go func() {
		_, err := adapter.CaptureViewport(context.Background(), platform.CaptureOptions{})
		firstDone <- err
	}()

	// Wait for the first capture to be inside the rasterizer
	deadline := time.After(2 * time.Second)
	for !adapter.Busy() {
		select {
		case <-deadline:
			t.Fatal("First capture never started")
		case <-time.After(time.Millisecond):
		}
	}

	_, err := adapter.CaptureViewport(context.Background(), platform.CaptureOptions{})
	if !errors.Is(err, ErrCaptureInFlight) {
		t.Fatalf("Expected ErrCaptureInFlight, got %v", err)
	}

	close(raster.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("First capture failed: %v", err)
	}
	if raster.calls != 1 {
		t.Errorf("Expected 1 rasterizer call, got %d", raster.calls)
	}

	// Guard released, a fresh capture goes through again
	if _, err := adapter.CaptureViewport(context.Background(), platform.CaptureOptions{}); err != nil {
		t.Errorf("Capture after release failed: %v", err)
	}
}

func TestCrossOriginClassified(t *testing.T) {
	raster := &fakeRasterizer{err: fmt.Errorf("canvas read: %w", platform.ErrCrossOrigin)}
	adapter := setupTest(t, raster)

	_, err := adapter.CaptureViewport(context.Background(), platform.CaptureOptions{})
	var corsErr *CorsError
	if !errors.As(err, &corsErr) {
		t.Fatalf("Expected CorsError, got %T: %v", err, err)
	}
	if !errors.Is(err, platform.ErrCrossOrigin) {
		t.Errorf("CorsError does not unwrap to ErrCrossOrigin")
	}
}

func TestGenericFailureClassified(t *testing.T) {
	raster := &fakeRasterizer{err: errors.New("out of memory")}
	adapter := setupTest(t, raster)

	_, err := adapter.CaptureViewport(context.Background(), platform.CaptureOptions{})
	var capErr *CaptureError
	if !errors.As(err, &capErr) {
		t.Fatalf("Expected CaptureError, got %T: %v", err, err)
	}
}

func TestNilResultIsError(t *testing.T) {
	adapter := setupTest(t, &fakeRasterizer{})

	_, err := adapter.CaptureViewport(context.Background(), platform.CaptureOptions{})
	if err == nil {
		t.Fatal("Expected an error for a nil rasterizer result")
	}
}
