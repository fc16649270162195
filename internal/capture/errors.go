package capture

import "errors"

// ErrCaptureInFlight is returned when a capture is requested while another
// one is still running. Callers skip the capture opportunity; they must
// not wait for the guard.
var ErrCaptureInFlight = errors.New("capture already in flight")

// CaptureError wraps a rasterization failure. The batch proceeds without
// a screenshot; the error exists for diagnostics only.
type CaptureError struct {
	Cause error
}

func (e *CaptureError) Error() string {
	return "viewport capture failed: " + e.Cause.Error()
}

func (e *CaptureError) Unwrap() error {
	return e.Cause
}

// CorsError is a capture failure caused by cross-origin content tainting
// the rendering surface. Handled exactly like CaptureError, distinguished
// for caller diagnostics.
type CorsError struct {
	Cause error
}

func (e *CorsError) Error() string {
	return "viewport capture blocked by cross-origin content: " + e.Cause.Error()
}

func (e *CorsError) Unwrap() error {
	return e.Cause
}
