package models

// ViewportInfo describes the visible region of the page at capture time
type ViewportInfo struct {
	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
}

// CaptureResult is the outcome of one successful viewport rasterization.
// Ephemeral: it exists only between capture and upload and is never persisted.
type CaptureResult struct {
	PixelBuffer []byte       `json:"-"`
	Filename    string       `json:"filename"`
	Timestamp   int64        `json:"timestamp"` // unix milliseconds
	Viewport    ViewportInfo `json:"viewport"`
	UserAgent   string       `json:"userAgent,omitempty"`
}

// Batch is a closed snapshot of one assembly window. Once handed to the
// delivery pipeline it must not be mutated: data arriving during delivery
// belongs to the next window.
type Batch struct {
	SessionID   string         `json:"sessionId"`
	URL         string         `json:"url"`
	Site        string         `json:"site"`
	Hostname    string         `json:"hostname"`
	Environment string         `json:"environment"`
	WindowStart int64          `json:"batchStartTime"` // unix milliseconds
	WindowEnd   int64          `json:"batchEndTime"`
	Capture     *CaptureResult `json:"-"`
	Coordinates []Coordinate   `json:"pointerData,omitempty"`
}

// Empty reports whether the batch carries no telemetry at all.
// Empty batches are skipped except for the mandatory baseline batch.
func (b *Batch) Empty() bool {
	return b.Capture == nil && len(b.Coordinates) == 0
}
