package sdk

import (
	"fmt"
	"time"

	"github.com/pagepulse/pagepulse-go/pkg/models"
)

// CaptureTrigger selects when screenshots are taken. The mapping from
// batch trigger to screenshot is product policy, so it is configurable.
type CaptureTrigger string

const (
	// CaptureScrollStop screenshots on scroll-stop plus the baseline batch
	CaptureScrollStop CaptureTrigger = "scroll-stop"
	// CaptureEveryBatch screenshots on every batch except the unload one
	CaptureEveryBatch CaptureTrigger = "every-batch"
)

// Config is the surface exposed to the embedding host. ProjectID and
// Endpoint are required; every policy knob defaults to the documented
// production value.
type Config struct {
	ProjectID   string // opaque tenant key, required
	Endpoint    string // ingestion base URL, required
	Site        string
	Hostname    string
	Environment string

	// Page context reported with events and session start
	PageURL    string
	Referrer   string
	UserAgent  string
	ScreenSize *models.ScreenSize
	Timezone   string
	Locale     string

	// Debug gates verbose logging only; it never changes behavior
	Debug bool

	// Policy knobs
	ScrollStopDelay   time.Duration  // default 150ms
	MaxBufferSize     int            // default 10000 coordinates
	MaxWindowAge      time.Duration  // default 30s
	MaxBatchSize      int            // default 10 events
	FlushInterval     time.Duration  // default 5s
	SessionTimeout    time.Duration  // default 30min
	CaptureTrigger    CaptureTrigger // default CaptureScrollStop
	ScreenshotQuality float64        // default 0.8
	UseCORS           bool
	BackgroundColor   string // default "#ffffff"
}

// Validate checks the required fields
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("projectId is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.CaptureTrigger == "" {
		c.CaptureTrigger = CaptureScrollStop
	}
	if c.ScreenshotQuality <= 0 || c.ScreenshotQuality > 1 {
		c.ScreenshotQuality = 0.8
	}
	if c.BackgroundColor == "" {
		c.BackgroundColor = "#ffffff"
	}
	return c
}
