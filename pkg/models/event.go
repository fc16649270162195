package models

// EventType identifies the kind of a discrete analytics event
type EventType string

const (
	EventPageView EventType = "pageview"
	EventClick    EventType = "click"
	EventForm     EventType = "form"
	EventCustom   EventType = "custom"
	EventError    EventType = "error"
)

// ValidEventTypes lists every event type the collector accepts
var ValidEventTypes = map[EventType]bool{
	EventPageView: true,
	EventClick:    true,
	EventForm:     true,
	EventCustom:   true,
	EventError:    true,
}

// ScreenSize is the host viewport dimensions in CSS pixels
type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DiscreteEvent is a single named occurrence (click, pageview, error, custom).
// Events are immutable once created; user-supplied payloads go into Data.
type DiscreteEvent struct {
	Type        EventType      `json:"type"`
	Name        string         `json:"name,omitempty"`
	Timestamp   int64          `json:"timestamp"` // unix milliseconds
	URL         string         `json:"url"`
	Referrer    string         `json:"referrer,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	UserAgent   string         `json:"userAgent,omitempty"`
	ScreenSize  *ScreenSize    `json:"screenSize,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	AnonymousID string         `json:"anonymousId,omitempty"`
}
