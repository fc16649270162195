package models

// UserInfo identifies the user behind a session. AnonymousID is always
// present; ID and Traits are only set when the host identifies the user.
type UserInfo struct {
	AnonymousID string         `json:"anonymousId"`
	ID          string         `json:"id,omitempty"`
	Traits      map[string]any `json:"traits,omitempty"`
}

// SessionContext carries page-level context sent with a session start
type SessionContext struct {
	URL        string      `json:"url"`
	Referrer   string      `json:"referrer,omitempty"`
	UserAgent  string      `json:"userAgent,omitempty"`
	ScreenSize *ScreenSize `json:"screenSize,omitempty"`
	Timezone   string      `json:"timezone,omitempty"`
	Locale     string      `json:"locale,omitempty"`
}

// SessionStartRequest is the payload for POST /v1/session/start
type SessionStartRequest struct {
	SessionID string         `json:"sessionId"`
	User      UserInfo       `json:"user"`
	Context   SessionContext `json:"context"`
}

// SessionStartResponse acknowledges a session start
type SessionStartResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// SessionEndRequest is the payload for POST /v1/session/end.
// Counters are aggregates for the whole session.
type SessionEndRequest struct {
	SessionID    string `json:"sessionId"`
	Duration     int64  `json:"duration"` // milliseconds
	PageViews    int    `json:"pageViews"`
	Interactions int    `json:"interactions"`
}

// TrackResponse acknowledges a single tracked event
type TrackResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"eventId,omitempty"`
}

// BatchResponse acknowledges a batch of discrete events
type BatchResponse struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed,omitempty"`
	Failed    int      `json:"failed,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}
