// Package identity issues and persists the anonymous and session
// identifiers. The anonymous id is created once per browser profile; the
// session id rotates after 30 minutes of idle time and every tracked
// activity extends the expiry.
package identity

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagepulse/pagepulse-go/pkg/platform"
)

const (
	anonymousIDKey   = "pagepulse_anonymous_id"
	sessionIDKey     = "pagepulse_session_id"
	sessionExpiryKey = "pagepulse_session_expiry"

	// DefaultSessionTimeout is the idle window after which a session rotates
	DefaultSessionTimeout = 30 * time.Minute
)

// Store resolves identifiers against two storages: a persistent one for
// the anonymous id and an ephemeral tab-scoped one for the session id.
// Storage failures are swallowed; the store keeps working from memory
// for the lifetime of the page.
type Store struct {
	persistent platform.Storage
	session    platform.Storage
	clock      platform.Clock
	timeout    time.Duration

	mu          sync.Mutex
	anonymousID string
	sessionID   string
	expiry      time.Time
}

// NewStore creates an identity store. A zero timeout selects the default.
func NewStore(persistent, session platform.Storage, clock platform.Clock, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Store{
		persistent: persistent,
		session:    session,
		clock:      clock,
		timeout:    timeout,
	}
}

// GetOrCreateAnonymousID returns the stable per-profile identifier,
// minting and persisting one on first use. Always returns a valid id
// even when storage is unavailable.
func (s *Store) GetOrCreateAnonymousID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.anonymousID != "" {
		return s.anonymousID
	}

	if stored, err := s.persistent.Get(anonymousIDKey); err == nil && stored != "" {
		s.anonymousID = stored
		return stored
	}

	id := "anon_" + strconv.FormatInt(s.clock.Now().UnixMilli(), 36) + randomSuffix()
	s.anonymousID = id
	// Best effort: losing persistence degrades to a per-page id
	_ = s.persistent.Set(anonymousIDKey, id)
	return id
}

// GetOrCreateSessionID returns the current session id, rotating to a new
// one when the previous session has expired.
func (s *Store) GetOrCreateSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSessionID()
}

// currentSessionID needs s.mu held
func (s *Store) currentSessionID() string {
	now := s.clock.Now()

	if s.sessionID == "" {
		s.loadSession()
	}
	if s.sessionID != "" && now.Before(s.expiry) {
		return s.sessionID
	}

	id := "sess_" + strconv.FormatInt(now.UnixMilli(), 36) + randomSuffix()
	s.sessionID = id
	s.expiry = now.Add(s.timeout)
	s.storeSession()
	return id
}

// ExtendSessionExpiry pushes the expiry another idle window out. Called on
// every tracked activity; idempotent, failures swallowed.
func (s *Store) ExtendSessionExpiry() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID == "" {
		s.currentSessionID()
		return
	}
	s.expiry = s.clock.Now().Add(s.timeout)
	s.storeSession()
}

// SessionExpiry returns the current expiry instant
func (s *Store) SessionExpiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiry
}

func (s *Store) loadSession() {
	id, err := s.session.Get(sessionIDKey)
	if err != nil || id == "" {
		return
	}
	raw, err := s.session.Get(sessionExpiryKey)
	if err != nil {
		return
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	s.sessionID = id
	s.expiry = time.UnixMilli(millis)
}

func (s *Store) storeSession() {
	_ = s.session.Set(sessionIDKey, s.sessionID)
	_ = s.session.Set(sessionExpiryKey, strconv.FormatInt(s.expiry.UnixMilli(), 10))
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
