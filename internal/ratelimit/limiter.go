// Package ratelimit bounds how fast a single project may push telemetry
// into the collector. SDKs batch aggressively, so a well-behaved page
// stays far under the ceiling; the limiter exists for runaway loops.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one token bucket per project
type Limiter struct {
	mu       sync.Mutex
	projects map[string]*entry
	rate     rate.Limit
	burst    int
}

// NewLimiter allows requestsPerMinute sustained per project with the
// given burst
func NewLimiter(requestsPerMinute, burst int) *Limiter {
	return &Limiter{
		projects: make(map[string]*entry),
		rate:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

// Allow reports whether one more request from the project fits its budget
func (l *Limiter) Allow(projectID string) bool {
	return l.get(projectID).Allow()
}

// Remaining returns the tokens currently available to the project
func (l *Limiter) Remaining(projectID string) int {
	return int(l.get(projectID).Tokens())
}

// Evict drops per-project state not seen since the cutoff. Called
// periodically so one-off projects do not accumulate forever.
func (l *Limiter) Evict(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for id, e := range l.projects {
		if e.lastSeen.Before(cutoff) {
			delete(l.projects, id)
			evicted++
		}
	}
	return evicted
}

func (l *Limiter) get(projectID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.projects[projectID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.projects[projectID] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}
