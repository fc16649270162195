// Package platform defines the capability interfaces the SDK core depends
// on (clock, storage, rasterization, transport) so the core never touches
// a browser global or the network directly. Production implementations
// live here too; tests inject their own.
package platform

import "time"

// Clock supplies the current time. Injected so session expiry and batch
// windows are testable without sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
