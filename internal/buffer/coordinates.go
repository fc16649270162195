// Package buffer holds high-frequency pointer samples between assembly
// windows. Drain performs the freeze-and-replace swap that keeps
// producers and the assembler from ever losing or duplicating a sample.
package buffer

import (
	"sync"

	"github.com/pagepulse/pagepulse-go/pkg/models"
)

// DefaultMaxSize is the buffer ceiling before an out-of-band flush fires
const DefaultMaxSize = 10000

// CoordinateBuffer is an append-only, bounded container for pointer
// samples. When the ceiling is reached the producer side triggers the
// overflow callback instead of dropping samples.
type CoordinateBuffer struct {
	mu    sync.Mutex
	items []models.Coordinate
	max   int

	// onOverflow runs outside the lock whenever a push lands at or
	// above the ceiling
	onOverflow func()
}

// New creates a buffer with the given ceiling (0 selects the default)
func New(max int, onOverflow func()) *CoordinateBuffer {
	if max <= 0 {
		max = DefaultMaxSize
	}
	return &CoordinateBuffer{
		items:      make([]models.Coordinate, 0, 256),
		max:        max,
		onOverflow: onOverflow,
	}
}

// Push appends one sample. If the buffer just reached its ceiling the
// overflow callback is invoked so the owner can flush out of band.
func (b *CoordinateBuffer) Push(c models.Coordinate) {
	b.mu.Lock()
	b.items = append(b.items, c)
	full := len(b.items) >= b.max
	b.mu.Unlock()

	if full && b.onOverflow != nil {
		b.onOverflow()
	}
}

// Drain atomically swaps the internal slice for a fresh one and returns
// the frozen contents. Samples pushed while the caller processes the
// returned slice land in the next window, never in this one.
func (b *CoordinateBuffer) Drain() []models.Coordinate {
	b.mu.Lock()
	defer b.mu.Unlock()

	frozen := b.items
	b.items = make([]models.Coordinate, 0, 256)
	return frozen
}

// Len returns the number of buffered samples
func (b *CoordinateBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
