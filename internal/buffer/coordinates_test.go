package buffer

import (
	"sync"
	"testing"

	"github.com/pagepulse/pagepulse-go/pkg/models"
)

func sample(id int) models.Coordinate {
	return models.Coordinate{Timestamp: int64(id), ClientX: float64(id), ClientY: float64(id)}
}

func TestPushDrain(t *testing.T) {
	buf := New(100, nil)

	buf.Push(sample(1))
	buf.Push(sample(2))

	first := buf.Drain()
	if len(first) != 2 {
		t.Fatalf("Expected 2 coordinates, got %d", len(first))
	}
	if first[0].Timestamp != 1 || first[1].Timestamp != 2 {
		t.Errorf("Drain returned wrong samples: %+v", first)
	}

	buf.Push(sample(3))
	second := buf.Drain()
	if len(second) != 1 || second[0].Timestamp != 3 {
		t.Errorf("Expected only the sample pushed after the first drain, got %+v", second)
	}
}

func TestDrainEmpty(t *testing.T) {
	buf := New(10, nil)
	if got := buf.Drain(); len(got) != 0 {
		t.Errorf("Expected empty drain, got %d samples", len(got))
	}
}

// Every pushed sample must come out of exactly one drain: no loss, no
// duplication, even with concurrent producers.
func TestNoLossUnderConcurrency(t *testing.T) {
	const producers = 8
	const perProducer = 500

	buf := New(1<<20, nil)

	var wg sync.WaitGroup
	drained := make(chan []models.Coordinate, 64)

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				buf.Push(sample(p*perProducer + i))
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				if coords := buf.Drain(); len(coords) > 0 {
					drained <- coords
				}
			}
		}
	}()

	wg.Wait()
	close(done)
	drained <- buf.Drain()
	close(drained)

	seen := make(map[int64]int)
	for coords := range drained {
		for _, c := range coords {
			seen[c.Timestamp]++
		}
	}

	if len(seen) != producers*perProducer {
		t.Fatalf("Expected %d distinct samples, got %d", producers*perProducer, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("Sample %d drained %d times", id, count)
		}
	}
}

func TestOverflowCallback(t *testing.T) {
	var fired int
	buf := New(3, func() { fired++ })

	buf.Push(sample(1))
	buf.Push(sample(2))
	if fired != 0 {
		t.Fatalf("Overflow fired below the ceiling")
	}
	buf.Push(sample(3))
	if fired != 1 {
		t.Fatalf("Expected overflow to fire once, fired %d times", fired)
	}
	if got := buf.Drain(); len(got) != 3 {
		t.Errorf("Overflow must not drop samples, got %d", len(got))
	}
}

func TestLen(t *testing.T) {
	buf := New(10, nil)
	buf.Push(sample(1))
	buf.Push(sample(2))
	if buf.Len() != 2 {
		t.Errorf("Expected Len 2, got %d", buf.Len())
	}
	buf.Drain()
	if buf.Len() != 0 {
		t.Errorf("Expected Len 0 after drain, got %d", buf.Len())
	}
}
