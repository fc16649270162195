package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse-go/pkg/models"
)

type recordingSender struct {
	mu      sync.Mutex
	batches [][]models.DiscreteEvent
	failN   int
}

func (s *recordingSender) send(ctx context.Context, events []models.DiscreteEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errors.New("endpoint unreachable")
	}
	batch := make([]models.DiscreteEvent, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSender) sent() [][]models.DiscreteEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

func event(name string) models.DiscreteEvent {
	return models.DiscreteEvent{Type: models.EventCustom, Name: name, Timestamp: time.Now().UnixMilli()}
}

func TestFlushSendsQueuedEvents(t *testing.T) {
	sender := &recordingSender{}
	q := New(10, time.Hour, sender.send, false)

	q.Enqueue(event("a"))
	q.Enqueue(event("b"))
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	batches := sender.sent()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("Expected one batch of 2 events, got %+v", batches)
	}
	if q.Len() != 0 {
		t.Errorf("Queue not empty after flush: %d", q.Len())
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	sender := &recordingSender{}
	q := New(10, time.Hour, sender.send, false)

	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("Flush of empty queue failed: %v", err)
	}
	if len(sender.sent()) != 0 {
		t.Errorf("Empty flush still called the sender")
	}
}

func TestFailedFlushPreservesOrder(t *testing.T) {
	sender := &recordingSender{failN: 1}
	q := New(10, time.Hour, sender.send, false)

	q.Enqueue(event("e1"))
	q.Enqueue(event("e2"))
	if err := q.Flush(context.Background()); err == nil {
		t.Fatal("Expected the first flush to fail")
	}

	// A newer event arrives after the failure; requeued events go first
	q.Enqueue(event("e3"))
	if err := q.Flush(context.Background()); err != nil {
		t.Fatalf("Second flush failed: %v", err)
	}

	batches := sender.sent()
	if len(batches) != 1 {
		t.Fatalf("Expected one delivered batch, got %d", len(batches))
	}
	got := batches[0]
	if len(got) != 3 || got[0].Name != "e1" || got[1].Name != "e2" || got[2].Name != "e3" {
		names := make([]string, len(got))
		for i, e := range got {
			names[i] = e.Name
		}
		t.Errorf("Expected order [e1 e2 e3], got %v", names)
	}
}

func TestSizeTriggeredFlush(t *testing.T) {
	sender := &recordingSender{}
	q := New(3, time.Hour, sender.send, false)

	q.Enqueue(event("a"))
	q.Enqueue(event("b"))
	q.Enqueue(event("c"))

	deadline := time.After(2 * time.Second)
	for len(sender.sent()) == 0 {
		select {
		case <-deadline:
			t.Fatal("Size-triggered flush never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := sender.sent()[0]; len(got) != 3 {
		t.Errorf("Expected 3 events in the triggered batch, got %d", len(got))
	}
}

func TestPeriodicFlush(t *testing.T) {
	sender := &recordingSender{}
	q := New(100, 20*time.Millisecond, sender.send, false)
	q.Start()
	defer q.Destroy(context.Background())

	q.Enqueue(event("tick"))

	deadline := time.After(2 * time.Second)
	for len(sender.sent()) == 0 {
		select {
		case <-deadline:
			t.Fatal("Periodic flush never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDestroyFlushesAndStops(t *testing.T) {
	sender := &recordingSender{}
	q := New(100, time.Hour, sender.send, false)
	q.Start()

	q.Enqueue(event("last"))
	if err := q.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	batches := sender.sent()
	if len(batches) != 1 || batches[0][0].Name != "last" {
		t.Fatalf("Final flush missing, got %+v", batches)
	}

	// Enqueue after destroy is dropped, destroy is idempotent
	q.Enqueue(event("late"))
	if err := q.Destroy(context.Background()); err != nil {
		t.Fatalf("Second Destroy failed: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Event accepted after destroy")
	}
	if len(sender.sent()) != 1 {
		t.Errorf("Destroy flushed more than once")
	}
}

func TestFlushOnUnloadRequeuesRejection(t *testing.T) {
	q := New(100, time.Hour, func(ctx context.Context, events []models.DiscreteEvent) error { return nil }, false)

	q.Enqueue(event("a"))
	q.Enqueue(event("b"))

	if ok := q.FlushOnUnload(func(events []models.DiscreteEvent) bool { return false }); ok {
		t.Fatal("Expected rejected unload flush to report failure")
	}
	if q.Len() != 2 {
		t.Fatalf("Rejected events not requeued, Len=%d", q.Len())
	}

	var got []models.DiscreteEvent
	if ok := q.FlushOnUnload(func(events []models.DiscreteEvent) bool {
		got = events
		return true
	}); !ok {
		t.Fatal("Expected accepted unload flush to report success")
	}
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Errorf("Unload flush lost or reordered events: %+v", got)
	}
	if q.Len() != 0 {
		t.Errorf("Queue not empty after accepted unload flush")
	}
}
