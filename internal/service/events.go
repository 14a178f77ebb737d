package service

import (
	"sync"

	"github.com/gelecek/folder-uploader/internal/model"
)

type EventKind int

const (
	EventOutput EventKind = iota
	EventStatus
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventOutput:
		return "output"
	case EventStatus:
		return "status"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is a message sent from a job goroutine to the registry.
type Event struct {
	Seq    uint64
	Kind   EventKind
	Text   string       // EventOutput
	Status model.Status // EventStatus
}

// Events is an unbounded FIFO queue of a single job. Publishing never blocks,
// so a slow consumer can't stall the reading of the child output.
type Events struct {
	mu      sync.Mutex
	nextSeq uint64
	events  []Event
	closed  bool
}

func newEvents() *Events {
	return &Events{}
}

func (q *Events) publish(event Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.nextSeq++
	event.Seq = q.nextSeq
	q.events = append(q.events, event)
}

func (q *Events) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Drain removes and returns all queued events without waiting. closed
// reports that no more events will ever be published.
func (q *Events) Drain() (events []Event, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	events, q.events = q.events, nil
	return events, q.closed
}
