package download

import (
	"sync"
	"time"

	"github.com/openmusicplayer/bilimusic/internal/extract"
)

// EventKind says what an Event reports
type EventKind string

const (
	EventStatus   EventKind = "status"
	EventProgress EventKind = "progress"
	EventFinished EventKind = "finished"
	EventError    EventKind = "error"
)

// Event is one entry of the scheduler's outward stream
type Event struct {
	JobID    JobID             `json:"job_id"`
	Kind     EventKind         `json:"kind"`
	State    State             `json:"state"`
	Percent  int               `json:"percent"`
	Message  string            `json:"message,omitempty"`
	Path     string            `json:"path,omitempty"`
	Code     string            `json:"code,omitempty"`
	Attempt  int               `json:"attempt,omitempty"`
	Paused   bool              `json:"paused,omitempty"`
	Metadata *extract.Metadata `json:"metadata,omitempty"`
	Time     time.Time         `json:"time"`
}

// Terminal reports whether the event moved its job into a terminal state
func (e Event) Terminal() bool {
	return e.Kind == EventStatus && e.State.IsTerminal()
}

// eventQueue is an unbounded FIFO feeding a channel. push never blocks, so
// progress callbacks running inside the extractor cannot stall on a slow
// consumer.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
	out    chan Event
}

func newEventQueue(buffer int) *eventQueue {
	q := &eventQueue{out: make(chan Event, buffer)}
	q.cond = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, ev)
	q.cond.Signal()
}

// close stops accepting events. Buffered events are still delivered before
// the output channel is closed.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Signal()
}

func (q *eventQueue) pump() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			close(q.out)
			return
		}
		ev := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mu.Unlock()

		q.out <- ev
	}
}
