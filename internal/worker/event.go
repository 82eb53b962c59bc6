package worker

import (
	"sync"

	"github.com/google/uuid"
)

type Kind int

const (
	// KindLine carries one filtered output line.
	KindLine Kind = iota
	// KindRunning is emitted instead of the startup confirmation line.
	KindRunning
	// KindCompleted is the last event of a run.
	KindCompleted
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindRunning:
		return "running"
	case KindCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

type Event struct {
	RunID  uuid.UUID
	Kind   Kind
	Name   string
	Line   string  // KindLine and KindRunning
	Result *Result // KindCompleted only
}

// queue is an unbounded FIFO feeding a channel. Producers never block, so a
// slow consumer can't stall the child output pipe or the wait goroutine.
// The pump goroutine starts on the first subscription and ends once the
// queue is closed and empty, or discarded.
type queue struct {
	mx     sync.Mutex
	items  []Event
	closed bool
	signal chan struct{}
	quit   chan struct{}
	out    chan Event
	once   sync.Once
	stop   sync.Once
}

func newQueue() *queue {
	return &queue{
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		out:    make(chan Event),
	}
}

func (q *queue) push(e Event) {
	q.mx.Lock()
	if q.closed {
		q.mx.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mx.Unlock()
	q.wake()
}

func (q *queue) close() {
	q.mx.Lock()
	q.closed = true
	q.mx.Unlock()
	q.wake()
}

// discard drops the undelivered events and closes the queue.
func (q *queue) discard() {
	q.mx.Lock()
	q.closed = true
	q.items = nil
	q.mx.Unlock()
	q.stop.Do(func() {
		close(q.quit)
	})
}

func (q *queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) subscribe() <-chan Event {
	q.once.Do(func() {
		go q.pump()
	})
	return q.out
}

func (q *queue) pump() {
	defer close(q.out)
	for {
		q.mx.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mx.Unlock()
			if closed {
				return
			}
			select {
			case <-q.signal:
			case <-q.quit:
				return
			}
			continue
		}
		e := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mx.Unlock()
		select {
		case q.out <- e:
		case <-q.quit:
			return
		}
	}
}
