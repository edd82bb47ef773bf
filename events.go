package recordstore

import (
	"sync"
	"time"
)

// EventType names a lifecycle notification emitted by the service.
type EventType string

const (
	EventReady              EventType = "persistence:ready"
	EventSaved              EventType = "persistence:saved"
	EventLoaded             EventType = "persistence:loaded"
	EventDeleted            EventType = "persistence:deleted"
	EventQueried            EventType = "persistence:queried"
	EventSyncCompleted      EventType = "persistence:sync_completed"
	EventSyncDropped        EventType = "persistence:sync_dropped"
	EventBackendChanged     EventType = "persistence:backend_changed"
	EventOnline             EventType = "persistence:online"
	EventOffline            EventType = "persistence:offline"
	EventMigrationCompleted EventType = "persistence:migration_completed"
)

// Event is a fire-and-forget notification. The service never blocks on
// subscriber handling; events reach subscribers in emission order.
type Event struct {
	Type       EventType
	Collection string
	Key        string
	Backend    string
	Compressed bool

	// Count carries item totals for sync and migration events.
	Count int

	Timestamp time.Time
}

type eventBus struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(Event)
	pending     []Event

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newEventBus() *eventBus {
	b := &eventBus{
		subscribers: make(map[int]func(Event)),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}

	go b.dispatch()
	return b
}

// subscribe registers a handler and returns its unsubscribe function.
func (b *eventBus) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.subscribers, id)
	}
}

// emit appends to the pending list serviced by the dispatcher
// goroutine. Storage operations never wait on subscribers, and
// subscribers observe events in emission order.
func (b *eventBus) emit(event Event) {
	event.Timestamp = time.Now()

	b.mu.Lock()
	b.pending = append(b.pending, event)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// dispatch delivers pending events one at a time on a single goroutine.
func (b *eventBus) dispatch() {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
			for {
				b.mu.Lock()
				if len(b.pending) == 0 {
					b.mu.Unlock()
					break
				}
				event := b.pending[0]
				b.pending = b.pending[1:]
				handlers := make([]func(Event), 0, len(b.subscribers))
				for _, fn := range b.subscribers {
					handlers = append(handlers, fn)
				}
				b.mu.Unlock()

				for _, fn := range handlers {
					fn(event)
				}
			}
		}
	}
}

// close stops the dispatcher; events still pending are discarded.
func (b *eventBus) close() {
	b.once.Do(func() {
		close(b.done)
	})
}
