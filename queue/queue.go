// Package queue implements the durable sync queue: an ordered log of
// write and delete operations that could not be committed to any
// backend, replayed later against whichever backend is active then.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/recordstore/backend"
	"github.com/mwantia/recordstore/data"
)

const (
	// The queue persists itself under this well-known identity in the
	// flat tier so it survives process restarts.
	Collection = "_system"
	Key        = "sync_queue"

	// DefaultMaxAttempts bounds replay retries per item.
	DefaultMaxAttempts = 5
)

// Operation names a deferred mutation.
type Operation string

const (
	OpSave   Operation = "save"
	OpDelete Operation = "delete"
)

// Item is one pending operation.
type Item struct {
	ID         string       `json:"id"`
	Op         Operation    `json:"op"`
	Collection string       `json:"collection"`
	Key        string       `json:"key"`
	Record     *data.Record `json:"record,omitempty"`

	Timestamp   time.Time `json:"timestamp"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
}

// clone deep-copies an item so a drain pass never writes to structs a
// concurrent enqueue may be flushing.
func (i *Item) clone() *Item {
	clone := *i
	if i.Record != nil {
		clone.Record = i.Record.Clone()
	}
	return &clone
}

// Result summarizes one drain pass.
type Result struct {
	Applied []*Item
	Dropped []*Item
	Failed  []*Item
}

// Queue is the in-memory pending list plus its flat-tier persistence.
// Only one drain pass runs at a time.
type Queue struct {
	mu    sync.Mutex
	items []*Item

	persist     backend.Adapter
	maxAttempts int

	draining bool
}

// New creates a queue persisted through the given adapter, normally the
// flat tier. A nil adapter keeps the queue memory-only.
func New(persist backend.Adapter, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Queue{
		items:       make([]*Item, 0),
		persist:     persist,
		maxAttempts: maxAttempts,
	}
}

// EnqueueSave defers a save operation.
func (q *Queue) EnqueueSave(ctx context.Context, collection, key string, record *data.Record) error {
	return q.enqueue(ctx, &Item{
		Op:         OpSave,
		Collection: collection,
		Key:        key,
		Record:     record,
	})
}

// EnqueueDelete defers a delete operation.
func (q *Queue) EnqueueDelete(ctx context.Context, collection, key string) error {
	return q.enqueue(ctx, &Item{
		Op:         OpDelete,
		Collection: collection,
		Key:        key,
	})
}

func (q *Queue) enqueue(ctx context.Context, item *Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.ID = uuid.NewString()
	item.Timestamp = time.Now()
	item.MaxAttempts = q.maxAttempts

	// A newer operation on the same key supersedes the pending one;
	// replaying both would resurrect stale data.
	kept := q.items[:0]
	for _, pending := range q.items {
		if pending.Collection == item.Collection && pending.Key == item.Key {
			continue
		}
		kept = append(kept, pending)
	}
	q.items = append(kept, item)

	return q.flush(ctx)
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Items returns a snapshot of the pending items in insertion order.
// The items are copies; mutating them does not touch the queue.
func (q *Queue) Items() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]*Item, len(q.items))
	for idx, item := range q.items {
		snapshot[idx] = item.clone()
	}
	return snapshot
}

// Restore reloads the persisted queue, typically at startup. A missing
// or corrupt persisted queue restores to empty.
func (q *Queue) Restore(ctx context.Context) error {
	if q.persist == nil {
		return nil
	}

	record, err := q.persist.Load(ctx, Collection, Key)
	if errors.Is(err, data.ErrNotFound) || errors.Is(err, data.ErrCorruptRecord) {
		return nil
	}
	if err != nil {
		return err
	}

	items := make([]*Item, 0)
	if err := json.Unmarshal(record.Value, &items); err != nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = items
	return nil
}

// Drain replays all pending items in insertion order through apply.
// Successful and exhausted items leave the queue; exhausted items are
// returned in Result.Dropped so the caller can surface the data loss.
// A drain already in progress makes Drain return immediately with an
// empty result, guarding against double-applied operations.
func (q *Queue) Drain(ctx context.Context, apply func(ctx context.Context, item *Item) error) (*Result, error) {
	q.mu.Lock()
	if q.draining || len(q.items) == 0 {
		q.mu.Unlock()
		return &Result{}, nil
	}
	q.draining = true
	// Apply runs on copies; the live items stay untouched so a
	// concurrent enqueue can flush them without racing this pass.
	snapshot := make([]*Item, len(q.items))
	for idx, item := range q.items {
		snapshot[idx] = item.clone()
	}
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	result := &Result{}
	finished := make(map[string]bool)

	for _, item := range snapshot {
		item.Attempts++

		if err := apply(ctx, item); err != nil {
			if item.Attempts >= item.MaxAttempts {
				result.Dropped = append(result.Dropped, item)
				finished[item.ID] = true
			} else {
				result.Failed = append(result.Failed, item)
			}
			continue
		}

		result.Applied = append(result.Applied, item)
		finished[item.ID] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	attempts := make(map[string]int, len(snapshot))
	for _, item := range snapshot {
		attempts[item.ID] = item.Attempts
	}

	kept := q.items[:0]
	for _, item := range q.items {
		if finished[item.ID] {
			continue
		}
		if tried, ok := attempts[item.ID]; ok {
			item.Attempts = tried
		}
		kept = append(kept, item)
	}
	q.items = kept

	return result, q.flush(ctx)
}

// flush persists the current queue. Must be called with the lock held.
func (q *Queue) flush(ctx context.Context) error {
	if q.persist == nil {
		return nil
	}

	value, err := json.Marshal(q.items)
	if err != nil {
		return err
	}

	return q.persist.Save(ctx, Collection, Key, data.NewRecord(Collection, Key, value, 0))
}
