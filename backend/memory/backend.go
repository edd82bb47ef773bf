package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/mwantia/recordstore/backend"
	"github.com/mwantia/recordstore/data"
	"github.com/tidwall/btree"
)

// MemoryAdapter keeps records in an ordered in-process map. It is always
// available and sits at the bottom of the fallback chain so the service
// can still accept writes when every durable tier is down.
type MemoryAdapter struct {
	mu sync.RWMutex

	// Records ordered by full key, which keeps collection scans a simple
	// prefix walk.
	records *btree.Map[string, *data.Record]
}

func New() *MemoryAdapter {
	return &MemoryAdapter{
		records: btree.NewMap[string, *data.Record](0),
	}
}

// Name returns the identifier name defined for this adapter.
func (*MemoryAdapter) Name() string {
	return "memory"
}

// Priority orders the fallback chain; memory is the tier of last resort.
func (*MemoryAdapter) Priority() int {
	return 0
}

// IsAvailable always reports true; process memory has no failure mode
// short of the process itself dying.
func (*MemoryAdapter) IsAvailable(ctx context.Context) bool {
	return true
}

// Open is part of the lifecycle behaviour and gets called when opening this adapter.
func (ma *MemoryAdapter) Open(ctx context.Context) error {
	// No initialization needed - adapter is ready to use
	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this adapter.
func (ma *MemoryAdapter) Close(ctx context.Context) error {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	ma.records.Clear()
	return nil
}

// Capabilities returns what this adapter supports.
func (*MemoryAdapter) Capabilities() *backend.Capabilities {
	return &backend.Capabilities{
		Query: true,
		Clear: true,
	}
}

func (ma *MemoryAdapter) Save(ctx context.Context, collection, key string, record *data.Record) error {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	ma.records.Set(data.FullKey(collection, key), record.Clone())
	return nil
}

func (ma *MemoryAdapter) Load(ctx context.Context, collection, key string) (*data.Record, error) {
	ma.mu.RLock()
	defer ma.mu.RUnlock()

	record, exists := ma.records.Get(data.FullKey(collection, key))
	if !exists {
		return nil, data.ErrNotFound
	}

	return record.Clone(), nil
}

func (ma *MemoryAdapter) Delete(ctx context.Context, collection, key string) error {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	ma.records.Delete(data.FullKey(collection, key))
	return nil
}

func (ma *MemoryAdapter) Query(ctx context.Context, collection string) ([]*data.Record, error) {
	ma.mu.RLock()
	defer ma.mu.RUnlock()

	records := make([]*data.Record, 0)
	ma.scanCollection(collection, func(record *data.Record) {
		records = append(records, record.Clone())
	})

	return records, nil
}

func (ma *MemoryAdapter) Keys(ctx context.Context, collection string) ([]string, error) {
	ma.mu.RLock()
	defer ma.mu.RUnlock()

	keys := make([]string, 0)
	ma.scanCollection(collection, func(record *data.Record) {
		keys = append(keys, record.Metadata.Key)
	})

	return keys, nil
}

func (ma *MemoryAdapter) Collections(ctx context.Context) ([]string, error) {
	ma.mu.RLock()
	defer ma.mu.RUnlock()

	seen := make(map[string]bool)
	collections := make([]string, 0)
	ma.records.Scan(func(fullKey string, _ *data.Record) bool {
		collection, _ := data.SplitFullKey(fullKey)
		if collection != "" && !seen[collection] {
			seen[collection] = true
			collections = append(collections, collection)
		}
		return true
	})

	return collections, nil
}

func (ma *MemoryAdapter) Clear(ctx context.Context, collection string) error {
	ma.mu.Lock()
	defer ma.mu.Unlock()

	if collection == "" {
		ma.records.Clear()
		return nil
	}

	// Collect first; deleting while iterating invalidates the ascent.
	doomed := make([]string, 0)
	prefix := collection + ":"
	ma.records.Ascend(prefix, func(fullKey string, _ *data.Record) bool {
		if !strings.HasPrefix(fullKey, prefix) {
			return false
		}
		doomed = append(doomed, fullKey)
		return true
	})

	for _, fullKey := range doomed {
		ma.records.Delete(fullKey)
	}

	return nil
}

// scanCollection walks all records in a collection in key order.
// Must be called with the lock held.
func (ma *MemoryAdapter) scanCollection(collection string, fn func(*data.Record)) {
	prefix := collection + ":"
	ma.records.Ascend(prefix, func(fullKey string, record *data.Record) bool {
		if !strings.HasPrefix(fullKey, prefix) {
			return false
		}
		fn(record)
		return true
	})
}
