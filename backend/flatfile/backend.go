// Package flatfile implements the flat key-value tier: a single JSON
// file holding every record, bounded by a byte quota. It mirrors the
// constraints of simple flat stores (no transactions, whole-store
// flushes, limited capacity) while still being durable across restarts.
package flatfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mwantia/recordstore/backend"
	"github.com/mwantia/recordstore/data"
)

const (
	// DefaultQuota bounds the serialized store at 5 MB, matching the
	// capacity class of the flat stores this tier stands in for.
	DefaultQuota = 5 * 1024 * 1024

	storeFileName = "records.json"
)

type FlatFileAdapter struct {
	mu sync.RWMutex

	path  string
	quota int64

	// Full key -> record, loaded in Open and flushed on every mutation.
	records map[string]*data.Record

	opened bool
}

// New creates a flat-file adapter rooted at dir. A quota of zero selects
// DefaultQuota.
func New(dir string, quota int64) *FlatFileAdapter {
	if quota <= 0 {
		quota = DefaultQuota
	}

	return &FlatFileAdapter{
		path:    filepath.Join(dir, storeFileName),
		quota:   quota,
		records: make(map[string]*data.Record),
	}
}

// Name returns the identifier name defined for this adapter.
func (*FlatFileAdapter) Name() string {
	return "flatfile"
}

// Priority orders the fallback chain.
func (*FlatFileAdapter) Priority() int {
	return 10
}

// IsAvailable reports whether the store has been opened and its
// directory still exists.
func (fa *FlatFileAdapter) IsAvailable(ctx context.Context) bool {
	fa.mu.RLock()
	defer fa.mu.RUnlock()

	if !fa.opened {
		return false
	}

	_, err := os.Stat(filepath.Dir(fa.path))
	return err == nil
}

// Open loads the persisted store. A missing file is a fresh store, a
// corrupt file is logged upstream and treated as empty rather than
// blocking startup.
func (fa *FlatFileAdapter) Open(ctx context.Context) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fa.path), 0755); err != nil {
		return err
	}

	records := make(map[string]*data.Record)
	raw, err := os.ReadFile(fa.path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(raw, &records); err != nil {
			// Never refuse to start over a corrupt store file.
			records = make(map[string]*data.Record)
		}
	}

	fa.records = records
	fa.opened = true
	return nil
}

// Close flushes and releases the store.
func (fa *FlatFileAdapter) Close(ctx context.Context) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if !fa.opened {
		return nil
	}

	fa.opened = false
	return fa.flush()
}

// Capabilities returns what this adapter supports.
func (fa *FlatFileAdapter) Capabilities() *backend.Capabilities {
	return &backend.Capabilities{
		Query:        true,
		Clear:        true,
		MaxValueSize: fa.quota / 4,
	}
}

func (fa *FlatFileAdapter) Save(ctx context.Context, collection, key string, record *data.Record) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	fullKey := data.FullKey(collection, key)
	previous, hadPrevious := fa.records[fullKey]

	fa.records[fullKey] = record.Clone()

	if fa.serializedSize() > fa.quota {
		// Evict the oldest quarter of entries and retry once before
		// giving up. The incoming record is never evicted.
		fa.evictOldest(fullKey)

		if fa.serializedSize() > fa.quota {
			// Roll back so a failed save is not partially applied.
			if hadPrevious {
				fa.records[fullKey] = previous
			} else {
				delete(fa.records, fullKey)
			}
			return fmt.Errorf("%w: store exceeds %d bytes", data.ErrQuotaExceeded, fa.quota)
		}
	}

	return fa.flush()
}

func (fa *FlatFileAdapter) Load(ctx context.Context, collection, key string) (*data.Record, error) {
	fa.mu.RLock()
	defer fa.mu.RUnlock()

	record, exists := fa.records[data.FullKey(collection, key)]
	if !exists {
		return nil, data.ErrNotFound
	}

	return record.Clone(), nil
}

func (fa *FlatFileAdapter) Delete(ctx context.Context, collection, key string) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	fullKey := data.FullKey(collection, key)
	if _, exists := fa.records[fullKey]; !exists {
		return nil
	}

	delete(fa.records, fullKey)
	return fa.flush()
}

func (fa *FlatFileAdapter) Query(ctx context.Context, collection string) ([]*data.Record, error) {
	fa.mu.RLock()
	defer fa.mu.RUnlock()

	prefix := collection + ":"
	records := make([]*data.Record, 0)
	for fullKey, record := range fa.records {
		if strings.HasPrefix(fullKey, prefix) {
			records = append(records, record.Clone())
		}
	}

	return records, nil
}

func (fa *FlatFileAdapter) Keys(ctx context.Context, collection string) ([]string, error) {
	fa.mu.RLock()
	defer fa.mu.RUnlock()

	prefix := collection + ":"
	keys := make([]string, 0)
	for fullKey := range fa.records {
		if strings.HasPrefix(fullKey, prefix) {
			_, key := data.SplitFullKey(fullKey)
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func (fa *FlatFileAdapter) Collections(ctx context.Context) ([]string, error) {
	fa.mu.RLock()
	defer fa.mu.RUnlock()

	seen := make(map[string]bool)
	collections := make([]string, 0)
	for fullKey := range fa.records {
		collection, _ := data.SplitFullKey(fullKey)
		if collection != "" && !seen[collection] {
			seen[collection] = true
			collections = append(collections, collection)
		}
	}

	sort.Strings(collections)
	return collections, nil
}

func (fa *FlatFileAdapter) Clear(ctx context.Context, collection string) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if collection == "" {
		fa.records = make(map[string]*data.Record)
		return fa.flush()
	}

	prefix := collection + ":"
	for fullKey := range fa.records {
		if strings.HasPrefix(fullKey, prefix) {
			delete(fa.records, fullKey)
		}
	}

	return fa.flush()
}

// serializedSize estimates the on-disk size of the store.
// Must be called with the lock held.
func (fa *FlatFileAdapter) serializedSize() int64 {
	var total int64
	for fullKey, record := range fa.records {
		// Key, envelope metadata overhead and base64-expanded value.
		total += int64(len(fullKey)) + 128 + (int64(len(record.Value))*4)/3
	}
	return total
}

// evictOldest removes roughly the oldest 25% of entries by timestamp,
// sparing the given key. Must be called with the lock held.
func (fa *FlatFileAdapter) evictOldest(spare string) {
	type aged struct {
		fullKey string
		record  *data.Record
	}

	entries := make([]aged, 0, len(fa.records))
	for fullKey, record := range fa.records {
		if fullKey == spare {
			continue
		}
		entries = append(entries, aged{fullKey, record})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].record.Metadata.Timestamp.Before(entries[j].record.Metadata.Timestamp)
	})

	count := len(entries) / 4
	if count == 0 && len(entries) > 0 {
		count = 1
	}

	for _, entry := range entries[:count] {
		delete(fa.records, entry.fullKey)
	}
}

// flush atomically rewrites the store file. Must be called with the lock held.
func (fa *FlatFileAdapter) flush() error {
	raw, err := json.Marshal(fa.records)
	if err != nil {
		return err
	}

	tmp := fa.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}

	return os.Rename(tmp, fa.path)
}
