package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mwantia/recordstore/backend"
	"github.com/mwantia/recordstore/codec"
	"github.com/mwantia/recordstore/data"
)

type SaveOptions struct {
	// TTL after which the record expires. Zero means no expiry.
	TTL time.Duration

	// Compress overrides the threshold-based codec decision.
	Compress *bool
}

type SaveOption func(*SaveOptions)

func WithTTL(ttl time.Duration) SaveOption {
	return func(opts *SaveOptions) {
		opts.TTL = ttl
	}
}

func WithCompression(enabled bool) SaveOption {
	return func(opts *SaveOptions) {
		opts.Compress = &enabled
	}
}

type LoadOptions struct {
	// ForceRefresh bypasses the cache and reads from a backend.
	ForceRefresh bool

	// Default is returned when the record is absent from every tier.
	Default any
}

type LoadOption func(*LoadOptions)

func WithForceRefresh() LoadOption {
	return func(opts *LoadOptions) {
		opts.ForceRefresh = true
	}
}

func WithDefault(value any) LoadOption {
	return func(opts *LoadOptions) {
		opts.Default = value
	}
}

// Save stores a value under (collection, key). The write is acknowledged
// once any tier in the fallback chain accepted it or it was queued for
// replay; backend failures never surface to the caller.
func (s *Service) Save(ctx context.Context, collection, key string, value any, options ...SaveOption) error {
	if err := s.ready(); err != nil {
		return err
	}
	if collection == "" || key == "" {
		return fmt.Errorf("%w: collection and key are required", data.ErrInvalid)
	}

	opts := &SaveOptions{}
	for _, option := range options {
		option(opts)
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", data.ErrInvalid, err)
	}

	record := data.NewRecord(collection, key, encoded, opts.TTL)

	compress := codec.ShouldCompress(encoded, s.opts.CompressionThreshold)
	if opts.Compress != nil {
		compress = *opts.Compress
	}
	if compress {
		compressed, ok, err := codec.Compress(encoded, s.opts.CompressionAlgorithm)
		if err != nil {
			return err
		}
		if ok {
			record.Value = compressed
			record.Metadata.Compressed = true
			record.Metadata.Algorithm = s.opts.CompressionAlgorithm
			record.Metadata.CompressedSize = int64(len(compressed))
		}
	}

	fullKey := data.FullKey(collection, key)

	// Optimistic write-through so reads in the same tick see the new
	// value before any backend confirms it.
	s.cache.Set(fullKey, record, "pending")
	s.cache.InvalidateQueries(collection)

	if !s.Online() {
		return s.deferSave(ctx, collection, key, record)
	}

	accepted, err := s.writeChain(ctx, collection, key, record)
	if err != nil {
		return s.deferSave(ctx, collection, key, record)
	}

	s.cache.Set(fullKey, record, accepted)
	s.events.emit(Event{
		Type:       EventSaved,
		Collection: collection,
		Key:        key,
		Backend:    accepted,
		Compressed: record.Metadata.Compressed,
	})

	return nil
}

// deferSave queues a write that no tier accepted. This is the
// durability guarantee: a failed or offline write is deferred, never
// discarded. The one failure that surfaces is both the queue flush and
// the last-ditch flat-tier write going down, since nothing durable
// holds the record then.
func (s *Service) deferSave(ctx context.Context, collection, key string, record *data.Record) error {
	if err := s.queue.EnqueueSave(ctx, collection, key, record); err != nil {
		s.logger.Warn("sync queue persistence failed: %v", err)

		// Last resort before raising: a direct write against the flat tier.
		flat := s.flatTier()
		if flat == nil {
			return fmt.Errorf("save %s:%s: %w", collection, key, err)
		}

		saveErr := flat.Save(ctx, collection, key, record)
		if saveErr != nil {
			errs := &data.Errors{}
			errs.Add(err)
			errs.Add(saveErr)
			return fmt.Errorf("save %s:%s: no tier holds the record: %w",
				collection, key, errs.Errors())
		}

		s.events.emit(Event{
			Type:       EventSaved,
			Collection: collection,
			Key:        key,
			Backend:    flat.Name(),
			Compressed: record.Metadata.Compressed,
		})
		return nil
	}

	s.logger.Debug("queued save %s:%s for replay", collection, key)
	s.events.emit(Event{
		Type:       EventSaved,
		Collection: collection,
		Key:        key,
		Backend:    "queue",
		Compressed: record.Metadata.Compressed,
	})

	return nil
}

// Load reads the value stored under (collection, key) into out, which
// must be a pointer. The cache answers unless ForceRefresh is set;
// otherwise the fallback chain is walked until one tier has the record.
// Returns ErrNotFound when no tier has it and no default was given.
func (s *Service) Load(ctx context.Context, collection, key string, out any, options ...LoadOption) error {
	if err := s.ready(); err != nil {
		return err
	}
	if collection == "" || key == "" {
		return fmt.Errorf("%w: collection and key are required", data.ErrInvalid)
	}

	opts := &LoadOptions{}
	for _, option := range options {
		option(opts)
	}

	fullKey := data.FullKey(collection, key)

	if !opts.ForceRefresh {
		if entry, hit := s.cache.Get(fullKey); hit {
			raw, err := s.decodeRecord(entry.Record)
			if err == nil {
				if err := json.Unmarshal(raw, out); err != nil {
					return fmt.Errorf("%w: %v", data.ErrInvalid, err)
				}
				s.events.emit(Event{Type: EventLoaded, Collection: collection, Key: key, Backend: "cache"})
				return nil
			}
			s.cache.Invalidate(fullKey)
		}
	}

	now := time.Now()
	for _, adapter := range s.orderedChain() {
		if !adapter.IsAvailable(ctx) {
			continue
		}

		record, err := adapter.Load(ctx, collection, key)
		if errors.Is(err, data.ErrNotFound) {
			continue
		}
		if errors.Is(err, data.ErrCorruptRecord) {
			// Corruption is logged and treated as not-found, never thrown.
			s.logger.Warn("corrupt record %s on %s", fullKey, adapter.Name())
			continue
		}
		if err != nil {
			s.logger.Warn("load %s failed on %s: %v", fullKey, adapter.Name(), err)
			continue
		}

		if record.Expired(now) {
			continue
		}

		raw, err := s.decodeRecord(record)
		if err != nil {
			s.logger.Warn("decode %s from %s: %v", fullKey, adapter.Name(), err)
			continue
		}

		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: %v", data.ErrInvalid, err)
		}

		s.cache.Set(fullKey, record, adapter.Name())
		s.events.emit(Event{Type: EventLoaded, Collection: collection, Key: key, Backend: adapter.Name()})
		return nil
	}

	if opts.Default != nil {
		raw, err := json.Marshal(opts.Default)
		if err != nil {
			return fmt.Errorf("%w: %v", data.ErrInvalid, err)
		}
		return json.Unmarshal(raw, out)
	}

	return data.ErrNotFound
}

// Delete removes the record from the first tier that accepts the
// delete; total failure or offline defers it to the sync queue.
func (s *Service) Delete(ctx context.Context, collection, key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if collection == "" || key == "" {
		return fmt.Errorf("%w: collection and key are required", data.ErrInvalid)
	}

	fullKey := data.FullKey(collection, key)
	s.cache.Invalidate(fullKey)
	s.cache.InvalidateQueries(collection)

	if !s.Online() {
		return s.deferDelete(ctx, collection, key)
	}

	accepted, err := s.deleteChain(ctx, collection, key)
	if err != nil {
		return s.deferDelete(ctx, collection, key)
	}

	s.events.emit(Event{Type: EventDeleted, Collection: collection, Key: key, Backend: accepted})
	return nil
}

func (s *Service) deferDelete(ctx context.Context, collection, key string) error {
	if err := s.queue.EnqueueDelete(ctx, collection, key); err != nil {
		s.logger.Warn("sync queue persistence failed: %v", err)
	}

	s.events.emit(Event{Type: EventDeleted, Collection: collection, Key: key, Backend: "queue"})
	return nil
}

// Query returns the decoded values of a collection that match the
// filter. Result sets are cached for the cache TTL window under a key
// derived from the filter, since queries are assumed idempotent within it.
func (s *Service) Query(ctx context.Context, collection string, filter backend.Filter, opts backend.QueryOptions) ([]any, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, fmt.Errorf("%w: collection is required", data.ErrInvalid)
	}

	cacheKey := filter.StableKey(collection, opts)
	if entry, hit := s.cache.Get(cacheKey); hit {
		results := make([]any, 0)
		if err := json.Unmarshal(entry.Record.Value, &results); err == nil {
			s.events.emit(Event{Type: EventQueried, Collection: collection, Backend: "cache", Count: len(results)})
			return results, nil
		}
		s.cache.Invalidate(cacheKey)
	}

	now := time.Now()
	for _, adapter := range s.orderedChain() {
		if !adapter.IsAvailable(ctx) || !adapter.Capabilities().Query {
			continue
		}

		records, err := adapter.Query(ctx, collection)
		if err != nil {
			s.logger.Warn("query %s failed on %s: %v", collection, adapter.Name(), err)
			continue
		}

		results := make([]any, 0, len(records))
		for _, record := range records {
			if record.Expired(now) {
				continue
			}

			raw, err := s.decodeRecord(record)
			if err != nil {
				continue
			}

			var value any
			if err := json.Unmarshal(raw, &value); err != nil {
				continue
			}

			fields, _ := value.(map[string]any)
			if !filter.Matches(fields) {
				continue
			}

			results = append(results, value)
			if opts.Limit > 0 && len(results) >= opts.Limit {
				break
			}
		}

		if encoded, err := json.Marshal(results); err == nil {
			s.cache.Set(cacheKey, data.NewRecord("_query", cacheKey, encoded, 0), adapter.Name())
		}

		s.events.emit(Event{Type: EventQueried, Collection: collection, Backend: adapter.Name(), Count: len(results)})
		return results, nil
	}

	return nil, data.ErrNoBackend
}

// Clear drops a collection, or everything when collection is empty,
// on the first tier that supports it.
func (s *Service) Clear(ctx context.Context, collection string) error {
	if err := s.ready(); err != nil {
		return err
	}

	if collection == "" {
		s.cache.Clear()
	} else {
		s.cache.InvalidateCollection(collection)
	}

	errs := &data.Errors{}
	cleared := false
	for _, adapter := range s.orderedChain() {
		if !adapter.IsAvailable(ctx) || !adapter.Capabilities().Clear {
			continue
		}

		if err := adapter.Clear(ctx, collection); err != nil {
			s.logger.Warn("clear %q failed on %s: %v", collection, adapter.Name(), err)
			errs.Add(err)
			continue
		}
		cleared = true
	}

	if cleared {
		return nil
	}
	if err := errs.Errors(); err != nil {
		return err
	}
	return data.ErrNoBackend
}

// decodeRecord returns the raw encoded value, transparently reversing
// compression. Callers never see compressed bytes.
func (s *Service) decodeRecord(record *data.Record) ([]byte, error) {
	if !record.Metadata.Compressed {
		return record.Value, nil
	}

	return codec.Decompress(record.Value, record.Metadata.Algorithm)
}

// flatTier returns the adapter the sync queue persists through.
func (s *Service) flatTier() backend.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queuePersistenceLocked()
}
