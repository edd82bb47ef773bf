// Package recordstore provides a unified persistence layer: one
// synchronous-looking API over a priority-ordered chain of storage
// tiers, with a TTL cache in front and a durable sync queue behind.
// Callers save, load, query and delete named records without knowing
// which physical tier holds them.
package recordstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mwantia/recordstore/backend"
	"github.com/mwantia/recordstore/cache"
	"github.com/mwantia/recordstore/data"
	"github.com/mwantia/recordstore/log"
	"github.com/mwantia/recordstore/queue"
)

type Service struct {
	mu sync.RWMutex

	// chain is sorted by priority descending; active is the first
	// available adapter. Only the service mutates either.
	chain  []backend.Adapter
	active backend.Adapter

	cache  *cache.Cache
	queue  *queue.Queue
	events *eventBus
	logger *log.Logger

	opts *ServiceOptions

	online      bool
	initialized bool
	closed      bool

	done chan struct{}
}

// New builds a service instance. The instance is constructed once at
// process start and passed to consumers; there is no package-level
// singleton.
func New(options ...ServiceOption) (*Service, error) {
	opts := newDefaultServiceOptions()
	for _, option := range options {
		if err := option(opts); err != nil {
			return nil, err
		}
	}

	if len(opts.Adapters) == 0 {
		return nil, fmt.Errorf("%w: no adapters configured", data.ErrInvalid)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	chain := make([]backend.Adapter, len(opts.Adapters))
	copy(chain, opts.Adapters)
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Priority() > chain[j].Priority()
	})

	return &Service{
		chain:  chain,
		events: newEventBus(),
		logger: logger.Named("persistence"),
		opts:   opts,
		online: !opts.StartOffline,
		done:   make(chan struct{}),
	}, nil
}

// Initialize opens every adapter, selects the active backend, restores
// the persisted sync queue and starts the background drain and cache
// sweep. It must be called before any operation.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return data.ErrClosed
	}
	if s.initialized {
		s.mu.Unlock()
		return nil
	}

	usable := make([]backend.Adapter, 0, len(s.chain))
	for _, adapter := range s.chain {
		if err := adapter.Open(ctx); err != nil {
			// A tier that fails to open stays out of the chain; the
			// fallback logic covers for it.
			s.logger.Warn("adapter %s failed to open: %v", adapter.Name(), err)
			continue
		}
		usable = append(usable, adapter)
	}
	s.chain = usable

	active, err := s.resolveActiveLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.active = active
	s.logger.Info("active backend: %s", active.Name())

	s.cache = cache.New(s.opts.CacheTTL)
	s.queue = queue.New(s.queuePersistenceLocked(), s.opts.MaxAttempts)
	s.initialized = true
	s.mu.Unlock()

	if err := s.queue.Restore(ctx); err != nil {
		s.logger.Warn("sync queue restore failed: %v", err)
	}
	if pending := s.queue.Len(); pending > 0 {
		s.logger.Info("restored %d pending sync operations", pending)
	}

	go s.drainLoop()

	s.events.emit(Event{Type: EventReady, Backend: active.Name()})
	return nil
}

// Close stops background work and closes every adapter.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.events.close()

	if s.cache != nil {
		s.cache.Close()
	}

	errs := &data.Errors{}
	for _, adapter := range s.chain {
		errs.Add(adapter.Close(ctx))
	}

	return errs.Errors()
}

// Subscribe registers a lifecycle event handler and returns its
// unsubscribe function. Handlers run off the operation path.
func (s *Service) Subscribe(fn func(Event)) func() {
	return s.events.subscribe(fn)
}

// Online reports the current connectivity state.
func (s *Service) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.online
}

// SetOnline flips the connectivity state. The offline→online edge
// re-resolves the active backend and drains the sync queue immediately.
func (s *Service) SetOnline(ctx context.Context, online bool) {
	s.mu.Lock()
	was := s.online
	s.online = online
	s.mu.Unlock()

	if was == online {
		return
	}

	if online {
		s.events.emit(Event{Type: EventOnline})
		s.refreshActive(ctx)
		s.drain(ctx)
	} else {
		s.events.emit(Event{Type: EventOffline})
	}
}

// ActiveBackend returns the name of the currently selected tier.
func (s *Service) ActiveBackend() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active == nil {
		return ""
	}
	return s.active.Name()
}

// resolveActiveLocked walks the chain and returns the first available
// adapter. Must be called with the lock held.
func (s *Service) resolveActiveLocked(ctx context.Context) (backend.Adapter, error) {
	for _, adapter := range s.chain {
		if adapter.IsAvailable(ctx) {
			return adapter, nil
		}
	}

	// The flat and memory tiers are expected to always be present, so
	// reaching this point is a fatal initialization condition.
	return nil, data.ErrNoBackend
}

// refreshActive re-resolves the active backend after a failure or a
// connectivity change and emits backend_changed on a switch.
func (s *Service) refreshActive(ctx context.Context) {
	s.mu.Lock()
	previous := s.active
	active, err := s.resolveActiveLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("no backend available")
		return
	}
	s.active = active
	s.mu.Unlock()

	if previous == nil || previous.Name() != active.Name() {
		s.logger.Info("backend changed to %s", active.Name())
		s.events.emit(Event{Type: EventBackendChanged, Backend: active.Name()})
	}
}

// orderedChain returns the fallback chain with the active adapter
// first, then the remaining adapters by priority.
func (s *Service) orderedChain() []backend.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := make([]backend.Adapter, 0, len(s.chain))
	if s.active != nil {
		ordered = append(ordered, s.active)
	}
	for _, adapter := range s.chain {
		if s.active != nil && adapter.Name() == s.active.Name() {
			continue
		}
		ordered = append(ordered, adapter)
	}

	return ordered
}

// queuePersistenceLocked picks the tier the sync queue persists through:
// the flat tier when present, otherwise the lowest-priority durable
// adapter. Must be called with the lock held.
func (s *Service) queuePersistenceLocked() backend.Adapter {
	for _, adapter := range s.chain {
		if adapter.Name() == "flatfile" {
			return adapter
		}
	}

	var lowest backend.Adapter
	for _, adapter := range s.chain {
		if adapter.Name() == "memory" {
			continue
		}
		if lowest == nil || adapter.Priority() < lowest.Priority() {
			lowest = adapter
		}
	}

	return lowest
}

// drainLoop replays the sync queue on a fixed interval until Close.
func (s *Service) drainLoop() {
	ticker := time.NewTicker(s.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.drain(context.Background())
		}
	}
}

// drain replays pending operations against the current active backend.
// The queue itself guarantees only one pass runs at a time.
func (s *Service) drain(ctx context.Context) {
	if s.queue == nil || s.queue.Len() == 0 {
		return
	}

	result, err := s.queue.Drain(ctx, func(ctx context.Context, item *queue.Item) error {
		switch item.Op {
		case queue.OpSave:
			_, err := s.writeChain(ctx, item.Collection, item.Key, item.Record)
			return err
		case queue.OpDelete:
			_, err := s.deleteChain(ctx, item.Collection, item.Key)
			return err
		default:
			return fmt.Errorf("%w: unknown queue operation %q", data.ErrInvalid, item.Op)
		}
	})
	if err != nil {
		s.logger.Warn("sync queue drain: %v", err)
	}

	for _, item := range result.Dropped {
		// The only real data-loss case; it must be visible.
		s.logger.Error("dropping %s %s:%s after %d attempts",
			item.Op, item.Collection, item.Key, item.Attempts)
		s.events.emit(Event{
			Type:       EventSyncDropped,
			Collection: item.Collection,
			Key:        item.Key,
		})
	}

	if len(result.Applied) > 0 {
		s.logger.Info("sync completed: %d applied, %d pending", len(result.Applied), s.queue.Len())
		s.events.emit(Event{Type: EventSyncCompleted, Count: len(result.Applied)})
	}
}

// writeChain attempts a save on the active backend, then on every
// remaining adapter in priority order. The write succeeds once any
// tier accepts it; a failed active backend triggers re-resolution.
// Returns the name of the accepting adapter.
func (s *Service) writeChain(ctx context.Context, collection, key string, record *data.Record) (string, error) {
	errs := &data.Errors{}
	size := int64(len(record.Value))

	activeFailed := false
	for i, adapter := range s.orderedChain() {
		if !adapter.IsAvailable(ctx) {
			continue
		}
		if !adapter.Capabilities().Accepts(size) {
			continue
		}

		if err := adapter.Save(ctx, collection, key, record); err != nil {
			s.logger.Warn("save %s:%s failed on %s: %v", collection, key, adapter.Name(), err)
			errs.Add(fmt.Errorf("%s: %w", adapter.Name(), err))
			if i == 0 {
				activeFailed = true
			}
			continue
		}

		if activeFailed {
			s.refreshActive(ctx)
		}
		return adapter.Name(), nil
	}

	if err := errs.Errors(); err != nil {
		return "", err
	}
	return "", data.ErrNoBackend
}

// deleteChain mirrors writeChain for deletes.
func (s *Service) deleteChain(ctx context.Context, collection, key string) (string, error) {
	errs := &data.Errors{}

	activeFailed := false
	for i, adapter := range s.orderedChain() {
		if !adapter.IsAvailable(ctx) {
			continue
		}

		if err := adapter.Delete(ctx, collection, key); err != nil {
			s.logger.Warn("delete %s:%s failed on %s: %v", collection, key, adapter.Name(), err)
			errs.Add(fmt.Errorf("%s: %w", adapter.Name(), err))
			if i == 0 {
				activeFailed = true
			}
			continue
		}

		if activeFailed {
			s.refreshActive(ctx)
		}
		return adapter.Name(), nil
	}

	if err := errs.Errors(); err != nil {
		return "", err
	}
	return "", data.ErrNoBackend
}

// ready guards every public operation.
func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return data.ErrClosed
	}
	if !s.initialized {
		return data.ErrNotInitialized
	}
	return nil
}
