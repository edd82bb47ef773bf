package recordstore

import (
	"context"
)

// Stats is a cheap introspection snapshot for operational tooling.
type Stats struct {
	ActiveBackend string   `json:"active_backend"`
	Online        bool     `json:"online"`
	CacheSize     int      `json:"cache_size"`
	QueueSize     int      `json:"queue_size"`
	Backends      []string `json:"backends"`
}

// Diagnosis extends Stats with live availability probes and the
// pending queue contents.
type Diagnosis struct {
	Stats

	Availability map[string]bool `json:"availability"`
	QueueItems   []QueueItemInfo `json:"queue_items"`
}

type QueueItemInfo struct {
	ID         string `json:"id"`
	Op         string `json:"op"`
	Collection string `json:"collection"`
	Key        string `json:"key"`
	Attempts   int    `json:"attempts"`
}

// GetStats returns the current introspection snapshot without touching
// any backend.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Online: s.online,
	}
	if s.active != nil {
		stats.ActiveBackend = s.active.Name()
	}
	if s.cache != nil {
		stats.CacheSize = s.cache.Len()
	}
	if s.queue != nil {
		stats.QueueSize = s.queue.Len()
	}
	for _, adapter := range s.chain {
		stats.Backends = append(stats.Backends, adapter.Name())
	}

	return stats
}

// Diagnose probes every adapter and summarizes pending sync operations.
func (s *Service) Diagnose(ctx context.Context) Diagnosis {
	diagnosis := Diagnosis{
		Stats:        s.GetStats(),
		Availability: make(map[string]bool),
	}

	s.mu.RLock()
	adapters := make([]namedProbe, 0, len(s.chain))
	for _, adapter := range s.chain {
		adapters = append(adapters, namedProbe{adapter.Name(), adapter.IsAvailable})
	}
	q := s.queue
	s.mu.RUnlock()

	for _, probe := range adapters {
		diagnosis.Availability[probe.name] = probe.fn(ctx)
	}

	if q != nil {
		for _, item := range q.Items() {
			diagnosis.QueueItems = append(diagnosis.QueueItems, QueueItemInfo{
				ID:         item.ID,
				Op:         string(item.Op),
				Collection: item.Collection,
				Key:        item.Key,
				Attempts:   item.Attempts,
			})
		}
	}

	return diagnosis
}

type namedProbe struct {
	name string
	fn   func(context.Context) bool
}
