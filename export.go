package recordstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/recordstore/data"
)

// ExportVersion identifies the snapshot format.
const ExportVersion = 1

// Export is a point-in-time snapshot of one or all collections, taken
// from the first tier that can enumerate them.
type Export struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Backend   string    `json:"backend"`

	Collections map[string]*ExportCollection `json:"collections"`
}

type ExportCollection struct {
	Count int                        `json:"count"`
	Items map[string]json.RawMessage `json:"items"`
}

// Export snapshots the given collection, or every collection when the
// argument is empty. Values are exported decompressed.
func (s *Service) Export(ctx context.Context, collection string) (*Export, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	for _, adapter := range s.orderedChain() {
		if !adapter.IsAvailable(ctx) || !adapter.Capabilities().Query {
			continue
		}

		collections := []string{collection}
		if collection == "" {
			names, err := adapter.Collections(ctx)
			if err != nil {
				s.logger.Warn("export: listing collections on %s: %v", adapter.Name(), err)
				continue
			}
			collections = names
		}

		snapshot := &Export{
			Version:     ExportVersion,
			ID:          uuid.NewString(),
			Timestamp:   time.Now(),
			Backend:     adapter.Name(),
			Collections: make(map[string]*ExportCollection),
		}

		now := time.Now()
		for _, name := range collections {
			records, err := adapter.Query(ctx, name)
			if err != nil {
				s.logger.Warn("export: reading %s on %s: %v", name, adapter.Name(), err)
				continue
			}

			items := make(map[string]json.RawMessage, len(records))
			for _, record := range records {
				if record.Expired(now) {
					continue
				}
				raw, err := s.decodeRecord(record)
				if err != nil {
					continue
				}
				items[record.Metadata.Key] = json.RawMessage(raw)
			}

			snapshot.Collections[name] = &ExportCollection{
				Count: len(items),
				Items: items,
			}
		}

		return snapshot, nil
	}

	return nil, data.ErrNoBackend
}
