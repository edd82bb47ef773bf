package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mwantia/recordstore/data"
)

const (
	// LegacyCollection is where the predecessor schema kept its records
	// in the flat tier.
	LegacyCollection = "appdata"

	// LegacyKeyPrefix is the key convention the old schema used; it is
	// stripped during migration.
	LegacyKeyPrefix = "appdata_"

	// MigratedCollection receives lifted legacy records.
	MigratedCollection = "migrated_legacy"
)

// MigrateLegacy lifts records written by the old flat-store schema into
// the namespaced schema. Target keys are deterministic, so running the
// migration repeatedly re-writes the same records instead of
// duplicating them.
func (s *Service) MigrateLegacy(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	flat := s.flatTier()
	if flat == nil {
		return 0, data.ErrNoBackend
	}

	keys, err := flat.Keys(ctx, LegacyCollection)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for _, key := range keys {
		record, err := flat.Load(ctx, LegacyCollection, key)
		if errors.Is(err, data.ErrCorruptRecord) {
			s.logger.Warn("migration: skipping corrupt legacy record %q", key)
			continue
		}
		if err != nil {
			s.logger.Warn("migration: loading %q: %v", key, err)
			continue
		}

		raw, err := s.decodeRecord(record)
		if err != nil {
			s.logger.Warn("migration: decoding %q: %v", key, err)
			continue
		}

		target := strings.TrimPrefix(key, LegacyKeyPrefix)
		if err := s.Save(ctx, MigratedCollection, target, json.RawMessage(raw)); err != nil {
			s.logger.Warn("migration: saving %q: %v", target, err)
			continue
		}

		migrated++
	}

	s.logger.Info("migration completed: %d of %d legacy records", migrated, len(keys))
	s.events.emit(Event{
		Type:       EventMigrationCompleted,
		Collection: MigratedCollection,
		Count:      migrated,
	})

	return migrated, nil
}
