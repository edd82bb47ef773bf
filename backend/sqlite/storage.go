package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mwantia/recordstore/data"
)

func (sa *SQLiteAdapter) Save(ctx context.Context, collection, key string, record *data.Record) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	envelope, err := json.Marshal(record)
	if err != nil {
		return err
	}

	// Wrap in a transaction so a failed write never leaves a partial row.
	tx, err := sa.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (collection, key, envelope, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET
			envelope = excluded.envelope,
			timestamp = excluded.timestamp`,
		collection, key, envelope, record.Metadata.Timestamp.UnixMilli())
	if err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	sa.keys.Set(collection+":"+key, struct{}{})
	return nil
}

func (sa *SQLiteAdapter) Load(ctx context.Context, collection, key string) (*data.Record, error) {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	// B-tree miss avoids the query entirely.
	if _, exists := sa.keys.Get(collection + ":" + key); !exists {
		return nil, data.ErrNotFound
	}

	var envelope []byte
	err := sa.db.QueryRowContext(ctx,
		"SELECT envelope FROM records WHERE collection = ? AND key = ?",
		collection, key).Scan(&envelope)

	if err == sql.ErrNoRows {
		return nil, data.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	record := new(data.Record)
	if err := json.Unmarshal(envelope, record); err != nil {
		return nil, data.ErrCorruptRecord
	}

	return record, nil
}

func (sa *SQLiteAdapter) Delete(ctx context.Context, collection, key string) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if _, err := sa.db.ExecContext(ctx,
		"DELETE FROM records WHERE collection = ? AND key = ?",
		collection, key); err != nil {
		return err
	}

	sa.keys.Delete(collection + ":" + key)
	return nil
}

func (sa *SQLiteAdapter) Query(ctx context.Context, collection string) ([]*data.Record, error) {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	rows, err := sa.db.QueryContext(ctx,
		"SELECT envelope FROM records WHERE collection = ? ORDER BY key",
		collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*data.Record, 0)
	for rows.Next() {
		var envelope []byte
		if err := rows.Scan(&envelope); err != nil {
			return nil, err
		}

		record := new(data.Record)
		if err := json.Unmarshal(envelope, record); err != nil {
			// Skip corrupt rows instead of failing the whole query.
			continue
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func (sa *SQLiteAdapter) Keys(ctx context.Context, collection string) ([]string, error) {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	rows, err := sa.db.QueryContext(ctx,
		"SELECT key FROM records WHERE collection = ? ORDER BY key",
		collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

func (sa *SQLiteAdapter) Collections(ctx context.Context) ([]string, error) {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	rows, err := sa.db.QueryContext(ctx,
		"SELECT DISTINCT collection FROM records ORDER BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	collections := make([]string, 0)
	for rows.Next() {
		var collection string
		if err := rows.Scan(&collection); err != nil {
			return nil, err
		}
		collections = append(collections, collection)
	}

	return collections, rows.Err()
}

func (sa *SQLiteAdapter) Clear(ctx context.Context, collection string) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if collection == "" {
		if _, err := sa.db.ExecContext(ctx, "DELETE FROM records"); err != nil {
			return err
		}
		sa.keys.Clear()
		return nil
	}

	if _, err := sa.db.ExecContext(ctx,
		"DELETE FROM records WHERE collection = ?", collection); err != nil {
		return err
	}

	// Rebuild the key index for the cleared collection.
	doomed := make([]string, 0)
	prefix := collection + ":"
	sa.keys.Ascend(prefix, func(fullKey string, _ struct{}) bool {
		if len(fullKey) < len(prefix) || fullKey[:len(prefix)] != prefix {
			return false
		}
		doomed = append(doomed, fullKey)
		return true
	})
	for _, fullKey := range doomed {
		sa.keys.Delete(fullKey)
	}

	return nil
}
