package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/mwantia/recordstore/data"
)

func (pa *PostgresAdapter) Save(ctx context.Context, collection, key string, record *data.Record) error {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	envelope, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = pa.pool.Exec(ctx, `
		INSERT INTO records (collection, key, envelope, timestamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, key) DO UPDATE SET
			envelope = EXCLUDED.envelope,
			timestamp = EXCLUDED.timestamp`,
		collection, key, envelope, record.Metadata.Timestamp.UnixMilli())

	return err
}

func (pa *PostgresAdapter) Load(ctx context.Context, collection, key string) (*data.Record, error) {
	pa.mu.RLock()
	defer pa.mu.RUnlock()

	var envelope []byte
	err := pa.pool.QueryRow(ctx,
		"SELECT envelope FROM records WHERE collection = $1 AND key = $2",
		collection, key).Scan(&envelope)

	if errors.Is(err, pgx.ErrNoRows) {
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

func (pa *PostgresAdapter) Delete(ctx context.Context, collection, key string) error {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	_, err := pa.pool.Exec(ctx,
		"DELETE FROM records WHERE collection = $1 AND key = $2",
		collection, key)

	return err
}

func (pa *PostgresAdapter) Query(ctx context.Context, collection string) ([]*data.Record, error) {
	pa.mu.RLock()
	defer pa.mu.RUnlock()

	rows, err := pa.pool.Query(ctx,
		"SELECT envelope FROM records WHERE collection = $1 ORDER BY key",
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
			continue
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func (pa *PostgresAdapter) Keys(ctx context.Context, collection string) ([]string, error) {
	pa.mu.RLock()
	defer pa.mu.RUnlock()

	rows, err := pa.pool.Query(ctx,
		"SELECT key FROM records WHERE collection = $1 ORDER BY key",
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

func (pa *PostgresAdapter) Collections(ctx context.Context) ([]string, error) {
	pa.mu.RLock()
	defer pa.mu.RUnlock()

	rows, err := pa.pool.Query(ctx,
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

func (pa *PostgresAdapter) Clear(ctx context.Context, collection string) error {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	if collection == "" {
		_, err := pa.pool.Exec(ctx, "DELETE FROM records")
		return err
	}

	_, err := pa.pool.Exec(ctx, "DELETE FROM records WHERE collection = $1", collection)
	return err
}
