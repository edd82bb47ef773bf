package sqlite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/mwantia/recordstore/backend"
	"github.com/tidwall/btree"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteAdapter is the embedded transactional tier. Records live in a
// single table keyed by (collection, key); an in-memory B-tree of full
// keys gives O(log n) existence checks without touching the database.
type SQLiteAdapter struct {
	mu sync.RWMutex
	db *sql.DB

	// In-memory B-tree for fast full-key lookups
	keys *btree.Map[string, struct{}]
}

// New creates a SQLite-backed adapter. The dbPath can be ":memory:"
// for an in-memory database or a file path.
func New(dbPath string) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	adapter := &SQLiteAdapter{
		db:   db,
		keys: btree.NewMap[string, struct{}](0),
	}

	if err := adapter.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return adapter, nil
}

// initSchema creates the database schema.
func (sa *SQLiteAdapter) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		envelope BLOB NOT NULL,
		timestamp INTEGER NOT NULL,
		PRIMARY KEY (collection, key)
	);
	CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
	`

	_, err := sa.db.Exec(schema)
	return err
}

// Name returns the identifier name defined for this adapter.
func (*SQLiteAdapter) Name() string {
	return "sqlite"
}

// Priority orders the fallback chain.
func (*SQLiteAdapter) Priority() int {
	return 20
}

// IsAvailable reports whether the database handle is live.
func (sa *SQLiteAdapter) IsAvailable(ctx context.Context) bool {
	sa.mu.RLock()
	defer sa.mu.RUnlock()

	if sa.db == nil {
		return false
	}
	return sa.db.PingContext(ctx) == nil
}

// Open verifies the connection and loads all keys into the B-tree.
func (sa *SQLiteAdapter) Open(ctx context.Context) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if err := sa.db.PingContext(ctx); err != nil {
		return err
	}

	rows, err := sa.db.QueryContext(ctx, "SELECT collection, key FROM records")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var collection, key string
		if err := rows.Scan(&collection, &key); err != nil {
			return err
		}
		sa.keys.Set(collection+":"+key, struct{}{})
	}

	return rows.Err()
}

// Close is part of the lifecycle behaviour and gets called when closing this adapter.
func (sa *SQLiteAdapter) Close(ctx context.Context) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	sa.keys.Clear()
	if sa.db == nil {
		return nil
	}

	err := sa.db.Close()
	sa.db = nil
	return err
}

// Capabilities returns what this adapter supports.
func (*SQLiteAdapter) Capabilities() *backend.Capabilities {
	return &backend.Capabilities{
		Query: true,
		Clear: true,
	}
}
