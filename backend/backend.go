package backend

import (
	"context"

	"github.com/mwantia/recordstore/data"
)

// Adapter is the uniform storage contract implemented by every tier.
//
// All operations are keyed by (collection, key). Load returns
// data.ErrNotFound for absent keys; Delete of an absent key is not an
// error. Writes are atomic per record: either the full envelope is
// stored or nothing is.
type Adapter interface {
	// Name returns the identifier name defined for this adapter.
	Name() string

	// Priority orders the fallback chain; higher values are tried first.
	Priority() int

	// IsAvailable is the cheap chain-walk probe. It must not block for
	// long and never panics.
	IsAvailable(ctx context.Context) bool

	// Open is part of the lifecycle behaviour and gets called when opening this adapter.
	Open(ctx context.Context) error
	// Close is part of the lifecycle behaviour and gets called when closing this adapter.
	Close(ctx context.Context) error

	// Capabilities returns what this adapter supports.
	Capabilities() *Capabilities

	// Save stores a record, replacing any previous record with the same key.
	Save(ctx context.Context, collection, key string, record *data.Record) error

	// Load returns the stored record or data.ErrNotFound.
	Load(ctx context.Context, collection, key string) (*data.Record, error)

	// Delete removes a record. Absent keys are not an error.
	Delete(ctx context.Context, collection, key string) error

	// Query returns all records in a collection. Adapters without true
	// query support return the full collection; filtering happens in the
	// orchestrator.
	Query(ctx context.Context, collection string) ([]*data.Record, error)

	// Keys lists record keys in a collection.
	Keys(ctx context.Context, collection string) ([]string, error)

	// Collections lists the collections present in this tier.
	Collections(ctx context.Context) ([]string, error)

	// Clear drops one collection, or everything when collection is empty.
	Clear(ctx context.Context, collection string) error
}
