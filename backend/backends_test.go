package backend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mwantia/recordstore/backend"
	"github.com/mwantia/recordstore/backend/flatfile"
	"github.com/mwantia/recordstore/backend/memory"
	"github.com/mwantia/recordstore/backend/sqlite"
	"github.com/mwantia/recordstore/data"
)

// TestAdapterFactory creates a new adapter instance for testing.
type TestAdapterFactory func(t *testing.T) (backend.Adapter, error)

// GetTestAdapterFactories returns all adapter implementations that can
// run without external services.
func GetTestAdapterFactories() map[string]TestAdapterFactory {
	return map[string]TestAdapterFactory{
		"memory": func(t *testing.T) (backend.Adapter, error) {
			return memory.New(), nil
		},
		"flatfile": func(t *testing.T) (backend.Adapter, error) {
			return flatfile.New(t.TempDir(), 0), nil
		},
		"sqlite": func(t *testing.T) (backend.Adapter, error) {
			return sqlite.New(":memory:")
		},
	}
}

// TestAllAdapters_SaveLoadDelete verifies the basic record lifecycle
// across all adapter implementations.
func TestAllAdapters_SaveLoadDelete(t *testing.T) {
	for name, factory := range GetTestAdapterFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := context.Background()
			adapter, err := factory(tst)
			if err != nil {
				tst.Fatalf("Init failed: %v", err)
			}

			if err := adapter.Open(ctx); err != nil {
				tst.Fatalf("Open failed: %v", err)
			}
			defer adapter.Close(ctx)

			if !adapter.IsAvailable(ctx) {
				tst.Fatal("Expected adapter to be available")
			}

			record := data.NewRecord("settings", "theme", []byte(`{"mode":"dark"}`), 0)
			if err := adapter.Save(ctx, "settings", "theme", record); err != nil {
				tst.Fatalf("Save failed: %v", err)
			}

			got, err := adapter.Load(ctx, "settings", "theme")
			if err != nil {
				tst.Fatalf("Load failed: %v", err)
			}
			if string(got.Value) != `{"mode":"dark"}` {
				tst.Errorf("Expected %q, got %q", `{"mode":"dark"}`, got.Value)
			}
			if got.Metadata.Collection != "settings" || got.Metadata.Key != "theme" {
				tst.Errorf("Metadata identity mismatch: %+v", got.Metadata)
			}

			// Upsert replaces the record
			update := data.NewRecord("settings", "theme", []byte(`{"mode":"light"}`), 0)
			if err := adapter.Save(ctx, "settings", "theme", update); err != nil {
				tst.Fatalf("Save (update) failed: %v", err)
			}

			got, err = adapter.Load(ctx, "settings", "theme")
			if err != nil {
				tst.Fatalf("Load after update failed: %v", err)
			}
			if string(got.Value) != `{"mode":"light"}` {
				tst.Errorf("Expected updated value, got %q", got.Value)
			}

			if err := adapter.Delete(ctx, "settings", "theme"); err != nil {
				tst.Fatalf("Delete failed: %v", err)
			}

			if _, err := adapter.Load(ctx, "settings", "theme"); !errors.Is(err, data.ErrNotFound) {
				tst.Errorf("Expected ErrNotFound, got %v", err)
			}

			// Deleting an absent key is not an error
			if err := adapter.Delete(ctx, "settings", "theme"); err != nil {
				tst.Errorf("Delete of absent key failed: %v", err)
			}
		})
	}
}

func TestAllAdapters_LoadMissing(t *testing.T) {
	for name, factory := range GetTestAdapterFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := context.Background()
			adapter, err := factory(tst)
			if err != nil {
				tst.Fatalf("Init failed: %v", err)
			}

			if err := adapter.Open(ctx); err != nil {
				tst.Fatalf("Open failed: %v", err)
			}
			defer adapter.Close(ctx)

			if _, err := adapter.Load(ctx, "nope", "missing"); !errors.Is(err, data.ErrNotFound) {
				tst.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestAllAdapters_QueryKeysCollections(t *testing.T) {
	for name, factory := range GetTestAdapterFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := context.Background()
			adapter, err := factory(tst)
			if err != nil {
				tst.Fatalf("Init failed: %v", err)
			}

			if err := adapter.Open(ctx); err != nil {
				tst.Fatalf("Open failed: %v", err)
			}
			defer adapter.Close(ctx)

			for _, key := range []string{"alpha", "beta", "gamma"} {
				record := data.NewRecord("files", key, []byte(`{"name":"`+key+`"}`), 0)
				if err := adapter.Save(ctx, "files", key, record); err != nil {
					tst.Fatalf("Save %s failed: %v", key, err)
				}
			}
			other := data.NewRecord("settings", "theme", []byte(`{}`), 0)
			if err := adapter.Save(ctx, "settings", "theme", other); err != nil {
				tst.Fatalf("Save failed: %v", err)
			}

			records, err := adapter.Query(ctx, "files")
			if err != nil {
				tst.Fatalf("Query failed: %v", err)
			}
			if len(records) != 3 {
				tst.Errorf("Expected 3 records, got %d", len(records))
			}

			keys, err := adapter.Keys(ctx, "files")
			if err != nil {
				tst.Fatalf("Keys failed: %v", err)
			}
			if len(keys) != 3 {
				tst.Errorf("Expected 3 keys, got %d", len(keys))
			}

			collections, err := adapter.Collections(ctx)
			if err != nil {
				tst.Fatalf("Collections failed: %v", err)
			}
			if len(collections) != 2 {
				tst.Errorf("Expected 2 collections, got %v", collections)
			}
		})
	}
}

func TestAllAdapters_Clear(t *testing.T) {
	for name, factory := range GetTestAdapterFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := context.Background()
			adapter, err := factory(tst)
			if err != nil {
				tst.Fatalf("Init failed: %v", err)
			}

			if err := adapter.Open(ctx); err != nil {
				tst.Fatalf("Open failed: %v", err)
			}
			defer adapter.Close(ctx)

			for _, collection := range []string{"files", "settings"} {
				record := data.NewRecord(collection, "entry", []byte(`{}`), 0)
				if err := adapter.Save(ctx, collection, "entry", record); err != nil {
					tst.Fatalf("Save failed: %v", err)
				}
			}

			// Clear one collection
			if err := adapter.Clear(ctx, "files"); err != nil {
				tst.Fatalf("Clear failed: %v", err)
			}
			if _, err := adapter.Load(ctx, "files", "entry"); !errors.Is(err, data.ErrNotFound) {
				tst.Errorf("Expected files cleared, got %v", err)
			}
			if _, err := adapter.Load(ctx, "settings", "entry"); err != nil {
				tst.Errorf("Expected settings to survive, got %v", err)
			}

			// Clear everything
			if err := adapter.Clear(ctx, ""); err != nil {
				tst.Fatalf("Clear all failed: %v", err)
			}
			if _, err := adapter.Load(ctx, "settings", "entry"); !errors.Is(err, data.ErrNotFound) {
				tst.Errorf("Expected everything cleared, got %v", err)
			}
		})
	}
}

// TestFlatFileAdapter_Persistence verifies records survive reopening
// the flat store.
func TestFlatFileAdapter_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	adapter := flatfile.New(dir, 0)
	if err := adapter.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	record := data.NewRecord("settings", "theme", []byte(`{"mode":"dark"}`), 0)
	if err := adapter.Save(ctx, "settings", "theme", record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := adapter.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := flatfile.New(dir, 0)
	if err := reopened.Open(ctx); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close(ctx)

	got, err := reopened.Load(ctx, "settings", "theme")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if string(got.Value) != `{"mode":"dark"}` {
		t.Errorf("Expected persisted value, got %q", got.Value)
	}
}
