package recordstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/mwantia/recordstore"
	"github.com/mwantia/recordstore/backend/flatfile"
	"github.com/mwantia/recordstore/backend/memory"
	"github.com/mwantia/recordstore/data"
)

func TestMigrateLegacy(t *testing.T) {
	ctx := context.Background()
	flat := flatfile.New(t.TempDir(), 0)
	service := newTestService(t,
		recordstore.WithAdapters(memory.New(), flat),
	)

	legacy := map[string]string{
		"appdata_theme":    `{"mode":"dark"}`,
		"appdata_language": `{"code":"en"}`,
		"unprefixed":       `{"raw":true}`,
	}
	for key, value := range legacy {
		record := data.NewRecord(recordstore.LegacyCollection, key, []byte(value), 0)
		if err := flat.Save(ctx, recordstore.LegacyCollection, key, record); err != nil {
			t.Fatalf("Seeding %s failed: %v", key, err)
		}
	}

	completed := make(chan recordstore.Event, 1)
	unsubscribe := service.Subscribe(func(event recordstore.Event) {
		if event.Type == recordstore.EventMigrationCompleted {
			select {
			case completed <- event:
			default:
			}
		}
	})
	defer unsubscribe()

	count, err := service.MigrateLegacy(ctx)
	if err != nil {
		t.Fatalf("MigrateLegacy failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 migrated records, got %d", count)
	}

	var theme struct {
		Mode string `json:"mode"`
	}
	if err := service.Load(ctx, recordstore.MigratedCollection, "theme", &theme); err != nil {
		t.Fatalf("Loading migrated record failed: %v", err)
	}
	if theme.Mode != "dark" {
		t.Errorf("Migrated value mismatch: %+v", theme)
	}

	// Keys without the legacy prefix migrate under their own name.
	var raw struct {
		Raw bool `json:"raw"`
	}
	if err := service.Load(ctx, recordstore.MigratedCollection, "unprefixed", &raw); err != nil {
		t.Fatalf("Loading unprefixed record failed: %v", err)
	}

	select {
	case event := <-completed:
		if event.Count != 3 {
			t.Errorf("Expected event count 3, got %d", event.Count)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for migration_completed event")
	}
}

func TestMigrateLegacyIdempotent(t *testing.T) {
	ctx := context.Background()
	flat := flatfile.New(t.TempDir(), 0)
	service := newTestService(t,
		recordstore.WithAdapters(memory.New(), flat),
	)

	record := data.NewRecord(recordstore.LegacyCollection, "appdata_theme", []byte(`{"mode":"dark"}`), 0)
	if err := flat.Save(ctx, recordstore.LegacyCollection, "appdata_theme", record); err != nil {
		t.Fatalf("Seeding failed: %v", err)
	}

	for run := 0; run < 2; run++ {
		count, err := service.MigrateLegacy(ctx)
		if err != nil {
			t.Fatalf("Run %d failed: %v", run, err)
		}
		if count != 1 {
			t.Errorf("Run %d: expected 1 migrated record, got %d", run, count)
		}
	}

	keys, err := flat.Keys(ctx, recordstore.MigratedCollection)
	if err != nil {
		t.Fatalf("Listing migrated keys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("Repeat migration duplicated records: %v", keys)
	}
}

func TestMigrateLegacyEmpty(t *testing.T) {
	service := newTestService(t,
		recordstore.WithAdapters(memory.New(), flatfile.New(t.TempDir(), 0)),
	)

	count, err := service.MigrateLegacy(context.Background())
	if err != nil {
		t.Fatalf("MigrateLegacy failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no migrations, got %d", count)
	}
}
