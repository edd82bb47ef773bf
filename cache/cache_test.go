package cache

import (
	"testing"
	"time"

	"github.com/mwantia/recordstore/data"
)

func TestGetSetInvalidate(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	record := data.NewRecord("settings", "theme", []byte(`{}`), 0)
	c.Set("settings:theme", record, "sqlite")

	entry, hit := c.Get("settings:theme")
	if !hit {
		t.Fatal("Expected cache hit")
	}
	if entry.FromBackend != "sqlite" {
		t.Errorf("Expected fromBackend sqlite, got %s", entry.FromBackend)
	}

	c.Invalidate("settings:theme")
	if _, hit := c.Get("settings:theme"); hit {
		t.Error("Expected miss after invalidation")
	}
}

func TestEntryExpiry(t *testing.T) {
	c := New(50 * time.Millisecond)
	defer c.Close()

	record := data.NewRecord("settings", "theme", []byte(`{}`), 0)
	c.Set("settings:theme", record, "memory")

	if _, hit := c.Get("settings:theme"); !hit {
		t.Fatal("Expected fresh entry to hit")
	}

	time.Sleep(80 * time.Millisecond)

	if _, hit := c.Get("settings:theme"); hit {
		t.Error("Expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("Expected expired entry removed on access, len=%d", c.Len())
	}
}

// TestRecordTTLRespected verifies an entry whose record expired
// mid-cache is not served even inside the cache TTL window.
func TestRecordTTLRespected(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	record := data.NewRecord("settings", "session", []byte(`{}`), -time.Second)
	c.Set("settings:session", record, "memory")

	if _, hit := c.Get("settings:session"); hit {
		t.Error("Expected pre-expired record to miss")
	}
}

func TestInvalidateCollection(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("files:a", data.NewRecord("files", "a", []byte(`{}`), 0), "memory")
	c.Set("files:b", data.NewRecord("files", "b", []byte(`{}`), 0), "memory")
	c.Set("settings:theme", data.NewRecord("settings", "theme", []byte(`{}`), 0), "memory")
	c.Set("query:files|limit=0", data.NewRecord("_query", "q", []byte(`[]`), 0), "memory")

	c.InvalidateCollection("files")

	if _, hit := c.Get("files:a"); hit {
		t.Error("Expected files:a invalidated")
	}
	if _, hit := c.Get("query:files|limit=0"); hit {
		t.Error("Expected derived query entry invalidated")
	}
	if _, hit := c.Get("settings:theme"); !hit {
		t.Error("Expected other collections untouched")
	}
}

func TestInvalidateQueries(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("files:a", data.NewRecord("files", "a", []byte(`{}`), 0), "memory")
	c.Set("query:files|limit=0", data.NewRecord("_query", "q", []byte(`[]`), 0), "memory")

	c.InvalidateQueries("files")

	if _, hit := c.Get("files:a"); !hit {
		t.Error("Expected record entries to survive query invalidation")
	}
	if _, hit := c.Get("query:files|limit=0"); hit {
		t.Error("Expected query entry invalidated")
	}
}
