package data

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFullKeyRoundTrip(t *testing.T) {
	fullKey := FullKey("categories", "ai-ml")
	if fullKey != "categories:ai-ml" {
		t.Errorf("Expected categories:ai-ml, got %s", fullKey)
	}

	collection, key := SplitFullKey(fullKey)
	if collection != "categories" || key != "ai-ml" {
		t.Errorf("Round trip failed: %s / %s", collection, key)
	}

	// Keys may contain the separator themselves
	collection, key = SplitFullKey("files:src/main.go:backup")
	if collection != "files" || key != "src/main.go:backup" {
		t.Errorf("Expected only the first colon to split, got %s / %s", collection, key)
	}
}

func TestRecordExpiry(t *testing.T) {
	now := time.Now()

	infinite := NewRecord("settings", "theme", []byte(`{}`), 0)
	if infinite.Expired(now.Add(24 * time.Hour)) {
		t.Error("Expected TTL 0 to never expire")
	}

	short := NewRecord("settings", "session", []byte(`{}`), time.Minute)
	if short.Expired(now) {
		t.Error("Expected fresh record to be valid")
	}
	if !short.Expired(now.Add(2 * time.Minute)) {
		t.Error("Expected record to expire after its TTL")
	}

	preExpired := NewRecord("settings", "gone", []byte(`{}`), -time.Second)
	if !preExpired.Expired(now) {
		t.Error("Expected negative TTL to be already expired")
	}
}

func TestRecordClone(t *testing.T) {
	record := NewRecord("files", "readme", []byte(`{"size":42}`), 0)
	clone := record.Clone()

	clone.Value[0] = 'X'
	if record.Value[0] == 'X' {
		t.Error("Expected clone to own its value bytes")
	}
}

// TestEnvelopeRoundTrip verifies the JSON envelope survives
// serialization unchanged, including binary values.
func TestEnvelopeRoundTrip(t *testing.T) {
	record := NewRecord("files", "blob", []byte{0x00, 0xFF, 0x10, 0x80}, time.Hour)
	record.Metadata.Compressed = true
	record.Metadata.Algorithm = "zstd"

	encoded, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	restored := new(Record)
	if err := json.Unmarshal(encoded, restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if string(restored.Value) != string(record.Value) {
		t.Error("Expected value bytes to round trip")
	}
	if restored.Metadata.Algorithm != "zstd" || !restored.Metadata.Compressed {
		t.Errorf("Expected metadata to round trip, got %+v", restored.Metadata)
	}
}
