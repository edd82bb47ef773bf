package data

import (
	"strings"
	"time"
)

// Metadata describes a stored record. It travels with the value through
// every storage tier so that any backend can round-trip another backend's
// writes without interpreting the payload.
type Metadata struct {
	Key        string `json:"key"`
	Collection string `json:"collection"`

	// Timestamp is set when the record is built and never mutated;
	// updates produce a fresh record with a new timestamp.
	Timestamp time.Time `json:"timestamp"`

	// TTL in milliseconds on the wire. Zero means the record never expires.
	TTL int64 `json:"ttl"`

	Compressed bool   `json:"compressed"`
	Algorithm  string `json:"algorithm,omitempty"`

	// Size is the length of the encoded value before compression.
	Size           int64 `json:"size"`
	CompressedSize int64 `json:"compressed_size,omitempty"`
}

// Record is the storage envelope persisted by every backend.
//
// Value holds the JSON encoding of the caller value, or codec output when
// Metadata.Compressed is set. Compressed is true iff Value is codec output,
// never raw bytes. Since Value is a byte slice it marshals as base64, which
// keeps the envelope identical across SQL, KV and object tiers.
type Record struct {
	Metadata Metadata `json:"metadata"`
	Value    []byte   `json:"value"`
}

// NewRecord builds an uncompressed record envelope around an encoded value.
func NewRecord(collection, key string, value []byte, ttl time.Duration) *Record {
	return &Record{
		Metadata: Metadata{
			Key:        key,
			Collection: collection,
			Timestamp:  time.Now(),
			TTL:        ttl.Milliseconds(),
			Size:       int64(len(value)),
		},
		Value: value,
	}
}

// Expired reports whether the record's TTL has elapsed at the given time.
// A TTL of zero never expires; a negative TTL is treated as already expired.
func (r *Record) Expired(now time.Time) bool {
	if r.Metadata.TTL == 0 {
		return false
	}
	if r.Metadata.TTL < 0 {
		return true
	}

	expiry := r.Metadata.Timestamp.Add(time.Duration(r.Metadata.TTL) * time.Millisecond)
	return now.After(expiry)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := &Record{
		Metadata: r.Metadata,
	}
	if r.Value != nil {
		clone.Value = make([]byte, len(r.Value))
		copy(clone.Value, r.Value)
	}

	return clone
}

// FullKey combines collection and key into the global identity "collection:key".
func FullKey(collection, key string) string {
	return collection + ":" + key
}

// SplitFullKey is the inverse of FullKey. The key part may itself
// contain colons; only the first separator splits.
func SplitFullKey(fullKey string) (collection, key string) {
	idx := strings.Index(fullKey, ":")
	if idx < 0 {
		return "", fullKey
	}
	return fullKey[:idx], fullKey[idx+1:]
}
