// Package codec decides whether and how record payloads are compressed
// before they reach a storage backend. It is stateless; the chosen
// algorithm travels in the record metadata so any tier can decompress
// any other tier's writes.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	AlgorithmGzip = "gzip"
	AlgorithmZstd = "zstd"

	// DefaultThreshold is the payload size in bytes above which
	// compression is attempted.
	DefaultThreshold = 4096
)

// ShouldCompress reports whether a payload of the given size warrants
// compression. A threshold of zero disables compression entirely.
func ShouldCompress(value []byte, threshold int64) bool {
	if threshold <= 0 {
		return false
	}
	return int64(len(value)) >= threshold
}

// Compress encodes data with the given algorithm. It returns the input
// unchanged (and ok=false) when the compressed form would not be smaller,
// so callers never store compression overhead for incompressible data.
func Compress(value []byte, algorithm string) ([]byte, bool, error) {
	var buf bytes.Buffer

	switch algorithm {
	case AlgorithmZstd:
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, false, err
		}
		if _, err := enc.Write(value); err != nil {
			enc.Close()
			return nil, false, err
		}
		if err := enc.Close(); err != nil {
			return nil, false, err
		}

	case AlgorithmGzip:
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(value); err != nil {
			gw.Close()
			return nil, false, err
		}
		if err := gw.Close(); err != nil {
			return nil, false, err
		}

	default:
		return nil, false, fmt.Errorf("codec: unknown algorithm %q", algorithm)
	}

	if buf.Len() >= len(value) {
		return value, false, nil
	}

	return buf.Bytes(), true, nil
}

// Decompress is the inverse of Compress.
func Decompress(value []byte, algorithm string) ([]byte, error) {
	switch algorithm {
	case AlgorithmZstd:
		dec, err := zstd.NewReader(bytes.NewReader(value))
		if err != nil {
			return nil, err
		}
		defer dec.Close()

		return io.ReadAll(dec)

	case AlgorithmGzip:
		gr, err := gzip.NewReader(bytes.NewReader(value))
		if err != nil {
			return nil, err
		}
		defer gr.Close()

		return io.ReadAll(gr)

	default:
		return nil, fmt.Errorf("codec: unknown algorithm %q", algorithm)
	}
}
