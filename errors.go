package recordstore

import "github.com/mwantia/recordstore/data"

// Standard errors re-exported for callers that only import the root package.
var (
	ErrNotFound       = data.ErrNotFound
	ErrCorruptRecord  = data.ErrCorruptRecord
	ErrNotAvailable   = data.ErrNotAvailable
	ErrQuotaExceeded  = data.ErrQuotaExceeded
	ErrNoBackend      = data.ErrNoBackend
	ErrClosed         = data.ErrClosed
	ErrNotInitialized = data.ErrNotInitialized
	ErrInvalid        = data.ErrInvalid
)
