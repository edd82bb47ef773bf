package data

import (
	"errors"
	"sync"
)

// Standard errors that backend adapters and the service should use.
var (
	// Record errors
	ErrNotFound      = errors.New("recordstore: record not found")
	ErrCorruptRecord = errors.New("recordstore: stored record failed to parse")

	// Backend errors
	ErrNotAvailable  = errors.New("recordstore: backend not available")
	ErrQuotaExceeded = errors.New("recordstore: storage quota exceeded")
	ErrNoBackend     = errors.New("recordstore: no backend available")
	ErrUnsupported   = errors.New("recordstore: backend capability unsupported")
	ErrValueTooLarge = errors.New("recordstore: value exceeds backend size limit")

	// Lifecycle errors
	ErrClosed         = errors.New("recordstore: service already closed")
	ErrNotInitialized = errors.New("recordstore: service not initialized")

	// Argument errors
	ErrInvalid = errors.New("recordstore: invalid argument")
)

type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = make([]error, 0)
}

func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}
