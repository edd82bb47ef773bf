package recordstore

import (
	"time"

	"github.com/mwantia/recordstore/backend"
	"github.com/mwantia/recordstore/codec"
	"github.com/mwantia/recordstore/log"
	"github.com/mwantia/recordstore/queue"
)

type ServiceOptions struct {
	Adapters []backend.Adapter

	CacheTTL             time.Duration
	DrainInterval        time.Duration
	MaxAttempts          int
	CompressionThreshold int64
	CompressionAlgorithm string

	// StartOffline makes the service treat the network as down until
	// SetOnline(true) is called.
	StartOffline bool

	Logger *log.Logger
}

type ServiceOption func(*ServiceOptions) error

func newDefaultServiceOptions() *ServiceOptions {
	return &ServiceOptions{
		DrainInterval:        30 * time.Second,
		MaxAttempts:          queue.DefaultMaxAttempts,
		CompressionThreshold: codec.DefaultThreshold,
		CompressionAlgorithm: codec.AlgorithmZstd,
	}
}

// WithAdapters sets the storage tiers forming the fallback chain.
// Order does not matter; the chain is sorted by adapter priority.
func WithAdapters(adapters ...backend.Adapter) ServiceOption {
	return func(opts *ServiceOptions) error {
		opts.Adapters = append(opts.Adapters, adapters...)
		return nil
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(opts *ServiceOptions) error {
		opts.CacheTTL = ttl
		return nil
	}
}

func WithDrainInterval(interval time.Duration) ServiceOption {
	return func(opts *ServiceOptions) error {
		opts.DrainInterval = interval
		return nil
	}
}

// WithMaxAttempts bounds sync queue replays per item.
func WithMaxAttempts(attempts int) ServiceOption {
	return func(opts *ServiceOptions) error {
		opts.MaxAttempts = attempts
		return nil
	}
}

// WithCompressionThreshold sets the payload size above which values are
// compressed. Zero disables compression.
func WithCompressionThreshold(threshold int64) ServiceOption {
	return func(opts *ServiceOptions) error {
		opts.CompressionThreshold = threshold
		return nil
	}
}

func WithCompressionAlgorithm(algorithm string) ServiceOption {
	return func(opts *ServiceOptions) error {
		opts.CompressionAlgorithm = algorithm
		return nil
	}
}

func WithStartOffline() ServiceOption {
	return func(opts *ServiceOptions) error {
		opts.StartOffline = true
		return nil
	}
}

func WithLogger(logger *log.Logger) ServiceOption {
	return func(opts *ServiceOptions) error {
		opts.Logger = logger
		return nil
	}
}
