package consul

import (
	"context"
	"sync"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/recordstore/backend"
)

// ConsulAdapter is a remote networked tier backed by HashiCorp Consul KV.
//
// Architecture:
// - Every record envelope is stored as one KV entry under "<prefix>/<collection>/<key>"
// - Collection enumeration is a prefix listing
// - Consul KV has a 512KB limit per value, surfaced through Capabilities
//   so the orchestrator routes oversized records to another tier
type ConsulAdapter struct {
	mu     sync.RWMutex
	client *api.Client
	kv     *api.KV

	// Configuration
	config *Config
}

// Config contains configuration options for the Consul adapter.
type Config struct {
	// Address of the Consul server (default: "127.0.0.1:8500")
	Address string

	// Token for Consul ACL authentication (optional)
	Token string

	// Datacenter to use (optional)
	Datacenter string

	// Prefix for all keys in Consul KV (default: "recordstore")
	Prefix string
}

// New creates a Consul-backed remote adapter.
func New(config *Config) (*ConsulAdapter, error) {
	if config == nil {
		config = &Config{}
	}

	// Set defaults
	if config.Address == "" {
		config.Address = "127.0.0.1:8500"
	}
	if config.Prefix == "" {
		config.Prefix = "recordstore"
	}

	clientConfig := api.DefaultConfig()
	clientConfig.Address = config.Address
	if config.Token != "" {
		clientConfig.Token = config.Token
	}
	if config.Datacenter != "" {
		clientConfig.Datacenter = config.Datacenter
	}

	client, err := api.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &ConsulAdapter{
		client: client,
		kv:     client.KV(),
		config: config,
	}, nil
}

// Name returns the identifier name defined for this adapter.
func (*ConsulAdapter) Name() string {
	return "consul"
}

// Priority orders the fallback chain; the networked tier is preferred.
func (*ConsulAdapter) Priority() int {
	return 50
}

// IsAvailable probes cluster reachability. Any error means unavailable,
// it never propagates.
func (ca *ConsulAdapter) IsAvailable(ctx context.Context) bool {
	leader, err := ca.client.Status().Leader()
	return err == nil && leader != ""
}

// Open is part of the lifecycle behaviour and gets called when opening this adapter.
func (ca *ConsulAdapter) Open(ctx context.Context) error {
	// Nothing to initialize - Consul handles connections
	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this adapter.
func (ca *ConsulAdapter) Close(ctx context.Context) error {
	// Nothing to clean up - Consul client is stateless
	return nil
}

// Capabilities returns what this adapter supports.
func (*ConsulAdapter) Capabilities() *backend.Capabilities {
	return &backend.Capabilities{
		Query: true,
		Clear: true,
		// Consul KV has a default limit of 512KB per value
		// We set it slightly lower to account for envelope overhead
		MaxValueSize: 500 * 1024, // 500 KB
	}
}

// buildKey constructs the full Consul KV key for a record.
func (ca *ConsulAdapter) buildKey(collection, key string) string {
	return ca.config.Prefix + "/" + collection + "/" + key
}

// buildPrefix constructs the Consul KV prefix for a collection listing.
// An empty collection addresses the whole store.
func (ca *ConsulAdapter) buildPrefix(collection string) string {
	if collection == "" {
		return ca.config.Prefix + "/"
	}
	return ca.config.Prefix + "/" + collection + "/"
}
