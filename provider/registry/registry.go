// Package registry provides discovery of remote provider adapters over etcd.
//
// Provider adapters running out of process (commercial breach APIs behind a
// gateway, WHOIS pollers, platform scrapers) register themselves under a
// shared etcd namespace. The investigation engine discovers them at dispatch
// time, so adapters can come and go without restarting an investigation.
//
// Entries are lease-backed: an adapter that crashes or loses connectivity
// disappears from discovery once its lease expires, and the engine simply
// stops routing lookups to it.
package registry

import (
	"context"
	"time"

	"github.com/lattice-osint/engine/entity"
)

// AdapterInfo describes one registered provider adapter instance.
//
// Multiple instances of the same adapter can run at once, each with its own
// InstanceID; discovery returns all of them and the caller picks.
type AdapterInfo struct {
	// Name is the adapter name (e.g. "hibp", "whois", "dehashed").
	Name string `json:"name"`

	// Version is the adapter's semantic version.
	Version string `json:"version"`

	// InstanceID uniquely identifies this running instance, typically a UUID.
	InstanceID string `json:"instance_id"`

	// Endpoint is the network address where the adapter accepts lookups,
	// "host:port" or "unix:///path/to/socket".
	Endpoint string `json:"endpoint"`

	// Types lists the entity types this adapter can look up.
	Types []entity.Type `json:"types"`

	// Metadata carries adapter-specific attributes such as rate limits or
	// dataset coverage.
	Metadata map[string]string `json:"metadata,omitempty"`

	// StartedAt is when this instance came up.
	StartedAt time.Time `json:"started_at"`
}

// Supports reports whether the adapter handles the given entity type.
func (a AdapterInfo) Supports(t entity.Type) bool {
	for _, supported := range a.Types {
		if supported == t {
			return true
		}
	}
	return false
}

// Registry is the adapter registration and discovery interface.
//
// Implementations must be safe for concurrent use. Lease TTLs remove stale
// entries automatically when adapters crash or disconnect.
type Registry interface {
	// Register adds an adapter instance to the registry and keeps its lease
	// alive in the background until Deregister or Close. Re-registering the
	// same InstanceID replaces the existing entry.
	Register(ctx context.Context, info AdapterInfo) error

	// Deregister removes the instance and revokes its lease. Deregistering
	// an unknown instance is a no-op.
	Deregister(ctx context.Context, info AdapterInfo) error

	// Discover returns all registered instances of the named adapter, in
	// arbitrary order. The slice may be empty.
	Discover(ctx context.Context, name string) ([]AdapterInfo, error)

	// DiscoverByType returns every instance, of any adapter, that supports
	// the given entity type.
	DiscoverByType(ctx context.Context, t entity.Type) ([]AdapterInfo, error)

	// Watch emits the current instance list for the named adapter, then a
	// fresh list on every registration, deregistration, or lease expiry. The
	// channel closes when the context is canceled or the registry is closed.
	Watch(ctx context.Context, name string) (<-chan []AdapterInfo, error)

	// Close stops all keepalives and watches and releases the connection.
	Close() error
}

// Config holds registry connection settings.
type Config struct {
	// Endpoints lists the etcd cluster endpoints, e.g. ["host1:2379"].
	Endpoints []string `json:"endpoints" yaml:"endpoints"`

	// Namespace prefixes every key; adapters live under
	// /{namespace}/providers/{name}/{instance-id}. Default "lattice".
	Namespace string `json:"namespace" yaml:"namespace"`

	// TTL is the lease time-to-live in seconds. Instances that miss renewal
	// within this window drop out of discovery. Default 30.
	TTL int `json:"ttl" yaml:"ttl"`

	// TLS optionally secures the etcd connection with mutual TLS.
	TLS *TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// TLSConfig holds certificate paths for mutual TLS to etcd.
type TLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
	CAFile   string `json:"ca_file" yaml:"ca_file"`
}
