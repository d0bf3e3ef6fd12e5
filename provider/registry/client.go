package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lattice-osint/engine/entity"
)

// Client implements Registry against an etcd cluster.
//
// Leases are renewed every TTL/3 by a background goroutine per registered
// instance. All methods are safe for concurrent use.
type Client struct {
	client    *clientv3.Client
	namespace string
	ttl       int
	logger    *slog.Logger

	mu         sync.RWMutex
	leases     map[string]clientv3.LeaseID
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// NewClient connects to etcd and verifies connectivity before returning.
// The client must be closed when no longer needed.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("registry endpoints cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "lattice"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := clientTLS(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &Client{
		client:     cli,
		namespace:  namespace,
		ttl:        ttl,
		logger:     logger,
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}, nil
}

// NewClientFromEnv builds a client from the LATTICE_REGISTRY_ENDPOINTS
// environment variable (comma-separated etcd endpoints). An unset variable
// returns (nil, nil): the engine runs with local adapters only and nothing
// is discoverable.
func NewClientFromEnv(logger *slog.Logger) (*Client, error) {
	endpoints := os.Getenv("LATTICE_REGISTRY_ENDPOINTS")
	if endpoints == "" {
		return nil, nil
	}

	list := strings.Split(endpoints, ",")
	for i, ep := range list {
		list[i] = strings.TrimSpace(ep)
	}

	return NewClient(Config{Endpoints: list}, logger)
}

// Register implements Registry. The entry is discoverable immediately and a
// keepalive goroutine renews its lease until Deregister or Close.
func (c *Client) Register(ctx context.Context, info AdapterInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("registry client is closed")
	}

	// Replace any existing keepalive for this instance.
	if cancelFn, exists := c.cancelFns[info.InstanceID]; exists {
		cancelFn()
		delete(c.cancelFns, info.InstanceID)
	}

	leaseResp, err := c.client.Grant(ctx, int64(c.ttl))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal adapter info: %w", err)
	}

	key := c.buildKey(info.Name, info.InstanceID)
	if _, err := c.client.Put(ctx, key, string(data), clientv3.WithLease(leaseResp.ID)); err != nil {
		return fmt.Errorf("failed to register adapter: %w", err)
	}

	c.leases[info.InstanceID] = leaseResp.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	c.cancelFns[info.InstanceID] = cancel

	c.wg.Add(1)
	go c.keepalive(keepaliveCtx, leaseResp.ID, info.InstanceID)

	c.logger.Info("adapter registered",
		"adapter", info.Name, "instance", info.InstanceID, "endpoint", info.Endpoint)
	return nil
}

// Deregister implements Registry.
func (c *Client) Deregister(ctx context.Context, info AdapterInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("registry client is closed")
	}

	if cancelFn, exists := c.cancelFns[info.InstanceID]; exists {
		cancelFn()
		delete(c.cancelFns, info.InstanceID)
	}

	leaseID, exists := c.leases[info.InstanceID]
	if !exists {
		return nil
	}

	if _, err := c.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}

	delete(c.leases, info.InstanceID)
	return nil
}

// Discover implements Registry.
func (c *Client) Discover(ctx context.Context, name string) ([]AdapterInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	prefix := fmt.Sprintf("/%s/providers/%s/", c.namespace, name)
	return c.query(ctx, prefix, nil)
}

// DiscoverByType implements Registry. It scans all adapters and filters on
// the supported type list each instance advertises.
func (c *Client) DiscoverByType(ctx context.Context, t entity.Type) ([]AdapterInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	prefix := fmt.Sprintf("/%s/providers/", c.namespace)
	return c.query(ctx, prefix, func(info AdapterInfo) bool {
		return info.Supports(t)
	})
}

// query lists all entries under prefix and unmarshals those passing keep.
func (c *Client) query(ctx context.Context, prefix string, keep func(AdapterInfo) bool) ([]AdapterInfo, error) {
	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover adapters: %w", err)
	}

	instances := make([]AdapterInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info AdapterInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			c.logger.Warn("skipping malformed registry entry", "key", string(kv.Key))
			continue
		}
		if keep == nil || keep(info) {
			instances = append(instances, info)
		}
	}
	return instances, nil
}

// Watch implements Registry.
func (c *Client) Watch(ctx context.Context, name string) (<-chan []AdapterInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	ch := make(chan []AdapterInfo, 1)

	instances, err := c.Discover(ctx, name)
	if err != nil {
		return nil, err
	}
	ch <- instances

	prefix := fmt.Sprintf("/%s/providers/%s/", c.namespace, name)
	watchChan := c.client.Watch(ctx, prefix, clientv3.WithPrefix())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closedChan:
				return
			case watchResp, ok := <-watchChan:
				if !ok || watchResp.Err() != nil {
					return
				}

				instances, err := c.Discover(context.Background(), name)
				if err != nil {
					continue
				}

				select {
				case ch <- instances:
				case <-ctx.Done():
					return
				case <-c.closedChan:
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close stops keepalives and watches and closes the etcd connection. After
// Close every other method returns an error.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	for _, cancel := range c.cancelFns {
		cancel()
	}
	c.cancelFns = make(map[string]context.CancelFunc)

	close(c.closedChan)
	c.mu.Unlock()

	c.wg.Wait()
	return c.client.Close()
}

// keepalive renews the lease every TTL/3 until canceled or the lease dies.
func (c *Client) keepalive(ctx context.Context, leaseID clientv3.LeaseID, instanceID string) {
	defer c.wg.Done()

	interval := time.Duration(c.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedChan:
			return
		case <-ticker.C:
			if _, err := c.client.KeepAliveOnce(context.Background(), leaseID); err != nil {
				c.logger.Warn("adapter lease lost", "instance", instanceID, "error", err)
				c.mu.Lock()
				delete(c.leases, instanceID)
				delete(c.cancelFns, instanceID)
				c.mu.Unlock()
				return
			}
		}
	}
}

func (c *Client) buildKey(name, instanceID string) string {
	return fmt.Sprintf("/%s/providers/%s/%s", c.namespace, name, instanceID)
}
