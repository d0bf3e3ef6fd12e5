// Package health provides reusable health check functions for engine
// deployments. It offers standardized ways to verify the graph store,
// the adapter registry, and general connectivity before an investigation
// starts.
package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is the health state of a checked dependency.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the outcome of one health check.
type Check struct {
	// Status is the health state.
	Status Status `json:"status"`

	// Message is a human-readable summary.
	Message string `json:"message"`

	// Details carries check-specific context.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy reports whether the check passed cleanly.
func (c Check) IsHealthy() bool { return c.Status == StatusHealthy }

// IsUnhealthy reports whether the check failed.
func (c Check) IsUnhealthy() bool { return c.Status == StatusUnhealthy }

func healthy(message string) Check {
	return Check{Status: StatusHealthy, Message: message}
}

func degraded(message string, details map[string]any) Check {
	return Check{Status: StatusDegraded, Message: message, Details: details}
}

func unhealthy(message string, details map[string]any) Check {
	return Check{Status: StatusUnhealthy, Message: message, Details: details}
}

// RedisCheck verifies that the graph store's redis backend answers a ping.
//
// Example:
//
//	opts, _ := redis.ParseURL(url)
//	if health.RedisCheck(ctx, redis.NewClient(opts)).IsUnhealthy() {
//	    log.Fatal("graph store unavailable")
//	}
func RedisCheck(ctx context.Context, client *redis.Client) Check {
	if client == nil {
		return unhealthy("redis client is nil", nil)
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return unhealthy("redis ping failed", map[string]any{
			"error": err.Error(),
		})
	}
	return healthy("redis reachable")
}

// RegistryCheck verifies TCP connectivity to the etcd endpoints backing
// adapter discovery. All endpoints reachable is healthy; some reachable is
// degraded (discovery still works against the quorum); none is unhealthy.
func RegistryCheck(ctx context.Context, endpoints []string) Check {
	if len(endpoints) == 0 {
		return unhealthy("no registry endpoints configured", nil)
	}

	var unreachable []string
	for _, ep := range endpoints {
		if err := dial(ctx, ep); err != nil {
			unreachable = append(unreachable, ep)
		}
	}

	switch {
	case len(unreachable) == 0:
		return healthy(fmt.Sprintf("all %d registry endpoints reachable", len(endpoints)))
	case len(unreachable) < len(endpoints):
		return degraded(
			fmt.Sprintf("%d of %d registry endpoints unreachable", len(unreachable), len(endpoints)),
			map[string]any{"unreachable": unreachable},
		)
	default:
		return unhealthy("no registry endpoint reachable", map[string]any{
			"unreachable": unreachable,
		})
	}
}

// NetworkCheck verifies TCP connectivity to a host and port, for provider
// adapters that depend on an upstream service.
func NetworkCheck(ctx context.Context, host string, port int) Check {
	if host == "" {
		return unhealthy("host cannot be empty", nil)
	}
	if port <= 0 || port > 65535 {
		return unhealthy(fmt.Sprintf("invalid port number: %d", port), map[string]any{
			"port": port,
		})
	}

	address := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	if err := dial(ctx, address); err != nil {
		return unhealthy(fmt.Sprintf("failed to connect to %s", address), map[string]any{
			"host":  host,
			"port":  port,
			"error": err.Error(),
		})
	}
	return healthy(fmt.Sprintf("successfully connected to %s", address))
}

// FileCheck verifies that a file or directory exists, typically the
// investigation config.
func FileCheck(path string) Check {
	if path == "" {
		return unhealthy("path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return unhealthy(fmt.Sprintf("path %q does not exist", path), map[string]any{
				"path": path,
			})
		}
		return unhealthy(fmt.Sprintf("failed to stat path %q", path), map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	}

	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return healthy(fmt.Sprintf("%s %q exists", kind, path))
}

// Combine aggregates multiple checks: any unhealthy makes the result
// unhealthy, otherwise any degraded makes it degraded.
func Combine(checks ...Check) Check {
	if len(checks) == 0 {
		return healthy("no checks provided")
	}

	var failed, slow []string
	healthyCount := 0
	for _, c := range checks {
		switch c.Status {
		case StatusUnhealthy:
			failed = append(failed, c.Message)
		case StatusDegraded:
			slow = append(slow, c.Message)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(failed) > 0 {
		return unhealthy(fmt.Sprintf("%d check(s) failed", len(failed)), map[string]any{
			"total":         len(checks),
			"unhealthy":     len(failed),
			"degraded":      len(slow),
			"healthy":       healthyCount,
			"failed_checks": failed,
		})
	}
	if len(slow) > 0 {
		return degraded(fmt.Sprintf("%d check(s) degraded", len(slow)), map[string]any{
			"total":           len(checks),
			"degraded":        len(slow),
			"healthy":         healthyCount,
			"degraded_checks": slow,
		})
	}
	return healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}

func dial(ctx context.Context, address string) error {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}
