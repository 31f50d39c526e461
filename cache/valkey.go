package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SeaRoll/bookshelf/config"
	"github.com/valkey-io/valkey-go"
	"github.com/valkey-io/valkey-go/valkeycompat"
)

//go:generate go run github.com/SeaRoll/interfacer/cmd -struct=cacheClient -name=Cache

const healthCheckInterval = 5 * time.Second

type cacheClient struct {
	config     config.CacheConfig
	mu         sync.RWMutex
	valcli     valkey.Client
	client     valkeycompat.Cmdable
	isTeardown atomic.Bool
}

// NewCache connects to valkey and keeps the connection alive in the background
// until Disconnect is called.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	cc := &cacheClient{config: cfg}
	if err := cc.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}
	go cc.healthCheck()
	return cc, nil
}

func (c *cacheClient) clientOption() valkey.ClientOption {
	opt := valkey.ClientOption{
		InitAddress: []string{net.JoinHostPort(c.config.Host, c.config.Port)},
		Password:    c.config.Password,
	}

	if c.config.SentinelConfig.Enabled {
		opt.Sentinel = valkey.SentinelOption{
			MasterSet: c.config.SentinelConfig.MasterSet,
			Password:  c.config.SentinelConfig.Password,
		}
	}

	return opt
}

func (c *cacheClient) connect() error {
	valcli, err := valkey.NewClient(c.clientOption())
	if err != nil {
		return err
	}

	client := valkeycompat.NewAdapter(valcli)
	if err := client.Ping(context.Background()).Err(); err != nil {
		valcli.Close()
		return err
	}

	c.mu.Lock()
	old := c.valcli
	c.valcli = valcli
	c.client = client
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	return nil
}

func (c *cacheClient) cmd() valkeycompat.Cmdable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *cacheClient) healthCheck() {
	for {
		if c.isTeardown.Load() {
			slog.Info("Cache is being torn down, stopping health check")
			return
		}

		if err := c.Ping(context.Background()); err != nil {
			slog.Error("Cache is not healthy", "error", err)
			if err := c.connect(); err != nil {
				slog.Error("Failed to reconnect to cache", "error", err)
			} else {
				slog.Info("Reconnected to cache")
			}
		}
		time.Sleep(healthCheckInterval)
	}
}

// Ping checks the connection to valkey.
func (c *cacheClient) Ping(ctx context.Context) error {
	return c.cmd().Ping(ctx).Err()
}

// IncrWithTTL increments key by one and returns the new value.
// The key expires ttl after its first increment.
func (c *cacheClient) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	client := c.cmd()

	count, err := client.IncrBy(ctx, key, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}

	if count == 1 {
		if err := client.Expire(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("failed to set expiry on %s: %w", key, err)
		}
	}

	return count, nil
}

// TTL returns the time to live of a key in the cache.
func (c *cacheClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.cmd().TTL(ctx, key).Result()
}

// Disconnect closes the client connection.
// Unless noTeardown is true the background health check stops as well,
// otherwise it reconnects on its next run.
func (c *cacheClient) Disconnect(noTeardown ...bool) {
	c.mu.RLock()
	valcli := c.valcli
	c.mu.RUnlock()

	if valcli == nil {
		return
	}

	if len(noTeardown) == 0 || !noTeardown[0] {
		c.isTeardown.Store(true)
	}

	valcli.Close()
	slog.Info("Disconnected from valkey")
}
