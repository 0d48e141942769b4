package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/feeder-core/internal/infrastructure/config"
)

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps ping failures during Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	fallbackBatchSize       = 100
	fallbackFlushIntervalMs = 10_000
)

// Client writes feeder telemetry to InfluxDB v2. Points are batched and
// written in the background; a closed client drops them silently.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	closed   atomic.Bool

	mu      sync.RWMutex
	onError func(err error)
}

// Connect pings the server and sets up the batching write API for
// cfg.Org/cfg.Bucket. Returns ErrDisabled when the integration is off.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batchSize(cfg)).
		SetFlushInterval(flushIntervalMs(cfg))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go c.drainErrors(c.writeAPI.Errors())

	return c, nil
}

func batchSize(cfg config.InfluxDBConfig) uint {
	if cfg.BatchSize <= 0 {
		return fallbackBatchSize
	}
	return uint(cfg.BatchSize) // #nosec G115 -- positive
}

func flushIntervalMs(cfg config.InfluxDBConfig) uint {
	if cfg.FlushInterval <= 0 {
		return fallbackFlushIntervalMs
	}
	return uint(cfg.FlushInterval) * 1000 // #nosec G115 -- positive, seconds
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

// drainErrors forwards async write failures to the SetOnError callback.
func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError registers the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c.client != nil && !c.closed.Load()
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the connection.
func (c *Client) Close() error {
	if c.client == nil || c.closed.Swap(true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
