// Package client exposes the MiniVault operation surface over the
// binary and HTTP transports.
package client

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

type (
	// Client is the transport-agnostic operation surface. The primary
	// operations never fail hard: transport and protocol errors
	// collapse into the absent or false result, and the failure is
	// reported through the configured logger instead. The return value
	// alone cannot distinguish a missing key from a failed call; that
	// matches the wire protocol and is deliberate.
	Client interface {
		Get(key string) []byte
		Set(key string, value []byte) bool
		Delete(key string) bool
		Exists(key string) bool
		Health() *Health

		GetJSON(key string, into any) bool
		SetJSON(key string, value any) bool
	}

	// Health is the server's health report.
	Health struct {
		Status        string `json:"status"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		CacheItems    int64  `json:"cache_items"`
		CacheSizeMB   int64  `json:"cache_size_mb"`
		StorageSizeMB int64  `json:"storage_size_mb"`
		Goroutines    int    `json:"goroutines"`
		MemoryMB      int64  `json:"memory_mb"`
	}

	// Option tunes a client at construction.
	Option func(*config)

	config struct {
		apiKey  string
		timeout time.Duration
		logger  logrus.FieldLogger
	}
)

// DefaultTimeout applies to the connect, write and read phases of
// every call.
const DefaultTimeout = 5 * time.Second

// HealthKey is the conventional key carried by health requests on the
// binary wire.
const HealthKey = "health"

// ErrDecodeFailed marks malformed JSON in the convenience layers.
var ErrDecodeFailed = errors.New("decode_failed")

// WithAPIKey makes every call authenticate with key.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger redirects the diagnostic side channel. Failures of the
// primary operations are only observable here.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) { c.logger = l }
}

func newConfig(opts ...Option) config {
	c := config{timeout: DefaultTimeout, logger: logrus.StandardLogger()}

	for _, o := range opts {
		o(&c)
	}

	return c
}
