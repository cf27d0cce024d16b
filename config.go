package goLease

import (
	"errors"
	"time"

	"github.com/MrEthical07/goLease/leaseid"
)

// Config defines the runtime behaviour of an [Engine].
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Lease   LeaseConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
LEASE CONFIG
====================================
*/

// LeaseConfig bounds the inputs and round trips of the Lease Registry.
type LeaseConfig struct {
	// RedisPrefix namespaces the record keys when the engine builds its own
	// Redis store.
	RedisPrefix string
	// MaxLeaseIDLength is the longest accepted candidate, in bytes.
	MaxLeaseIDLength int
	// MaxDeviceLabelLength truncates device labels, in bytes. Zero stores no
	// label at all.
	MaxDeviceLabelLength int
	// OperationTimeout bounds every store round trip. Zero leaves the
	// caller's deadline untouched.
	OperationTimeout time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Lease: LeaseConfig{
			RedisPrefix:          "lr",
			MaxLeaseIDLength:     leaseid.MaxLength,
			MaxDeviceLabelLength: 128,
			OperationTimeout:     2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the production defaults. It is safe to modify the
// returned value before passing it to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate checks cfg for values the engine cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	// Lease
	if c.Lease.RedisPrefix == "" {
		return errors.New("Lease RedisPrefix must not be empty")
	}
	if c.Lease.MaxLeaseIDLength <= 0 {
		return errors.New("Lease MaxLeaseIDLength must be > 0")
	}
	if c.Lease.MaxLeaseIDLength > 1024 {
		return errors.New("Lease MaxLeaseIDLength must be <= 1024")
	}
	if c.Lease.MaxDeviceLabelLength < 0 {
		return errors.New("Lease MaxDeviceLabelLength must be >= 0")
	}
	if c.Lease.OperationTimeout < 0 {
		return errors.New("Lease OperationTimeout must be >= 0")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
