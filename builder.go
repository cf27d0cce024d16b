package goLease

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/goLease/registry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use: Build may succeed
// at most once.
type Builder struct {
	config Config

	redis    redis.UniversalClient
	postgres *pgxpool.Pool
	store    registry.Store

	auditSink AuditSink
	logger    *slog.Logger
	clock     clock.Clock

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis selects the Redis store, keyed under Config.Lease.RedisPrefix.
// Both *redis.Client and *redis.ClusterClient are accepted.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres selects the Postgres store. The lease_records table must
// exist; see registry.Migrate.
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.postgres = pool
	return b
}

// WithStore installs a custom store. It takes precedence over WithRedis and
// WithPostgres.
func (b *Builder) WithStore(store registry.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Nil falls back to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the clock used for issued_at and audit timestamps.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- STORE --------
	store := b.store
	switch {
	case store != nil:
	case b.redis != nil:
		store = registry.NewRedisStore(b.redis, cfg.Lease.RedisPrefix)
	case b.postgres != nil:
		store = registry.NewPostgresStore(b.postgres)
	default:
		return nil, errors.New("lease store required: use WithRedis, WithPostgres or WithStore")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	clk := b.clock
	if clk == nil {
		clk = clock.WallClock
	}

	engine := &Engine{
		config:  cfg,
		store:   store,
		clock:   clk,
		logger:  logger.With("component", "lease_registry"),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true
	return engine, nil
}
