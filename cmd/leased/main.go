// Command leased runs the lease registry HTTP API.
//
// Configuration comes from the environment (see internal/config). The
// registry exposes /v1/lease, /healthz, /readyz and, when metrics are
// enabled, /metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goLease "github.com/MrEthical07/goLease"
	"github.com/MrEthical07/goLease/httpapi"
	"github.com/MrEthical07/goLease/identity"
	"github.com/MrEthical07/goLease/internal/config"
	"github.com/MrEthical07/goLease/internal/logger"
	"github.com/MrEthical07/goLease/internal/rate"
	promexport "github.com/MrEthical07/goLease/metrics/export/prometheus"
	"github.com/MrEthical07/goLease/registry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lg := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := goLease.New().
		WithConfig(engineConfig(cfg)).
		WithLogger(lg)
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(goLease.NewSlogSink(lg))
	}

	st, err := attachStore(ctx, builder, cfg, lg)
	if err != nil {
		return err
	}
	defer st.close()

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	var opts []httpapi.HandlerOption
	if st.redis != nil && (cfg.RegisterLimitPerAccount > 0 || cfg.RegisterLimitPerIP > 0) {
		opts = append(opts, httpapi.WithRegisterLimiter(rate.New(st.redis, cfg.RedisPrefix, rate.Config{
			MaxPerAccount: cfg.RegisterLimitPerAccount,
			MaxPerIP:      cfg.RegisterLimitPerIP,
			Window:        cfg.RegisterLimitWindow,
		})))
	}

	api, err := httpapi.NewHandler(lg, engine, verifier, httpapi.Config{TrustProxy: cfg.TrustProxy}, opts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	api.Register(mux)
	if cfg.MetricsEnabled {
		exporter, err := promexport.NewExporter(engine)
		if err != nil {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		mux.Handle("GET /metrics", exporter.Handler())
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.WithRequestLogging(mux, lg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lg.Info("server.start", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		lg.Info("server.stop", "reason", "signal")
	case err := <-errCh:
		lg.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server.shutdown.fail", "err", err)
		return err
	}

	lg.Info("server.stopped", "audit_dropped", engine.AuditDropped())
	return nil
}

func engineConfig(cfg *config.Config) goLease.Config {
	ec := goLease.DefaultConfig()
	ec.Lease.RedisPrefix = cfg.RedisPrefix
	ec.Lease.OperationTimeout = cfg.OperationTimeout
	ec.Lease.MaxDeviceLabelLength = cfg.MaxDeviceLabelLength
	ec.Audit.Enabled = cfg.AuditEnabled
	ec.Metrics.Enabled = cfg.MetricsEnabled
	ec.Metrics.EnableLatencyHistograms = cfg.MetricsEnabled
	return ec
}

// backend is the connected store; redis is nil for other backends.
type backend struct {
	redis redis.UniversalClient
	close func()
}

// attachStore connects the configured backend to builder.
func attachStore(ctx context.Context, builder *goLease.Builder, cfg *config.Config, lg *slog.Logger) (backend, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		builder.WithRedis(rdb)
		return backend{redis: rdb, close: func() { _ = rdb.Close() }}, nil

	case config.BackendPostgres:
		if cfg.DBMigrate {
			if err := registry.Migrate(cfg.DatabaseURL, "up"); err != nil {
				return backend{}, err
			}
			lg.Info("db.migrated")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, fmt.Errorf("connect postgres: %w", err)
		}
		builder.WithPostgres(pool)
		return backend{close: pool.Close}, nil

	default:
		lg.Warn("store.memory", "note", "lease records are not shared between processes")
		builder.WithStore(registry.NewMemoryStore())
		return backend{close: func() {}}, nil
	}
}

func newVerifier(cfg *config.Config) (*identity.Manager, error) {
	idCfg := identity.Config{
		// Verification only; TTL is checked against the token's own exp.
		TTL:      time.Hour,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		KeyID:    cfg.JWTKeyID,
		Leeway:   30 * time.Second,
	}

	switch strings.ToLower(cfg.JWTSigningMethod) {
	case "hs256":
		idCfg.SigningMethod = identity.MethodHS256
		idCfg.PrivateKey = []byte(cfg.JWTSecret)
	default:
		pub, err := cfg.PublicKeyPEM()
		if err != nil {
			return nil, err
		}
		idCfg.SigningMethod = identity.MethodEd25519
		idCfg.PublicKey = pub
	}
	return identity.NewManager(idCfg)
}
