package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mkurtis/warden/pkg/api"
	"github.com/mkurtis/warden/pkg/audit"
	"github.com/mkurtis/warden/pkg/authn"
	"github.com/mkurtis/warden/pkg/config"
	"github.com/mkurtis/warden/pkg/middleware"
	"github.com/mkurtis/warden/pkg/oauth"
	"github.com/mkurtis/warden/pkg/observability"
	"github.com/mkurtis/warden/pkg/rbac"
	"github.com/mkurtis/warden/pkg/tenants"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithFields(map[string]interface{}{
		"environment": cfg.Environment,
		"port":        cfg.Server.Port,
		"health_port": cfg.Server.HealthPort,
	}).Info("starting warden")

	ctx := context.Background()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("database initialization failed")
		os.Exit(1)
	}
	defer db.Close()

	if err := authn.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("authn migrations failed")
		os.Exit(1)
	}
	if err := rbac.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("rbac migrations failed")
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		logger.WithError(err).Error("redis ping failed")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("OpenTelemetry initialization failed")
		os.Exit(1)
	}

	// Audit events go to the structured log and, durably, to Postgres
	auditDB, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Error("audit store initialization failed")
		os.Exit(1)
	}
	auditor := audit.NewMultiLogger(audit.NewSlogLogger(logger), auditDB)

	authStore := authn.NewStore(db)
	issuer := authn.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.AccessTokenTTL)
	hasher := authn.NewPasswordHasher(cfg.Auth.BcryptCost)
	authService := authn.NewService(authStore, issuer, hasher, cfg.Auth.RefreshTokenTTL, logger, metrics)

	rbacStore := rbac.NewStore(db)
	if err := rbac.SeedPermissions(ctx, rbacStore); err != nil {
		logger.WithError(err).Error("permission seeding failed")
		os.Exit(1)
	}
	checker := rbac.NewChecker(rbacStore, auditor, logger, metrics)

	tenantStore := tenants.NewStore(db)
	guard := tenants.NewGuard(checker, auditor, logger)

	providerRegistry, err := loadProviders(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("OAuth provider configuration failed")
		os.Exit(1)
	}
	stateStore := oauth.NewStateStore(redisClient, cfg.Auth.OAuthStateTTL, metrics)
	coordinator := oauth.NewCoordinator(providerRegistry, stateStore, authStore, authService,
		cfg.OAuth.ExchangeTimeout, logger, metrics)

	throttle := middleware.NewLoginThrottle(redisClient,
		middleware.DefaultLoginThrottleConfig(), logger, metrics)

	server := api.NewServer(api.Deps{
		Auth:           authService,
		Coordinator:    coordinator,
		Registry:       providerRegistry,
		RBACStore:      rbacStore,
		Checker:        checker,
		Tenants:        tenantStore,
		Guard:          guard,
		AuditStore:     auditDB,
		Auditor:        auditor,
		Throttle:       throttle,
		Logger:         logger,
		Metrics:        metrics,
		AllowedOrigins: cfg.Server.CORSOrigins,
	})

	var handler http.Handler = server
	if otelProviders != nil {
		handler = otelhttp.NewHandler(handler, "warden")
	}

	appServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	collectorCtx, stopCollector := context.WithCancel(ctx)
	go collectDBStats(collectorCtx, db, metrics)

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, appServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopCollector()
		if err := auditDB.Close(); err != nil {
			return err
		}
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	var group errgroup.Group
	group.Go(func() error {
		logger.Infof("API server listening on %s", appServer.Addr)
		if err := appServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return shutdown.WaitForShutdown()
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("warden stopped")
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// loadProviders reads the OAuth provider file. Running without one is
// fine, the service just has no external identity providers.
func loadProviders(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*oauth.Registry, error) {
	if cfg.OAuth.ProvidersFile == "" {
		logger.Info("no OAuth providers configured")
		return oauth.NewRegistry(), nil
	}
	registry, err := oauth.LoadRegistry(ctx, cfg.OAuth.ProvidersFile)
	if err != nil {
		return nil, err
	}
	logger.WithField("providers", registry.Names()).Info("OAuth providers loaded")
	return registry, nil
}

// collectDBStats exports connection pool gauges every 15 seconds
func collectDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
			metrics.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
			metrics.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
		}
	}
}
