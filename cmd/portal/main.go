package main

import (
	"context"
	"database/sql"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/skcetlabs/portal/pkg/api"
	"github.com/skcetlabs/portal/pkg/config"
	"github.com/skcetlabs/portal/pkg/httputil"
	"github.com/skcetlabs/portal/pkg/identity"
	"github.com/skcetlabs/portal/pkg/middleware"
	"github.com/skcetlabs/portal/pkg/observability"
	"github.com/skcetlabs/portal/pkg/rbac"
	"github.com/skcetlabs/portal/pkg/users"
	"github.com/skcetlabs/portal/pkg/webhooks"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
	logger.Info("Starting portal")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Portal exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	logger.Info("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return err
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Rate limiting fails open, so a Redis outage at boot is
			// survivable; log it and keep going
			logger.WithError(err).Warn("Redis unreachable at startup")
		}
	}

	policy, err := buildPolicyRegistry(cfg)
	if err != nil {
		return err
	}

	provider, err := identity.NewProvider(ctx, identity.ProviderConfig{
		IssuerURL:     cfg.Identity.IssuerURL,
		ClientID:      cfg.Identity.ClientID,
		ClientSecret:  cfg.Identity.ClientSecret,
		RedirectURL:   cfg.Identity.RedirectURL,
		SessionCookie: cfg.Identity.SessionCookie,
	})
	if err != nil {
		return err
	}

	resolver := identity.NewSessionResolver(provider, identity.ResolverOptions{
		CookieName:        cfg.Identity.SessionCookie,
		RoleClaimPath:     cfg.Identity.RoleClaimPath,
		CacheSize:         cfg.Identity.CacheSize,
		RoleRefreshWindow: cfg.Identity.RoleRefreshWindow,
		Metrics:           metrics,
	})

	store := users.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	verifier, err := webhooks.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance)
	if err != nil {
		return err
	}
	webhookHandler := webhooks.NewHandler(verifier, store, logger).WithMetrics(metrics)

	var webhookMiddleware func(http.Handler) http.Handler
	if redisClient != nil {
		limiter := middleware.NewRateLimitMiddleware(redisClient, &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Webhook.RateLimit,
			WindowDuration:    time.Minute,
		}, logger)
		webhookMiddleware = limiter.Handler
	}

	selfAssignable := make([]rbac.Role, 0, len(cfg.Policy.SelfAssignableRoles))
	for _, name := range cfg.Policy.SelfAssignableRoles {
		selfAssignable = append(selfAssignable, rbac.Role(name))
	}

	_, router := api.NewServer(api.ServerOptions{
		Logger:              logger,
		Metrics:             metrics,
		Registry:            policy,
		Resolver:            resolver,
		Guard:               api.NewGuard(resolver, policy).WithMetrics(metrics),
		Store:               store,
		AuthFlow:            provider,
		WebhookHandler:      webhookHandler,
		WebhookMiddleware:   webhookMiddleware,
		SelfAssignableRoles: selfAssignable,
	})

	gate := middleware.NewEdgeGate(resolver, policy, logger).WithMetrics(metrics)
	// An operator-configured callback path that differs from the default
	// still has to be reachable before any session exists
	if u, err := url.Parse(cfg.Identity.RedirectURL); err == nil && u.Path != "" && u.Path != "/auth/callback" {
		gate.WithPublicRoutes(append(middleware.DefaultPublicRoutes(), u.Path))
	}
	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.MetricsMiddleware(metrics),
		httputil.MaxBytesMiddleware(4<<20),
		gate.Handler,
	)(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, redisClient)
	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/healthz", health.Liveness).Methods("GET")
	healthRouter.HandleFunc("/readyz", health.Readiness).Methods("GET")
	healthRouter.Handle("/metrics", metrics.Handler()).Methods("GET")
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRouter,
	}

	reconciler := users.NewReconciler(store, logger, metrics)
	if err := reconciler.Start(cfg.Webhook.ReconcileSchedule); err != nil {
		return err
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		reconciler.Stop()
		return nil
	})

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return shutdown.WaitForShutdown()
	})

	return group.Wait()
}

// buildPolicyRegistry assembles the authorization registry, layering route
// rules from the optional policy file over the built-ins
func buildPolicyRegistry(cfg *config.Config) (*rbac.Registry, error) {
	var opts []rbac.RegistryOption
	if cfg.Policy.RouteFile != "" {
		rules, err := rbac.LoadRouteRules(cfg.Policy.RouteFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rbac.WithRouteRules(rules))
	}
	return rbac.NewRegistry(opts...)
}
