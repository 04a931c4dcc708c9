package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"signupgate/internal/gate"
	gatemetrics "signupgate/internal/gate/metrics"
	"signupgate/internal/hooks"
	"signupgate/internal/platform/config"
	"signupgate/internal/platform/httpserver"
	"signupgate/internal/platform/logger"
	platformmetrics "signupgate/internal/platform/metrics"
	"signupgate/internal/platform/middleware"
	"signupgate/internal/platform/postgres"
	"signupgate/internal/platform/redis"
	"signupgate/internal/settings"
	settingshandler "signupgate/internal/settings/handler"
	filestore "signupgate/internal/settings/store/file"
	memorystore "signupgate/internal/settings/store/memory"
	pgstore "signupgate/internal/settings/store/postgres"
	redisstore "signupgate/internal/settings/store/redis"
	"signupgate/internal/signup"
	"signupgate/internal/turnstile"
	"signupgate/internal/widget"
	"signupgate/pkg/platform/audit"
	"signupgate/pkg/platform/audit/publisher"
	kafkastore "signupgate/pkg/platform/audit/store/kafka"
	auditmemory "signupgate/pkg/platform/audit/store/memory"
	auditpostgres "signupgate/pkg/platform/audit/store/postgres"
	"signupgate/pkg/platform/httputil"
	metadata "signupgate/pkg/platform/middleware/metadata"
	"signupgate/pkg/platform/middleware/requesttime"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies and owns the server lifecycle. Admission logic lives
// in internal/gate and the host pipeline in internal/signup.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	deps, err := newDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	auditStore, closeAudit, err := newAuditStore(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer closeAudit()
	auditor := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithSampler(publisher.NewSampler(cfg.Audit.OpsSampleRate)),
		publisher.WithLogger(log),
	)
	defer auditor.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := platformmetrics.New(registry)

	client := turnstile.NewClient(
		turnstile.WithVerifyURL(cfg.Turnstile.VerifyURL),
		turnstile.WithTimeout(cfg.Turnstile.Timeout),
	)
	g, err := gate.New(deps.settings, client,
		gate.WithLogger(log),
		gate.WithMetrics(gatemetrics.New(registry)),
		gate.WithAuditPublisher(auditor),
		gate.WithTimeout(cfg.Turnstile.Timeout),
	)
	if err != nil {
		return fmt.Errorf("build gate: %w", err)
	}

	hookRegistry := hooks.NewRegistry(hooks.WithLogger(log))
	if err := gate.Register(hookRegistry, g); err != nil {
		return fmt.Errorf("register turnstile filter: %w", err)
	}

	if cfg.AdminToken == "" {
		log.Warn("ADMIN_API_TOKEN not set, admin settings endpoints are disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(cfg.TrustProxyHeaders))
	r.Use(chimiddleware.Recoverer)
	r.Use(httpMetrics.Middleware)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", deps.health)

	signupHandler := signup.New(
		signup.Policy{Enabled: cfg.Signup.Enabled, AllowedEmailDomains: cfg.Signup.AllowedEmailDomains},
		hookRegistry,
		signup.WithLogger(log),
		signup.WithPage(deps.settings, widget.NewInjector(widget.WithInjectorLogger(log))),
	)
	signupHandler.Register(r)

	settingsHandler := settingshandler.New(deps.settings, auditor, log)
	settingsHandler.RegisterPublic(r)
	r.Group(func(admin chi.Router) {
		admin.Use(middleware.RequireAdminToken(cfg.AdminToken, log))
		settingsHandler.RegisterAdmin(admin)
	})

	srv := httpserver.New(cfg.Addr, r)

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		log.Info("starting signupgate",
			"addr", cfg.Addr,
			"settings_backend", cfg.Settings.Backend,
			"filters", hookRegistry.Filters(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})
	return grp.Wait()
}

type dependencies struct {
	settings settings.Store
	redis    *redis.Client
	db       *sql.DB
}

func newDependencies(ctx context.Context, cfg config.Server, log *slog.Logger) (*dependencies, error) {
	deps := &dependencies{}

	switch cfg.Settings.Backend {
	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		if client == nil {
			return nil, errors.New("REDIS_URL is required for the redis settings backend")
		}
		deps.redis = client
		deps.settings = redisstore.New(client.Client, cfg.Settings.RedisKey)
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if db == nil {
			return nil, errors.New("DATABASE_URL is required for the postgres settings backend")
		}
		deps.db = db
		store := pgstore.New(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		deps.settings = store
	case config.BackendFile:
		deps.settings = filestore.New(afero.NewOsFs(), cfg.Settings.File)
	default:
		deps.settings = memorystore.New(seedValues(cfg.Settings.Seed))
	}

	log.Info("settings backend ready", "backend", cfg.Settings.Backend)
	return deps, nil
}

// seedValues maps TURNSTILE_* variables onto option names, skipping unset ones.
func seedValues(seed config.SeedSettings) map[string]any {
	values := map[string]any{}
	if seed.Enabled != "" {
		if v, err := settings.Normalize(settings.OptionEnabled, seed.Enabled); err == nil {
			values[settings.OptionEnabled] = v
		}
	}
	if seed.SiteKey != "" {
		values[settings.OptionSiteKey] = seed.SiteKey
	}
	if seed.SecretKey != "" {
		values[settings.OptionSecretKey] = seed.SecretKey
	}
	return values
}

func (d *dependencies) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if d.redis != nil {
		if err := d.redis.Health(ctx); err != nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "redis_unavailable", "")
			return
		}
	}
	if d.db != nil {
		if err := d.db.PingContext(ctx); err != nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "postgres_unavailable", "")
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *dependencies) close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

// newAuditStore prefers Kafka, then the audit_events table, then memory.
func newAuditStore(ctx context.Context, cfg config.Server, deps *dependencies) (audit.Store, func(), error) {
	switch {
	case len(cfg.Audit.KafkaBrokers) > 0:
		store, err := kafkastore.New(ctx, cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("connect audit kafka: %w", err)
		}
		return store, store.Close, nil
	case cfg.Audit.Postgres:
		db := deps.db
		closeFn := func() {}
		if db == nil {
			opened, err := postgres.Open(ctx, cfg.Postgres)
			if err != nil {
				return nil, nil, fmt.Errorf("connect audit postgres: %w", err)
			}
			db = opened
			closeFn = func() { _ = opened.Close() }
		}
		store := auditpostgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil
	default:
		return auditmemory.NewInMemoryStore(), func() {}, nil
	}
}
