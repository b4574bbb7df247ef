package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/identsync/internal/cache"
	"github.com/dropDatabas3/identsync/internal/config"
	"github.com/dropDatabas3/identsync/internal/directory"
	dirmem "github.com/dropDatabas3/identsync/internal/directory/memory"
	dirpg "github.com/dropDatabas3/identsync/internal/directory/pg"
	httpx "github.com/dropDatabas3/identsync/internal/http"
	"github.com/dropDatabas3/identsync/internal/http/handlers"
	mw "github.com/dropDatabas3/identsync/internal/http/middlewares"
	"github.com/dropDatabas3/identsync/internal/http/router"
	"github.com/dropDatabas3/identsync/internal/observability/logger"
	"github.com/dropDatabas3/identsync/internal/rate"
	"github.com/dropDatabas3/identsync/internal/webhook"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to YAML config")
	flag.Parse()

	_ = godotenv.Load() // .env opcional, como en dev

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: "info", ServiceName: "identsync"})
	defer func() { _ = logger.Sync() }()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Storage ───
	var (
		store   directory.Service
		pgStore *dirpg.Store
		readyz  handlers.Pinger
	)
	switch cfg.Storage.Driver {
	case "postgres":
		pgStore, err = dirpg.New(ctx, cfg.Storage.DSN, dirpg.Tuning{
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			lg.Fatal("postgres store init failed", logger.Err(err))
		}
		defer pgStore.Close()
		store = pgStore
		readyz = pgStore
	case "memory":
		lg.Warn("using in-memory directory store (dev only)")
		store = dirmem.New()
	}

	// ─── Cache + rate limiting ───
	var (
		redisClient *rdb.Client
		cch         cache.Cache
	)
	switch cfg.Cache.Kind {
	case "redis":
		redisClient = rdb.NewClient(&rdb.Options{
			Addr: cfg.Cache.Redis.Addr,
			DB:   cfg.Cache.Redis.DB,
		})
		cch = cache.NewRedis(redisClient, cfg.Cache.Redis.Prefix)
	case "memory":
		cch = cache.NewMemory(cfg.MemoryTTLDuration())
	case "off":
		// sin cache
	}
	if cch != nil {
		store = directory.NewCached(store, cch, cfg.ExistsTTLDuration())
	}

	var checkLimiter, webhookLimiter rate.Limiter
	if cfg.Rate.Enabled && redisClient != nil {
		checkLimiter = rate.NewRedisLimiter(redisClient, "rl:check:",
			cfg.Rate.Check.Limit, parseWindow(cfg.Rate.Check.Window))
		webhookLimiter = rate.NewRedisLimiter(redisClient, "rl:wh:",
			cfg.Rate.Webhook.Limit, parseWindow(cfg.Rate.Webhook.Window))
	} else if cfg.Rate.Enabled {
		lg.Warn("rate limiting enabled but no redis cache configured; disabled")
	}

	// ─── Handlers + router ───
	dirHandler := &handlers.Directory{Store: store}
	var webhookHandler *handlers.Webhook
	if cfg.Webhook.Secret != "" {
		verifier, err := webhook.NewVerifier(cfg.Webhook.Secret)
		if err != nil {
			lg.Fatal("webhook verifier init failed", logger.Err(err))
		}
		webhookHandler = &handlers.Webhook{Verifier: verifier, Store: store}
	} else {
		lg.Warn("webhook secret not configured; deprovisioning endpoint disabled")
	}

	poolFn := func() *pgxpool.Pool {
		if pgStore == nil {
			return nil
		}
		return pgStore.Pool()
	}
	metricsHandler, err := httpx.RegisterMetrics(httpx.MetricsConfig{Pool: poolFn})
	if err != nil {
		lg.Fatal("metrics init failed", logger.Err(err))
	}

	handler := router.New(router.Deps{
		Directory: dirHandler,
		Webhook:   webhookHandler,
		Readyz:    &handlers.Readyz{Store: readyz},
		Gate: mw.GateConfig{
			CookieName:      cfg.Session.CookieName,
			ProtectedPrefix: cfg.Session.ProtectedPrefix,
			EntryPath:       cfg.Session.EntryPath,
		},
		CheckLimiter:   checkLimiter,
		WebhookLimiter: webhookLimiter,
	})

	// ─── Serve ───
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpx.Serve(gctx, cfg.Server.Addr, handler)
	})
	if cfg.Server.MetricsAddr != "" {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metricsHandler)
			return httpx.Serve(gctx, cfg.Server.MetricsAddr, mux)
		})
	}

	if err := g.Wait(); err != nil && err != http.ErrServerClosed {
		lg.Fatal("server exited", logger.Err(err))
	}
	lg.Info("shutdown complete")
}

func parseWindow(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}
