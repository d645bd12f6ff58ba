package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/horiens/restock/internal/alerts"
	"github.com/horiens/restock/internal/cache"
	"github.com/horiens/restock/internal/config"
	"github.com/horiens/restock/internal/forecast"
	"github.com/horiens/restock/internal/health"
	"github.com/horiens/restock/internal/logging"
	"github.com/horiens/restock/internal/market"
	"github.com/horiens/restock/internal/metrics"
	"github.com/horiens/restock/internal/notify"
	"github.com/horiens/restock/internal/pipeline"
	"github.com/horiens/restock/internal/publish"
	"github.com/horiens/restock/internal/server"
	"github.com/horiens/restock/internal/templates"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to agent configuration file")
		envPrefix  = flag.String("env-prefix", "RESTOCK", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promRegistry)

	sampler := health.NewSampler(
		time.Duration(cfg.Health.WindowSeconds)*time.Second,
		cfg.Health.MaxSamples,
	)
	monitor := health.NewMonitor(sampler, cfg.Health)

	store := buildSnapshotStore(logger.With(slog.String("agent", "cache_factory")), cfg.Cache)
	manager := cache.NewManager(cache.Options{
		Store:        store,
		Health:       monitor,
		DefaultTTL:   time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		StaleGrace:   time.Duration(cfg.Cache.StaleGraceSeconds) * time.Second,
		StaleOnError: true,
		Logger:       logger,
		Metrics:      recorder,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := manager.Close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	client, err := market.NewClient(cfg.Market)
	if err != nil {
		logger.Error("market client setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	instrumented := market.NewInstrumented(client, sampler, recorder)
	source := market.NewCachedSource(
		instrumented,
		manager,
		cache.NewKeyBuilder(cfg.Cache.KeySalt),
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
		logger,
	)

	catalogRef := pipeline.NewCatalogRef(config.Catalog{})
	if path := strings.TrimSpace(cfg.Catalog.File); path != "" {
		watcher, err := config.WatchCatalog(ctx, path, func(catalog config.Catalog) {
			catalogRef.Swap(catalog)
			logger.Info("catalog loaded", slog.Int("skus", len(catalog.SKUs)))
		}, func(err error) {
			logger.Error("catalog watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("catalog watcher setup failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer watcher.Stop()
	}

	engine := forecast.NewEngine(source, cfg.Forecast, catalogRef.MOQ, logger)

	rules, err := alerts.Compile(cfg.Alerts)
	if err != nil {
		logger.Error("alert rules invalid", slog.Any("error", err))
		os.Exit(1)
	}

	notifier, composer := buildNotifier(logger, cfg.Notify)
	var publisher publish.Publisher
	if path := strings.TrimSpace(cfg.Publish.CSVPath); path != "" {
		publisher, err = publish.NewCSV(path)
		if err != nil {
			logger.Error("csv publisher setup failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pipe := pipeline.New(pipeline.Options{
		Source:      source,
		Engine:      engine,
		Catalog:     catalogRef,
		Monitor:     monitor,
		Rules:       rules,
		Publisher:   publisher,
		Notifier:    notifier,
		Composer:    composer,
		Concurrency: cfg.Forecast.Concurrency,
		Interval:    time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second,
		Logger:      logger,
		Metrics:     recorder,
	})

	router := server.NewRouter(monitor, pipe, recorder.Handler())
	srv, err := server.New(cfg.Listen, logger, router)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return pipe.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agent terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("agent shutdown complete")
}

func buildSnapshotStore(logger *slog.Logger, cfg config.CacheConfig) cache.SnapshotStore {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using memory snapshot cache", slog.Int("ttl_seconds", cfg.TTLSeconds))
		return cache.NewMemory()
	case "redis":
		store, err := cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			logger.Error("redis cache initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory cache")
			return cache.NewMemory()
		}
		logger.Info("using redis snapshot cache", slog.String("address", cfg.Redis.Address))
		return store
	default:
		logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return cache.NewMemory()
	}
}

// buildNotifier wires the chat notifier when credentials are configured. A
// missing notifier only mutes messages; the pipeline still runs.
func buildNotifier(logger *slog.Logger, cfg config.NotifyConfig) (notify.Notifier, *notify.Composer) {
	if strings.TrimSpace(cfg.TelegramToken) == "" || strings.TrimSpace(cfg.TelegramChatID) == "" {
		logger.Info("chat notifier disabled, no credentials configured")
		return nil, nil
	}
	notifier, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger)
	if err != nil {
		logger.Error("telegram notifier setup failed", slog.Any("error", err))
		return nil, nil
	}

	var sandbox *templates.Sandbox
	if folder := strings.TrimSpace(cfg.TemplatesFolder); folder != "" {
		sandbox, err = templates.NewSandbox(folder, cfg.TemplatesAllowEnv, cfg.TemplatesAllowedEnv)
		if err != nil {
			logger.Warn("template sandbox setup failed", slog.String("templates_folder", folder), slog.Any("error", err))
			sandbox = nil
		}
	}
	renderer := templates.NewRenderer(sandbox)
	composer, err := notify.NewComposer(renderer, cfg.MessageTemplate)
	if err != nil {
		logger.Error("message template invalid", slog.Any("error", err))
		return nil, nil
	}
	return notifier, composer
}
