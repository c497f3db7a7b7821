package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher/router"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docquery/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting query server",
		"port", cfg.Server.Port,
		"source", cfg.Source.Kind,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Port, prometheus.DefaultGatherer); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient, err = pkgredis.NewClient(pingCtx, cfg.Redis)
		cancel()
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
			slog.Info("query cache enabled", "addr", redisClient.Addr(), "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator()
	trackers := []analytics.Tracker{aggregator}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Kafka)
		// Runs past the signal so requests finishing during Shutdown are
		// still published; the deferred Close stops it afterwards.
		collector.Start(context.WithoutCancel(ctx))
		defer collector.Close()
		trackers = append(trackers, collector)
		slog.Info("kafka analytics enabled", "brokers", cfg.Kafka.Brokers)
	}

	h := handler.New(handler.Options{
		Cache:      queryCache,
		Tracker:    analytics.Multi(trackers...),
		Metrics:    m,
		MaxResults: cfg.Search.MaxResults,
	})

	checker := health.NewChecker()
	checker.Register("document_store", h.HealthCheck())
	if cfg.Redis.Enabled {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if redisClient == nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "unreachable at startup, caching disabled"}
			}
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	// The router answers 504 at WriteTimeout; the connection deadline sits
	// just past it so that response can still be written.
	writeDeadline := cfg.Server.WriteTimeout
	if writeDeadline > 0 {
		writeDeadline += time.Second
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(h, analytics.NewHandler(aggregator), checker, m, cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeDeadline,
	}

	// Listen before fetching so probes see the uninitialized state; searches
	// get 503 until the store is installed.
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("query server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	src, err := source.FromConfig(cfg.Source, m)
	if err != nil {
		slog.Error("failed to create document source", "error", err)
		os.Exit(1)
	}
	if err := h.Ready(source.Load(ctx, src, cfg.Source.FetchTimeout, m)); err != nil {
		slog.Error("failed to initialize query server", "error", err)
		os.Exit(1)
	}

	select {
	case err, ok := <-serveErr:
		if ok {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}

	slog.Info("query server stopped")
}
