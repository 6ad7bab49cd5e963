package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/grayline/grayline/internal/api"
	"github.com/grayline/grayline/internal/aurora"
	"github.com/grayline/grayline/internal/auth"
	"github.com/grayline/grayline/internal/metrics"
	"github.com/grayline/grayline/internal/overlay"
	"github.com/grayline/grayline/internal/stream"
	"github.com/grayline/grayline/web"
)

func main() {
	// Load .env if present; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("GRAYLINE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	auroraCfg := loadAuroraConfig(logger)
	store := aurora.NewStore()
	cache := aurora.NewCache(auroraCfg.CacheDir, auroraCfg.MaxFiles)
	fetcher := aurora.NewFetcher(auroraCfg.SourceURL)

	// Attempt to load a cached OVATION document on startup so the aurora
	// overlay is available before the first fetch completes.
	data, ts, err := cache.LoadLatest()
	if err != nil {
		logger.Info("no aurora cache found, starting without aurora data", "error", err)
	} else {
		ds, err := aurora.Parse(bytes.NewReader(data), logger)
		if err != nil {
			logger.Warn("failed to parse cached aurora data", "error", err)
		} else {
			ds.Source = "cache"
			ds.FetchedAt = ts
			store.Set(ds)
			metrics.SetAuroraSampleCount(len(ds.Samples))
			logger.Info("loaded aurora data from cache",
				"samples", len(ds.Samples),
				"cached_at", ts.Format(time.RFC3339),
			)
		}
	}

	overlayCfg := loadOverlayConfig(logger)
	engine, err := overlay.NewEngine(overlayCfg, store, logger)
	if err != nil {
		logger.Error("invalid overlay configuration", "error", err)
		os.Exit(1)
	}

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(engine, streamCfg, logger)

	srv := api.NewServer(addr, logger, authCfg, engine, store, fetcher, cache, streamHandler, web.Content)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the overlay maintenance loop.
	go engine.Start(ctx)

	// Start the upstream poll loop.
	if auroraCfg.EnableFetch {
		go aurora.Poll(ctx, auroraCfg.PollInterval, fetcher, store, cache, logger)
	} else {
		logger.Info("aurora fetching disabled, serving cached data only")
	}

	// Background goroutine to update the dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				age := store.AgeSeconds()
				if age >= 0 {
					metrics.SetAuroraDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"aurora_fetch_enabled", auroraCfg.EnableFetch,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("GRAYLINE_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("GRAYLINE_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("GRAYLINE_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("GRAYLINE_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

type auroraConfig struct {
	EnableFetch  bool
	SourceURL    string
	CacheDir     string
	MaxFiles     int
	PollInterval time.Duration
}

func loadAuroraConfig(logger *slog.Logger) auroraConfig {
	cfg := auroraConfig{
		EnableFetch:  true,
		CacheDir:     "/tmp/grayline/aurora",
		MaxFiles:     5,
		PollInterval: 5 * time.Minute,
	}

	if v := os.Getenv("GRAYLINE_ENABLE_AURORA_FETCH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid GRAYLINE_ENABLE_AURORA_FETCH value, defaulting to true", "value", v)
		} else {
			cfg.EnableFetch = enabled
		}
	}

	if v := os.Getenv("GRAYLINE_AURORA_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("GRAYLINE_AURORA_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := os.Getenv("GRAYLINE_AURORA_POLL_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid GRAYLINE_AURORA_POLL_INTERVAL value, using default", "value", v, "default", 300)
		} else {
			cfg.PollInterval = time.Duration(n) * time.Second
		}
	}

	logger.Info("aurora config",
		"source_url", cfg.SourceURL,
		"cache_dir", cfg.CacheDir,
		"poll_interval_seconds", cfg.PollInterval.Seconds(),
	)

	return cfg
}

func loadOverlayConfig(logger *slog.Logger) overlay.Config {
	cfg := overlay.Config{
		GeometryInterval: 60 * time.Second,
		SampleCount:      360,
		Upscale:          4,
	}

	if v := os.Getenv("GRAYLINE_GEOMETRY_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid GRAYLINE_GEOMETRY_INTERVAL value, using default", "value", v, "default", 60)
		} else {
			cfg.GeometryInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("GRAYLINE_CURVE_SAMPLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid GRAYLINE_CURVE_SAMPLES value, using default", "value", v, "default", 360)
		} else {
			cfg.SampleCount = n
		}
	}

	if v := os.Getenv("GRAYLINE_RASTER_UPSCALE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid GRAYLINE_RASTER_UPSCALE value, using default", "value", v, "default", 4)
		} else {
			cfg.Upscale = n
		}
	}

	logger.Info("overlay config",
		"geometry_interval_seconds", cfg.GeometryInterval.Seconds(),
		"curve_samples", cfg.SampleCount,
		"raster_upscale", cfg.Upscale,
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		CheckInterval:      5 * time.Second,
		KeepaliveInterval:  30 * time.Second,
	}

	if v := os.Getenv("GRAYLINE_STREAM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid GRAYLINE_STREAM_MAX_CONCURRENT value, using default", "value", v, "default", 10)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("GRAYLINE_STREAM_KEEPALIVE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid GRAYLINE_STREAM_KEEPALIVE_INTERVAL value, using default", "value", v, "default", 30)
		} else {
			cfg.KeepaliveInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("GRAYLINE_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid GRAYLINE_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}
