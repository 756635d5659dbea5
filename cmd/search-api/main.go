// Package main is the entry point for the search-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/placefinder/search-api/internal/audit"
	"github.com/placefinder/search-api/internal/config"
	"github.com/placefinder/search-api/internal/database"
	"github.com/placefinder/search-api/internal/dedup"
	"github.com/placefinder/search-api/internal/debugcapture"
	"github.com/placefinder/search-api/internal/events"
	"github.com/placefinder/search-api/internal/http/mw"
	"github.com/placefinder/search-api/internal/httpapi"
	"github.com/placefinder/search-api/internal/jobstore"
	"github.com/placefinder/search-api/internal/kv"
	"github.com/placefinder/search-api/internal/llm"
	"github.com/placefinder/search-api/internal/logging"
	"github.com/placefinder/search-api/internal/photoproxy"
	"github.com/placefinder/search-api/internal/pipeline"
	"github.com/placefinder/search-api/internal/provider"
	"github.com/placefinder/search-api/internal/version"
	"github.com/placefinder/search-api/internal/webhook"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting search-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// The audit log is the only durable SQL-backed record this service
	// keeps; everything else (jobs, cache) lives in the kv tiers.
	db, err := database.New(cfg.AuditDatabaseURL)
	if err != nil {
		logger.Error("failed to connect to audit database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()

	cacheStore := kv.NewTiered(kv.NewLRU(4096), kv.NewRedisStore(redisClient, "placefinder:"))

	jobs := jobstore.New(cacheStore, cfg.JobTTL)

	geocoder := provider.NewHTTPGeocoder(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	upstream := provider.NewHTTPUpstreamClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	gateway := provider.NewGateway(upstream, geocoder, cacheStore, provider.DefaultConfig())

	var model llm.LanguageModel
	if cfg.LLMBaseURL != "" && cfg.LLMAPIKey != "" {
		model = llm.NewHTTPLanguageModel(llm.Config{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
			Format:  llm.APIFormat(cfg.LLMAPIFormat),
			Timeout: cfg.LLMTimeout,
		})
	} else {
		logger.Warn("LLM_BASE_URL/LLM_API_KEY not set - pipeline will run with deterministic stage fallbacks only")
	}

	hub := events.NewHub()

	runnerCfg := pipeline.DefaultConfig()
	runnerCfg.HeartbeatInterval = cfg.HeartbeatInterval
	runnerCfg.StageTimeout = cfg.PipelineStageTimeout

	runner := pipeline.NewRunner(jobs, gateway, hub, model, runnerCfg, logger).
		WithWebhook(webhook.New(cfg.WebhookSigningSecret, logger))

	var logFilters *mw.LogFiltersLoader
	if cfg.StorageEnabled {
		storageCfg := debugcapture.Config{
			Enabled:       true,
			Endpoint:      cfg.StorageEndpoint,
			Region:        cfg.StorageRegion,
			Bucket:        cfg.StorageBucket,
			AccessKey:     cfg.StorageAccessKey,
			SecretKey:     cfg.StorageSecretKey,
			EncryptionKey: cfg.DebugCaptureKey(),
		}

		debugStore, err := debugcapture.New(storageCfg, logger)
		if err != nil {
			logger.Error("failed to initialize debug capture store", "error", err)
			os.Exit(1)
		}
		runner = runner.WithDebugCapture(debugArchiverAdapter{debugStore})

		if s3Client, err := debugcapture.NewS3Client(storageCfg); err != nil {
			logger.Warn("log filters disabled: failed to build S3 client", "error", err)
		} else {
			logFilters = mw.NewLogFiltersLoader(mw.LogFiltersConfig{
				S3Client: s3Client,
				Bucket:   cfg.StorageBucket,
				Logger:   logger,
			})
			logFilters.Start(context.Background())
		}
	}

	auditLogger := audit.New(db, logger)

	searchController := httpapi.NewSearchController(jobs, runner, dedup.DefaultThresholds(), "/api/v1/search", runnerCfg.PipelineVersion, logger)
	handler := httpapi.NewHandler(searchController, auditLogger, v.Version)

	photos := photoproxy.New(photoproxy.Config{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.ProviderTimeout,
	}, nil, logger)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Handler:     handler,
		Hub:         hub,
		Jobs:        jobs,
		Photos:      photos,
		CORSOrigins: cfg.CORSOrigins,
		RateLimits: mw.RateLimitConfig{
			SessionRequestsPerMinute: cfg.SessionRequestsPerMinute,
			IPRequestsPerMinute:      cfg.IPRequestsPerMinute,
		},
		Logger: logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		if logFilters != nil {
			logFilters.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// debugArchiverAdapter converts a *debugcapture.Store into pipeline.DebugArchiver:
// the two Archive shapes are field-compatible but Go has no structural
// subtyping for concrete struct parameters, only for interfaces, so a thin
// conversion lives here rather than in either package.
type debugArchiverAdapter struct {
	store *debugcapture.Store
}

func (a debugArchiverAdapter) IsEnabled() bool {
	return a.store.IsEnabled()
}

func (a debugArchiverAdapter) Put(ctx context.Context, archive pipeline.DebugArchive) error {
	return a.store.Put(ctx, debugcapture.Archive{
		RequestID:      archive.RequestID,
		ProviderRaw:    archive.ProviderRaw,
		StageTimingsMs: archive.StageTimingsMs,
	})
}
