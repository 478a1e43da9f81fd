package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/ledger-overview-bfa/internal/config"
	"github.com/boddenberg/ledger-overview-bfa/internal/domain"
	"github.com/boddenberg/ledger-overview-bfa/internal/handler"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/amqp"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/cache"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/client"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/resilience"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/sqlite"
	"github.com/boddenberg/ledger-overview-bfa/internal/infra/supabase"
	"github.com/boddenberg/ledger-overview-bfa/internal/port"
	"github.com/boddenberg/ledger-overview-bfa/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("ledger_backend", cfg.LedgerBackend),
		zap.String("overview_source", cfg.OverviewSource),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, observability.ServiceName)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Ledger backend ---
	var store port.LedgerStore
	switch cfg.LedgerBackend {
	case config.BackendSQLite:
		logger.Info("using SQLite as ledger backend", zap.String("db_path", cfg.SQLiteDBPath))
		db, err := sqlite.Open(cfg.SQLiteDBPath, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite ledger", zap.Error(err))
		}
		defer db.Close()
		store = db
	default:
		logger.Info("using Supabase as ledger backend", zap.String("supabase_url", cfg.SupabaseURL))
		store = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		)
	}

	// --- Cache ---
	var overviewCache port.Cache[*domain.OverviewResponse]
	if cfg.RedisURL != "" && cfg.CacheTTL > 0 {
		rc, err := cache.NewRedis[*domain.OverviewResponse](cfg.RedisURL, "ledger-overview:", cfg.CacheTTL, logger)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rc.Close()
		overviewCache = rc
		logger.Info("overview cache: redis")
	} else {
		mc := cache.New[*domain.OverviewResponse](cfg.CacheTTL)
		defer mc.Close()
		overviewCache = mc
		logger.Info("overview cache: in-memory", zap.Bool("enabled", cfg.CacheTTL > 0))
	}

	// --- Anomaly reporting ---
	reporters := service.MultiReporter{service.NewLogReporter(logger, metrics)}
	if cfg.AMQPURL != "" {
		pub, err := amqp.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
		if err != nil {
			// the ledger stays readable without the broker
			logger.Error("anomaly publisher unavailable", zap.Error(err))
		} else {
			defer pub.Close()
			reporters = append(reporters, pub)
			logger.Info("anomaly events enabled",
				zap.String("exchange", cfg.AMQPExchange),
				zap.String("routing_key", cfg.AMQPRoutingKey),
			)
		}
	}

	// --- Services ---
	analyticsSvc := service.NewAnalyticsService(store, overviewCache, reporters, metrics, logger)
	ledgerSvc := service.NewLedgerService(store, metrics, logger)
	authSvc := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTAccessTTL, logger)

	var provider port.OverviewProvider = analyticsSvc
	origin := config.SourceLocal
	if cfg.OverviewSource == config.SourceRemote {
		provider = client.NewOverviewClient(httpClient, cfg.RemoteAnalyticsURL, resilience.NewCircuitBreaker("analytics-overview"))
		origin = config.SourceRemote
		if cfg.RemoteAnalyticsURL == "" {
			logger.Warn("dashboard overview: REMOTE_ANALYTICS_URL not set, overview calls will fail")
		}
	}
	dashboardSvc := service.NewDashboardService(provider, origin, ledgerSvc, metrics, logger)
	simulationSvc := service.NewSimulationService(store, store, metrics, logger)

	var agent port.AssistantAgent
	if cfg.AssistantURL != "" {
		agent = client.NewAssistantClient(httpClient, cfg.AssistantURL, resilience.NewCircuitBreaker("assistant"), resilienceCfg)
		logger.Info("assistant enabled", zap.String("assistant_url", cfg.AssistantURL))
	}
	assistantSvc := service.NewAssistantService(store, agent, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Analytics:   analyticsSvc,
		Ledger:      ledgerSvc,
		Dashboard:   dashboardSvc,
		Auth:        authSvc,
		Assistant:   assistantSvc,
		Simulations: simulationSvc,
		Backend:     cfg.LedgerBackend,
		Store:       store,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}
