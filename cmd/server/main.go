package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"market-echo/internal/app"
	"market-echo/internal/bot"
	"market-echo/internal/cache"
	"market-echo/internal/config"
	"market-echo/internal/db"
	"market-echo/internal/handler"
	"market-echo/internal/job"
	"market-echo/internal/logging"
	"market-echo/internal/metrics"
	"market-echo/internal/service"
	"market-echo/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "market-echo/docs"
)

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	setupLoggingFunc  = logging.Setup
	initPostgresFunc  = db.InitPostgres
	initRedisFunc     = cache.InitRedis
	initTracerFunc    = tracing.InitTracer
	newStoreFunc      = app.NewStore
	newNewsProvider   = app.NewNewsProvider
	newPriceProvider  = app.NewPriceProvider
	newEmbedderFunc   = app.NewEmbedder
	newValidatorFunc  = app.NewValidator
	newAnalysisFunc   = service.NewAnalysisService
	newMarketFunc     = service.NewMarketService
	newTransactionFn  = service.NewTransactionService
	newBackfillJobFn  = job.NewEmbeddingBackfill
	startBackfillFunc = func(j *job.EmbeddingBackfill, ctx context.Context) { go j.Start(ctx) }
	newPollerFunc     = job.NewAnalysisPoller
	startPollerFunc   = func(p *job.AnalysisPoller, ctx context.Context) { go p.Start(ctx) }
	startTelegramFunc = bot.StartTelegramBot
	newHandlerFunc    = handler.New
	newRouterFunc     = gin.Default
	setupSignalNotify = ossignal.Notify
	waitForSignalFunc = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFn = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPFunc  = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Market Echo API
// @version         1.0
// @description     Compares current market news against past transactions to produce a validated trading recommendation.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()
	setupLoggingFunc(cfg.LogLevel, cfg.LogFormat)
	cfg.LogNotices()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store, err := newStoreFunc(ctx, tracer, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare transaction store")
	}

	// Providers and clients
	news := newNewsProvider(tracer, cfg)
	prices := newPriceProvider(tracer)
	embedder := newEmbedderFunc(tracer, cfg)
	recValidator := newValidatorFunc(tracer, cfg)

	timeouts := app.Timeouts(cfg)
	analysisService := newAnalysisFunc(tracer, news, prices, embedder, store, recValidator, app.AnalysisOptions(cfg, m))
	marketService := newMarketFunc(tracer, news, prices, cfg.NewsCount, timeouts)
	transactionService := newTransactionFn(tracer, store, news, prices, embedder, m, timeouts)

	// Background jobs (stopped by ctx cancel)
	backfill := newBackfillJobFn(tracer, transactionService, cfg.BackfillBatchSize, cfg.BackfillPollSecs)
	startBackfillFunc(backfill, ctx)

	dispatcher := startTelegramFunc(cfg.TelegramBotToken, analysisService, marketService)
	var notifier job.AnalysisNotifier
	if dispatcher != nil {
		notifier = dispatcher
	}
	poller := newPollerFunc(tracer, analysisService, notifier, cfg.Watchlist, cfg.AnalysisPollSecs)
	startPollerFunc(poller, ctx)

	// Handlers and routes
	h := newHandlerFunc(tracer, analysisService, marketService, transactionService, m.Handler())

	r := newRouterFunc()
	r.Use(otelgin.Middleware("market-echo"))
	r.Use(handler.CORS())

	h.RegisterRoutes(r, handler.RateLimit(cfg.APIRateLimitPerMin))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFn(srv); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server started")

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPFunc(srv, shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	db.Close()

	log.Info().Msg("Server exiting")
}
