package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"market-echo/internal/app"
	"market-echo/internal/cache"
	"market-echo/internal/config"
	"market-echo/internal/db"
	"market-echo/internal/logging"
	mcpserver "market-echo/internal/mcp"
	"market-echo/internal/service"
	"market-echo/pkg/tracing"

	"github.com/joho/godotenv"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

const defaultMCPHTTPMaxBodyBytes int64 = 1 << 20 // 1MiB

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	setupLoggingFunc = logging.Setup
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	newStoreFunc     = app.NewStore
	newNewsProvider  = app.NewNewsProvider
	newPriceProvider = app.NewPriceProvider
	newEmbedderFunc  = app.NewEmbedder
	newValidatorFunc = app.NewValidator
	newMCPServerFunc = mcpserver.NewServer
	newMCPHandler    = mcpserver.NewHTTPTransportHandler
	runStdioFunc     = func(ctx context.Context, server *sdkmcp.Server) error {
		return server.Run(ctx, &sdkmcp.StdioTransport{})
	}
	startHTTPServerFunc  = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFn = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	setupSignalNotify    = ossignal.Notify
	waitForSignalFunc    = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	loadEnvFunc()
	cfg := loadConfigFunc()
	// stdout carries the stdio transport, so logs always go to stderr.
	setupLoggingFunc(cfg.LogLevel, cfg.LogFormat)
	cfg.LogNotices()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	store, err := newStoreFunc(ctx, tracer, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare transaction store")
	}
	news := newNewsProvider(tracer, cfg)
	prices := newPriceProvider(tracer)
	analysisService := service.NewAnalysisService(
		tracer, news, prices, newEmbedderFunc(tracer, cfg), store, newValidatorFunc(tracer, cfg),
		app.AnalysisOptions(cfg, nil),
	)
	marketService := service.NewMarketService(tracer, news, prices, cfg.NewsCount, app.Timeouts(cfg))

	mcpSrv := newMCPServerFunc(tracer, analysisService, marketService, mcpserver.ServerConfig{
		RequestTimeout: config.Timeout(cfg.MCPRequestTimeoutSecs),
	})

	if err := serve(ctx, cancel, cfg, mcpSrv); err != nil {
		log.Fatal().Err(err).Str("transport", cfg.MCPTransport).Msg("mcp server failed")
	}
}

// serve runs the server on the transport named by MCP_TRANSPORT until the
// transport ends or a shutdown signal arrives.
func serve(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, mcpSrv *sdkmcp.Server) error {
	switch strings.ToLower(strings.TrimSpace(cfg.MCPTransport)) {
	case "", "stdio":
		return runStdioFunc(ctx, mcpSrv)
	case "http":
		return runHTTPMode(ctx, cancel, cfg, mcpSrv)
	default:
		return fmt.Errorf("unsupported MCP_TRANSPORT %q", cfg.MCPTransport)
	}
}

func runHTTPMode(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, mcpSrv *sdkmcp.Server) error {
	if !cfg.MCPHTTPEnabled {
		return fmt.Errorf("MCP_HTTP_ENABLED must be true when MCP_TRANSPORT=http")
	}
	if strings.TrimSpace(cfg.MCPAuthToken) == "" {
		return fmt.Errorf("MCP_AUTH_TOKEN is required when MCP_TRANSPORT=http")
	}

	handler := newMCPHandler(mcpSrv, mcpserver.HTTPHandlerConfig{
		AuthToken:       cfg.MCPAuthToken,
		RateLimitPerMin: cfg.MCPRateLimitPerMin,
		MaxBodyBytes:    defaultMCPHTTPMaxBodyBytes,
	})

	addr := net.JoinHostPort(cfg.MCPHTTPBind, fmt.Sprintf("%d", cfg.MCPHTTPPort))
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("mcp http server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("MCP HTTP transport started")

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFn(srv, shutdownCtx); err != nil {
		return fmt.Errorf("mcp server forced to shutdown: %w", err)
	}
	return nil
}
