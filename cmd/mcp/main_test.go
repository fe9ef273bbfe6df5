package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"market-echo/internal/config"
	"market-echo/internal/domain"
	mcpserver "market-echo/internal/mcp"
	"market-echo/internal/service"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// swap replaces *target with v for the duration of the test.
func swap[T any](t *testing.T, target *T, v T) {
	t.Helper()
	orig := *target
	*target = v
	t.Cleanup(func() { *target = orig })
}

type builtServer struct {
	analyzer mcpserver.Analyzer
	market   mcpserver.MarketReader
	cfg      mcpserver.ServerConfig
}

func stubBootstrap(t *testing.T, transport string) *builtServer {
	t.Helper()

	swap(t, &loadEnvFunc, func(...string) error { return nil })
	swap(t, &loadConfigFunc, func() *config.Config {
		return &config.Config{
			MCPTransport:          transport,
			MCPHTTPEnabled:        true,
			MCPHTTPBind:           "127.0.0.1",
			MCPHTTPPort:           8090,
			MCPAuthToken:          "secret",
			MCPRequestTimeoutSecs: 7,
			MCPRateLimitPerMin:    60,
			EmbeddingDimensions:   3,
		}
	})
	swap(t, &setupLoggingFunc, func(string, string) {})
	swap(t, &initPostgresFunc, func(context.Context) {})
	swap(t, &initRedisFunc, func(context.Context) {})
	swap(t, &initTracerFunc, func(context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("mcp-test"), nil
	})
	swap(t, &newNewsProvider, func(trace.Tracer, *config.Config) service.NewsProvider { return quietNews{} })
	swap(t, &newPriceProvider, func(trace.Tracer) service.PriceProvider { return missingPrices{} })
	swap(t, &newEmbedderFunc, func(trace.Tracer, *config.Config) service.Embedder { return nil })

	built := &builtServer{}
	swap(t, &newMCPServerFunc, func(_ trace.Tracer, a mcpserver.Analyzer, m mcpserver.MarketReader, cfg mcpserver.ServerConfig) *sdkmcp.Server {
		built.analyzer, built.market, built.cfg = a, m, cfg
		return sdkmcp.NewServer(&sdkmcp.Implementation{Name: "market-echo-test"}, nil)
	})
	swap(t, &newMCPHandler, func(*sdkmcp.Server, mcpserver.HTTPHandlerConfig) http.Handler {
		return http.NotFoundHandler()
	})
	return built
}

func TestMainRunsStdioByDefault(t *testing.T) {
	built := stubBootstrap(t, "")

	var ran bool
	swap(t, &runStdioFunc, func(context.Context, *sdkmcp.Server) error {
		ran = true
		return nil
	})

	main()

	if !ran {
		t.Fatal("stdio transport was not started")
	}
	if built.analyzer == nil || built.market == nil {
		t.Fatal("server built without analysis or market service")
	}
	if built.cfg.RequestTimeout != 7*time.Second {
		t.Fatalf("request timeout = %v, want 7s", built.cfg.RequestTimeout)
	}
}

func TestMainServesHTTPUntilSignal(t *testing.T) {
	stubBootstrap(t, "HTTP")

	started := make(chan struct{})
	var gotAddr string
	var hadDeadline bool
	swap(t, &startHTTPServerFunc, func(srv *http.Server) error {
		gotAddr = srv.Addr
		close(started)
		return http.ErrServerClosed
	})
	swap(t, &setupSignalNotify, func(chan<- os.Signal, ...os.Signal) {})
	swap(t, &waitForSignalFunc, func(<-chan os.Signal) { <-started })
	swap(t, &shutdownHTTPServerFn, func(_ *http.Server, ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	})

	main()

	if gotAddr != "127.0.0.1:8090" {
		t.Fatalf("listen addr = %q", gotAddr)
	}
	if !hadDeadline {
		t.Fatal("shutdown context carried no deadline")
	}
}

func TestServeRejectsMisconfiguration(t *testing.T) {
	srv := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "market-echo-test"}, nil)

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "unknown transport",
			cfg:  config.Config{MCPTransport: "websocket"},
			want: `unsupported MCP_TRANSPORT "websocket"`,
		},
		{
			name: "http disabled",
			cfg:  config.Config{MCPTransport: "http", MCPAuthToken: "secret"},
			want: "MCP_HTTP_ENABLED must be true",
		},
		{
			name: "http without token",
			cfg:  config.Config{MCPTransport: "http", MCPHTTPEnabled: true, MCPAuthToken: "  "},
			want: "MCP_AUTH_TOKEN is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg := tt.cfg
			err := serve(ctx, cancel, &cfg, srv)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("serve error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestServeReportsShutdownFailure(t *testing.T) {
	stubBootstrap(t, "http")
	swap(t, &startHTTPServerFunc, func(*http.Server) error { return http.ErrServerClosed })
	swap(t, &setupSignalNotify, func(chan<- os.Signal, ...os.Signal) {})
	swap(t, &waitForSignalFunc, func(<-chan os.Signal) {})
	swap(t, &shutdownHTTPServerFn, func(*http.Server, context.Context) error {
		return errors.New("listener stuck")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := loadConfigFunc()

	err := serve(ctx, cancel, cfg, sdkmcp.NewServer(&sdkmcp.Implementation{Name: "market-echo-test"}, nil))
	if err == nil || !strings.Contains(err.Error(), "listener stuck") {
		t.Fatalf("serve error = %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("root context should be cancelled on shutdown")
	}
}

type quietNews struct{}

func (quietNews) Search(context.Context, string, int) ([]domain.Headline, error) {
	return nil, nil
}

type missingPrices struct{}

func (missingPrices) CurrentPrice(context.Context, string) (float64, error) {
	return 0, domain.ErrPriceNotFound
}
