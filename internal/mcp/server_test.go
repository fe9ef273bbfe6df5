package mcp

import (
	"context"
	"testing"
	"time"

	"market-echo/internal/domain"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingMiddlewareMarksToolErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	_, analyzer, market := testServer()
	analyzer.err = &domain.AnalysisError{Kind: domain.KindNewsUnavailable, Stage: domain.StageNews, Err: domain.ErrNewsUnavailable}
	srv := NewServer(tp.Tracer("test"), analyzer, market, ServerConfig{RequestTimeout: time.Second})

	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	if _, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "price_get", Arguments: map[string]any{"symbol": "AAPL"}}); err != nil {
		t.Fatalf("price_get failed: %v", err)
	}
	if _, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "analysis_run", Arguments: map[string]any{"symbol": "AAPL"}}); err != nil {
		t.Fatalf("analysis_run protocol error: %v", err)
	}

	statuses := map[string]codes.Code{}
	for _, span := range recorder.Ended() {
		statuses[span.Name()] = span.Status().Code
	}
	if got, ok := statuses["mcp.tool.price_get"]; !ok || got == codes.Error {
		t.Fatalf("expected successful price_get span, got %v (present=%v)", got, ok)
	}
	if got := statuses["mcp.tool.analysis_run"]; got != codes.Error {
		t.Fatalf("expected analysis_run span marked as error, got %v", got)
	}
}

func TestDescribeRequest(t *testing.T) {
	name, attrs := describeRequest("tools/list", nil)
	if name != "mcp.tools.list" || len(attrs) != 1 {
		t.Fatalf("unexpected description %q %v", name, attrs)
	}

	name, _ = describeRequest("resources/read", &sdkmcp.ReadResourceRequest{Params: &sdkmcp.ReadResourceParams{URI: "analysis://defaults"}})
	if name != "mcp.resource.read" {
		t.Fatalf("unexpected span name %q", name)
	}
}

func TestTimeoutMiddlewarePassthrough(t *testing.T) {
	called := false
	next := func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
		called = true
		if _, ok := ctx.Deadline(); ok {
			t.Fatal("expected no deadline when timeout is disabled")
		}
		return nil, nil
	}
	if _, err := timeoutMiddleware(0)(next)(context.Background(), "ping", nil); err != nil || !called {
		t.Fatalf("expected passthrough, called=%v err=%v", called, err)
	}

	withDeadline := func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatal("expected deadline")
		}
		return nil, nil
	}
	if _, err := timeoutMiddleware(time.Second)(withDeadline)(context.Background(), "ping", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
