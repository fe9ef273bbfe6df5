package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"market-echo/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

const searchBody = `{"news":[
 {"title":"Apple beats","link":"https://x/1","publisher":"Wire","providerPublishTime":1700000000},
 {"title":"","link":"https://x/2"},
 {"title":"iPhone sales up","link":"https://x/3","publisher":"Wire","providerPublishTime":1700000100},
 {"title":"Third","link":"https://x/4"}
]}`

func TestYahooNewsSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/finance/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "AAPL" || r.URL.Query().Get("newsCount") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	p := NewYahooNewsProvider(testTracer, YahooNewsOptions{BaseURL: srv.URL})
	got, err := p.Search(context.Background(), "AAPL", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Apple beats" || got[1].Title != "iPhone sales up" {
		t.Fatalf("unexpected headlines %+v", got)
	}
	if got[0].PublishedAt.Unix() != 1700000000 {
		t.Fatalf("unexpected publish time %v", got[0].PublishedAt)
	}
}

func TestYahooNewsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	p := NewYahooNewsProvider(testTracer, YahooNewsOptions{BaseURL: srv.URL})
	got, err := p.Search(context.Background(), "AAPL", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected retry to succeed, got %d headlines after %d calls", len(got), calls)
	}
}

func TestYahooNewsClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewYahooNewsProvider(testTracer, YahooNewsOptions{BaseURL: srv.URL})
	_, err := p.Search(context.Background(), "NOPE", 5)
	if !errors.Is(err, domain.ErrNewsUnavailable) {
		t.Fatalf("expected news unavailable, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestYahooQuoteCurrentPrice(t *testing.T) {
	p := NewYahooQuoteProvider(testTracer)
	p.fetch = func(symbol string) (float64, error) {
		if symbol != "AAPL" {
			return 0, errors.New("unknown")
		}
		return 189.5, nil
	}

	price, err := p.CurrentPrice(context.Background(), "AAPL")
	if err != nil || price != 189.5 {
		t.Fatalf("expected 189.5, got %v err=%v", price, err)
	}
	if _, err := p.CurrentPrice(context.Background(), "ZZZ"); !errors.Is(err, domain.ErrPriceNotFound) {
		t.Fatalf("expected price not found, got %v", err)
	}

	p.fetch = func(string) (float64, error) { return 0, nil }
	if _, err := p.CurrentPrice(context.Background(), "AAPL"); !errors.Is(err, domain.ErrPriceNotFound) {
		t.Fatalf("expected zero price to be not found, got %v", err)
	}
}

func TestYahooQuoteTimeout(t *testing.T) {
	p := NewYahooQuoteProvider(testTracer)
	release := make(chan struct{})
	defer close(release)
	p.fetch = func(string) (float64, error) {
		<-release
		return 1, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.CurrentPrice(ctx, "AAPL")
	if !errors.Is(err, domain.ErrPriceNotFound) || !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Fatalf("expected timeout classified as price not found, got %v", err)
	}
}

type stubSearcher struct {
	calls     int
	headlines []domain.Headline
	err       error
}

func (s *stubSearcher) Search(ctx context.Context, symbol string, n int) ([]domain.Headline, error) {
	s.calls++
	return s.headlines, s.err
}

func TestCachedNewsProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &stubSearcher{headlines: []domain.Headline{{Title: "cached"}}}
	p := NewCachedNewsProvider(testTracer, next, client, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := p.Search(context.Background(), "AAPL", 5)
		if err != nil || len(got) != 1 || got[0].Title != "cached" {
			t.Fatalf("unexpected result %+v err=%v", got, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := p.Search(context.Background(), "AAPL", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("expected expiry to refetch, got %d calls", next.calls)
	}
}

func TestCachedNewsProviderSkipsEmptyAndErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &stubSearcher{}
	p := NewCachedNewsProvider(testTracer, next, client, time.Minute)
	_, _ = p.Search(context.Background(), "AAPL", 5)
	_, _ = p.Search(context.Background(), "AAPL", 5)
	if next.calls != 2 {
		t.Fatalf("empty results should not be cached, got %d calls", next.calls)
	}

	next.err = domain.ErrNewsUnavailable
	if _, err := p.Search(context.Background(), "MSFT", 5); !errors.Is(err, domain.ErrNewsUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestCachedNewsProviderWithoutRedis(t *testing.T) {
	next := &stubSearcher{headlines: []domain.Headline{{Title: "x"}}}
	p := NewCachedNewsProvider(testTracer, next, nil, time.Minute)
	_, _ = p.Search(context.Background(), "AAPL", 5)
	_, _ = p.Search(context.Background(), "AAPL", 5)
	if next.calls != 2 {
		t.Fatalf("expected passthrough, got %d calls", next.calls)
	}
}
