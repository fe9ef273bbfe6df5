package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"market-echo/internal/domain"
	"market-echo/internal/trend"
)

type stubAnalyzer struct {
	last domain.AnalysisRequest
	err  error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &domain.AnalysisResult{
		Symbol:       req.Symbol,
		CurrentPrice: 130,
		TrendAnalysis: domain.TrendAnalysis{
			TrendDirection: domain.TrendUp,
			RiskLevel:      domain.RiskLow,
			Recommendation: trend.RecommendBuy,
		},
	}, nil
}

func (s *stubAnalyzer) Defaults() domain.AnalysisRequest {
	return domain.AnalysisRequest{Limit: 5, VolatilityThreshold: 0.05, TrendThreshold: 1}
}

type stubMarket struct{}

func (stubMarket) News(ctx context.Context, symbol string) ([]domain.Headline, error) {
	return []domain.Headline{{Title: "Apple beats earnings", Publisher: "Reuters"}}, nil
}

func (stubMarket) Price(ctx context.Context, symbol string) (float64, error) {
	return 187.5, nil
}

func stubServices(t *testing.T, a *stubAnalyzer) {
	t.Helper()
	orig := buildServicesFunc
	buildServicesFunc = func(context.Context) (*services, func(), error) {
		return &services{analysis: a, market: stubMarket{}}, func() {}, nil
	}
	t.Cleanup(func() { buildServicesFunc = orig })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	a := &stubAnalyzer{}
	stubServices(t, a)

	out, err := execute(t, "analyze", "aapl", "--limit", "10", "--trend-threshold", "2.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.last.Symbol != "AAPL" || a.last.Limit != 10 || a.last.TrendThreshold != 2.5 || a.last.VolatilityThreshold != 0.05 {
		t.Fatalf("unexpected request %+v", a.last)
	}
	if !strings.Contains(out, trend.RecommendBuy) || !strings.Contains(out, "$130.00") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestAnalyzeCommandJSON(t *testing.T) {
	stubServices(t, &stubAnalyzer{})

	out, err := execute(t, "analyze", "MSFT", "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if result.Symbol != "MSFT" {
		t.Fatalf("unexpected symbol %q", result.Symbol)
	}
}

func TestAnalyzeCommandRejectsBadThreshold(t *testing.T) {
	a := &stubAnalyzer{}
	stubServices(t, a)

	if _, err := execute(t, "analyze", "AAPL", "--volatility-threshold", "-1"); err == nil {
		t.Fatal("expected error for negative threshold")
	}
	if a.last.Symbol != "" {
		t.Fatal("analysis should not run with invalid flags")
	}
}

func TestAnalyzeCommandPropagatesError(t *testing.T) {
	stubServices(t, &stubAnalyzer{err: &domain.AnalysisError{Kind: domain.KindPriceUnavailable, Stage: domain.StagePriceLookup, Err: domain.ErrPriceNotFound}})

	if _, err := execute(t, "analyze", "ZZZZ"); err == nil {
		t.Fatal("expected analysis error")
	}
}

func TestNewsAndPriceCommands(t *testing.T) {
	stubServices(t, &stubAnalyzer{})

	out, err := execute(t, "news", "aapl")
	if err != nil {
		t.Fatalf("news: %v", err)
	}
	if !strings.Contains(out, "AAPL news") || !strings.Contains(out, "Apple beats earnings") {
		t.Fatalf("unexpected news output:\n%s", out)
	}

	out, err = execute(t, "price", "aapl")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !strings.Contains(out, "$187.50") {
		t.Fatalf("unexpected price output:\n%s", out)
	}
}

func TestAnalyzeRequiresSymbol(t *testing.T) {
	stubServices(t, &stubAnalyzer{})
	if _, err := execute(t, "analyze"); err == nil {
		t.Fatal("expected argument error")
	}
}
