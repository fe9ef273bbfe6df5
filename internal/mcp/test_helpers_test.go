package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"market-echo/internal/domain"
	"market-echo/internal/trend"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/shopspring/decimal"
)

type stubAnalyzer struct {
	result  *domain.AnalysisResult
	similar []domain.SimilarTransaction
	err     error

	lastRequest domain.AnalysisRequest
	lastK       int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	s.lastRequest = req
	if s.err != nil {
		return nil, s.err
	}
	out := *s.result
	out.Symbol = req.Symbol
	return &out, nil
}

func (s *stubAnalyzer) FindSimilar(ctx context.Context, symbol string, k int) ([]string, []domain.SimilarTransaction, error) {
	s.lastK = k
	if s.err != nil {
		return nil, nil, s.err
	}
	return []string{"Apple unveils new chip"}, s.similar, nil
}

func (s *stubAnalyzer) Defaults() domain.AnalysisRequest {
	return domain.AnalysisRequest{Limit: 5, VolatilityThreshold: 0.05, TrendThreshold: 1}
}

type stubMarket struct {
	headlines []domain.Headline
	price     float64
	err       error
}

func (s *stubMarket) News(ctx context.Context, symbol string) ([]domain.Headline, error) {
	return s.headlines, s.err
}

func (s *stubMarket) Price(ctx context.Context, symbol string) (float64, error) {
	return s.price, s.err
}

func testServer() (*sdkmcp.Server, *stubAnalyzer, *stubMarket) {
	similar := []domain.SimilarTransaction{{
		Transaction: domain.Transaction{
			ID:        "tx-1",
			Symbol:    "AAPL",
			Price:     decimal.NewFromInt(120),
			Side:      domain.SideBuy,
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		SimilarityScore: 0.93,
		ProfitLoss:      domain.Profit,
	}}
	analyzer := &stubAnalyzer{
		similar: similar,
		result: &domain.AnalysisResult{
			CurrentNews:         []string{"Apple unveils new chip"},
			CurrentPrice:        130,
			SimilarTransactions: similar,
			TrendAnalysis: domain.TrendAnalysis{
				PriceChange:           10,
				PriceChangePercentage: 8.33,
				TrendDirection:        domain.TrendUp,
				RiskLevel:             domain.RiskLow,
				Recommendation:        trend.RecommendBuy,
			},
			Validation:  &domain.ValidatedVerdict{Agreement: true, Reasoning: "ok", ConfidenceScore: 75, KeyFactors: []string{"earnings"}, Summary: "agree"},
			GeneratedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	market := &stubMarket{
		headlines: []domain.Headline{{Title: "Apple unveils new chip", Publisher: "Reuters", PublishedAt: time.Unix(0, 0)}},
		price:     130,
	}

	srv := NewServer(nil, analyzer, market, ServerConfig{RequestTimeout: time.Second})
	return srv, analyzer, market
}

func connectInMemory(ctx context.Context, srv *sdkmcp.Server) (*sdkmcp.ClientSession, context.CancelFunc, error) {
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = srv.Run(runCtx, serverTransport) }()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "mcp-test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return session, cancel, nil
}

type authRoundTripper struct {
	token string
	base  http.RoundTripper
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.token != "" {
		clone.Header.Set("Authorization", "Bearer "+t.token)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

func decodeResourceJSON(result *sdkmcp.ReadResourceResult, out any) error {
	if len(result.Contents) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(result.Contents[0].Text), out)
}
