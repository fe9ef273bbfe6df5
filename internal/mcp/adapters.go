package mcp

import (
	"context"

	"market-echo/internal/domain"
)

// Analyzer exposes the analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error)
	FindSimilar(ctx context.Context, symbol string, k int) ([]string, []domain.SimilarTransaction, error)
	Defaults() domain.AnalysisRequest
}

// MarketReader exposes current news and price lookups.
type MarketReader interface {
	News(ctx context.Context, symbol string) ([]domain.Headline, error)
	Price(ctx context.Context, symbol string) (float64, error)
}
