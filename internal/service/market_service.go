package service

import (
	"context"
	"fmt"

	"market-echo/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MarketService backs the read-only news and price lookups exposed next to
// the analysis endpoint.
type MarketService struct {
	tracer    trace.Tracer
	news      NewsProvider
	prices    PriceProvider
	newsCount int
	timeouts  Timeouts
}

func NewMarketService(tracer trace.Tracer, news NewsProvider, prices PriceProvider, newsCount int, timeouts Timeouts) *MarketService {
	if newsCount <= 0 {
		newsCount = domain.DefaultHeadlines
	}
	return &MarketService{
		tracer:    tracer,
		news:      news,
		prices:    prices,
		newsCount: newsCount,
		timeouts:  timeouts,
	}
}

func (s *MarketService) News(ctx context.Context, symbol string) ([]domain.Headline, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.news")
	defer span.End()

	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	span.SetAttributes(attribute.String("symbol", symbol))

	ctx, cancel := withOptionalTimeout(ctx, s.timeouts.News)
	defer cancel()
	headlines, err := s.news.Search(ctx, symbol, s.newsCount)
	if err != nil {
		return nil, classifyTimeout(ctx, err)
	}
	if headlines == nil {
		headlines = []domain.Headline{}
	}
	return headlines, nil
}

func (s *MarketService) Price(ctx context.Context, symbol string) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.price")
	defer span.End()

	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return 0, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	span.SetAttributes(attribute.String("symbol", symbol))

	ctx, cancel := withOptionalTimeout(ctx, s.timeouts.Price)
	defer cancel()
	price, err := s.prices.CurrentPrice(ctx, symbol)
	if err != nil {
		return 0, classifyTimeout(ctx, err)
	}
	return price, nil
}
