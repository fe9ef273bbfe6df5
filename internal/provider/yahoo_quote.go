package provider

import (
	"context"
	"fmt"
	"math"

	"market-echo/internal/domain"

	"github.com/piquette/finance-go/quote"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// quoteFetcher returns the regular market price for symbol.
type quoteFetcher func(symbol string) (float64, error)

func financeGoQuote(symbol string) (float64, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return 0, err
	}
	if q == nil {
		return 0, domain.ErrPriceNotFound
	}
	return q.RegularMarketPrice, nil
}

// YahooQuoteProvider looks up the current price through finance-go.
type YahooQuoteProvider struct {
	tracer trace.Tracer
	fetch  quoteFetcher
	logger zerolog.Logger
}

func NewYahooQuoteProvider(tracer trace.Tracer) *YahooQuoteProvider {
	return &YahooQuoteProvider{
		tracer: tracer,
		fetch:  financeGoQuote,
		logger: log.With().Str("component", "yahoo_quote").Logger(),
	}
}

// CurrentPrice fails with ErrPriceNotFound for unknown symbols or a
// non-positive price. finance-go takes no context, so the lookup runs in a
// goroutine and is abandoned when ctx ends.
func (p *YahooQuoteProvider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, span := p.tracer.Start(ctx, "yahoo-quote.current-price")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	type result struct {
		price float64
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		price, err := p.fetch(symbol)
		ch <- result{price: price, err: err}
	}()

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		return 0, fmt.Errorf("%w: %w", domain.ErrPriceNotFound, domain.ErrUpstreamTimeout)
	case r := <-ch:
		if r.err != nil {
			span.RecordError(r.err)
			p.logger.Debug().Err(r.err).Str("symbol", symbol).Msg("quote lookup failed")
			return 0, fmt.Errorf("%w: %v", domain.ErrPriceNotFound, r.err)
		}
		if math.IsNaN(r.price) || r.price <= 0 {
			return 0, fmt.Errorf("%w: no market price for %s", domain.ErrPriceNotFound, symbol)
		}
		span.SetAttributes(attribute.Float64("price", r.price))
		return r.price, nil
	}
}
