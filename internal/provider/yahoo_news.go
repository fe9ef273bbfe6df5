package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"market-echo/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const DefaultYahooSearchURL = "https://query1.finance.yahoo.com"

type yahooSearchResponse struct {
	News []struct {
		Title               string `json:"title"`
		Link                string `json:"link"`
		Publisher           string `json:"publisher"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}

type YahooNewsOptions struct {
	BaseURL        string
	RequestsPerSec int
	MaxRetries     uint64
}

// YahooNewsProvider searches Yahoo Finance for recent headlines.
type YahooNewsProvider struct {
	tracer     trace.Tracer
	client     *resty.Client
	limiter    *rate.Limiter
	maxRetries uint64
	logger     zerolog.Logger
}

func NewYahooNewsProvider(tracer trace.Tracer, opts YahooNewsOptions) *YahooNewsProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultYahooSearchURL
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 5
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(15 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; market-echo/1.0)")

	return &YahooNewsProvider{
		tracer:     tracer,
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsPerSec),
		maxRetries: opts.MaxRetries,
		logger:     log.With().Str("component", "yahoo_news").Logger(),
	}
}

// Search returns up to n headlines, most relevant first. Transient failures
// are retried with exponential backoff bounded by ctx.
func (p *YahooNewsProvider) Search(ctx context.Context, symbol string, n int) ([]domain.Headline, error) {
	ctx, span := p.tracer.Start(ctx, "yahoo-news.search")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("count", n))

	if n <= 0 {
		n = domain.DefaultHeadlines
	}

	var parsed yahooSearchResponse
	operation := func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":           symbol,
				"newsCount":   strconv.Itoa(n),
				"quotesCount": "0",
			}).
			Get("/v1/finance/search")
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		switch {
		case resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500:
			return fmt.Errorf("yahoo search status %d", resp.StatusCode())
		case resp.StatusCode() != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("yahoo search status %d", resp.StatusCode()))
		}
		if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode yahoo search: %w", err))
		}
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 200 * time.Millisecond
	strategy.MaxElapsedTime = 10 * time.Second
	notify := func(err error, wait time.Duration) {
		p.logger.Warn().Err(err).Str("symbol", symbol).Dur("retry_in", wait).Msg("news search failed, retrying")
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(strategy, p.maxRetries), ctx), notify); err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", domain.ErrNewsUnavailable, domain.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrNewsUnavailable, err)
	}

	out := make([]domain.Headline, 0, len(parsed.News))
	for _, item := range parsed.News {
		if item.Title == "" {
			continue
		}
		h := domain.Headline{Title: item.Title, Link: item.Link, Publisher: item.Publisher}
		if item.ProviderPublishTime > 0 {
			h.PublishedAt = time.Unix(item.ProviderPublishTime, 0).UTC()
		}
		out = append(out, h)
		if len(out) == n {
			break
		}
	}
	span.SetAttributes(attribute.Int("headlines", len(out)))
	return out, nil
}
