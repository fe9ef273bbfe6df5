// Package app builds the providers, stores and services shared by the
// server and MCP binaries from a loaded config.
package app

import (
	"context"

	"market-echo/internal/cache"
	"market-echo/internal/config"
	"market-echo/internal/db"
	"market-echo/internal/embedding"
	"market-echo/internal/metrics"
	"market-echo/internal/provider"
	"market-echo/internal/repository"
	"market-echo/internal/service"
	"market-echo/internal/similarity"
	"market-echo/internal/trend"
	"market-echo/internal/validator"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// TransactionStore is satisfied by both the pgvector repository and the
// in-memory fallback.
type TransactionStore interface {
	service.SimilarityStore
	service.TransactionStore
}

// NewStore uses pgvector when Postgres is connected and an in-memory store
// otherwise. Migrations run before the repository is returned.
func NewStore(ctx context.Context, tracer trace.Tracer, cfg *config.Config) (TransactionStore, error) {
	if db.Pool == nil {
		log.Warn().Msg("using in-memory transaction store")
		return similarity.NewMemoryStore(tracer), nil
	}
	repo := repository.NewTransactionRepository(db.Pool, tracer, cfg.EmbeddingDimensions)
	if err := repo.RunMigrations(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// NewNewsProvider searches Yahoo Finance through the Redis headline cache.
// A nil cache.Client disables caching.
func NewNewsProvider(tracer trace.Tracer, cfg *config.Config) service.NewsProvider {
	yahoo := provider.NewYahooNewsProvider(tracer, provider.YahooNewsOptions{BaseURL: cfg.YahooSearchURL})
	return provider.NewCachedNewsProvider(tracer, yahoo, cache.Client, config.Timeout(cfg.NewsCacheTTLSecs))
}

func NewPriceProvider(tracer trace.Tracer) service.PriceProvider {
	return provider.NewYahooQuoteProvider(tracer)
}

func NewEmbedder(tracer trace.Tracer, cfg *config.Config) service.Embedder {
	return embedding.NewClient(tracer, embedding.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
	})
}

// NewValidator returns a nil interface without an API key so analyses
// report validation as disabled.
func NewValidator(tracer trace.Tracer, cfg *config.Config) service.RecommendationValidator {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}
	return validator.New(tracer, validator.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ValidationModel,
	})
}

func Timeouts(cfg *config.Config) service.Timeouts {
	return service.Timeouts{
		Analysis:   config.Timeout(cfg.AnalysisTimeoutSecs),
		News:       config.Timeout(cfg.NewsTimeoutSecs),
		Embedding:  config.Timeout(cfg.EmbeddingTimeoutSecs),
		Retrieval:  config.Timeout(cfg.RetrievalTimeoutSecs),
		Price:      config.Timeout(cfg.PriceTimeoutSecs),
		Validation: config.Timeout(cfg.ValidationTimeoutSecs),
	}
}

func AnalysisOptions(cfg *config.Config, m *metrics.Metrics) service.AnalysisOptions {
	return service.AnalysisOptions{
		Timeouts:   Timeouts(cfg),
		NewsCount:  cfg.NewsCount,
		Thresholds: trend.Thresholds{Volatility: cfg.VolatilityThreshold, Trend: cfg.TrendThreshold},
		Metrics:    m,
	}
}
