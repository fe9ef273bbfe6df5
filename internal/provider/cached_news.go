package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"market-echo/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const newsKeyPrefix = "news:"

// NewsSearcher is satisfied by YahooNewsProvider.
type NewsSearcher interface {
	Search(ctx context.Context, symbol string, n int) ([]domain.Headline, error)
}

// CachedNewsProvider memoizes headline searches in Redis. Cache errors are
// logged and bypassed.
type CachedNewsProvider struct {
	tracer trace.Tracer
	next   NewsSearcher
	redis  *redis.Client
	ttl    time.Duration
}

func NewCachedNewsProvider(tracer trace.Tracer, next NewsSearcher, client *redis.Client, ttl time.Duration) *CachedNewsProvider {
	return &CachedNewsProvider{tracer: tracer, next: next, redis: client, ttl: ttl}
}

func (c *CachedNewsProvider) Search(ctx context.Context, symbol string, n int) ([]domain.Headline, error) {
	ctx, span := c.tracer.Start(ctx, "cached-news.search")
	defer span.End()

	if c.redis == nil || c.ttl <= 0 {
		return c.next.Search(ctx, symbol, n)
	}

	key := fmt.Sprintf("%s%s:%d", newsKeyPrefix, symbol, n)
	if raw, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var cached []domain.Headline
		if err := json.Unmarshal(raw, &cached); err == nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("news cache read failed")
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	headlines, err := c.next.Search(ctx, symbol, n)
	if err != nil {
		return nil, err
	}
	// empty results are never cached
	if len(headlines) == 0 {
		return headlines, nil
	}
	if raw, err := json.Marshal(headlines); err == nil {
		if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("news cache write failed")
		}
	}
	return headlines, nil
}
