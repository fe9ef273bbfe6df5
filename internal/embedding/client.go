// Package embedding turns news text into a semantic vector using the OpenAI
// embeddings API.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"market-echo/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultModel      = "text-embedding-ada-002"
	DefaultDimensions = 1536
)

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

type Client struct {
	tracer     trace.Tracer
	client     openai.Client
	model      string
	dimensions int
	logger     zerolog.Logger
}

// NewClient builds a client with SDK retries disabled. Retry policy belongs
// to the caller.
func NewClient(tracer trace.Tracer, cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Client{
		tracer:     tracer,
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: dims,
		logger:     log.With().Str("component", "embedding_client").Logger(),
	}
}

func (c *Client) Dimensions() int {
	return c.dimensions
}

// Embed joins texts with single spaces and returns one vector for the whole
// batch. Blank input returns ErrEmptyInput without calling the API.
func (c *Client) Embed(ctx context.Context, texts []string) ([]float64, error) {
	ctx, span := c.tracer.Start(ctx, "embedding.embed")
	defer span.End()

	input := Join(texts)
	if input == "" {
		return nil, domain.ErrEmptyInput
	}
	span.SetAttributes(attribute.Int("texts", len(texts)), attribute.String("model", c.model))

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(input)},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, domain.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if resp == nil || len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty response", domain.ErrEmbeddingUnavailable)
	}

	vec := resp.Data[0].Embedding
	if len(vec) != c.dimensions {
		c.logger.Warn().Int("got", len(vec)).Int("want", c.dimensions).Msg("embedding dimension mismatch")
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", domain.ErrEmbeddingUnavailable, c.dimensions, len(vec))
	}
	return vec, nil
}

// Join trims each text and joins the non-blank ones with a single space.
func Join(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
