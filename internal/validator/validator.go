// Package validator asks an external reasoning model to critique a computed
// recommendation and decodes its answer into a ValidatedVerdict.
package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"market-echo/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultModel = "gpt-4o-mini"

// Brief is everything the reasoning model is shown.
type Brief struct {
	Symbol              string
	Headlines           []string
	CurrentPrice        float64
	SimilarTransactions []domain.SimilarTransaction
	Trend               domain.TrendAnalysis
	InsufficientHistory bool
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type Validator struct {
	tracer trace.Tracer
	client openai.Client
	model  string
	now    func() time.Time
	logger zerolog.Logger
}

func New(tracer trace.Tracer, cfg Config) *Validator {
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
	return &Validator{
		tracer: tracer,
		client: openai.NewClient(opts...),
		model:  model,
		now:    time.Now,
		logger: log.With().Str("component", "validator").Logger(),
	}
}

// Validate sends one completion request and parses the reply. A reply that
// cannot be decoded yields ErrValidationParse.
func (v *Validator) Validate(ctx context.Context, brief Brief) (*domain.ValidatedVerdict, error) {
	ctx, span := v.tracer.Start(ctx, "validator.validate")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", brief.Symbol), attribute.String("model", v.model))

	prompt := BuildPrompt(brief, v.now())
	resp, err := v.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(v.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("reasoning service: %w", domain.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("reasoning service: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", domain.ErrValidationParse)
	}

	content := resp.Choices[0].Message.Content
	v.logger.Debug().Str("symbol", brief.Symbol).Int("chars", len(content)).Msg("reasoning service replied")

	verdict, err := ParseVerdict(content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return verdict, nil
}

// BuildPrompt renders the critique request.
func BuildPrompt(b Brief, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "As a financial expert, analyze this trading situation for %s:\n\n", b.Symbol)
	fmt.Fprintf(&sb, "Today's Date: %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Current Price: $%.2f\n", b.CurrentPrice)
	fmt.Fprintf(&sb, "Price Change: %.2f (%.2f%%)\n", b.Trend.PriceChange, b.Trend.PriceChangePercentage)
	fmt.Fprintf(&sb, "Trend Direction: %s\n", b.Trend.TrendDirection)
	fmt.Fprintf(&sb, "Risk Level: %s\n", b.Trend.RiskLevel)
	fmt.Fprintf(&sb, "Volatility: %.4f\n", b.Trend.Volatility)
	fmt.Fprintf(&sb, "System Recommendation: %s\n", b.Trend.Recommendation)
	if b.InsufficientHistory {
		sb.WriteString("Note: no comparable historical transactions were found, trend figures are placeholders.\n")
	}

	sb.WriteString("\nRecent News:\n")
	if len(b.Headlines) == 0 {
		sb.WriteString("- (none)\n")
	}
	for _, h := range b.Headlines {
		fmt.Fprintf(&sb, "- %s\n", h)
	}

	sb.WriteString("\nSimilar Historical Transactions:\n")
	if len(b.SimilarTransactions) == 0 {
		sb.WriteString("- (none)\n")
	}
	for _, t := range b.SimilarTransactions {
		fmt.Fprintf(&sb, "- %s at $%s (%s, similarity %.3f)\n",
			strings.ToUpper(string(t.Side)), t.Price.StringFixed(2), t.Timestamp.Format("2006-01-02"), t.SimilarityScore)
	}

	sb.WriteString(`
Challenge this analysis and provide:
1. Do you agree with the trend analysis? Why or why not?
2. What key factors support or contradict the analysis?
3. What's your confidence in this assessment (0-100)?
4. Provide a concise summary and recommendation.

Respond with a single JSON object and nothing else:
{
  "agreement": boolean,
  "reasoning": "detailed explanation",
  "adjustedRecommendation": "your recommendation based on the analysis",
  "confidenceScore": number,
  "keyFactors": ["list of key factors"],
  "summary": "concise summary"
}`)
	return sb.String()
}
