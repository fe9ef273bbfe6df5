package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultSimilarLimit = 5
	MaxSimilarLimit     = 50
	DefaultHeadlines    = 5

	// MaxEmbedAttempts is how many failed backfill attempts a row gets before
	// it is left out of the backfill queue.
	MaxEmbedAttempts = 5

	DefaultVolatilityThreshold = 0.05
	DefaultTrendThreshold      = 1.0
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide accepts any casing and surrounding whitespace.
func ParseSide(raw string) (Side, bool) {
	s := Side(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.IsValid()
}

type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown"
)

type ProfitLoss string

const (
	Profit  ProfitLoss = "profit"
	Loss    ProfitLoss = "loss"
	Neutral ProfitLoss = "neutral"
)

// Transaction is a persisted trade tagged with the embedding of the news
// digest that was current when it was recorded. Embedding is nil when
// generation failed at write time.
type Transaction struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
	Side       Side            `json:"side"`
	BuyerID    string          `json:"buyer_id,omitempty"`
	NewsDigest string          `json:"news_digest"`
	Embedding  []float64       `json:"-"`
}

func (t Transaction) HasEmbedding() bool {
	return len(t.Embedding) > 0
}

type SimilarTransaction struct {
	Transaction
	SimilarityScore float64    `json:"similarity_score"`
	ProfitLoss      ProfitLoss `json:"profit_loss,omitempty"`
}

type Headline struct {
	Title       string    `json:"title"`
	Link        string    `json:"link,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// HeadlineTitles returns the titles in provider order.
func HeadlineTitles(headlines []Headline) []string {
	out := make([]string, 0, len(headlines))
	for _, h := range headlines {
		if t := strings.TrimSpace(h.Title); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type TrendAnalysis struct {
	PriceChange           float64        `json:"price_change"`
	PriceChangePercentage float64        `json:"price_change_percentage"`
	TrendDirection        TrendDirection `json:"trend_direction"`
	RiskLevel             RiskLevel      `json:"risk_level"`
	Volatility            float64        `json:"volatility"`
	Recommendation        string         `json:"recommendation"`
}

type ValidatedVerdict struct {
	Agreement              bool     `json:"agreement"`
	Reasoning              string   `json:"reasoning"`
	AdjustedRecommendation string   `json:"adjusted_recommendation,omitempty"`
	ConfidenceScore        float64  `json:"confidence_score"`
	KeyFactors             []string `json:"key_factors"`
	Summary                string   `json:"summary"`
}

type AnalysisResult struct {
	Symbol              string               `json:"symbol"`
	CurrentNews         []string             `json:"current_news"`
	CurrentPrice        float64              `json:"current_price"`
	SimilarTransactions []SimilarTransaction `json:"similar_transactions"`
	TrendAnalysis       TrendAnalysis        `json:"trend_analysis"`
	InsufficientHistory bool                 `json:"insufficient_history"`
	Validation          *ValidatedVerdict    `json:"validation,omitempty"`
	Warnings            []Warning            `json:"warnings,omitempty"`
	GeneratedAt         time.Time            `json:"generated_at"`
}

// AnalysisRequest carries the caller-tunable knobs of one analysis.
type AnalysisRequest struct {
	Symbol              string
	Limit               int
	VolatilityThreshold float64
	TrendThreshold      float64
}

// WithDefaults fills zero values. It does not validate.
func (r AnalysisRequest) WithDefaults() AnalysisRequest {
	r.Symbol = NormalizeSymbol(r.Symbol)
	if r.Limit == 0 {
		r.Limit = DefaultSimilarLimit
	}
	if r.VolatilityThreshold == 0 {
		r.VolatilityThreshold = DefaultVolatilityThreshold
	}
	if r.TrendThreshold == 0 {
		r.TrendThreshold = DefaultTrendThreshold
	}
	return r
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
