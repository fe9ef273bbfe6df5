package mcp

import (
	"fmt"
	"math"
	"strings"
	"time"

	"market-echo/internal/domain"
	"market-echo/internal/trend"
)

const maxSymbolLen = 15

type analysisRunInput struct {
	Symbol              string   `json:"symbol" jsonschema:"ticker symbol (e.g. AAPL, MSFT)"`
	Limit               int      `json:"limit,omitempty" jsonschema:"number of similar past transactions to consider, max 50"`
	VolatilityThreshold *float64 `json:"volatility_threshold,omitempty" jsonschema:"volatility ratio above which risk is high, default 0.05"`
	TrendThreshold      *float64 `json:"trend_threshold,omitempty" jsonschema:"percent change above which a trend is reported, default 1.0"`
}

type symbolInput struct {
	Symbol string `json:"symbol" jsonschema:"ticker symbol (e.g. AAPL, MSFT)"`
}

type similarTransactionsInput struct {
	Symbol string `json:"symbol" jsonschema:"ticker symbol (e.g. AAPL, MSFT)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"number of transactions to return, max 50"`
}

type headlineView struct {
	Title       string `json:"title"`
	Link        string `json:"link,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

type similarTransactionView struct {
	ID              string  `json:"id"`
	Side            string  `json:"side"`
	Price           string  `json:"price"`
	Timestamp       string  `json:"timestamp"`
	NewsDigest      string  `json:"news_digest,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
	ProfitLoss      string  `json:"profit_loss,omitempty"`
}

type verdictView struct {
	Agreement              bool     `json:"agreement"`
	Reasoning              string   `json:"reasoning"`
	AdjustedRecommendation string   `json:"adjusted_recommendation,omitempty"`
	ConfidenceScore        float64  `json:"confidence_score"`
	KeyFactors             []string `json:"key_factors"`
	Summary                string   `json:"summary"`
}

type warningView struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type analysisView struct {
	Symbol                string                   `json:"symbol"`
	CurrentPrice          float64                  `json:"current_price"`
	CurrentNews           []string                 `json:"current_news"`
	SimilarTransactions   []similarTransactionView `json:"similar_transactions"`
	PriceChange           float64                  `json:"price_change"`
	PriceChangePercentage float64                  `json:"price_change_percentage"`
	TrendDirection        string                   `json:"trend_direction"`
	RiskLevel             string                   `json:"risk_level"`
	Volatility            float64                  `json:"volatility"`
	Recommendation        string                   `json:"recommendation"`
	InsufficientHistory   bool                     `json:"insufficient_history"`
	Validation            *verdictView             `json:"validation,omitempty"`
	Warnings              []warningView            `json:"warnings,omitempty"`
	GeneratedAt           string                   `json:"generated_at"`
}

type newsListOutput struct {
	Symbol    string         `json:"symbol"`
	Headlines []headlineView `json:"headlines"`
}

type priceGetOutput struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type similarTransactionsOutput struct {
	Symbol       string                   `json:"symbol"`
	Headlines    []string                 `json:"headlines"`
	Transactions []similarTransactionView `json:"transactions"`
}

type analysisDefaults struct {
	Limit               int      `json:"limit"`
	MaxLimit            int      `json:"max_limit"`
	VolatilityThreshold float64  `json:"volatility_threshold"`
	TrendThreshold      float64  `json:"trend_threshold"`
	Recommendations     []string `json:"recommendations"`
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return "", fmt.Errorf("symbol is required")
	}
	if len(symbol) > maxSymbolLen {
		return "", fmt.Errorf("symbol too long: %s", symbol)
	}
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', strings.ContainsRune(".-^=", r):
		default:
			return "", fmt.Errorf("unsupported symbol: %s", symbol)
		}
	}
	return symbol, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return domain.DefaultSimilarLimit
	}
	if limit > domain.MaxSimilarLimit {
		return domain.MaxSimilarLimit
	}
	return limit
}

func normalizeAnalysisInput(in analysisRunInput, defaults domain.AnalysisRequest) (domain.AnalysisRequest, error) {
	symbol, err := normalizeSymbol(in.Symbol)
	if err != nil {
		return domain.AnalysisRequest{}, err
	}
	req := defaults
	req.Symbol = symbol
	req.Limit = normalizeLimit(in.Limit)
	if in.VolatilityThreshold != nil {
		if !positiveFinite(*in.VolatilityThreshold) {
			return domain.AnalysisRequest{}, fmt.Errorf("volatility_threshold must be a positive number")
		}
		req.VolatilityThreshold = *in.VolatilityThreshold
	}
	if in.TrendThreshold != nil {
		if !positiveFinite(*in.TrendThreshold) {
			return domain.AnalysisRequest{}, fmt.Errorf("trend_threshold must be a positive number")
		}
		req.TrendThreshold = *in.TrendThreshold
	}
	return req, nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func toHeadlineViews(headlines []domain.Headline) []headlineView {
	out := make([]headlineView, 0, len(headlines))
	for _, h := range headlines {
		v := headlineView{Title: h.Title, Link: h.Link, Publisher: h.Publisher}
		if !h.PublishedAt.IsZero() {
			v.PublishedAt = h.PublishedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, v)
	}
	return out
}

func toSimilarViews(items []domain.SimilarTransaction) []similarTransactionView {
	out := make([]similarTransactionView, 0, len(items))
	for _, st := range items {
		out = append(out, similarTransactionView{
			ID:              st.ID,
			Side:            string(st.Side),
			Price:           st.Price.String(),
			Timestamp:       st.Timestamp.UTC().Format(time.RFC3339),
			NewsDigest:      st.NewsDigest,
			SimilarityScore: st.SimilarityScore,
			ProfitLoss:      string(st.ProfitLoss),
		})
	}
	return out
}

func toAnalysisView(r *domain.AnalysisResult) analysisView {
	ta := r.TrendAnalysis
	v := analysisView{
		Symbol:                r.Symbol,
		CurrentPrice:          r.CurrentPrice,
		CurrentNews:           append([]string{}, r.CurrentNews...),
		SimilarTransactions:   toSimilarViews(r.SimilarTransactions),
		PriceChange:           ta.PriceChange,
		PriceChangePercentage: ta.PriceChangePercentage,
		TrendDirection:        string(ta.TrendDirection),
		RiskLevel:             string(ta.RiskLevel),
		Volatility:            ta.Volatility,
		Recommendation:        ta.Recommendation,
		InsufficientHistory:   r.InsufficientHistory,
		GeneratedAt:           r.GeneratedAt.UTC().Format(time.RFC3339),
	}
	if val := r.Validation; val != nil {
		v.Validation = &verdictView{
			Agreement:              val.Agreement,
			Reasoning:              val.Reasoning,
			AdjustedRecommendation: val.AdjustedRecommendation,
			ConfidenceScore:        val.ConfidenceScore,
			KeyFactors:             append([]string{}, val.KeyFactors...),
			Summary:                val.Summary,
		}
	}
	for _, w := range r.Warnings {
		v.Warnings = append(v.Warnings, warningView{Stage: string(w.Stage), Kind: string(w.Kind), Message: w.Message})
	}
	return v
}

func defaultsView(req domain.AnalysisRequest) analysisDefaults {
	return analysisDefaults{
		Limit:               req.Limit,
		MaxLimit:            domain.MaxSimilarLimit,
		VolatilityThreshold: req.VolatilityThreshold,
		TrendThreshold:      req.TrendThreshold,
		Recommendations: []string{
			trend.RecommendBuy,
			trend.RecommendSell,
			trend.RecommendHold,
			trend.RecommendCaution,
			trend.RecommendInsufficient,
		},
	}
}

// toolError keeps the machine-readable kind visible to MCP clients.
func toolError(err error) error {
	return fmt.Errorf("%s: %w", domain.KindOf(err), err)
}
