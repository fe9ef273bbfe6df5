// Package trend computes direction, volatility and risk over a chronological
// price series. Everything here is pure and safe for concurrent use.
package trend

import (
	"fmt"
	"math"

	"market-echo/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	RecommendBuy     = "buy — upward trend, manageable risk"
	RecommendSell    = "sell — downward trend detected"
	RecommendHold    = "hold — monitor for a clear trend"
	RecommendCaution = "caution — high volatility"

	RecommendInsufficient = "insufficient history — no similar past situations"
)

// Thresholds configure classification. Volatility is a ratio, Trend is a
// percentage.
type Thresholds struct {
	Volatility float64
	Trend      float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Volatility: domain.DefaultVolatilityThreshold,
		Trend:      domain.DefaultTrendThreshold,
	}
}

func (t Thresholds) Validate() error {
	if math.IsNaN(t.Volatility) || math.IsInf(t.Volatility, 0) || t.Volatility <= 0 {
		return fmt.Errorf("%w: volatility threshold must be > 0, got %v", domain.ErrInvalidInput, t.Volatility)
	}
	if math.IsNaN(t.Trend) || math.IsInf(t.Trend, 0) || t.Trend < 0 {
		return fmt.Errorf("%w: trend threshold must be >= 0, got %v", domain.ErrInvalidInput, t.Trend)
	}
	return nil
}

// Degraded is the analysis reported when there is no history to compare with.
func Degraded() domain.TrendAnalysis {
	return domain.TrendAnalysis{
		TrendDirection: domain.TrendStable,
		RiskLevel:      domain.RiskUnknown,
		Recommendation: RecommendInsufficient,
	}
}

// Analyze classifies currentPrice against the chronologically ascending
// orderedPrices. Non-positive historical prices are ignored. When no usable
// history remains it returns Degraded() together with ErrInsufficientHistory.
func Analyze(currentPrice float64, orderedPrices []float64, th Thresholds) (domain.TrendAnalysis, error) {
	if err := th.Validate(); err != nil {
		return domain.TrendAnalysis{}, err
	}
	if math.IsNaN(currentPrice) || math.IsInf(currentPrice, 0) || currentPrice <= 0 {
		return domain.TrendAnalysis{}, fmt.Errorf("%w: current price must be > 0, got %v", domain.ErrInvalidInput, currentPrice)
	}

	prices := usable(orderedPrices)
	if len(prices) == 0 {
		return Degraded(), domain.ErrInsufficientHistory
	}

	last := prices[len(prices)-1]
	change := currentPrice - last
	pct := change / last * 100
	vol := Volatility(prices)
	direction := ClassifyTrend(pct, th.Trend)
	risk := ClassifyRisk(vol, th.Volatility)

	return domain.TrendAnalysis{
		PriceChange:           change,
		PriceChangePercentage: pct,
		TrendDirection:        direction,
		RiskLevel:             risk,
		Volatility:            vol,
		Recommendation:        Recommend(direction, risk),
	}, nil
}

// Volatility is the mean absolute relative step change. Fewer than two
// points yield 0.
func Volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	var sum float64
	steps := 0
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			continue
		}
		sum += math.Abs((prices[i] - prev) / prev)
		steps++
	}
	if steps == 0 {
		return 0
	}
	return sum / float64(steps)
}

// ClassifyTrend is stable when |pct| <= threshold.
func ClassifyTrend(pct, threshold float64) domain.TrendDirection {
	switch {
	case math.Abs(pct) <= threshold:
		return domain.TrendStable
	case pct > 0:
		return domain.TrendUp
	default:
		return domain.TrendDown
	}
}

// ClassifyRisk checks high before low.
func ClassifyRisk(volatility, threshold float64) domain.RiskLevel {
	switch {
	case volatility > threshold:
		return domain.RiskHigh
	case volatility < threshold/5:
		return domain.RiskLow
	default:
		return domain.RiskMedium
	}
}

func Recommend(direction domain.TrendDirection, risk domain.RiskLevel) string {
	if risk == domain.RiskHigh {
		return RecommendCaution
	}
	switch direction {
	case domain.TrendUp:
		return RecommendBuy
	case domain.TrendDown:
		return RecommendSell
	default:
		return RecommendHold
	}
}

// TagProfitLoss labels a past trade relative to where the price stands now,
// regardless of the trade's side.
func TagProfitLoss(price decimal.Decimal, currentPrice float64) domain.ProfitLoss {
	switch price.Cmp(decimal.NewFromFloat(currentPrice)) {
	case -1:
		return domain.Profit
	case 1:
		return domain.Loss
	default:
		return domain.Neutral
	}
}

func usable(prices []float64) []float64 {
	out := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p > 0 && !math.IsInf(p, 0) {
			out = append(out, p)
		}
	}
	return out
}
