// Package report renders analysis results for terminal output.
package report

import (
	"fmt"
	"strings"
	"time"

	"market-echo/internal/domain"

	"github.com/charmbracelet/lipgloss"
)

func trendStyle(d domain.TrendDirection) lipgloss.Style {
	switch d {
	case domain.TrendUp:
		return TrendUpStyle
	case domain.TrendDown:
		return TrendDownStyle
	default:
		return TrendStableStyle
	}
}

func riskStyle(r domain.RiskLevel) lipgloss.Style {
	switch r {
	case domain.RiskLow:
		return RiskLowStyle
	case domain.RiskMedium:
		return RiskMedStyle
	case domain.RiskHigh:
		return RiskHighStyle
	default:
		return RiskUnknownStyle
	}
}

func profitLossStyle(pl domain.ProfitLoss) lipgloss.Style {
	switch pl {
	case domain.Profit:
		return ProfitStyle
	case domain.Loss:
		return LossStyle
	default:
		return NeutralStyle
	}
}

// Analysis renders the full result: headline summary, trend box, similar
// transactions, validator verdict and warnings.
func Analysis(r *domain.AnalysisResult) string {
	if r == nil {
		return ErrorStyle.Render("no analysis result")
	}
	ta := r.TrendAnalysis

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s  $%.2f", r.Symbol, r.CurrentPrice)))
	b.WriteString("\n\n")

	trendLines := []string{
		fmt.Sprintf("Trend:          %s", trendStyle(ta.TrendDirection).Render(string(ta.TrendDirection))),
		fmt.Sprintf("Risk:           %s", riskStyle(ta.RiskLevel).Render(string(ta.RiskLevel))),
		fmt.Sprintf("Price change:   %+.2f (%+.2f%%)", ta.PriceChange, ta.PriceChangePercentage),
		fmt.Sprintf("Volatility:     %.4f", ta.Volatility),
		fmt.Sprintf("Recommendation: %s", SectionStyle.Render(ta.Recommendation)),
	}
	if r.InsufficientHistory {
		trendLines = append(trendLines, WarningStyle.Render("Not enough similar history for a trend"))
	}
	b.WriteString(BorderStyle.Render(strings.Join(trendLines, "\n")))
	b.WriteString("\n\n")

	b.WriteString(SectionStyle.Render("Current news"))
	b.WriteString("\n")
	if len(r.CurrentNews) == 0 {
		b.WriteString(SubtextStyle.Render("  none"))
		b.WriteString("\n")
	}
	for _, title := range r.CurrentNews {
		b.WriteString("  • " + title + "\n")
	}
	b.WriteString("\n")

	b.WriteString(SectionStyle.Render("Similar past transactions"))
	b.WriteString("\n")
	if len(r.SimilarTransactions) == 0 {
		b.WriteString(SubtextStyle.Render("  none"))
		b.WriteString("\n")
	}
	for _, st := range r.SimilarTransactions {
		line := fmt.Sprintf("  %s  %-4s $%s  score %.3f",
			st.Timestamp.UTC().Format(time.DateOnly), st.Side, st.Price.StringFixed(2), st.SimilarityScore)
		if st.ProfitLoss != "" {
			line += "  " + profitLossStyle(st.ProfitLoss).Render(string(st.ProfitLoss))
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")

	b.WriteString(SectionStyle.Render("Validation"))
	b.WriteString("\n")
	if v := r.Validation; v != nil {
		agreement := "disagrees"
		if v.Agreement {
			agreement = "agrees"
		}
		b.WriteString(fmt.Sprintf("  Reviewer %s (confidence %.0f%%)\n", agreement, v.ConfidenceScore))
		if v.AdjustedRecommendation != "" {
			b.WriteString("  Adjusted: " + v.AdjustedRecommendation + "\n")
		}
		if v.Summary != "" {
			b.WriteString("  " + v.Summary + "\n")
		}
		if len(v.KeyFactors) > 0 {
			b.WriteString(SubtextStyle.Render("  Key factors: "+strings.Join(v.KeyFactors, ", ")) + "\n")
		}
	} else {
		b.WriteString(SubtextStyle.Render("  unavailable"))
		b.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n")
		for _, w := range r.Warnings {
			b.WriteString(WarningStyle.Render(fmt.Sprintf("! %s (%s): %s", w.Stage, w.Kind, w.Message)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(SubtextStyle.Render("Generated " + r.GeneratedAt.UTC().Format(time.RFC3339)))
	b.WriteString("\n")
	return b.String()
}

// Headlines renders a numbered headline list.
func Headlines(symbol string, headlines []domain.Headline) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(symbol + " news"))
	b.WriteString("\n")
	if len(headlines) == 0 {
		b.WriteString(SubtextStyle.Render("no recent headlines"))
		b.WriteString("\n")
		return b.String()
	}
	for i, h := range headlines {
		b.WriteString(fmt.Sprintf("%d. %s", i+1, h.Title))
		if h.Publisher != "" {
			b.WriteString(SubtextStyle.Render(" (" + h.Publisher + ")"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func Price(symbol string, price float64) string {
	return HeaderStyle.Render(fmt.Sprintf("%s  $%.2f", symbol, price)) + "\n"
}
