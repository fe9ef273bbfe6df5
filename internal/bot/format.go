package bot

import (
	"fmt"
	"strings"

	"market-echo/internal/domain"
)

const maxMessageLen = 4000

func formatAnalysis(r domain.AnalysisResult) string {
	ta := r.TrendAnalysis
	lines := []string{
		fmt.Sprintf("%s  $%.2f", r.Symbol, r.CurrentPrice),
		fmt.Sprintf("Trend: %s (%+.2f%%)  Risk: %s", ta.TrendDirection, ta.PriceChangePercentage, ta.RiskLevel),
		"Recommendation: " + ta.Recommendation,
	}
	if r.InsufficientHistory {
		lines = append(lines, "No similar past transactions yet.")
	} else {
		lines = append(lines, fmt.Sprintf("Similar past transactions: %d", len(r.SimilarTransactions)))
		for _, st := range r.SimilarTransactions {
			lines = append(lines, fmt.Sprintf("- %s at $%s on %s (%.2f, %s)",
				strings.ToUpper(string(st.Side)), st.Price.StringFixed(2), st.Timestamp.Format("2006-01-02"),
				st.SimilarityScore, st.ProfitLoss))
		}
	}
	if v := r.Validation; v != nil {
		verdict := "agrees"
		if !v.Agreement {
			verdict = "disagrees"
		}
		lines = append(lines, fmt.Sprintf("Reviewer %s (confidence %.0f): %s", verdict, v.ConfidenceScore, v.Summary))
		if v.AdjustedRecommendation != "" {
			lines = append(lines, "Adjusted: "+v.AdjustedRecommendation)
		}
	}
	return truncate(strings.Join(lines, "\n"))
}

func formatAlertMessage(results []domain.AnalysisResult) string {
	lines := make([]string, 0, len(results)+1)
	lines = append(lines, "Watchlist update:")
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%s $%.2f %s/%s: %s",
			r.Symbol, r.CurrentPrice, r.TrendAnalysis.TrendDirection, r.TrendAnalysis.RiskLevel, r.TrendAnalysis.Recommendation))
	}
	return truncate(strings.Join(lines, "\n"))
}

func truncate(msg string) string {
	if len(msg) <= maxMessageLen {
		return msg
	}
	return msg[:maxMessageLen] + "\n\n[truncated]"
}
