// Package similarity ranks historical transactions against a query
// embedding and derives the presentation views used downstream.
package similarity

import (
	"math"
	"slices"
	"strings"

	"market-echo/internal/domain"
)

// Cosine returns the cosine similarity of a and b. Mismatched lengths or a
// zero vector yield ok=false.
func Cosine(a, b []float64) (score float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// compareRank orders by score descending, then most recent first, then id.
func compareRank(a, b domain.SimilarTransaction) int {
	switch {
	case a.SimilarityScore > b.SimilarityScore:
		return -1
	case a.SimilarityScore < b.SimilarityScore:
		return 1
	}
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func compareChronological(a, b domain.SimilarTransaction) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Rank returns a new slice in similarity order truncated to k. The input is
// left untouched.
func Rank(items []domain.SimilarTransaction, k int) []domain.SimilarTransaction {
	out := ByRank(items)
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// ByRank is the similarity view of items.
func ByRank(items []domain.SimilarTransaction) []domain.SimilarTransaction {
	out := slices.Clone(items)
	if out == nil {
		out = []domain.SimilarTransaction{}
	}
	slices.SortStableFunc(out, compareRank)
	return out
}

// Chronological is the timestamp-ascending view of items.
func Chronological(items []domain.SimilarTransaction) []domain.SimilarTransaction {
	out := slices.Clone(items)
	if out == nil {
		out = []domain.SimilarTransaction{}
	}
	slices.SortStableFunc(out, compareChronological)
	return out
}

// Prices extracts prices in the order given.
func Prices(items []domain.SimilarTransaction) []float64 {
	out := make([]float64, 0, len(items))
	for _, it := range items {
		out = append(out, it.Price.InexactFloat64())
	}
	return out
}
