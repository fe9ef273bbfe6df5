package similarity

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"market-echo/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

func sim(id string, score float64, ts time.Time, price string) domain.SimilarTransaction {
	return domain.SimilarTransaction{
		Transaction: domain.Transaction{
			ID:        id,
			Symbol:    "AAPL",
			Price:     decimal.RequireFromString(price),
			Timestamp: ts,
		},
		SimilarityScore: score,
	}
}

func ids(items []domain.SimilarTransaction) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestCosine(t *testing.T) {
	if s, ok := Cosine([]float64{1, 0}, []float64{1, 0}); !ok || math.Abs(s-1) > 1e-9 {
		t.Fatalf("expected 1, got %v ok=%v", s, ok)
	}
	if s, ok := Cosine([]float64{1, 0}, []float64{0, 1}); !ok || math.Abs(s) > 1e-9 {
		t.Fatalf("expected 0, got %v ok=%v", s, ok)
	}
	if s, ok := Cosine([]float64{1, 1}, []float64{-1, -1}); !ok || math.Abs(s+1) > 1e-9 {
		t.Fatalf("expected -1, got %v ok=%v", s, ok)
	}
	if _, ok := Cosine([]float64{1}, []float64{1, 2}); ok {
		t.Fatal("expected mismatched dimensions to be rejected")
	}
	if _, ok := Cosine([]float64{0, 0}, []float64{1, 2}); ok {
		t.Fatal("expected zero vector to be rejected")
	}
}

func TestRankOrdersAndBreaksTies(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []domain.SimilarTransaction{
		sim("c", 0.5, base, "10"),
		sim("b", 0.9, base, "10"),
		sim("a", 0.9, base.Add(time.Hour), "10"),
		sim("d", 0.9, base, "10"),
		sim("e", 0.1, base, "10"),
	}
	original := slices.Clone(items)

	got := Rank(items, 4)
	want := []string{"a", "b", "d", "c"}
	if !slices.Equal(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].SimilarityScore > got[i-1].SimilarityScore {
			t.Fatalf("rank not descending at %d", i)
		}
	}
	if !slices.Equal(ids(items), ids(original)) {
		t.Fatal("Rank mutated its input")
	}
}

func TestChronologicalViewIsIdempotentAndPreservesMembership(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ranked := []domain.SimilarTransaction{
		sim("x", 0.9, base.Add(2*time.Hour), "3"),
		sim("y", 0.8, base, "1"),
		sim("z", 0.7, base.Add(time.Hour), "2"),
	}

	once := Chronological(ranked)
	twice := Chronological(once)
	if !slices.Equal(ids(once), []string{"y", "z", "x"}) {
		t.Fatalf("unexpected chronological order %v", ids(once))
	}
	if !slices.Equal(ids(once), ids(twice)) {
		t.Fatal("chronological view is not idempotent")
	}
	if !slices.Equal(ids(ranked), []string{"x", "y", "z"}) {
		t.Fatal("rank view was re-sorted in place")
	}

	a, b := ids(ranked), ids(once)
	slices.Sort(a)
	slices.Sort(b)
	if !slices.Equal(a, b) {
		t.Fatal("membership changed between views")
	}

	if got := Prices(once); !slices.Equal(got, []float64{1, 2, 3}) {
		t.Fatalf("unexpected prices %v", got)
	}
}

func TestViewsOfEmptyInput(t *testing.T) {
	if got := Rank(nil, 5); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if got := Chronological(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestMemoryStoreTopSimilar(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(trace.NewNoopTracerProvider().Tracer("test"))
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := []domain.Transaction{
		{ID: "1", Symbol: "AAPL", Price: decimal.NewFromInt(100), Timestamp: base, Embedding: []float64{1, 0}},
		{ID: "2", Symbol: "AAPL", Price: decimal.NewFromInt(110), Timestamp: base.Add(time.Hour), Embedding: []float64{0.7, 0.7}},
		{ID: "3", Symbol: "AAPL", Price: decimal.NewFromInt(120), Timestamp: base.Add(2 * time.Hour), NewsDigest: "Apple event"},
		{ID: "4", Symbol: "MSFT", Price: decimal.NewFromInt(300), Timestamp: base, Embedding: []float64{1, 0}},
		{ID: "5", Symbol: "AAPL", Price: decimal.NewFromInt(90), Timestamp: base, Embedding: []float64{0, 1}},
	}
	for _, r := range rows {
		if err := store.InsertTransaction(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := store.TopSimilar(ctx, "AAPL", []float64{1, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(ids(got), []string{"1", "2"}) {
		t.Fatalf("unexpected result %v", ids(got))
	}

	none, err := store.TopSimilar(ctx, "TSLA", []float64{1, 0}, 5)
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty result, got %v err=%v", none, err)
	}

	if _, err := store.TopSimilar(ctx, "AAPL", []float64{1, 0}, 0); !errors.Is(err, domain.ErrInvalidLimit) {
		t.Fatalf("expected invalid limit, got %v", err)
	}

	missing, err := store.ListMissingEmbeddings(ctx, 10)
	if err != nil || len(missing) != 1 || missing[0].ID != "3" {
		t.Fatalf("unexpected missing embeddings %v err=%v", missing, err)
	}
	if err := store.UpdateEmbedding(ctx, "3", []float64{1, 0.1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.TopSimilar(ctx, "AAPL", []float64{1, 0}, 5)
	if len(got) != 4 {
		t.Fatalf("expected backfilled row to become eligible, got %v", ids(got))
	}
}

func TestMemoryStoreBackfillQueue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(trace.NewNoopTracerProvider().Tracer("test"))
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// inserted out of time order on purpose
	for _, r := range []domain.Transaction{
		{ID: "late", Symbol: "AAPL", NewsDigest: "late", Timestamp: base.Add(2 * time.Hour)},
		{ID: "early", Symbol: "AAPL", NewsDigest: "early", Timestamp: base},
		{ID: "mid", Symbol: "AAPL", NewsDigest: "mid", Timestamp: base.Add(time.Hour)},
	} {
		if err := store.InsertTransaction(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	missingIDs := func(limit int) []string {
		t.Helper()
		rows, err := store.ListMissingEmbeddings(ctx, limit)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		out := make([]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.ID)
		}
		return out
	}

	if got := missingIDs(0); !slices.Equal(got, []string{"early", "mid", "late"}) {
		t.Fatalf("expected oldest first, got %v", got)
	}

	if err := store.MarkEmbeddingFailed(ctx, "early"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if got := missingIDs(2); !slices.Equal(got, []string{"mid", "late"}) {
		t.Fatalf("expected failed row behind fresh ones, got %v", got)
	}

	for range domain.MaxEmbedAttempts - 1 {
		if err := store.MarkEmbeddingFailed(ctx, "early"); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}
	if got := missingIDs(0); !slices.Equal(got, []string{"mid", "late"}) {
		t.Fatalf("expected exhausted row dropped from queue, got %v", got)
	}
}

func TestMemoryStoreUpdateUnknownOrEmbeddedRow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(trace.NewNoopTracerProvider().Tracer("test"))
	if err := store.InsertTransaction(ctx, domain.Transaction{ID: "done", Symbol: "AAPL", Embedding: []float64{1}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	for _, id := range []string{"missing", "done"} {
		if err := store.UpdateEmbedding(ctx, id, []float64{1}); !errors.Is(err, domain.ErrTransactionNotFound) {
			t.Fatalf("UpdateEmbedding(%q): expected not found, got %v", id, err)
		}
		if err := store.MarkEmbeddingFailed(ctx, id); !errors.Is(err, domain.ErrTransactionNotFound) {
			t.Fatalf("MarkEmbeddingFailed(%q): expected not found, got %v", id, err)
		}
	}
}
