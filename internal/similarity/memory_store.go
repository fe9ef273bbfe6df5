package similarity

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"market-echo/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MemoryStore keeps transactions in process. It backs the service when no
// database is configured.
type MemoryStore struct {
	tracer trace.Tracer

	mu       sync.RWMutex
	rows     []domain.Transaction
	attempts map[string]int
}

func NewMemoryStore(tracer trace.Tracer) *MemoryStore {
	return &MemoryStore{tracer: tracer, attempts: make(map[string]int)}
}

func (s *MemoryStore) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	_, span := s.tracer.Start(ctx, "memory-store.insert")
	defer span.End()

	tx.Embedding = append([]float64(nil), tx.Embedding...)
	s.mu.Lock()
	s.rows = append(s.rows, tx)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) TopSimilar(ctx context.Context, symbol string, query []float64, k int) ([]domain.SimilarTransaction, error) {
	_, span := s.tracer.Start(ctx, "memory-store.top-similar")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("k", k))

	if k < 1 {
		return nil, domain.ErrInvalidLimit
	}

	s.mu.RLock()
	candidates := make([]domain.SimilarTransaction, 0, len(s.rows))
	for _, row := range s.rows {
		if row.Symbol != symbol || !row.HasEmbedding() {
			continue
		}
		score, ok := Cosine(query, row.Embedding)
		if !ok {
			continue
		}
		candidates = append(candidates, domain.SimilarTransaction{Transaction: row, SimilarityScore: score})
	}
	s.mu.RUnlock()

	out := Rank(candidates, k)
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// ListMissingEmbeddings returns rows still waiting for a vector. Rows that
// failed fewer times come first, then oldest first. Rows that reached
// domain.MaxEmbedAttempts are left out.
func (s *MemoryStore) ListMissingEmbeddings(ctx context.Context, limit int) ([]domain.Transaction, error) {
	_, span := s.tracer.Start(ctx, "memory-store.list-missing-embeddings")
	defer span.End()

	s.mu.RLock()
	var out []domain.Transaction
	for _, row := range s.rows {
		if row.HasEmbedding() || row.NewsDigest == "" || s.attempts[row.ID] >= domain.MaxEmbedAttempts {
			continue
		}
		out = append(out, row)
	}
	slices.SortStableFunc(out, func(a, b domain.Transaction) int {
		if c := cmp.Compare(s.attempts[a.ID], s.attempts[b.ID]); c != 0 {
			return c
		}
		return a.Timestamp.Compare(b.Timestamp)
	})
	s.mu.RUnlock()

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateEmbedding(ctx context.Context, id string, embedding []float64) error {
	_, span := s.tracer.Start(ctx, "memory-store.update-embedding")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.pending(id)
	if i < 0 {
		return fmt.Errorf("update embedding %s: %w", id, domain.ErrTransactionNotFound)
	}
	s.rows[i].Embedding = append([]float64(nil), embedding...)
	delete(s.attempts, id)
	return nil
}

// MarkEmbeddingFailed counts one failed backfill attempt for id.
func (s *MemoryStore) MarkEmbeddingFailed(ctx context.Context, id string) error {
	_, span := s.tracer.Start(ctx, "memory-store.mark-embedding-failed")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending(id) < 0 {
		return fmt.Errorf("mark embedding failed %s: %w", id, domain.ErrTransactionNotFound)
	}
	s.attempts[id]++
	return nil
}

// pending returns the index of the row with id that has no embedding yet,
// or -1. Callers hold mu.
func (s *MemoryStore) pending(id string) int {
	for i := range s.rows {
		if s.rows[i].ID == id && !s.rows[i].HasEmbedding() {
			return i
		}
	}
	return -1
}
