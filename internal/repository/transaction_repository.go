package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"market-echo/internal/domain"
	"market-echo/internal/similarity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TransactionRepository stores transactions in Postgres with a pgvector
// embedding column.
type TransactionRepository struct {
	pool       PgxPool
	tracer     trace.Tracer
	dimensions int
}

func NewTransactionRepository(pool PgxPool, tracer trace.Tracer, dimensions int) *TransactionRepository {
	return &TransactionRepository{pool: pool, tracer: tracer, dimensions: dimensions}
}

func (r *TransactionRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "transaction-repo.run-migrations")
	defer span.End()

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS transactions (
    id              UUID PRIMARY KEY,
    symbol          TEXT NOT NULL,
    price           NUMERIC(20, 6) NOT NULL CHECK (price > 0),
    side            TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
    buyer_id        TEXT NOT NULL DEFAULT '',
    news_digest     TEXT NOT NULL DEFAULT '',
    embedding       vector(%d),
    embed_attempts  INT NOT NULL DEFAULT 0,
    embed_failed_at TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, r.dimensions),
		`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS embed_attempts INT NOT NULL DEFAULT 0`,
		`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS embed_failed_at TIMESTAMPTZ`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_symbol_created ON transactions (symbol, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_pending_embedding ON transactions (embed_attempts, created_at) WHERE embedding IS NULL`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate transactions: %w", err)
		}
	}
	return nil
}

func (r *TransactionRepository) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	_, span := r.tracer.Start(ctx, "transaction-repo.insert")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", tx.Symbol), attribute.Bool("has_embedding", tx.HasEmbedding()))

	var embedding any
	if tx.HasEmbedding() {
		embedding = VectorLiteral(tx.Embedding)
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO transactions (id, symbol, price, side, buyer_id, news_digest, embedding, created_at)
VALUES ($1::uuid, $2, $3::numeric, $4, $5, $6, $7::vector, $8)
`, tx.ID, tx.Symbol, tx.Price.String(), string(tx.Side), tx.BuyerID, tx.NewsDigest, embedding, tx.Timestamp.UTC())
	return err
}

// TopSimilar returns at most k transactions for symbol ordered by cosine
// similarity to query. Rows without an embedding are never eligible.
//
// The symbol's rows are materialized before ordering so the distance sort is
// exact over every eligible row. An approximate vector index scan followed
// by the symbol filter can return fewer than k rows.
func (r *TransactionRepository) TopSimilar(ctx context.Context, symbol string, query []float64, k int) ([]domain.SimilarTransaction, error) {
	_, span := r.tracer.Start(ctx, "transaction-repo.top-similar")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("k", k))

	if k < 1 {
		return nil, domain.ErrInvalidLimit
	}
	if len(query) == 0 {
		return []domain.SimilarTransaction{}, nil
	}

	rows, err := r.pool.Query(ctx, topSimilarSQL, symbol, VectorLiteral(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SimilarTransaction, 0, k)
	for rows.Next() {
		var (
			st    domain.SimilarTransaction
			price string
			side  string
		)
		if err := rows.Scan(&st.ID, &st.Symbol, &price, &side, &st.BuyerID, &st.NewsDigest, &st.Timestamp, &st.SimilarityScore); err != nil {
			return nil, err
		}
		if st.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("transaction %s price %q: %w", st.ID, price, err)
		}
		st.Side = domain.Side(side)
		st.Timestamp = st.Timestamp.UTC()
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ranked := similarity.Rank(out, k)
	span.SetAttributes(attribute.Int("results", len(ranked)))
	return ranked, nil
}

const topSimilarSQL = `
WITH candidates AS MATERIALIZED (
    SELECT id, symbol, price, side, buyer_id, news_digest, created_at, embedding <=> $2::vector AS distance
    FROM transactions
    WHERE symbol = $1 AND embedding IS NOT NULL
)
SELECT id::text, symbol, price::text, side, buyer_id, news_digest, created_at, 1 - distance AS similarity
FROM candidates
ORDER BY distance ASC, created_at DESC, id ASC
LIMIT $3
`

// ListMissingEmbeddings returns rows still waiting for a vector, least
// failed first and then oldest first. Rows that failed
// domain.MaxEmbedAttempts times are left out.
func (r *TransactionRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]domain.Transaction, error) {
	_, span := r.tracer.Start(ctx, "transaction-repo.list-missing-embeddings")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
SELECT id::text, symbol, price::text, side, buyer_id, news_digest, created_at
FROM transactions
WHERE embedding IS NULL AND news_digest <> '' AND embed_attempts < $2
ORDER BY embed_attempts ASC, created_at ASC, id ASC
LIMIT $1
`, limit, domain.MaxEmbedAttempts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			tx    domain.Transaction
			price string
			side  string
			ts    time.Time
		)
		if err := rows.Scan(&tx.ID, &tx.Symbol, &price, &side, &tx.BuyerID, &tx.NewsDigest, &ts); err != nil {
			return nil, err
		}
		if tx.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("transaction %s price %q: %w", tx.ID, price, err)
		}
		tx.Side = domain.Side(side)
		tx.Timestamp = ts.UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *TransactionRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float64) error {
	_, span := r.tracer.Start(ctx, "transaction-repo.update-embedding")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `UPDATE transactions SET embedding = $2::vector WHERE id = $1::uuid AND embedding IS NULL`,
		id, VectorLiteral(embedding))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update embedding %s: %w", id, domain.ErrTransactionNotFound)
	}
	return nil
}

// MarkEmbeddingFailed counts one failed backfill attempt for id.
func (r *TransactionRepository) MarkEmbeddingFailed(ctx context.Context, id string) error {
	_, span := r.tracer.Start(ctx, "transaction-repo.mark-embedding-failed")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `
UPDATE transactions
SET embed_attempts = embed_attempts + 1, embed_failed_at = NOW()
WHERE id = $1::uuid AND embedding IS NULL
`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark embedding failed %s: %w", id, domain.ErrTransactionNotFound)
	}
	return nil
}

// VectorLiteral renders v in pgvector's text format, e.g. [0.1,0.2].
func VectorLiteral(v []float64) string {
	var sb strings.Builder
	sb.Grow(len(v)*10 + 2)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}
