package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"market-echo/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

func newTestRepo(pool PgxPool) *TransactionRepository {
	return NewTransactionRepository(pool, trace.NewNoopTracerProvider().Tracer("test"), 3)
}

func TestRunMigrationsExecutesSchema(t *testing.T) {
	pool := &stubPool{}
	if err := newTestRepo(pool).RunMigrations(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool.execSQL) != 6 {
		t.Fatalf("expected 6 statements, got %d", len(pool.execSQL))
	}
	if !strings.Contains(pool.execSQL[1], "vector(3)") || !strings.Contains(pool.execSQL[1], "embed_attempts") {
		t.Fatalf("expected embedding dimension and attempt counter in schema, got %s", pool.execSQL[1])
	}
	if !strings.Contains(pool.execSQL[5], "WHERE embedding IS NULL") {
		t.Fatalf("expected partial index over pending rows, got %s", pool.execSQL[5])
	}
}

func TestRunMigrationsPropagatesError(t *testing.T) {
	pool := &stubPool{execErr: errors.New("no extension")}
	if err := newTestRepo(pool).RunMigrations(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestInsertTransactionPassesVectorOrNull(t *testing.T) {
	pool := &stubPool{}
	repo := newTestRepo(pool)
	tx := domain.Transaction{
		ID:        "8a3c5a4e-9d0b-4f53-9a0e-7c1c2b7b1f10",
		Symbol:    "AAPL",
		Price:     decimal.RequireFromString("187.25"),
		Side:      domain.SideBuy,
		Timestamp: time.Unix(0, 0),
		Embedding: []float64{0.5, -1, 2},
	}
	if err := repo.InsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := pool.execArgs[0]
	if args[2] != "187.25" || args[3] != "buy" || args[6] != "[0.5,-1,2]" {
		t.Fatalf("unexpected args %v", args)
	}

	tx.Embedding = nil
	if err := repo.InsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.execArgs[1][6] != nil {
		t.Fatalf("expected NULL embedding, got %v", pool.execArgs[1][6])
	}
}

func TestTopSimilarScansAndRanks(t *testing.T) {
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	pool := &stubPool{rowsData: [][]any{
		{"b", "AAPL", "110.5", "sell", "", "digest", base, 0.8},
		{"a", "AAPL", "100", "buy", "u1", "digest", base.Add(time.Hour), 0.8},
		{"c", "AAPL", "90", "buy", "", "digest", base, 0.95},
	}}
	repo := newTestRepo(pool)

	got, err := repo.TopSimilar(context.Background(), "AAPL", []float64{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0].ID != "c" || got[1].ID != "a" || got[2].ID != "b" {
		t.Fatalf("unexpected ranking %+v", got)
	}
	if !got[2].Price.Equal(decimal.RequireFromString("110.5")) || got[2].Side != domain.SideSell {
		t.Fatalf("unexpected scan %+v", got[2])
	}
	if pool.queryArgs[1] != "[1,0,0]" || pool.queryArgs[2] != 5 {
		t.Fatalf("unexpected query args %v", pool.queryArgs)
	}
}

func TestTopSimilarSortsExactlyWithinSymbol(t *testing.T) {
	pool := &stubPool{}
	if _, err := newTestRepo(pool).TopSimilar(context.Background(), "MSFT", []float64{1, 0, 0}, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sql := pool.querySQL
	filter := strings.Index(sql, "WHERE symbol = $1")
	order := strings.Index(sql, "ORDER BY distance")
	if !strings.Contains(sql, "AS MATERIALIZED") || filter < 0 || order < filter {
		t.Fatalf("expected symbol filter materialized before the distance sort, got %s", sql)
	}
}

func TestTopSimilarEmptyAndInvalid(t *testing.T) {
	repo := newTestRepo(&stubPool{})
	got, err := repo.TopSimilar(context.Background(), "AAPL", []float64{1, 0, 0}, 5)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v err=%v", got, err)
	}
	if _, err := repo.TopSimilar(context.Background(), "AAPL", []float64{1}, 0); !errors.Is(err, domain.ErrInvalidLimit) {
		t.Fatalf("expected invalid limit, got %v", err)
	}
}

func TestTopSimilarQueryError(t *testing.T) {
	repo := newTestRepo(&stubPool{queryErr: errors.New("connection reset")})
	if _, err := repo.TopSimilar(context.Background(), "AAPL", []float64{1}, 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestListMissingEmbeddingsAndUpdate(t *testing.T) {
	pool := &stubPool{rowsData: [][]any{
		{"x", "MSFT", "410.1", "buy", "", "Microsoft earnings", time.Unix(10, 0)},
	}}
	repo := newTestRepo(pool)

	rows, err := repo.ListMissingEmbeddings(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].NewsDigest != "Microsoft earnings" || rows[0].HasEmbedding() {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if pool.queryArgs[0] != 100 || pool.queryArgs[1] != domain.MaxEmbedAttempts {
		t.Fatalf("expected default limit 100 and attempt cap, got %v", pool.queryArgs)
	}
	if !strings.Contains(pool.querySQL, "ORDER BY embed_attempts ASC, created_at ASC") {
		t.Fatalf("expected failed rows to sort after fresh ones, got %s", pool.querySQL)
	}

	if err := repo.UpdateEmbedding(context.Background(), "x", []float64{0.25}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.execArgs[0][1] != "[0.25]" {
		t.Fatalf("unexpected update args %v", pool.execArgs[0])
	}
}

func TestUpdateEmbeddingUnknownRow(t *testing.T) {
	repo := newTestRepo(&stubPool{execTag: "UPDATE 0"})
	if err := repo.UpdateEmbedding(context.Background(), "gone", []float64{1}); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.MarkEmbeddingFailed(context.Background(), "gone"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkEmbeddingFailedIncrementsAttempts(t *testing.T) {
	pool := &stubPool{}
	if err := newTestRepo(pool).MarkEmbeddingFailed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(pool.execSQL[0], "embed_attempts = embed_attempts + 1") || pool.execArgs[0][0] != "x" {
		t.Fatalf("unexpected statement %s %v", pool.execSQL[0], pool.execArgs[0])
	}

	pool.execErr = errors.New("connection reset")
	if err := newTestRepo(pool).MarkEmbeddingFailed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestVectorLiteral(t *testing.T) {
	if got := VectorLiteral(nil); got != "[]" {
		t.Fatalf("unexpected literal %q", got)
	}
	if got := VectorLiteral([]float64{1e-7, 3}); got != "[0.0000001,3]" {
		t.Fatalf("unexpected literal %q", got)
	}
}

type stubPool struct {
	execSQL   []string
	execArgs  [][]any
	execErr   error
	execTag   string
	querySQL  string
	queryArgs []any
	queryErr  error
	rowsData  [][]any
}

func (s *stubPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execSQL = append(s.execSQL, sql)
	s.execArgs = append(s.execArgs, args)
	tag := s.execTag
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), s.execErr
}

func (s *stubPool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (s *stubPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.querySQL = sql
	s.queryArgs = args
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	dataCopy := make([][]any, len(s.rowsData))
	for i := range s.rowsData {
		row := make([]any, len(s.rowsData[i]))
		copy(row, s.rowsData[i])
		dataCopy[i] = row
	}
	return &stubRows{data: dataCopy}, nil
}

func (s *stubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &stubRow{}
}

type stubRows struct {
	data [][]any
	idx  int
}

func (r *stubRows) Close() {}

func (r *stubRows) Err() error { return nil }

func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return fmt.Errorf("invalid scan index")
	}
	row := r.data[r.idx-1]
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case *time.Time:
			*ptr = row[i].(time.Time)
		case *float64:
			*ptr = row[i].(float64)
		default:
			return fmt.Errorf("unsupported dest type %T", d)
		}
	}
	return nil
}

func (r *stubRows) Values() ([]any, error) { return nil, nil }

func (r *stubRows) RawValues() [][]byte { return nil }

func (r *stubRows) Conn() *pgx.Conn { return nil }

type stubRow struct{}

func (stubRow) Scan(dest ...any) error { return nil }
