package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"market-echo/internal/domain"
	"market-echo/internal/embedding"
	"market-echo/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type TransactionStore interface {
	InsertTransaction(ctx context.Context, tx domain.Transaction) error
	ListMissingEmbeddings(ctx context.Context, limit int) ([]domain.Transaction, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float64) error
	MarkEmbeddingFailed(ctx context.Context, id string) error
}

type RecordRequest struct {
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	BuyerID string `json:"buyer_id"`
}

// TransactionService is the write path: it captures the price and news
// context at the moment of a trade so later analyses can retrieve it.
type TransactionService struct {
	tracer    trace.Tracer
	store     TransactionStore
	news      NewsProvider
	prices    PriceProvider
	embedder  Embedder
	metrics   *metrics.Metrics
	newsCount int
	timeouts  Timeouts
	now       func() time.Time
	newID     func() string
}

func NewTransactionService(
	tracer trace.Tracer,
	store TransactionStore,
	news NewsProvider,
	prices PriceProvider,
	embedder Embedder,
	m *metrics.Metrics,
	timeouts Timeouts,
) *TransactionService {
	return &TransactionService{
		tracer:    tracer,
		store:     store,
		news:      news,
		prices:    prices,
		embedder:  embedder,
		metrics:   m,
		newsCount: domain.DefaultHeadlines,
		timeouts:  timeouts,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Record stores a trade. The row is written even when embedding fails; the
// backfill job picks it up later.
func (s *TransactionService) Record(ctx context.Context, req RecordRequest) (*domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "transaction-service.record")
	defer span.End()

	symbol := domain.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	side, ok := domain.ParseSide(req.Side)
	if !ok {
		return nil, fmt.Errorf("%w: side must be buy or sell, got %q", domain.ErrInvalidInput, req.Side)
	}
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("side", string(side)))

	nctx, cancel := withOptionalTimeout(ctx, s.timeouts.News)
	headlines, err := s.news.Search(nctx, symbol, s.newsCount)
	err = classifyTimeout(nctx, err)
	cancel()
	if err != nil {
		return nil, err
	}
	titles := domain.HeadlineTitles(headlines)
	if len(titles) == 0 {
		return nil, fmt.Errorf("%w: no recent news for %s", domain.ErrNewsUnavailable, symbol)
	}

	pctx, cancel := withOptionalTimeout(ctx, s.timeouts.Price)
	price, err := s.prices.CurrentPrice(pctx, symbol)
	err = classifyTimeout(pctx, err)
	cancel()
	if err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		ID:         s.newID(),
		Symbol:     symbol,
		Price:      decimal.NewFromFloat(price),
		Timestamp:  s.now().UTC(),
		Side:       side,
		BuyerID:    strings.TrimSpace(req.BuyerID),
		NewsDigest: embedding.Join(titles),
	}

	ectx, cancel := withOptionalTimeout(ctx, s.timeouts.Embedding)
	vector, err := s.embedder.Embed(ectx, titles)
	err = classifyTimeout(ectx, err)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Str("id", tx.ID).Msg("embedding failed, storing transaction without embedding")
	} else {
		tx.Embedding = vector
	}

	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	s.metrics.TransactionRecorded(tx.HasEmbedding())
	log.Info().Str("symbol", symbol).Str("id", tx.ID).Str("side", string(side)).Str("price", tx.Price.String()).Msg("transaction recorded")
	return &tx, nil
}

// BackfillEmbeddings embeds up to limit rows stored without a vector and
// returns how many were updated along with any per-row failures. A failing
// row does not stop the batch; it is marked so later batches reach the rows
// queued behind it.
func (s *TransactionService) BackfillEmbeddings(ctx context.Context, limit int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "transaction-service.backfill-embeddings")
	defer span.End()

	rows, err := s.store.ListMissingEmbeddings(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list missing embeddings: %w", err)
	}

	updated := 0
	var errs []error
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ectx, cancel := withOptionalTimeout(ctx, s.timeouts.Embedding)
		vector, err := s.embedder.Embed(ectx, []string{row.NewsDigest})
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("id", row.ID).Str("symbol", row.Symbol).Msg("backfill embedding failed")
			errs = append(errs, fmt.Errorf("embed %s: %w", row.ID, err))
			s.markFailed(ctx, row)
			continue
		}
		if err := s.store.UpdateEmbedding(ctx, row.ID, vector); err != nil {
			log.Warn().Err(err).Str("id", row.ID).Str("symbol", row.Symbol).Msg("backfill update failed")
			errs = append(errs, fmt.Errorf("update %s: %w", row.ID, err))
			s.markFailed(ctx, row)
			continue
		}
		updated++
	}

	s.metrics.Backfilled(updated)
	span.SetAttributes(
		attribute.Int("candidates", len(rows)),
		attribute.Int("updated", updated),
		attribute.Int("failed", len(errs)),
	)
	return updated, errors.Join(errs...)
}

func (s *TransactionService) markFailed(ctx context.Context, row domain.Transaction) {
	if err := s.store.MarkEmbeddingFailed(ctx, row.ID); err != nil {
		log.Error().Err(err).Str("id", row.ID).Str("symbol", row.Symbol).Msg("could not record backfill failure")
	}
}
