package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-echo/internal/domain"
	"market-echo/internal/metrics"
	"market-echo/internal/similarity"
	"market-echo/internal/trend"
	"market-echo/internal/validator"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type NewsProvider interface {
	Search(ctx context.Context, symbol string, n int) ([]domain.Headline, error)
}

type PriceProvider interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]float64, error)
}

type SimilarityStore interface {
	TopSimilar(ctx context.Context, symbol string, query []float64, k int) ([]domain.SimilarTransaction, error)
}

type RecommendationValidator interface {
	Validate(ctx context.Context, brief validator.Brief) (*domain.ValidatedVerdict, error)
}

// Timeouts bound each external call. Analysis is the overall request
// deadline; a zero value disables that particular bound.
type Timeouts struct {
	Analysis   time.Duration
	News       time.Duration
	Embedding  time.Duration
	Retrieval  time.Duration
	Price      time.Duration
	Validation time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Analysis:   45 * time.Second,
		News:       8 * time.Second,
		Embedding:  10 * time.Second,
		Retrieval:  5 * time.Second,
		Price:      8 * time.Second,
		Validation: 30 * time.Second,
	}
}

type AnalysisOptions struct {
	Timeouts   Timeouts
	NewsCount  int
	MaxLimit   int
	Thresholds trend.Thresholds
	Metrics    *metrics.Metrics
}

// AnalysisService runs the news, embedding, retrieval, price, trend and
// validation pipeline for one symbol. It holds no per-request state and is
// safe for concurrent use.
type AnalysisService struct {
	tracer    trace.Tracer
	news      NewsProvider
	prices    PriceProvider
	embedder  Embedder
	store     SimilarityStore
	validator RecommendationValidator
	opts      AnalysisOptions
	now       func() time.Time
}

// NewAnalysisService wires the pipeline. v may be nil, in which case the
// validation stage is skipped with a warning.
func NewAnalysisService(
	tracer trace.Tracer,
	news NewsProvider,
	prices PriceProvider,
	embedder Embedder,
	store SimilarityStore,
	v RecommendationValidator,
	opts AnalysisOptions,
) *AnalysisService {
	if opts.NewsCount <= 0 {
		opts.NewsCount = domain.DefaultHeadlines
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = domain.MaxSimilarLimit
	}
	if opts.Thresholds == (trend.Thresholds{}) {
		opts.Thresholds = trend.DefaultThresholds()
	}
	return &AnalysisService{
		tracer:    tracer,
		news:      news,
		prices:    prices,
		embedder:  embedder,
		store:     store,
		validator: v,
		opts:      opts,
		now:       time.Now,
	}
}

// Defaults returns the request used when a caller supplies no overrides.
func (s *AnalysisService) Defaults() domain.AnalysisRequest {
	return domain.AnalysisRequest{
		Limit:               domain.DefaultSimilarLimit,
		VolatilityThreshold: s.opts.Thresholds.Volatility,
		TrendThreshold:      s.opts.Thresholds.Trend,
	}
}

// Analyze runs one request. Terminal failures are returned as
// *domain.AnalysisError; absorbed failures appear in the result's Warnings.
func (s *AnalysisService) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "analysis-service.analyze")
	defer span.End()

	if req.VolatilityThreshold == 0 {
		req.VolatilityThreshold = s.opts.Thresholds.Volatility
	}
	if req.TrendThreshold == 0 {
		req.TrendThreshold = s.opts.Thresholds.Trend
	}
	req = req.WithDefaults()
	span.SetAttributes(attribute.String("symbol", req.Symbol), attribute.Int("limit", req.Limit))

	result, err := s.analyze(ctx, span, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.opts.Metrics.ObserveAnalysis(metrics.OutcomeError, s.now().Sub(started))
		return nil, err
	}

	outcome := metrics.OutcomeOK
	if result.InsufficientHistory || result.Validation == nil {
		outcome = metrics.OutcomeDegraded
	}
	s.opts.Metrics.ObserveAnalysis(outcome, s.now().Sub(started))
	span.SetAttributes(
		attribute.String("trend", string(result.TrendAnalysis.TrendDirection)),
		attribute.String("risk", string(result.TrendAnalysis.RiskLevel)),
		attribute.Int("similar", len(result.SimilarTransactions)),
	)
	return result, nil
}

func (s *AnalysisService) analyze(ctx context.Context, span trace.Span, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	th := trend.Thresholds{Volatility: req.VolatilityThreshold, Trend: req.TrendThreshold}
	if err := s.validateRequest(req, th); err != nil {
		return nil, s.fail(span, req.Symbol, domain.StageStart, domain.KindInvalidRequest, err)
	}
	if req.Limit > s.opts.MaxLimit {
		req.Limit = s.opts.MaxLimit
	}

	ctx, cancel := withOptionalTimeout(ctx, s.opts.Timeouts.Analysis)
	defer cancel()

	result := &domain.AnalysisResult{
		Symbol:              req.Symbol,
		CurrentNews:         []string{},
		SimilarTransactions: []domain.SimilarTransaction{},
	}

	// news and price have no dependency on each other
	var (
		headlines []domain.Headline
		price     float64
		newsErr   error
		priceErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cctx, cancel := withOptionalTimeout(gctx, s.opts.Timeouts.News)
		defer cancel()
		headlines, newsErr = s.news.Search(cctx, req.Symbol, s.opts.NewsCount)
		newsErr = classifyTimeout(cctx, newsErr)
		return nil
	})
	g.Go(func() error {
		cctx, cancel := withOptionalTimeout(gctx, s.opts.Timeouts.Price)
		defer cancel()
		price, priceErr = s.prices.CurrentPrice(cctx, req.Symbol)
		priceErr = classifyTimeout(cctx, priceErr)
		return nil
	})
	_ = g.Wait()

	if newsErr != nil {
		return nil, s.fail(span, req.Symbol, domain.StageNews, domain.KindNewsUnavailable, newsErr)
	}
	if priceErr != nil {
		return nil, s.fail(span, req.Symbol, domain.StagePriceLookup, domain.KindPriceUnavailable, priceErr)
	}
	result.CurrentPrice = price
	result.CurrentNews = domain.HeadlineTitles(headlines)

	var retrieved []domain.SimilarTransaction
	if len(result.CurrentNews) == 0 {
		s.warn(result, domain.StageNews, domain.KindNewsUnavailable, errors.New("no recent news, similarity search skipped"))
	} else {
		var err error
		retrieved, err = s.retrieve(ctx, span, req, result.CurrentNews)
		if err != nil {
			return nil, err
		}
	}

	result.SimilarTransactions = tagged(retrieved, price)
	chronological := similarity.Chronological(result.SimilarTransactions)
	analysis, err := trend.Analyze(price, similarity.Prices(chronological), th)
	switch {
	case errors.Is(err, domain.ErrInsufficientHistory):
		result.InsufficientHistory = true
		s.warn(result, domain.StageTrendCompute, domain.KindInsufficientHistory, err)
	case err != nil:
		return nil, s.fail(span, req.Symbol, domain.StageTrendCompute, domain.KindInternal, err)
	}
	result.TrendAnalysis = analysis

	s.validate(ctx, result)
	result.GeneratedAt = s.now().UTC()
	return result, nil
}

// FindSimilar runs only the news, embedding and retrieval stages. Results
// carry no profit/loss tag since no current price is looked up.
func (s *AnalysisService) FindSimilar(ctx context.Context, symbol string, k int) ([]string, []domain.SimilarTransaction, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.find-similar")
	defer span.End()

	req := domain.AnalysisRequest{Symbol: symbol, Limit: k}.WithDefaults()
	if req.Symbol == "" {
		return nil, nil, s.fail(span, req.Symbol, domain.StageStart, domain.KindInvalidRequest, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput))
	}
	if req.Limit < 1 {
		return nil, nil, s.fail(span, req.Symbol, domain.StageStart, domain.KindInvalidRequest, domain.ErrInvalidLimit)
	}
	if req.Limit > s.opts.MaxLimit {
		req.Limit = s.opts.MaxLimit
	}

	ctx, cancel := withOptionalTimeout(ctx, s.opts.Timeouts.Analysis)
	defer cancel()

	nctx, ncancel := withOptionalTimeout(ctx, s.opts.Timeouts.News)
	headlines, err := s.news.Search(nctx, req.Symbol, s.opts.NewsCount)
	err = classifyTimeout(nctx, err)
	ncancel()
	if err != nil {
		return nil, nil, s.fail(span, req.Symbol, domain.StageNews, domain.KindNewsUnavailable, err)
	}
	titles := domain.HeadlineTitles(headlines)
	if len(titles) == 0 {
		return titles, []domain.SimilarTransaction{}, nil
	}
	similar, err := s.retrieve(ctx, span, req, titles)
	if err != nil {
		return nil, nil, err
	}
	return titles, similar, nil
}

func (s *AnalysisService) retrieve(ctx context.Context, span trace.Span, req domain.AnalysisRequest, titles []string) ([]domain.SimilarTransaction, error) {
	ectx, cancel := withOptionalTimeout(ctx, s.opts.Timeouts.Embedding)
	vector, err := s.embedder.Embed(ectx, titles)
	err = classifyTimeout(ectx, err)
	cancel()
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		return nil, s.fail(span, req.Symbol, domain.StageEmbedding, domain.KindEmbeddingUnavailable, err)
	}

	rctx, cancel := withOptionalTimeout(ctx, s.opts.Timeouts.Retrieval)
	retrieved, err := s.store.TopSimilar(rctx, req.Symbol, vector, req.Limit)
	err = classifyTimeout(rctx, err)
	cancel()
	if err != nil {
		return nil, s.fail(span, req.Symbol, domain.StageRetrieval, domain.KindRetrievalFailed, err)
	}
	if retrieved == nil {
		retrieved = []domain.SimilarTransaction{}
	}
	return retrieved, nil
}

func (s *AnalysisService) validate(ctx context.Context, result *domain.AnalysisResult) {
	if s.validator == nil {
		s.warn(result, domain.StageValidation, domain.KindValidationFailed, errors.New("validation disabled"))
		return
	}

	vctx, cancel := withOptionalTimeout(ctx, s.opts.Timeouts.Validation)
	defer cancel()
	verdict, err := s.validator.Validate(vctx, validator.Brief{
		Symbol:              result.Symbol,
		Headlines:           result.CurrentNews,
		CurrentPrice:        result.CurrentPrice,
		SimilarTransactions: result.SimilarTransactions,
		Trend:               result.TrendAnalysis,
		InsufficientHistory: result.InsufficientHistory,
	})
	err = classifyTimeout(vctx, err)
	if err != nil {
		kind := domain.KindValidationFailed
		switch {
		case errors.Is(err, domain.ErrValidationParse):
			kind = domain.KindValidationParse
		case errors.Is(err, domain.ErrUpstreamTimeout):
			kind = domain.KindUpstreamTimeout
		}
		s.warn(result, domain.StageValidation, kind, err)
		return
	}
	if verdict == nil {
		s.warn(result, domain.StageValidation, domain.KindValidationParse, domain.ErrValidationParse)
		return
	}
	result.Validation = verdict
	s.opts.Metrics.Verdict(verdict.Agreement)
}

func (s *AnalysisService) validateRequest(req domain.AnalysisRequest, th trend.Thresholds) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if req.Limit < 1 {
		return domain.ErrInvalidLimit
	}
	return th.Validate()
}

func (s *AnalysisService) fail(span trace.Span, symbol string, stage domain.Stage, kind domain.ErrorKind, err error) error {
	ae := &domain.AnalysisError{Kind: kind, Stage: stage, Symbol: symbol, Err: err}
	event := log.Error()
	if kind == domain.KindInvalidRequest || kind == domain.KindPriceUnavailable {
		event = log.Warn()
	}
	event.Err(err).
		Str("symbol", symbol).
		Str("stage", string(stage)).
		Str("kind", string(kind)).
		Bool("timeout", ae.Timeout()).
		Msg("analysis aborted")
	s.opts.Metrics.StageFailure(string(stage), string(kind))
	span.RecordError(ae)
	return ae
}

func (s *AnalysisService) warn(result *domain.AnalysisResult, stage domain.Stage, kind domain.ErrorKind, err error) {
	log.Warn().Err(err).
		Str("symbol", result.Symbol).
		Str("stage", string(stage)).
		Str("kind", string(kind)).
		Msg("analysis degraded")
	s.opts.Metrics.StageFailure(string(stage), string(kind))
	result.Warnings = append(result.Warnings, domain.Warning{Stage: stage, Kind: kind, Message: err.Error()})
}

// tagged derives profit/loss labelled copies, keeping rank order.
func tagged(items []domain.SimilarTransaction, currentPrice float64) []domain.SimilarTransaction {
	out := make([]domain.SimilarTransaction, len(items))
	for i, it := range items {
		it.ProfitLoss = trend.TagProfitLoss(it.Price, currentPrice)
		out[i] = it
	}
	return out
}

// classifyTimeout marks err as an upstream timeout when ctx's deadline
// passed, keeping the original error in the chain.
func classifyTimeout(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, domain.ErrUpstreamTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", err, domain.ErrUpstreamTimeout)
	}
	return err
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
