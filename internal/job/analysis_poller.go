package job

import (
	"context"
	"time"

	"market-echo/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultAnalysisPollInterval = 15 * time.Minute

type Analyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error)
}

type AnalysisNotifier interface {
	NotifyAnalyses(ctx context.Context, results []domain.AnalysisResult) error
}

// AnalysisPoller periodically analyses the watchlist and forwards results
// whose recommendation changed since the previous round.
type AnalysisPoller struct {
	tracer   trace.Tracer
	analyzer Analyzer
	notifier AnalysisNotifier
	symbols  []string
	interval time.Duration

	last map[string]string
}

func NewAnalysisPoller(tracer trace.Tracer, analyzer Analyzer, notifier AnalysisNotifier, symbols []string, intervalSecs int) *AnalysisPoller {
	interval := time.Duration(intervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultAnalysisPollInterval
	}
	return &AnalysisPoller{
		tracer:   tracer,
		analyzer: analyzer,
		notifier: notifier,
		symbols:  append([]string(nil), symbols...),
		interval: interval,
		last:     make(map[string]string),
	}
}

// Start blocks until ctx is cancelled.
func (p *AnalysisPoller) Start(ctx context.Context) {
	if p.analyzer == nil || len(p.symbols) == 0 {
		log.Info().Msg("analysis poller disabled: empty watchlist")
		<-ctx.Done()
		return
	}

	log.Info().Strs("symbols", p.symbols).Dur("interval", p.interval).Msg("analysis poller starting")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("analysis poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *AnalysisPoller) poll(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "analysis-poller.poll")
	defer span.End()

	var changed []domain.AnalysisResult
	for _, symbol := range p.symbols {
		if ctx.Err() != nil {
			return
		}
		result, err := p.analyzer.Analyze(ctx, domain.AnalysisRequest{Symbol: symbol})
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Str("kind", string(domain.KindOf(err))).Msg("watchlist analysis failed")
			continue
		}
		rec := result.TrendAnalysis.Recommendation
		if p.last[symbol] == rec {
			continue
		}
		p.last[symbol] = rec
		changed = append(changed, *result)
	}
	span.SetAttributes(attribute.Int("changed", len(changed)))

	if len(changed) == 0 || p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyAnalyses(ctx, changed); err != nil {
		log.Warn().Err(err).Int("results", len(changed)).Msg("analysis alert delivery failed")
	}
}
