package job

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBackfillBatchSize = 50
	defaultBackfillInterval  = 10 * time.Minute
)

type EmbeddingBackfiller interface {
	BackfillEmbeddings(ctx context.Context, limit int) (int, error)
}

// EmbeddingBackfill re-embeds transactions that were stored without a
// vector, for example while the embedding API was down.
type EmbeddingBackfill struct {
	tracer    trace.Tracer
	backfill  EmbeddingBackfiller
	batchSize int
	interval  time.Duration
}

func NewEmbeddingBackfill(tracer trace.Tracer, backfill EmbeddingBackfiller, batchSize, intervalSecs int) *EmbeddingBackfill {
	if batchSize <= 0 {
		batchSize = defaultBackfillBatchSize
	}
	interval := time.Duration(intervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultBackfillInterval
	}
	return &EmbeddingBackfill{
		tracer:    tracer,
		backfill:  backfill,
		batchSize: batchSize,
		interval:  interval,
	}
}

func (j *EmbeddingBackfill) Start(ctx context.Context) {
	if j == nil || j.backfill == nil {
		<-ctx.Done()
		return
	}

	log.Info().Int("batch", j.batchSize).Dur("interval", j.interval).Msg("embedding backfill starting")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("embedding backfill stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce processes a single batch and returns the number of rows updated.
func (j *EmbeddingBackfill) RunOnce(ctx context.Context) int {
	if j.tracer != nil {
		var span trace.Span
		ctx, span = j.tracer.Start(ctx, "embedding-backfill.run")
		defer span.End()
	}
	count, err := j.backfill.BackfillEmbeddings(ctx, j.batchSize)
	if err != nil {
		log.Warn().Err(err).Int("rows", count).Msg("embedding backfill finished with errors")
		return count
	}
	if count > 0 {
		log.Info().Int("rows", count).Msg("embedding backfill updated transactions")
	}
	return count
}
