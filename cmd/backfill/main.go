package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"market-echo/internal/app"
	"market-echo/internal/config"
	"market-echo/internal/db"
	"market-echo/internal/logging"
	"market-echo/internal/service"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBatchSize  = 50
	defaultMaxBatches = 100
)

var (
	loadEnvFunc      = godotenv.Load
	initPostgresFunc = db.InitPostgres
)

type options struct {
	batchSize  int
	maxBatches int
	timeout    time.Duration
}

// backfiller is the part of TransactionService this command drives.
type backfiller interface {
	BackfillEmbeddings(ctx context.Context, limit int) (int, error)
}

func main() {
	loadEnvFunc()

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("parse options")
	}

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	cfg.LogNotices()
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	initPostgresFunc(ctx)
	defer db.Close()

	tracer := trace.NewNoopTracerProvider().Tracer("backfill")
	store, err := app.NewStore(ctx, tracer, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("prepare transaction store")
	}
	svc := service.NewTransactionService(tracer, store, nil, nil, app.NewEmbedder(tracer, cfg), nil, app.Timeouts(cfg))

	log.Info().Int("batch_size", opts.batchSize).Int("max_batches", opts.maxBatches).Msg("starting embedding backfill")
	total, batches, err := run(ctx, svc, opts)
	if err != nil {
		log.Fatal().Err(err).Int("updated", total).Msg("backfill failed")
	}
	log.Info().Int("updated", total).Int("batches", batches).Msg("backfill complete")
}

// run drains rows without embeddings batch by batch. A batch that updated
// some rows but reported failures is logged and the run continues. It stops
// when a clean batch comes back short, when a batch updated nothing, or after
// maxBatches.
func run(ctx context.Context, b backfiller, opts options) (int, int, error) {
	total := 0
	batches := 0
	for batches < opts.maxBatches {
		n, err := b.BackfillEmbeddings(ctx, opts.batchSize)
		batches++
		total += n
		if err != nil && n == 0 {
			return total, batches, fmt.Errorf("batch %d: %w", batches, err)
		}
		if err != nil {
			log.Warn().Err(err).Int("batch", batches).Int("updated", n).Msg("backfill batch had failures")
			continue
		}
		log.Info().Int("batch", batches).Int("updated", n).Msg("backfill batch done")
		if n < opts.batchSize {
			break
		}
	}
	return total, batches, nil
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	batchSize := fs.Int("batch-size", defaultBatchSizeFromEnv(getenv), "rows to embed per batch (default from BACKFILL_BATCH_SIZE, else 50)")
	maxBatches := fs.Int("max-batches", defaultMaxBatches, "upper bound on batches in one run")
	timeout := fs.Duration("timeout", 20*time.Minute, "overall deadline for the run")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if *batchSize <= 0 {
		return options{}, fmt.Errorf("batch-size must be > 0")
	}
	if *maxBatches <= 0 {
		return options{}, fmt.Errorf("max-batches must be > 0")
	}
	if *timeout <= 0 {
		return options{}, fmt.Errorf("timeout must be > 0")
	}

	return options{
		batchSize:  *batchSize,
		maxBatches: *maxBatches,
		timeout:    *timeout,
	}, nil
}

func defaultBatchSizeFromEnv(getenv func(string) string) int {
	v := strings.TrimSpace(getenv("BACKFILL_BATCH_SIZE"))
	if v == "" {
		return defaultBatchSize
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultBatchSize
	}
	return n
}
