package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"market-echo/internal/app"
	"market-echo/internal/cache"
	"market-echo/internal/config"
	"market-echo/internal/db"
	"market-echo/internal/domain"
	"market-echo/internal/logging"
	"market-echo/internal/report"
	"market-echo/internal/service"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
)

const commandTimeout = 90 * time.Second

type analyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error)
	Defaults() domain.AnalysisRequest
}

type market interface {
	News(ctx context.Context, symbol string) ([]domain.Headline, error)
	Price(ctx context.Context, symbol string) (float64, error)
}

type services struct {
	analysis analyzer
	market   market
}

// buildServicesFunc wires the pipeline from the environment. The returned
// cleanup closes any database pool it opened.
var buildServicesFunc = func(ctx context.Context) (*services, func(), error) {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	cfg.LogNotices()

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	db.InitPostgres(ctx)
	cache.InitRedis(ctx)

	tracer := trace.NewNoopTracerProvider().Tracer("analyze-cli")
	store, err := app.NewStore(ctx, tracer, cfg)
	if err != nil {
		db.Close()
		return nil, func() {}, fmt.Errorf("prepare transaction store: %w", err)
	}
	news := app.NewNewsProvider(tracer, cfg)
	prices := app.NewPriceProvider(tracer)
	return &services{
		analysis: service.NewAnalysisService(tracer, news, prices, app.NewEmbedder(tracer, cfg), store,
			app.NewValidator(tracer, cfg), app.AnalysisOptions(cfg, nil)),
		market: service.NewMarketService(tracer, news, prices, cfg.NewsCount, app.Timeouts(cfg)),
	}, db.Close, nil
}

func main() {
	godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "market-echo",
		Short: "Compare today's news for a symbol with similar past transactions",
		Long: `market-echo looks up current headlines and price for a ticker, retrieves the
past transactions recorded under the most similar news, and reports the
resulting trend, risk and a reviewed recommendation.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newNewsCmd())
	rootCmd.AddCommand(newPriceCmd())
	return rootCmd
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <symbol>",
		Short: "Run the full analysis for a symbol",
		Example: `  market-echo analyze AAPL
  market-echo analyze MSFT --limit 10 --trend-threshold 2
  market-echo analyze TSLA --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			volatility, _ := cmd.Flags().GetFloat64("volatility-threshold")
			trendThreshold, _ := cmd.Flags().GetFloat64("trend-threshold")
			asJSON, _ := cmd.Flags().GetBool("json")

			return withServices(cmd, func(ctx context.Context, svc *services) error {
				req := svc.analysis.Defaults()
				req.Symbol = domain.NormalizeSymbol(args[0])
				if limit != 0 {
					req.Limit = limit
				}
				if cmd.Flags().Changed("volatility-threshold") {
					req.VolatilityThreshold = volatility
				}
				if cmd.Flags().Changed("trend-threshold") {
					req.TrendThreshold = trendThreshold
				}
				if req.Limit <= 0 || req.VolatilityThreshold <= 0 || req.TrendThreshold <= 0 {
					return fmt.Errorf("limit and thresholds must be positive")
				}

				result, err := svc.analysis.Analyze(ctx, req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				_, err = io.WriteString(cmd.OutOrStdout(), report.Analysis(result))
				return err
			})
		},
	}

	cmd.Flags().Int("limit", 0, "number of similar transactions to consider (default 5, max 50)")
	cmd.Flags().Float64("volatility-threshold", 0, "volatility ratio above which risk is high (default 0.05)")
	cmd.Flags().Float64("trend-threshold", 0, "percent change above which a trend is reported (default 1.0)")
	cmd.Flags().Bool("json", false, "print the raw result as JSON")
	return cmd
}

func newNewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "news <symbol>",
		Short: "List current headlines for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc *services) error {
				symbol := domain.NormalizeSymbol(args[0])
				headlines, err := svc.market.News(ctx, symbol)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), report.Headlines(symbol, headlines))
				return err
			})
		},
	}
}

func newPriceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price <symbol>",
		Short: "Show the current price for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc *services) error {
				symbol := domain.NormalizeSymbol(args[0])
				price, err := svc.market.Price(ctx, symbol)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), report.Price(symbol, price))
				return err
			})
		},
	}
}

func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *services) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	svc, cleanup, err := buildServicesFunc(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, svc)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
