package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"market-echo/internal/domain"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

const commandTimeout = 60 * time.Second

type Analyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error)
}

type MarketReader interface {
	News(ctx context.Context, symbol string) ([]domain.Headline, error)
	Price(ctx context.Context, symbol string) (float64, error)
}

// StartTelegramBot registers the chat commands and starts long polling in
// the background. It returns nil when token is empty.
func StartTelegramBot(token string, analyzer Analyzer, market MarketReader) *AlertDispatcher {
	if token == "" {
		log.Info().Msg("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Telegram bot")
	}
	alerts := NewAlertDispatcher(b)

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/price", func(c tele.Context) error {
		return c.Send(priceReply(market, c.Args()))
	})

	b.Handle("/news", func(c tele.Context) error {
		return c.Send(newsReply(market, c.Args()))
	})

	b.Handle("/analyze", func(c tele.Context) error {
		_ = c.Notify(tele.Typing)
		return c.Send(analyzeReply(analyzer, c.Args()))
	})

	b.Handle("/alerts", func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return c.Send("Unable to detect chat")
		}
		return c.Send(alertsReply(alerts, chat.ID, c.Args()))
	})

	log.Info().Msg("Telegram bot started")
	go b.Start()
	return alerts
}

func priceReply(market MarketReader, args []string) string {
	symbol, ok := symbolArg(args)
	if !ok {
		return "Usage: /price AAPL"
	}
	if market == nil {
		return "Market data unavailable"
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	price, err := market.Price(ctx, symbol)
	if err != nil {
		return fmt.Sprintf("No price for %s: %v", symbol, err)
	}
	return fmt.Sprintf("%s\nPrice: $%.2f", symbol, price)
}

func newsReply(market MarketReader, args []string) string {
	symbol, ok := symbolArg(args)
	if !ok {
		return "Usage: /news AAPL"
	}
	if market == nil {
		return "Market data unavailable"
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	headlines, err := market.News(ctx, symbol)
	if err != nil {
		return fmt.Sprintf("Error fetching news for %s: %v", symbol, err)
	}
	if len(headlines) == 0 {
		return fmt.Sprintf("No recent news for %s.", symbol)
	}
	lines := []string{symbol + " headlines:"}
	for _, h := range headlines {
		lines = append(lines, "- "+h.Title)
	}
	return strings.Join(lines, "\n")
}

func analyzeReply(analyzer Analyzer, args []string) string {
	req, err := parseAnalyzeArgs(args)
	if err != nil {
		return "Usage: /analyze AAPL [limit]"
	}
	if analyzer == nil {
		return "Analysis unavailable"
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := analyzer.Analyze(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("symbol", req.Symbol).Msg("telegram analysis failed")
		return fmt.Sprintf("Analysis failed for %s (%s)", req.Symbol, domain.KindOf(err))
	}
	return formatAnalysis(*result)
}

func parseAnalyzeArgs(args []string) (domain.AnalysisRequest, error) {
	symbol, ok := symbolArg(args)
	if !ok {
		return domain.AnalysisRequest{}, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	req := domain.AnalysisRequest{Symbol: symbol}
	if len(args) > 1 {
		n, err := strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil || n < 1 {
			return domain.AnalysisRequest{}, domain.ErrInvalidLimit
		}
		if n > domain.MaxSimilarLimit {
			n = domain.MaxSimilarLimit
		}
		req.Limit = n
	}
	return req, nil
}

func symbolArg(args []string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	symbol := domain.NormalizeSymbol(args[0])
	return symbol, symbol != ""
}

func alertsReply(alerts *AlertDispatcher, chatID int64, args []string) string {
	mode, symbols, err := parseAlertArgs(args)
	if err != nil {
		return "Usage: /alerts on [SYMBOL...] | /alerts off | /alerts status"
	}

	switch mode {
	case "on":
		created := alerts.Subscribe(chatID, symbols...)
		scope, _ := alerts.Subscription(chatID)
		if created {
			return "Watchlist alerts enabled for " + scope + "."
		}
		return "Watchlist alerts updated: " + scope + "."
	case "off":
		if alerts.Unsubscribe(chatID) {
			return "Watchlist alerts disabled for this chat."
		}
		return "Watchlist alerts are already disabled for this chat."
	default:
		if scope, ok := alerts.Subscription(chatID); ok {
			return "Alerts status: ON (" + scope + ")"
		}
		return "Alerts status: OFF"
	}
}
