package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"market-echo/internal/domain"

	"github.com/rs/zerolog/log"
)

type Config struct {
	TelegramBotToken   string
	DatabaseURL        string
	RedisURL           string
	HTTPAddr           string
	APIRateLimitPerMin int

	LogLevel  string
	LogFormat string

	OpenAIAPIKey        string
	OpenAIBaseURL       string
	EmbeddingModel      string
	EmbeddingDimensions int
	ValidationModel     string

	VolatilityThreshold float64
	TrendThreshold      float64
	NewsCount           int
	NewsCacheTTLSecs    int
	YahooSearchURL      string

	AnalysisTimeoutSecs   int
	NewsTimeoutSecs       int
	EmbeddingTimeoutSecs  int
	RetrievalTimeoutSecs  int
	PriceTimeoutSecs      int
	ValidationTimeoutSecs int

	Watchlist        []string
	AnalysisPollSecs int

	BackfillPollSecs  int
	BackfillBatchSize int

	MCPTransport          string
	MCPHTTPEnabled        bool
	MCPHTTPBind           string
	MCPHTTPPort           int
	MCPAuthToken          string
	MCPRequestTimeoutSecs int
	MCPRateLimitPerMin    int

	// Notices holds problems found by Load. They are kept until the logger
	// is configured, see LogNotices.
	Notices []Notice
}

// Notice is one setting that was missing or invalid.
type Notice struct {
	Key   string
	Value string
	Msg   string
}

// Load reads the environment. It does not log; call LogNotices after
// logging.Setup so the warnings honour LOG_LEVEL and LOG_FORMAT.
func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		MCPAuthToken:     os.Getenv("MCP_AUTH_TOKEN"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
	}

	if cfg.TelegramBotToken == "" {
		cfg.notice("TELEGRAM_BOT_TOKEN", "", "TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		cfg.notice("DATABASE_URL", "", "DATABASE_URL not set, transactions will be kept in memory")
	}
	if cfg.RedisURL == "" {
		cfg.notice("REDIS_URL", "", "REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.notice("OPENAI_API_KEY", "", "OPENAI_API_KEY not set, embedding and validation will fail")
	}

	cfg.HTTPAddr = stringOr("HTTP_ADDR", ":8080")
	cfg.APIRateLimitPerMin = cfg.positiveInt("API_RATE_LIMIT_PER_MIN", 120)

	cfg.LogLevel = strings.ToLower(stringOr("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(stringOr("LOG_FORMAT", "console"))
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		cfg.notice("LOG_FORMAT", cfg.LogFormat, "unsupported LOG_FORMAT, defaulting to console")
		cfg.LogFormat = "console"
	}

	cfg.EmbeddingModel = stringOr("EMBEDDING_MODEL", "text-embedding-ada-002")
	cfg.EmbeddingDimensions = cfg.positiveInt("EMBEDDING_DIMENSIONS", 1536)
	cfg.ValidationModel = stringOr("VALIDATION_MODEL", "gpt-4o-mini")

	cfg.VolatilityThreshold = cfg.positiveFloat("VOLATILITY_THRESHOLD", domain.DefaultVolatilityThreshold)
	cfg.TrendThreshold = cfg.positiveFloat("TREND_THRESHOLD", domain.DefaultTrendThreshold)
	cfg.NewsCount = cfg.positiveInt("NEWS_COUNT", domain.DefaultHeadlines)
	cfg.NewsCacheTTLSecs = 300
	if v := strings.TrimSpace(os.Getenv("NEWS_CACHE_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.NewsCacheTTLSecs = n
		}
	}
	cfg.YahooSearchURL = stringOr("YAHOO_SEARCH_URL", "https://query1.finance.yahoo.com")

	cfg.AnalysisTimeoutSecs = cfg.positiveInt("ANALYSIS_TIMEOUT_SECS", 45)
	cfg.NewsTimeoutSecs = cfg.positiveInt("NEWS_TIMEOUT_SECS", 8)
	cfg.EmbeddingTimeoutSecs = cfg.positiveInt("EMBEDDING_TIMEOUT_SECS", 10)
	cfg.RetrievalTimeoutSecs = cfg.positiveInt("RETRIEVAL_TIMEOUT_SECS", 5)
	cfg.PriceTimeoutSecs = cfg.positiveInt("PRICE_TIMEOUT_SECS", 8)
	cfg.ValidationTimeoutSecs = cfg.positiveInt("VALIDATION_TIMEOUT_SECS", 30)

	cfg.Watchlist = ParseSymbols(os.Getenv("WATCHLIST"))
	cfg.AnalysisPollSecs = cfg.positiveInt("ANALYSIS_POLL_SECS", 900)

	cfg.BackfillPollSecs = cfg.positiveInt("BACKFILL_POLL_SECS", 600)
	cfg.BackfillBatchSize = cfg.positiveInt("BACKFILL_BATCH_SIZE", 50)

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		cfg.notice("MCP_TRANSPORT", cfg.MCPTransport, "unsupported MCP_TRANSPORT, defaulting to stdio")
		cfg.MCPTransport = "stdio"
	}
	cfg.MCPHTTPEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("MCP_HTTP_ENABLED")), "true")
	cfg.MCPHTTPBind = stringOr("MCP_HTTP_BIND", "127.0.0.1")
	cfg.MCPHTTPPort = cfg.positiveInt("MCP_HTTP_PORT", 8090)
	cfg.MCPRequestTimeoutSecs = cfg.positiveInt("MCP_REQUEST_TIMEOUT_SECS", 60)
	cfg.MCPRateLimitPerMin = cfg.positiveInt("MCP_RATE_LIMIT_PER_MIN", 60)

	return cfg
}

func (c *Config) notice(key, value, msg string) {
	c.Notices = append(c.Notices, Notice{Key: key, Value: value, Msg: msg})
}

// LogNotices writes the problems collected by Load as warnings.
func (c *Config) LogNotices() {
	for _, n := range c.Notices {
		ev := log.Warn().Str("key", n.Key)
		if n.Value != "" {
			ev = ev.Str("value", n.Value)
		}
		ev.Msg(n.Msg)
	}
}

// Timeout converts a seconds setting into a duration.
func Timeout(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// ParseSymbols splits a comma separated list, normalizing case and dropping
// blanks and duplicates.
func ParseSymbols(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		s := domain.NormalizeSymbol(part)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func stringOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (c *Config) positiveInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		c.notice(key, v, fmt.Sprintf("invalid integer setting, using default %d", fallback))
		return fallback
	}
	return n
}

func (c *Config) positiveFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || !(n > 0) || math.IsInf(n, 0) {
		c.notice(key, v, fmt.Sprintf("invalid number setting, using default %g", fallback))
		return fallback
	}
	return n
}
