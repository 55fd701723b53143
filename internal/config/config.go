package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port        string
	DatabaseURL string
	// Provider mode: "live" wires the real market-data adapters, "fake"
	// prices everything with a constant.
	Provider        string
	ProviderTimeout time.Duration
	UserAgent       string
	YahooBaseURL    string
	BinanceBaseURL  string
	CoinGeckoBase   string
	CoinGeckoAPIKey string
	StooqBaseURL    string
	StooqAPIKey     string
	MetalsPageURL   string
	GramGoldPageURL string
	// Rate limiting, per provider
	YahooRPS     float64
	BinanceRPS   float64
	CoinGeckoRPS float64
	StooqRPS     float64
	ScraperRPS   float64
	MaxJitter    time.Duration
	MaxRetries   int
	// Circuit breaker
	BreakerFailures int
	BreakerReset    time.Duration
	// Cache
	PrewarmDays    int
	SymbolCacheTTL time.Duration

	PriceCacheEntries int
	PriceCacheTTL     time.Duration
	LiveQuoteTTL      time.Duration
	// Judge
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	MinJudgeConfidence float64
	// Worker
	WorkerPoll        time.Duration
	WorkerBatchSize   int
	WorkerConcurrency int
	StaleAfter        time.Duration
	// Redis (idempotency, symbol search cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func floatDef(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func durMS(key string, defMS int) time.Duration {
	return time.Duration(atoiDef(os.Getenv(key), defMS)) * time.Millisecond
}

// Load reads environment variables and applies defaults.
func Load() Config {
	return Config{
		Env:                getEnv("ENV", "local"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Provider:           getEnv("PROVIDER", "live"),
		ProviderTimeout:    durMS("PROVIDER_TIMEOUT_MS", 10000),
		UserAgent:          getEnv("HTTP_USER_AGENT", "pricecheck-service/1.0"),
		YahooBaseURL:       getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
		BinanceBaseURL:     getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		CoinGeckoBase:      getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com"),
		CoinGeckoAPIKey:    getEnv("COINGECKO_API_KEY", ""),
		StooqBaseURL:       getEnv("STOOQ_BASE_URL", "https://stooq.com"),
		StooqAPIKey:        getEnv("STOOQ_API_KEY", ""),
		MetalsPageURL:      getEnv("METALS_PAGE_URL", ""),
		GramGoldPageURL:    getEnv("GRAM_GOLD_PAGE_URL", ""),
		YahooRPS:           floatDef(getEnv("YAHOO_RPS", "2"), 2),
		BinanceRPS:         floatDef(getEnv("BINANCE_RPS", "10"), 10),
		CoinGeckoRPS:       floatDef(getEnv("COINGECKO_RPS", "0.5"), 0.5),
		StooqRPS:           floatDef(getEnv("STOOQ_RPS", "1"), 1),
		ScraperRPS:         floatDef(getEnv("SCRAPER_RPS", "0.2"), 0.2),
		MaxJitter:          durMS("PROVIDER_JITTER_MS", 250),
		MaxRetries:         atoiDef(getEnv("PROVIDER_MAX_RETRIES", "3"), 3),
		BreakerFailures:    atoiDef(getEnv("BREAKER_FAILURES", "5"), 5),
		BreakerReset:       durMS("BREAKER_RESET_MS", 60000),
		PrewarmDays:        atoiDef(getEnv("PREWARM_DAYS", "30"), 30),
		SymbolCacheTTL:     durMS("SYMBOL_CACHE_TTL_MS", 7*24*60*60*1000),
		PriceCacheEntries:  atoiDef(getEnv("PRICE_CACHE_ENTRIES", "50000"), 50000),
		PriceCacheTTL:      durMS("PRICE_CACHE_TTL_MS", 24*60*60*1000),
		LiveQuoteTTL:       durMS("LIVE_QUOTE_TTL_MS", 5*60*1000),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		MinJudgeConfidence: floatDef(getEnv("JUDGE_MIN_CONFIDENCE", "0.6"), 0.6),
		WorkerPoll:         durMS("WORKER_POLL_MS", 30000),
		WorkerBatchSize:    atoiDef(getEnv("WORKER_BATCH_LIMIT", "20"), 20),
		WorkerConcurrency:  atoiDef(getEnv("WORKER_CONCURRENCY", "4"), 4),
		StaleAfter:         durMS("VERIFY_STALE_AFTER_MS", 6*60*60*1000),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            atoiDef(getEnv("REDIS_DB", "0"), 0),
		RedisTTL:           durMS("IDEMPOTENCY_TTL_MS", 86400000),
	}
}
