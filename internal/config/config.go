package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Port        string
	Debug       bool
	UserAgent   string

	BaseCurrency string
	RatesURL     string

	RedditURL       string
	RedditSubreddit string
	RedditLimit     int
	RedditMaxAge    time.Duration

	EbayURL          string
	EbayListingQuery string
	WatchChartsURL   string
	Chrono24URL      string
	GoogleShopURL    string
	ForumsFile       string

	ChromePath     string
	BrowserTimeout time.Duration
	SourceTimeout  time.Duration
	ScrapeDelay    time.Duration

	MinMarketSources int
	MarketPriceMin   float64
	MarketPriceMax   float64
	DropOverpriced   bool
	EnrichRate       float64
	EnrichBurst      int

	LLMAPIKey string
	LLMURL    string
	LLMModel  string

	StoreDriver string
	DataDir     string
	PGDSN       string
	StoreBatch  int

	RedisURL string
	RedisDB  int
	CacheTTL time.Duration

	RunInterval time.Duration
}

func Load() (*Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg := &Config{
		Environment:      getEnv("ENVIRONMENT", "development"),
		Port:             getEnv("PORT", "8085"),
		UserAgent:        getEnv("USER_AGENT", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		BaseCurrency:     strings.ToUpper(getEnv("BASE_CURRENCY", "EUR")),
		RatesURL:         getEnv("RATES_URL", ""),
		RedditURL:        getEnv("REDDIT_URL", "https://www.reddit.com"),
		RedditSubreddit:  getEnv("REDDIT_SUBREDDIT", "Watchexchange"),
		EbayURL:          getEnv("EBAY_URL", "https://www.ebay.com"),
		EbayListingQuery: getEnv("EBAY_LISTING_QUERY", "used watch"),
		WatchChartsURL:   getEnv("WATCHCHARTS_URL", "https://watchcharts.com"),
		Chrono24URL:      getEnv("CHRONO24_URL", "https://www.chrono24.com"),
		GoogleShopURL:    getEnv("GOOGLE_SHOPPING_URL", "https://www.google.com"),
		ForumsFile:       getEnv("FORUMS_FILE", "forums.yaml"),
		ChromePath:       getEnv("CHROME_PATH", ""),
		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMURL:           getEnv("LLM_URL", "https://api.groq.com/openai/v1/chat/completions"),
		LLMModel:         getEnv("LLM_MODEL", "llama3-8b-8192"),
		StoreDriver:      getEnv("STORE_DRIVER", "sqlite"),
		DataDir:          getEnv("DATA_DIR", "./data"),
		PGDSN:            getEnv("PG_DSN", ""),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
	}

	var err error
	if cfg.Debug, err = getBool("DEBUG", false); err != nil {
		return nil, err
	}
	if cfg.DropOverpriced, err = getBool("DROP_OVERPRICED", false); err != nil {
		return nil, err
	}

	if cfg.RedditLimit, err = getInt("REDDIT_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.MinMarketSources, err = getInt("MIN_MARKET_SOURCES", 2); err != nil {
		return nil, err
	}
	if cfg.EnrichBurst, err = getInt("ENRICH_BURST", 1); err != nil {
		return nil, err
	}
	if cfg.StoreBatch, err = getInt("STORE_BATCH", 200); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if cfg.MarketPriceMin, err = getFloat("MARKET_PRICE_MIN", 100); err != nil {
		return nil, err
	}
	if cfg.MarketPriceMax, err = getFloat("MARKET_PRICE_MAX", 500000); err != nil {
		return nil, err
	}
	if cfg.EnrichRate, err = getFloat("ENRICH_RATE", 1); err != nil {
		return nil, err
	}

	if cfg.RedditMaxAge, err = getDuration("REDDIT_MAX_AGE", "168h"); err != nil {
		return nil, err
	}
	if cfg.BrowserTimeout, err = getDuration("BROWSER_TIMEOUT", "45s"); err != nil {
		return nil, err
	}
	if cfg.SourceTimeout, err = getDuration("SOURCE_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.ScrapeDelay, err = getDuration("SCRAPE_DELAY", "2s"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", "6h"); err != nil {
		return nil, err
	}
	if cfg.RunInterval, err = getDuration("RUN_INTERVAL", "0s"); err != nil {
		return nil, err
	}

	if cfg.MarketPriceMax <= cfg.MarketPriceMin {
		return nil, fmt.Errorf("MARKET_PRICE_MAX (%.0f) must be greater than MARKET_PRICE_MIN (%.0f)", cfg.MarketPriceMax, cfg.MarketPriceMin)
	}
	if cfg.ScrapeDelay < 0 {
		return nil, fmt.Errorf("SCRAPE_DELAY cannot be negative")
	}
	if cfg.MinMarketSources < 2 {
		return nil, fmt.Errorf("MIN_MARKET_SOURCES must be at least 2, got %d", cfg.MinMarketSources)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
