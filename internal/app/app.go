// Package app wires configuration into the running components shared by the
// HTTP server and the one-shot ETL command.
package app

import (
	"context"
	"fmt"
	"log"

	"watch-deal-finder/internal/config"
	"watch-deal-finder/internal/pricing"
	"watch-deal-finder/internal/scoring"
	"watch-deal-finder/internal/scrapers"
	"watch-deal-finder/internal/services"
	"watch-deal-finder/internal/store"
	"watch-deal-finder/pkg/browser"
	"watch-deal-finder/pkg/cache"
	"watch-deal-finder/pkg/currency"
)

type App struct {
	Config   *config.Config
	Cache    *cache.RedisCache // nil when Redis is unavailable
	Renderer *browser.ChromeRenderer
	Store    store.DealStore
	Market   *pricing.Aggregator
	Pipeline *services.Pipeline
	Deals    *services.DealService
}

// New builds every component. storeDriver overrides cfg.StoreDriver when
// not empty.
func New(ctx context.Context, cfg *config.Config, storeDriver string) (*App, error) {
	a := &App{Config: cfg}

	a.Cache = cache.NewRedisCache(ctx, cfg.RedisURL, cfg.RedisDB, cfg.CacheTTL)
	var (
		rateCache  currency.RateCache
		quoteCache pricing.QuoteCache
	)
	if a.Cache != nil {
		rateCache, quoteCache = a.Cache, a.Cache
	} else {
		log.Println("Running without cache")
	}

	if storeDriver == "" {
		storeDriver = cfg.StoreDriver
	}
	dealStore, err := store.Open(ctx, store.Options{
		Driver:    storeDriver,
		DataDir:   cfg.DataDir,
		DSN:       cfg.PGDSN,
		BatchSize: cfg.StoreBatch,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = dealStore

	converter := currency.NewConverter(cfg.BaseCurrency, cfg.RatesURL, rateCache)
	a.Renderer = browser.NewChromeRenderer(cfg.ChromePath, cfg.UserAgent, cfg.BrowserTimeout)

	collector := scrapers.CollectorConfig{
		UserAgent: cfg.UserAgent,
		Delay:     cfg.ScrapeDelay,
		Timeout:   cfg.SourceTimeout,
		Debug:     cfg.Debug,
	}

	ebay := scrapers.NewEbayScraper(scrapers.EbayConfig{
		BaseURL:   cfg.EbayURL,
		Query:     cfg.EbayListingQuery,
		Collector: collector,
	})
	fetchers := []scrapers.ListingFetcher{
		scrapers.NewRedditScraper(scrapers.RedditConfig{
			BaseURL:   cfg.RedditURL,
			Subreddit: cfg.RedditSubreddit,
			Limit:     cfg.RedditLimit,
			MaxAge:    cfg.RedditMaxAge,
			Collector: collector,
		}),
		ebay,
	}

	sites, err := scrapers.LoadForumSites(cfg.ForumsFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, site := range sites {
		fetchers = append(fetchers, scrapers.NewForumScraper(site, collector))
	}

	listingFilter := pricing.SampleFilter{Min: cfg.MarketPriceMin, Max: cfg.MarketPriceMax, MinSamples: 3}
	// WatchCharts publishes one aggregate figure per model
	aggregateFilter := listingFilter
	aggregateFilter.MinSamples = 1

	a.Market = pricing.NewAggregator([]pricing.Source{
		pricing.NewEbaySold(ebay, listingFilter),
		pricing.NewWatchCharts(cfg.WatchChartsURL, collector, aggregateFilter),
		pricing.NewChrono24(cfg.Chrono24URL, a.Renderer, listingFilter, ""),
	}, converter, quoteCache, pricing.AggregatorConfig{
		MinSources:    cfg.MinMarketSources,
		Min:           cfg.MarketPriceMin,
		Max:           cfg.MarketPriceMax,
		SourceTimeout: cfg.SourceTimeout,
	})

	a.Pipeline = services.NewPipeline(services.PipelineDeps{
		Fetchers:  fetchers,
		Converter: converter,
		Market:    a.Market,
		Retail:    pricing.NewRetailFinder(cfg.GoogleShopURL, a.Renderer, ""),
		Scorer:    newScorer(cfg),
		Extractor: newExtractor(cfg),
		Store:     a.Store,
	}, services.PipelineConfig{
		EnrichRate:     cfg.EnrichRate,
		EnrichBurst:    cfg.EnrichBurst,
		DropOverpriced: cfg.DropOverpriced,
		FetchTimeout:   cfg.SourceTimeout,
	})
	a.Deals = services.NewDealService(a.Store)

	log.Printf("Sources: %v, market sources: %v", a.Pipeline.FetcherNames(), a.Market.SourceNames())
	return a, nil
}

func llmConfig(cfg *config.Config) scoring.LLMConfig {
	return scoring.LLMConfig{
		APIKey: cfg.LLMAPIKey,
		URL:    cfg.LLMURL,
		Model:  cfg.LLMModel,
	}
}

func newScorer(cfg *config.Config) scoring.Scorer {
	rules := scoring.NewRuleScorer()
	llm := scoring.NewLLMScorer(llmConfig(cfg))
	if llm == nil {
		log.Println("LLM_API_KEY not set, scoring with rules only")
		return rules
	}
	return scoring.NewFallbackScorer(llm, rules)
}

// newExtractor keeps the interface nil without an LLM so Standardize skips
// the fallback.
func newExtractor(cfg *config.Config) services.Extractor {
	ex := scoring.NewLLMExtractor(llmConfig(cfg))
	if ex == nil {
		return nil
	}
	return ex
}

func (a *App) Close() {
	if a.Renderer != nil {
		a.Renderer.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			log.Printf("Error closing cache: %v", err)
		}
	}
}
