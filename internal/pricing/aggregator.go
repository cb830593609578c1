package pricing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"watch-deal-finder/internal/models"
	"watch-deal-finder/pkg/cache"
	"watch-deal-finder/pkg/utils"
)

// QuoteCache stores consensus results between runs.
type QuoteCache interface {
	GetMarketPrice(ctx context.Context, key string) (*models.MarketPrice, error)
	SetMarketPrice(ctx context.Context, key string, mp *models.MarketPrice) error
}

// Converter brings source estimates into one currency.
type Converter interface {
	Base() string
	Convert(ctx context.Context, amount float64, from string) (float64, error)
}

type AggregatorConfig struct {
	MinSources    int
	Min           float64
	Max           float64
	SourceTimeout time.Duration
}

// Aggregator asks every price source concurrently and combines the surviving
// estimates into a single market price.
type Aggregator struct {
	sources   []Source
	converter Converter
	cache     QuoteCache
	cfg       AggregatorConfig
}

// MinConsensusSources is the fewest surviving estimates a market price may
// rest on.
const MinConsensusSources = 2

// NewAggregator raises cfg.MinSources to MinConsensusSources when lower.
func NewAggregator(sources []Source, converter Converter, quoteCache QuoteCache, cfg AggregatorConfig) *Aggregator {
	if cfg.MinSources < MinConsensusSources {
		cfg.MinSources = MinConsensusSources
	}
	return &Aggregator{
		sources:   sources,
		converter: converter,
		cache:     quoteCache,
		cfg:       cfg,
	}
}

func (a *Aggregator) SourceNames() []string {
	names := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		names = append(names, s.Name())
	}
	return names
}

// MarketPrice returns the median of the per-source estimates for query. It
// abstains with ErrNoMarketPrice when fewer than MinSources estimates survive
// conversion and range filtering.
func (a *Aggregator) MarketPrice(ctx context.Context, query string) (*models.MarketPrice, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("market price query cannot be empty")
	}

	base := a.converter.Base()
	cacheKey := cache.GenerateQuoteKey(query, base)
	if a.cache != nil {
		if cached, err := a.cache.GetMarketPrice(ctx, cacheKey); err == nil && cached != nil {
			log.Printf("Cache HIT for key: %s", cacheKey)
			return cached, nil
		}
	}

	quotes, consulted := a.collect(ctx, query)

	used := make([]models.PriceQuote, 0, len(quotes))
	values := make([]float64, 0, len(quotes))
	for _, q := range quotes {
		v, err := a.converter.Convert(ctx, q.Value, q.Currency)
		if err != nil {
			log.Printf("%s: dropping estimate for %q: %v", q.Source, query, err)
			continue
		}
		if v <= 0 || (a.cfg.Min > 0 && v < a.cfg.Min) || (a.cfg.Max > 0 && v > a.cfg.Max) {
			log.Printf("%s: estimate %.2f %s for %q out of range, dropped", q.Source, v, base, query)
			continue
		}
		used = append(used, models.PriceQuote{
			Source:   q.Source,
			Value:    utils.Round(v, 2),
			Currency: base,
			Samples:  q.Samples,
		})
		values = append(values, v)
	}

	if len(values) < a.cfg.MinSources {
		return nil, fmt.Errorf("%w for %q: %d of %d required sources", ErrNoMarketPrice, query, len(values), a.cfg.MinSources)
	}

	mp := &models.MarketPrice{
		Query:     query,
		Value:     utils.Round(utils.Median(values), 2),
		Currency:  base,
		Quotes:    used,
		Consulted: consulted,
	}

	if a.cache != nil {
		if err := a.cache.SetMarketPrice(ctx, cacheKey, mp); err != nil {
			log.Printf("Failed to cache market price: %v", err)
		} else {
			log.Printf("Cached market price for key: %s", cacheKey)
		}
	}

	log.Printf("Market price for %q: %.2f %s from %d sources", query, mp.Value, base, len(used))
	return mp, nil
}

func (a *Aggregator) collect(ctx context.Context, query string) ([]models.PriceQuote, []string) {
	var (
		quotes    []models.PriceQuote
		consulted []string
		wg        sync.WaitGroup
		mu        sync.Mutex
	)

	for _, src := range a.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("%s source panic recovered: %v", src.Name(), r)
				}
			}()

			sctx := ctx
			if a.cfg.SourceTimeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, a.cfg.SourceTimeout)
				defer cancel()
			}

			q, err := src.Quote(sctx, query)

			mu.Lock()
			defer mu.Unlock()
			consulted = append(consulted, src.Name())
			if err != nil {
				log.Printf("%s: no estimate for %q: %v", src.Name(), query, err)
				return
			}
			if q == nil {
				return
			}
			quotes = append(quotes, *q)
		}(src)
	}

	wg.Wait()

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Source < quotes[j].Source })
	sort.Strings(consulted)
	return quotes, consulted
}
