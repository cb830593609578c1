package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"watch-deal-finder/internal/models"
	"watch-deal-finder/internal/pricing"
	"watch-deal-finder/internal/scoring"
	"watch-deal-finder/internal/scrapers"
	"watch-deal-finder/internal/store"
)

var ErrRunInProgress = errors.New("a pipeline run is already in progress")

type MarketPricer interface {
	MarketPrice(ctx context.Context, query string) (*models.MarketPrice, error)
}

type RetailPricer interface {
	RetailPrice(ctx context.Context, query string) (*models.PriceQuote, error)
}

type PipelineDeps struct {
	Fetchers  []scrapers.ListingFetcher
	Converter pricing.Converter
	Market    MarketPricer
	Retail    RetailPricer // optional
	Extractor Extractor    // optional
	Scorer    scoring.Scorer
	Store     store.DealStore
}

type PipelineConfig struct {
	EnrichRate     float64 // market price lookups per second, 0 = unpaced
	EnrichBurst    int
	DropOverpriced bool
	FetchTimeout   time.Duration
}

type RunOptions struct {
	DryRun bool
}

// Pipeline runs fetch, standardize, enrich, score and store once per Run.
// Only one run may be active at a time.
type Pipeline struct {
	deps    PipelineDeps
	cfg     PipelineConfig
	limiter *rate.Limiter
	now     func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	last    *models.RunReport
}

func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	limit := rate.Inf
	if cfg.EnrichRate > 0 {
		limit = rate.Limit(cfg.EnrichRate)
	}
	if cfg.EnrichBurst < 1 {
		cfg.EnrichBurst = 1
	}
	return &Pipeline{
		deps:    deps,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.EnrichBurst),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Fetcher returns the configured fetcher with the given name, case
// insensitively.
func (p *Pipeline) Fetcher(name string) (scrapers.ListingFetcher, bool) {
	for _, f := range p.deps.Fetchers {
		if strings.EqualFold(f.Name(), name) {
			return f, true
		}
	}
	return nil, false
}

func (p *Pipeline) FetcherNames() []string {
	names := make([]string, 0, len(p.deps.Fetchers))
	for _, f := range p.deps.Fetchers {
		names = append(names, f.Name())
	}
	return names
}

func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// LastReport returns the report of the most recent completed run, or nil.
func (p *Pipeline) LastReport() *models.RunReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*models.RunReport, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer p.running.Store(false)

	start := p.now()
	report := &models.RunReport{
		RunID:       uuid.NewString(),
		StartedAt:   start,
		Fetched:     make(map[string]int),
		FetchErrors: make(map[string]string),
		DryRun:      opts.DryRun,
	}
	log.Printf("Run %s: starting with %d fetchers", report.RunID, len(p.deps.Fetchers))

	raw := p.fetchAll(ctx, report)
	deals := p.standardize(ctx, raw, report)

	deals, err := p.enrich(ctx, deals, report)
	if err == nil {
		if opts.DryRun {
			report.Deals = deals
		} else if len(deals) > 0 {
			report.Stored, err = p.deps.Store.UpsertDeals(ctx, deals)
			if err != nil {
				err = fmt.Errorf("store deals: %w", err)
			}
		}
	}

	report.Duration = time.Since(start).String()
	if len(report.FetchErrors) == 0 {
		report.FetchErrors = nil
	}

	p.mu.Lock()
	p.last = report
	p.mu.Unlock()

	if err != nil {
		log.Printf("Run %s: failed after %s: %v", report.RunID, report.Duration, err)
		return report, err
	}
	log.Printf("Run %s: %d standardized, %d enriched, %d stored in %s",
		report.RunID, report.Standardized, report.Enriched, report.Stored, report.Duration)
	return report, nil
}

// fetchAll runs every fetcher concurrently. A failing or panicking fetcher
// only loses its own listings.
func (p *Pipeline) fetchAll(ctx context.Context, report *models.RunReport) []models.RawListing {
	results := make([][]models.RawListing, len(p.deps.Fetchers))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	addError := func(name string, err error) {
		mu.Lock()
		report.FetchErrors[name] = err.Error()
		mu.Unlock()
	}

	for i, f := range p.deps.Fetchers {
		wg.Add(1)
		go func(i int, f scrapers.ListingFetcher) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("%s fetcher panic recovered: %v", f.Name(), r)
					addError(f.Name(), fmt.Errorf("panic: %v", r))
				}
			}()

			fctx := ctx
			if p.cfg.FetchTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
				defer cancel()
			}

			listings, err := f.FetchListings(fctx)
			if err != nil {
				log.Printf("%s fetcher error: %v", f.Name(), err)
				addError(f.Name(), err)
			}

			mu.Lock()
			results[i] = listings
			report.Fetched[f.Name()] = len(listings)
			mu.Unlock()
			log.Printf("%s fetcher completed: found %d listings", f.Name(), len(listings))
		}(i, f)
	}
	wg.Wait()

	var all []models.RawListing
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func (p *Pipeline) standardize(ctx context.Context, raw []models.RawListing, report *models.RunReport) []*models.Deal {
	now := p.now()
	seen := make(map[string]bool, len(raw))
	deals := make([]*models.Deal, 0, len(raw))

	for _, r := range raw {
		deal, err := Standardize(ctx, r, p.deps.Converter, p.deps.Extractor, now)
		if err != nil {
			log.Printf("%s: %v", r.Source, err)
			report.Rejected++
			continue
		}
		if seen[deal.ID] {
			report.Duplicates++
			continue
		}
		seen[deal.ID] = true
		deals = append(deals, deal)
	}
	report.Standardized = len(deals)
	return deals
}

// enrich attaches market and retail prices, margin, score and label. Deals
// flagged overpriced are dropped when configured.
func (p *Pipeline) enrich(ctx context.Context, deals []*models.Deal, report *models.RunReport) ([]*models.Deal, error) {
	kept := make([]*models.Deal, 0, len(deals))

	for _, deal := range deals {
		if query := EnrichmentQuery(deal); query == "" {
			report.NoMarketPrice++
		} else {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("enrichment interrupted: %w", err)
			}
			if p.attachMarketPrice(ctx, deal, query) {
				report.Enriched++
			} else {
				report.NoMarketPrice++
			}
			p.attachRetailPrice(ctx, deal, query)
		}

		if margin, ok := scoring.Margin(deal.PriceBase, deal.MarketPrice); ok {
			deal.EstimatedMargin = &margin
		}

		if res, err := p.deps.Scorer.Score(ctx, deal); err != nil {
			log.Printf("Scoring %s failed: %v", deal.ID, err)
		} else {
			score := res.Score
			deal.Score = &score
			deal.ScoreRationale = res.Rationale
			deal.DealLabel = scoring.Label(score, deal.EstimatedMargin)
			report.Scored++
		}

		if p.cfg.DropOverpriced && deal.EstimatedMargin != nil && *deal.EstimatedMargin < 0 {
			report.Overpriced++
			continue
		}
		kept = append(kept, deal)
	}
	return kept, nil
}

func (p *Pipeline) attachMarketPrice(ctx context.Context, deal *models.Deal, query string) bool {
	mp, err := p.deps.Market.MarketPrice(ctx, query)
	if err != nil {
		if !errors.Is(err, pricing.ErrNoMarketPrice) {
			log.Printf("Market price for %s failed: %v", deal.ID, err)
		}
		return false
	}

	value := mp.Value
	deal.MarketPrice = &value
	deal.MarketSources = make([]string, 0, len(mp.Quotes))
	for _, q := range mp.Quotes {
		deal.MarketSources = append(deal.MarketSources, q.Source)
	}
	return true
}

func (p *Pipeline) attachRetailPrice(ctx context.Context, deal *models.Deal, query string) {
	if p.deps.Retail == nil {
		return
	}
	q, err := p.deps.Retail.RetailPrice(ctx, query)
	if err != nil {
		log.Printf("Retail price for %s unavailable: %v", deal.ID, err)
		return
	}
	v, err := p.deps.Converter.Convert(ctx, q.Value, q.Currency)
	if err != nil {
		log.Printf("Retail price for %s: %v", deal.ID, err)
		return
	}
	deal.RetailPrice = &v
}

// EnrichmentQuery is the market price search for a deal: brand and reference
// when the reference is known, else brand and model. Deals of unknown brand
// are not looked up.
func EnrichmentQuery(deal *models.Deal) string {
	if !deal.HasBrand() {
		return ""
	}
	if deal.HasReference() {
		return deal.Brand + " " + deal.ReferenceNumber
	}
	if m := strings.TrimSpace(deal.Model); m != "" {
		return deal.Brand + " " + m
	}
	return ""
}
