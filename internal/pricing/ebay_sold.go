package pricing

import (
	"context"
	"fmt"
	"log"

	"watch-deal-finder/internal/models"
)

const EbaySoldSource = "eBay sold"

// SoldSearcher lists completed sales for a query.
type SoldSearcher interface {
	SearchSold(ctx context.Context, query string) ([]models.RawListing, error)
}

// EbaySold estimates a market price from the median of recent eBay sales.
type EbaySold struct {
	searcher SoldSearcher
	filter   SampleFilter
}

func NewEbaySold(searcher SoldSearcher, filter SampleFilter) *EbaySold {
	return &EbaySold{searcher: searcher, filter: filter}
}

func (e *EbaySold) Name() string { return EbaySoldSource }

func (e *EbaySold) Quote(ctx context.Context, query string) (*models.PriceQuote, error) {
	sold, err := e.searcher.SearchSold(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EbaySoldSource, err)
	}

	byCurrency := make(map[string][]float64)
	counts := make(map[string]int)
	for _, l := range sold {
		if !isRelevant(l.Title, query) {
			continue
		}
		byCurrency[l.Currency] = append(byCurrency[l.Currency], l.ListingPrice)
		counts[l.Currency]++
	}

	currency := dominantCurrency(counts)
	value, n, err := e.filter.Estimate(byCurrency[currency])
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", EbaySoldSource, query, err)
	}

	log.Printf("%s: median %.0f %s from %d of %d sales for %q", EbaySoldSource, value, currency, n, len(sold), query)
	return &models.PriceQuote{
		Source:   EbaySoldSource,
		Value:    value,
		Currency: currency,
		Samples:  n,
	}, nil
}
