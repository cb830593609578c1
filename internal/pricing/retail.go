package pricing

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"watch-deal-finder/internal/models"
	"watch-deal-finder/internal/parser"
	"watch-deal-finder/pkg/browser"
)

const (
	RetailSource = "Google Shopping"

	shoppingCardSelector  = ".sh-dgr__content"
	shoppingPriceSelector = ".a8Pemb"
)

// RetailFinder looks up the lowest new (retail or grey-market) price on Google
// Shopping. It is informational and never part of the market consensus.
type RetailFinder struct {
	baseURL  string
	renderer browser.Renderer
	currency string
}

func NewRetailFinder(baseURL string, renderer browser.Renderer, currency string) *RetailFinder {
	if currency == "" {
		currency = "EUR"
	}
	return &RetailFinder{
		baseURL:  strings.TrimRight(baseURL, "/"),
		renderer: renderer,
		currency: currency,
	}
}

func (r *RetailFinder) RetailPrice(ctx context.Context, query string) (*models.PriceQuote, error) {
	searchURL := fmt.Sprintf("%s/search?tbm=shop&hl=en&q=%s", r.baseURL, url.QueryEscape(query))

	html, err := r.renderer.Render(ctx, searchURL, shoppingCardSelector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", RetailSource, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%s: parse results: %w", RetailSource, err)
	}

	// cards can mix currencies; only the dominant one is compared
	lowest := make(map[string]float64)
	counts := make(map[string]int)
	doc.Find(shoppingCardSelector + " " + shoppingPriceSelector).Each(func(_ int, tag *goquery.Selection) {
		price, ok := parser.ParsePrice(strings.TrimSpace(tag.Text()))
		if !ok {
			return
		}
		currency := price.Currency
		if !price.Marked {
			currency = r.currency
		}
		counts[currency]++
		if v, seen := lowest[currency]; !seen || price.Amount < v {
			lowest[currency] = price.Amount
		}
	})

	if len(counts) == 0 {
		return nil, fmt.Errorf("%s %q: %w", RetailSource, query, ErrInsufficientSamples)
	}
	currency := dominantCurrency(counts)

	log.Printf("%s: lowest retail price %.0f %s for %q", RetailSource, lowest[currency], currency, query)
	return &models.PriceQuote{
		Source:   RetailSource,
		Value:    lowest[currency],
		Currency: currency,
		Samples:  counts[currency],
	}, nil
}
