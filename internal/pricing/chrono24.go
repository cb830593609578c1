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
	Chrono24Source = "Chrono24"

	chrono24ResultSelector = "a.article-item"
	// prices below this are straps, deposits or shipping lines
	chrono24MinPrice = 500
)

// Chrono24 takes the median asking price of the listings a search returns.
// The results page is script-rendered, so it goes through a browser.
type Chrono24 struct {
	baseURL  string
	renderer browser.Renderer
	filter   SampleFilter
	currency string
}

func NewChrono24(baseURL string, renderer browser.Renderer, filter SampleFilter, currency string) *Chrono24 {
	if filter.Min < chrono24MinPrice {
		filter.Min = chrono24MinPrice
	}
	if currency == "" {
		currency = "EUR"
	}
	return &Chrono24{
		baseURL:  strings.TrimRight(baseURL, "/"),
		renderer: renderer,
		filter:   filter,
		currency: currency,
	}
}

func (c *Chrono24) Name() string { return Chrono24Source }

func (c *Chrono24) Quote(ctx context.Context, query string) (*models.PriceQuote, error) {
	searchURL := fmt.Sprintf("%s/search/index.htm?query=%s&dosearch=true", c.baseURL, url.QueryEscape(query))

	html, err := c.renderer.Render(ctx, searchURL, chrono24ResultSelector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Chrono24Source, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%s: parse results: %w", Chrono24Source, err)
	}

	byCurrency := make(map[string][]float64)
	counts := make(map[string]int)
	doc.Find(chrono24ResultSelector).Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(".article-title").Text())
		if title != "" && !isRelevant(title, query) {
			return
		}
		price, ok := parser.ParsePrice(strings.TrimSpace(item.Find(".text-bold").First().Text()))
		if !ok {
			return
		}
		currency := price.Currency
		if !price.Marked {
			currency = c.currency
		}
		byCurrency[currency] = append(byCurrency[currency], price.Amount)
		counts[currency]++
	})

	currency := dominantCurrency(counts)
	value, n, err := c.filter.Estimate(byCurrency[currency])
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", Chrono24Source, query, err)
	}

	log.Printf("%s: median %.0f %s from %d listings for %q", Chrono24Source, value, currency, n, query)
	return &models.PriceQuote{
		Source:   Chrono24Source,
		Value:    value,
		Currency: currency,
		Samples:  n,
	}, nil
}
