package pricing

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"watch-deal-finder/internal/models"
	"watch-deal-finder/internal/parser"
	"watch-deal-finder/internal/scrapers"
)

const WatchChartsSource = "WatchCharts"

// WatchCharts reads the published market price of the first model page that
// a keyword search returns. The figure is already an aggregate, so a single
// sample is enough.
type WatchCharts struct {
	baseURL   string
	collector scrapers.CollectorConfig
	filter    SampleFilter
}

func NewWatchCharts(baseURL string, collector scrapers.CollectorConfig, filter SampleFilter) *WatchCharts {
	baseURL = strings.TrimRight(baseURL, "/")
	collector.BaseURL = baseURL
	return &WatchCharts{baseURL: baseURL, collector: collector, filter: filter}
}

func (w *WatchCharts) Name() string { return WatchChartsSource }

func (w *WatchCharts) Quote(ctx context.Context, query string) (*models.PriceQuote, error) {
	modelURL, err := w.findModel(ctx, query)
	if err != nil {
		return nil, err
	}

	var (
		price    parser.Price
		found    bool
		visitErr error
	)

	c := scrapers.NewCollector(ctx, w.collector)
	c.OnHTML("html", func(e *colly.HTMLElement) {
		price, found = marketPriceBox(e.DOM)
	})
	c.OnError(func(r *colly.Response, err error) {
		visitErr = err
	})
	if err := c.Visit(modelURL); err != nil && visitErr == nil {
		visitErr = err
	}
	if visitErr != nil {
		return nil, fmt.Errorf("%s model page: %w", WatchChartsSource, visitErr)
	}
	if !found {
		return nil, fmt.Errorf("%s %q: %w: market price not on page", WatchChartsSource, query, ErrInsufficientSamples)
	}

	value, n, err := w.filter.Estimate([]float64{price.Amount})
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", WatchChartsSource, query, err)
	}

	log.Printf("%s: market price %.0f %s for %q", WatchChartsSource, value, price.Currency, query)
	return &models.PriceQuote{
		Source:   WatchChartsSource,
		Value:    value,
		Currency: price.Currency,
		Samples:  n,
	}, nil
}

func (w *WatchCharts) findModel(ctx context.Context, query string) (string, error) {
	var (
		modelURL string
		visitErr error
	)

	c := scrapers.NewCollector(ctx, w.collector)
	c.OnHTML(`a[href*="/watch_model/"]`, func(e *colly.HTMLElement) {
		if modelURL == "" {
			modelURL = e.Request.AbsoluteURL(e.Attr("href"))
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		visitErr = err
	})

	searchURL := w.baseURL + "/watches?keyword=" + url.QueryEscape(query)
	if err := c.Visit(searchURL); err != nil && visitErr == nil {
		visitErr = err
	}
	if visitErr != nil {
		return "", fmt.Errorf("%s search: %w", WatchChartsSource, visitErr)
	}
	if modelURL == "" {
		return "", fmt.Errorf("%s %q: %w: no model found", WatchChartsSource, query, ErrInsufficientSamples)
	}
	return modelURL, nil
}

// marketPriceBox finds the "Market Price" label and reads the price element
// that follows it.
func marketPriceBox(doc *goquery.Selection) (parser.Price, bool) {
	var (
		price parser.Price
		found bool
	)
	doc.Find(".price-box").EachWithBreak(func(_ int, box *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(box.Text()), "market price") {
			return true
		}
		text := strings.TrimSpace(box.NextAllFiltered(".price").First().Text())
		if text == "" {
			text = strings.TrimSpace(box.Find(".price").First().Text())
		}
		price, found = parser.ParsePrice(text)
		return !found
	})
	return price, found
}
