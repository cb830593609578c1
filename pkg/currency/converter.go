package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"watch-deal-finder/pkg/utils"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// eurPerUnit is the fallback table used when no live rates are available.
var eurPerUnit = map[string]float64{
	"EUR": 1,
	"USD": 0.93,
	"GBP": 1.17,
	"CHF": 1.05,
	"CAD": 0.68,
	"AUD": 0.61,
	"HKD": 0.12,
	"SGD": 0.69,
	"JPY": 0.0062,
}

const liveRefresh = time.Hour

// RateCache persists normalized rate tables between runs.
type RateCache interface {
	GetRates(ctx context.Context, base string) (map[string]float64, error)
	SetRates(ctx context.Context, base string, rates map[string]float64) error
}

// Converter turns amounts into the base currency. Live rates are read from
// ratesURL, a JSON document of the form {"base": "EUR", "rates": {"USD": 1.08}}
// where each rate is units of that currency per one unit of base.
type Converter struct {
	base     string
	ratesURL string
	cache    RateCache

	mu      sync.Mutex
	live    map[string]float64 // base per unit
	fetched time.Time
}

func NewConverter(base, ratesURL string, cache RateCache) *Converter {
	return &Converter{
		base:     strings.ToUpper(base),
		ratesURL: ratesURL,
		cache:    cache,
	}
}

func (c *Converter) Base() string { return c.base }

func (c *Converter) Convert(ctx context.Context, amount float64, from string) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	if from == c.base {
		return amount, nil
	}

	rate, err := c.rate(ctx, from)
	if err != nil {
		return 0, err
	}
	return utils.Round(amount*rate, 2), nil
}

func (c *Converter) rate(ctx context.Context, from string) (float64, error) {
	if live := c.liveRates(ctx); live != nil {
		if r, ok := live[from]; ok && r > 0 {
			return r, nil
		}
	}

	fromEUR, ok := eurPerUnit[from]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, from)
	}
	baseEUR, ok := eurPerUnit[c.base]
	if !ok {
		return 0, fmt.Errorf("%w: base %q", ErrUnsupportedCurrency, c.base)
	}
	return fromEUR / baseEUR, nil
}

func (c *Converter) liveRates(ctx context.Context) map[string]float64 {
	if c.ratesURL == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetched.IsZero() && time.Since(c.fetched) < liveRefresh {
		return c.live
	}
	c.fetched = time.Now()

	if c.cache != nil {
		if rates, err := c.cache.GetRates(ctx, c.base); err == nil && rates != nil {
			c.live = rates
			return c.live
		}
	}

	rates, err := fetchRates(ctx, c.ratesURL, c.base)
	if err != nil {
		log.Printf("Currency: live rates unavailable, using fallback table: %v", err)
		c.live = nil
		return nil
	}
	c.live = rates

	if c.cache != nil {
		if err := c.cache.SetRates(ctx, c.base, rates); err != nil {
			log.Printf("Currency: failed to cache rates: %v", err)
		}
	}
	return c.live
}

type ratesDocument struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// fetchRates downloads a rate table and normalizes it to base per unit.
func fetchRates(ctx context.Context, ratesURL, base string) (map[string]float64, error) {
	var (
		doc      ratesDocument
		fetchErr error
	)

	c := colly.NewCollector(colly.StdlibContext(ctx), colly.AllowURLRevisit())
	c.SetRequestTimeout(10 * time.Second)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
	})
	c.OnResponse(func(r *colly.Response) {
		if err := json.Unmarshal(r.Body, &doc); err != nil {
			fetchErr = fmt.Errorf("decode rates: %w", err)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(ratesURL); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(doc.Rates) == 0 {
		return nil, errors.New("empty rate table")
	}

	return normalize(doc, base)
}

func normalize(doc ratesDocument, base string) (map[string]float64, error) {
	docBase := strings.ToUpper(doc.Base)
	rates := make(map[string]float64, len(doc.Rates)+1)
	for k, v := range doc.Rates {
		rates[strings.ToUpper(k)] = v
	}
	if docBase != "" {
		rates[docBase] = 1
	}

	perDocBase, ok := rates[base]
	if !ok || perDocBase <= 0 {
		return nil, fmt.Errorf("%w: rate table has no %s", ErrUnsupportedCurrency, base)
	}

	out := make(map[string]float64, len(rates))
	for code, r := range rates {
		if r <= 0 {
			continue
		}
		out[code] = perDocBase / r
	}
	return out, nil
}
