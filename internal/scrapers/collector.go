package scrapers

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/debug"
	"watch-deal-finder/internal/models"
)

var ErrRateLimited = errors.New("rate limited by source")

// ListingFetcher pulls raw for-sale listings from one marketplace.
type ListingFetcher interface {
	Name() string
	FetchListings(ctx context.Context) ([]models.RawListing, error)
}

type CollectorConfig struct {
	BaseURL   string
	UserAgent string
	Delay     time.Duration
	Timeout   time.Duration
	Debug     bool
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// NewCollector builds a colly collector restricted to the host of
// cfg.BaseURL, with the browser header set and a per-domain delay. Requests
// are bound to ctx.
func NewCollector(ctx context.Context, cfg CollectorConfig) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	}
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		domains := []string{u.Host}
		if u.Hostname() != u.Host {
			domains = append(domains, u.Hostname())
		}
		opts = append(opts, colly.AllowedDomains(domains...))
	}
	if cfg.Debug {
		opts = append(opts, colly.Debugger(&debug.LogDebugger{}))
	}

	c := colly.NewCollector(opts...)

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", ua)
		if r.Headers.Get("Accept") == "" {
			r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		}
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
		r.Headers.Set("Cache-Control", "no-cache")
	})

	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}

	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.Delay,
	})

	return c
}
