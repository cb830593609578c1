package scrapers

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"watch-deal-finder/internal/models"
	"watch-deal-finder/internal/parser"
)

const (
	EbaySource = models.SourceEbay

	// wristwatches
	ebayWatchCategory = "31387"
	ebayUsedCondition = "3000"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

type EbayConfig struct {
	BaseURL   string
	Query     string
	Collector CollectorConfig
}

type EbayScraper struct {
	cfg EbayConfig
}

func NewEbayScraper(cfg EbayConfig) *EbayScraper {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Collector.BaseURL = cfg.BaseURL
	return &EbayScraper{cfg: cfg}
}

func (e *EbayScraper) Name() string { return EbaySource }

// FetchListings returns newly listed used watches.
func (e *EbayScraper) FetchListings(ctx context.Context) ([]models.RawListing, error) {
	return e.search(ctx, e.searchURL(e.cfg.Query, false))
}

// SearchSold returns completed sales matching query; only titles and prices
// are meaningful on the results.
func (e *EbayScraper) SearchSold(ctx context.Context, query string) ([]models.RawListing, error) {
	return e.search(ctx, e.searchURL(query, true))
}

func (e *EbayScraper) search(ctx context.Context, searchURL string) ([]models.RawListing, error) {
	// Always return empty slice instead of nil
	listings := make([]models.RawListing, 0)

	log.Printf("Searching eBay with URL: %s", searchURL)

	selectors := []string{
		"li.s-item",
		".s-item",
		"li.s-card",
	}

	var visitErr error
	for _, selector := range selectors {
		foundAny := false

		c := NewCollector(ctx, e.cfg.Collector)
		c.OnHTML(selector, func(element *colly.HTMLElement) {
			foundAny = true

			title := cleanListingTitle(element.ChildText(".s-item__title, .s-card__title"))
			if title == "" {
				return
			}

			priceText := e.extractPrice(element)
			price, ok := parser.ParsePrice(priceText)
			if !ok {
				return
			}

			link := element.ChildAttr(".s-item__link, a", "href")
			listing := models.RawListing{
				Source:       EbaySource,
				Title:        title,
				ListingPrice: price.Amount,
				Currency:     price.Currency,
				SourceURL:    stripTracking(element.Request.AbsoluteURL(link)),
				ImageURL:     element.ChildAttr("img", "src"),
				PostedAt:     time.Now().UTC(),
			}
			if listing.ImageURL != "" {
				listing.ImageURLs = []string{listing.ImageURL}
			}
			listings = append(listings, listing)
		})
		c.OnError(func(r *colly.Response, err error) {
			log.Printf("Error visiting eBay (%d): %v", r.StatusCode, err)
			visitErr = err
		})

		if err := c.Visit(searchURL); err != nil && visitErr == nil {
			visitErr = err
		}
		if foundAny || visitErr != nil {
			break
		}
		log.Printf("eBay: selector %q matched nothing, trying next", selector)
	}

	if visitErr != nil && len(listings) == 0 {
		return listings, fmt.Errorf("ebay search: %w", visitErr)
	}

	log.Printf("eBay found %d listings", len(listings))
	return listings, nil
}

func (e *EbayScraper) searchURL(query string, sold bool) string {
	v := url.Values{}
	v.Set("_nkw", query)
	v.Set("_sacat", ebayWatchCategory)
	if sold {
		v.Set("LH_Sold", "1")
		v.Set("LH_Complete", "1")
	} else {
		v.Set("LH_ItemCondition", ebayUsedCondition)
		v.Set("_sop", "10")
	}
	return e.cfg.BaseURL + "/sch/i.html?" + v.Encode()
}

func (e *EbayScraper) extractPrice(element *colly.HTMLElement) string {
	priceSelectors := []string{
		".s-item__price .notranslate",
		".s-item__price",
		".s-card__price",
	}

	for _, selector := range priceSelectors {
		price := strings.TrimSpace(element.ChildText(selector))
		if price != "" {
			return price
		}
	}
	return ""
}

// stripTracking drops eBay's tracking query parameters so one item always
// maps to the same URL.
func stripTracking(link string) string {
	u, err := url.Parse(link)
	if err != nil || !strings.Contains(u.Path, "/itm/") {
		return link
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func cleanListingTitle(name string) string {
	name = strings.TrimSpace(name)

	// Skip generic eBay titles
	genericTitles := []string{
		"Shop on eBay",
		"SPONSORED",
	}
	for _, generic := range genericTitles {
		if strings.Contains(name, generic) && len(name) < 20 {
			return ""
		}
	}

	cleanPatterns := []string{
		"New Listing",
		"NEW LISTING",
		"SPONSORED",
		"Opens in a new window or tab",
	}
	for _, pattern := range cleanPatterns {
		name = strings.ReplaceAll(name, pattern, "")
	}

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(name, " "))
}
