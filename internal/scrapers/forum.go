package scrapers

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"gopkg.in/yaml.v2"
	"watch-deal-finder/internal/models"
	"watch-deal-finder/internal/parser"
)

// ForumSite describes where the sale threads of one forum live and how to
// read them.
type ForumSite struct {
	Name                string `yaml:"name"`
	ListURL             string `yaml:"list_url"`
	Currency            string `yaml:"currency"`
	MaxThreads          int    `yaml:"max_threads"`
	ThreadContainer     string `yaml:"thread_container"`
	TitleElement        string `yaml:"title_element"`
	PriceElement        string `yaml:"price_element"`
	PriceElementDetail  string `yaml:"price_element_detail"`
	PostContentSelector string `yaml:"post_content_selector"`
	ImageSelector       string `yaml:"image_selector"`
}

type forumFile struct {
	Forums []ForumSite `yaml:"forums"`
}

// LoadForumSites reads forum definitions from a YAML file. A missing file
// means no forums are configured.
func LoadForumSites(path string) ([]ForumSite, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Printf("Forums: %s not found, forum scraping disabled", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read forums file: %w", err)
	}

	var f forumFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse forums file: %w", err)
	}

	for i, site := range f.Forums {
		if site.Name == "" || site.ListURL == "" || site.ThreadContainer == "" || site.TitleElement == "" {
			return nil, fmt.Errorf("forum #%d: name, list_url, thread_container and title_element are required", i+1)
		}
	}
	return f.Forums, nil
}

type ForumScraper struct {
	site      ForumSite
	collector CollectorConfig
}

func NewForumScraper(site ForumSite, collector CollectorConfig) *ForumScraper {
	collector.BaseURL = site.ListURL
	if site.Currency == "" {
		site.Currency = parser.DefaultCurrency
	}
	return &ForumScraper{site: site, collector: collector}
}

func (f *ForumScraper) Name() string { return f.site.Name }

type forumThread struct {
	title string
	url   string
	price parser.Price
	found bool
}

func (f *ForumScraper) FetchListings(ctx context.Context) ([]models.RawListing, error) {
	listings := make([]models.RawListing, 0)

	threads, err := f.listThreads(ctx)
	if err != nil {
		return listings, err
	}
	log.Printf("%s: %d sale threads to visit", f.site.Name, len(threads))

	for _, t := range threads {
		if ctx.Err() != nil {
			return listings, ctx.Err()
		}
		listings = append(listings, f.visitThread(ctx, t))
	}

	log.Printf("%s: extracted %d listings", f.site.Name, len(listings))
	return listings, nil
}

func (f *ForumScraper) listThreads(ctx context.Context) ([]forumThread, error) {
	var (
		threads  []forumThread
		visitErr error
	)

	c := NewCollector(ctx, f.collector)
	c.OnHTML(f.site.ThreadContainer, func(e *colly.HTMLElement) {
		if f.site.MaxThreads > 0 && len(threads) >= f.site.MaxThreads {
			return
		}

		titleSel := e.DOM.Find(f.site.TitleElement).First()
		title := strings.TrimSpace(titleSel.Text())
		link, _ := titleSel.Attr("href")
		if title == "" || link == "" || !parser.IsForSale(title) {
			return
		}

		t := forumThread{title: title, url: e.Request.AbsoluteURL(link)}
		if f.site.PriceElement != "" {
			if text := strings.TrimSpace(e.DOM.Find(f.site.PriceElement).First().Text()); text != "" {
				t.price, t.found = parser.ParsePrice(text)
			}
		}
		threads = append(threads, t)
	})
	c.OnError(func(r *colly.Response, err error) {
		log.Printf("%s: error loading thread list (%d): %v", f.site.Name, r.StatusCode, err)
		visitErr = err
	})

	if err := c.Visit(f.site.ListURL); err != nil && visitErr == nil {
		visitErr = err
	}
	if visitErr != nil {
		return nil, fmt.Errorf("%s thread list: %w", f.site.Name, visitErr)
	}
	return threads, nil
}

// visitThread fills in price, description and images from the first post.
// Failures are logged and the listing is returned with what the list page
// provided.
func (f *ForumScraper) visitThread(ctx context.Context, t forumThread) models.RawListing {
	listing := models.RawListing{
		Source:    f.site.Name,
		Title:     t.title,
		SourceURL: t.url,
		PostedAt:  time.Now().UTC(),
	}

	ref := parser.ParseTitle(t.title).Reference
	price, found := t.price, t.found
	if !found {
		price, found = parser.ParsePrice(t.title, ref)
	}

	if f.site.PostContentSelector != "" {
		postSeen := false
		c := NewCollector(ctx, f.collector)
		if f.site.PriceElementDetail != "" {
			c.OnHTML("html", func(e *colly.HTMLElement) {
				if found {
					return
				}
				text := strings.TrimSpace(e.DOM.Find(f.site.PriceElementDetail).First().Text())
				price, found = parser.ParsePrice(text, ref)
			})
		}
		c.OnHTML(f.site.PostContentSelector, func(e *colly.HTMLElement) {
			if postSeen {
				return
			}
			postSeen = true

			listing.Description = strings.TrimSpace(e.DOM.Text())
			if f.site.ImageSelector != "" {
				listing.ImageURLs = postImages(e.DOM, f.site.ImageSelector, e.Request.AbsoluteURL)
			}
			if !found {
				price, found = parser.ParsePrice(listing.Description, ref)
			}
		})
		c.OnError(func(r *colly.Response, err error) {
			log.Printf("%s: error visiting thread %q: %v", f.site.Name, truncate(t.title, 30), err)
		})
		_ = c.Visit(t.url)
	}

	if found {
		listing.ListingPrice = price.Amount
		listing.Currency = price.Currency
		if !price.Marked {
			listing.Currency = f.site.Currency
		}
	}
	if len(listing.ImageURLs) > 0 {
		listing.ImageURL = listing.ImageURLs[0]
	}
	return listing
}

func postImages(post *goquery.Selection, selector string, abs func(string) string) []string {
	var images []string
	post.Find(selector).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" || strings.HasPrefix(src, "data:image") {
			return
		}
		images = append(images, abs(src))
	})
	return images
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
