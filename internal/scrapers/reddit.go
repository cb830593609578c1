package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"watch-deal-finder/internal/models"
	"watch-deal-finder/internal/parser"
)

const RedditSource = models.SourceReddit

type RedditConfig struct {
	BaseURL   string
	Subreddit string
	Limit     int
	MaxAge    time.Duration
	Collector CollectorConfig
}

// RedditScraper reads the newest posts of a watch-exchange subreddit through
// the public JSON listing endpoints.
type RedditScraper struct {
	cfg RedditConfig
	now func() time.Time
}

func NewRedditScraper(cfg RedditConfig) *RedditScraper {
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Collector.BaseURL = cfg.BaseURL
	return &RedditScraper{cfg: cfg, now: time.Now}
}

func (r *RedditScraper) Name() string { return RedditSource }

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string     `json:"kind"`
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID                  string                 `json:"id"`
	Title               string                 `json:"title"`
	Selftext            string                 `json:"selftext"`
	Author              string                 `json:"author"`
	Permalink           string                 `json:"permalink"`
	URL                 string                 `json:"url"`
	URLOverriddenByDest string                 `json:"url_overridden_by_dest"`
	Thumbnail           string                 `json:"thumbnail"`
	CreatedUTC          float64                `json:"created_utc"`
	Stickied            bool                   `json:"stickied"`
	MediaMetadata       map[string]redditMedia `json:"media_metadata"`
	GalleryData         *redditGallery         `json:"gallery_data"`
}

type redditGallery struct {
	Items []struct {
		MediaID string `json:"media_id"`
	} `json:"items"`
}

type redditMedia struct {
	Status string `json:"status"`
	S      struct {
		U string `json:"u"`
	} `json:"s"`
}

type redditComment struct {
	Kind string `json:"kind"`
	Data struct {
		Author  string          `json:"author"`
		Body    string          `json:"body"`
		Replies json.RawMessage `json:"replies"`
	} `json:"data"`
}

type redditCommentListing struct {
	Data struct {
		Children []redditComment `json:"children"`
	} `json:"data"`
}

func (r *RedditScraper) FetchListings(ctx context.Context) ([]models.RawListing, error) {
	listings := make([]models.RawListing, 0)

	listURL := fmt.Sprintf("%s/r/%s/new.json?limit=%d", r.cfg.BaseURL, r.cfg.Subreddit, r.cfg.Limit)
	log.Printf("Reddit: fetching %s", listURL)

	var (
		posts       []redditPost
		rateLimited bool
		fetchErr    error
	)

	c := r.newCollector(ctx)
	c.OnResponse(func(resp *colly.Response) {
		var page redditListing
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			fetchErr = fmt.Errorf("decode listing: %w", err)
			return
		}
		for _, child := range page.Data.Children {
			if child.Kind == "t3" {
				posts = append(posts, child.Data)
			}
		}
	})
	c.OnError(func(resp *colly.Response, err error) {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			rateLimited = true
			return
		}
		fetchErr = err
	})

	if err := c.Visit(listURL); err != nil && fetchErr == nil && !rateLimited {
		fetchErr = err
	}
	if rateLimited {
		log.Printf("Reddit: rate limited (429), skipping this run")
		return listings, ErrRateLimited
	}
	if fetchErr != nil {
		return listings, fmt.Errorf("reddit listing: %w", fetchErr)
	}

	cutoff := r.now().Add(-r.cfg.MaxAge)
	for _, p := range posts {
		if p.Stickied {
			continue
		}
		posted := time.Unix(int64(p.CreatedUTC), 0).UTC()
		if r.cfg.MaxAge > 0 && posted.Before(cutoff) {
			// /new is newest first; everything after this is older still
			break
		}
		if !parser.IsForSale(p.Title) {
			continue
		}

		listing := models.RawListing{
			Source:      RedditSource,
			Title:       strings.TrimSpace(p.Title),
			SourceURL:   r.cfg.BaseURL + p.Permalink,
			Description: strings.TrimSpace(p.Selftext),
			Author:      p.Author,
			PostedAt:    posted,
			ImageURLs:   redditImages(p),
		}
		if len(listing.ImageURLs) > 0 {
			listing.ImageURL = listing.ImageURLs[0]
		}

		ref := parser.ParseTitle(p.Title).Reference
		price, ok := parser.ParsePrice(p.Title, ref)
		if !ok {
			price, ok = parser.ParsePrice(p.Selftext, ref)
		}
		if !ok && p.ID != "" {
			price, ok = r.commentPrice(ctx, p.ID, p.Author, ref)
		}
		if ok {
			listing.ListingPrice = price.Amount
			listing.Currency = price.Currency
		}

		listings = append(listings, listing)
	}

	log.Printf("Reddit: %d WTS listings from %d posts", len(listings), len(posts))
	return listings, nil
}

// commentPrice looks for the asking price in the original poster's own
// comments, where sellers often put it instead of the title.
func (r *RedditScraper) commentPrice(ctx context.Context, postID, author, ref string) (parser.Price, bool) {
	var (
		found parser.Price
		ok    bool
	)

	c := r.newCollector(ctx)
	c.OnResponse(func(resp *colly.Response) {
		var pages []redditCommentListing
		if err := json.Unmarshal(resp.Body, &pages); err != nil {
			log.Printf("Reddit: decode comments for %s: %v", postID, err)
			return
		}
		if len(pages) < 2 {
			return
		}
		found, ok = findAuthorPrice(pages[1].Data.Children, author, ref)
	})
	c.OnError(func(resp *colly.Response, err error) {
		log.Printf("Reddit: comments for %s: %v", postID, err)
	})

	_ = c.Visit(fmt.Sprintf("%s/comments/%s.json", r.cfg.BaseURL, postID))
	return found, ok
}

func findAuthorPrice(comments []redditComment, author, ref string) (parser.Price, bool) {
	for _, cm := range comments {
		if cm.Kind != "t1" {
			continue
		}
		if cm.Data.Author == author {
			if p, ok := parser.ParsePrice(cm.Data.Body, ref); ok {
				return p, true
			}
		}
		// replies is "" when empty, a listing object otherwise
		if len(cm.Data.Replies) > 0 && cm.Data.Replies[0] == '{' {
			var sub redditCommentListing
			if err := json.Unmarshal(cm.Data.Replies, &sub); err == nil {
				if p, ok := findAuthorPrice(sub.Data.Children, author, ref); ok {
					return p, true
				}
			}
		}
	}
	return parser.Price{}, false
}

func (r *RedditScraper) newCollector(ctx context.Context) *colly.Collector {
	c := NewCollector(ctx, r.cfg.Collector)
	c.OnRequest(func(req *colly.Request) {
		req.Headers.Set("Accept", "application/json")
	})
	return c
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

func redditImages(p redditPost) []string {
	var images []string

	if len(p.MediaMetadata) > 0 {
		var ids []string
		if p.GalleryData != nil {
			for _, item := range p.GalleryData.Items {
				ids = append(ids, item.MediaID)
			}
		} else {
			for id := range p.MediaMetadata {
				ids = append(ids, id)
			}
			sort.Strings(ids)
		}
		for _, id := range ids {
			m, ok := p.MediaMetadata[id]
			if !ok || m.S.U == "" {
				continue
			}
			images = append(images, strings.ReplaceAll(m.S.U, "&amp;", "&"))
		}
		if len(images) > 0 {
			return images
		}
	}

	if isImageURL(p.URLOverriddenByDest) {
		return []string{p.URLOverriddenByDest}
	}
	if strings.HasPrefix(p.Thumbnail, "http") {
		return []string{strings.ReplaceAll(p.Thumbnail, "&amp;", "&")}
	}
	return nil
}

func isImageURL(u string) bool {
	lower := strings.ToLower(u)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return strings.Contains(lower, "i.redd.it/")
}
