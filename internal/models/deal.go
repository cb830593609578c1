package models

import (
	"time"
)

const (
	UnknownBrand = "Unknown"
	NoReference  = "N/A"

	SourceReddit = "Reddit"
	SourceEbay   = "eBay"
)

// RawListing is a listing as a source fetcher found it, before normalization.
type RawListing struct {
	Source       string    `json:"source"`
	Title        string    `json:"title"`
	ListingPrice float64   `json:"listing_price,omitempty"` // 0 when the source did not expose one
	Currency     string    `json:"currency,omitempty"`
	SourceURL    string    `json:"source_url"`
	ImageURL     string    `json:"image_url,omitempty"`
	ImageURLs    []string  `json:"image_urls,omitempty"`
	Description  string    `json:"description,omitempty"`
	Author       string    `json:"author,omitempty"`
	PostedAt     time.Time `json:"posted_at,omitempty"`
}

type Deal struct {
	ID              string    `json:"id"`
	Source          string    `json:"source"`
	Title           string    `json:"title"`
	OriginalTitle   string    `json:"original_title"`
	Brand           string    `json:"brand"`
	Model           string    `json:"model"`
	ReferenceNumber string    `json:"reference_number"`
	ListingPrice    float64   `json:"listing_price"`
	ListingCurrency string    `json:"listing_currency"`
	PriceBase       float64   `json:"price_base"` // listing price in the base currency
	BaseCurrency    string    `json:"base_currency"`
	MarketPrice     *float64  `json:"market_price"`
	MarketSources   []string  `json:"market_sources,omitempty"`
	RetailPrice     *float64  `json:"retail_price"`
	EstimatedMargin *float64  `json:"estimated_margin_percent"`
	Score           *int      `json:"score"`
	ScoreRationale  string    `json:"score_rationale,omitempty"`
	DealLabel       string    `json:"deal_label"`
	Tags            []string  `json:"tags,omitempty"`
	SourceURL       string    `json:"source_url"`
	ImageURL        string    `json:"image_url,omitempty"`
	ImageURLs       []string  `json:"image_urls,omitempty"`
	Description     string    `json:"description,omitempty"`
	Condition       string    `json:"condition"`
	PostedAt        time.Time `json:"posted_at,omitempty"`
	LastUpdated     time.Time `json:"last_updated"`
}

// HasReference reports whether the title parser found a reference number.
func (d *Deal) HasReference() bool {
	return d.ReferenceNumber != "" && d.ReferenceNumber != NoReference
}

func (d *Deal) HasBrand() bool {
	return d.Brand != "" && d.Brand != UnknownBrand
}

// PriceQuote is one source's estimate, itself a median over that source's samples.
type PriceQuote struct {
	Source   string  `json:"source"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Samples  int     `json:"samples"`
}

type MarketPrice struct {
	Query     string       `json:"query"`
	Value     float64      `json:"value"`
	Currency  string       `json:"currency"`
	Quotes    []PriceQuote `json:"quotes"`
	Consulted []string     `json:"consulted"`
	Cached    bool         `json:"cached,omitempty"`
}

type DealFilters struct {
	Brand     string   `json:"brand,omitempty"`
	Source    string   `json:"source,omitempty"`
	MinPrice  float64  `json:"min_price,omitempty"`
	MaxPrice  float64  `json:"max_price,omitempty"`
	MinScore  int      `json:"min_score,omitempty"`
	MinMargin *float64 `json:"min_margin,omitempty"`
}

type DealSort struct {
	Field string `json:"field"` // score, margin, price, updated
	Order string `json:"order"` // asc, desc
}

type DealQuery struct {
	Page    int          `json:"page"`
	Limit   int          `json:"limit"`
	Filters *DealFilters `json:"filters,omitempty"`
	Sort    *DealSort    `json:"sort,omitempty"`
}

type DealListResponse struct {
	Deals      []*Deal      `json:"deals"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"total_pages"`
	Filters    *DealFilters `json:"filters,omitempty"`
	Sort       *DealSort    `json:"sort,omitempty"`
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID         string            `json:"run_id"`
	StartedAt     time.Time         `json:"started_at"`
	Duration      string            `json:"duration"`
	Fetched       map[string]int    `json:"fetched"`
	FetchErrors   map[string]string `json:"fetch_errors,omitempty"`
	Standardized  int               `json:"standardized"`
	Rejected      int               `json:"rejected"`
	Duplicates    int               `json:"duplicates"`
	Enriched      int               `json:"enriched"`
	NoMarketPrice int               `json:"no_market_price"`
	Overpriced    int               `json:"overpriced_dropped"`
	Scored        int               `json:"scored"`
	Stored        int               `json:"stored"`
	DryRun        bool              `json:"dry_run,omitempty"`
	Deals         []*Deal           `json:"deals,omitempty"` // dry runs only
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
