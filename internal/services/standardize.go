package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"watch-deal-finder/internal/models"
	"watch-deal-finder/internal/parser"
	"watch-deal-finder/internal/pricing"
	"watch-deal-finder/internal/scoring"
	"watch-deal-finder/pkg/utils"
)

const (
	usedCondition = "Used"
	idHashLength  = 12
)

var ErrRejected = errors.New("listing rejected")

// Extractor reads brand, model and price from a listing's free text when the
// title parsers find no brand or no price.
type Extractor interface {
	Extract(ctx context.Context, title, text string) (scoring.Extraction, error)
}

// Standardize turns a raw listing into a deal priced in the converter's base
// currency. Listings without a title, a URL or any usable price are rejected.
// extractor may be nil.
func Standardize(ctx context.Context, raw models.RawListing, converter pricing.Converter, extractor Extractor, now time.Time) (*models.Deal, error) {
	title := strings.TrimSpace(raw.Title)
	sourceURL := strings.TrimSpace(raw.SourceURL)
	if title == "" || sourceURL == "" {
		return nil, fmt.Errorf("%w: missing title or url", ErrRejected)
	}

	info := parser.ParseTitle(title)

	amount, currency := raw.ListingPrice, raw.Currency
	if amount <= 0 {
		price, ok := parser.ParsePrice(title, info.Reference)
		if !ok && raw.Description != "" {
			price, ok = parser.ParsePrice(raw.Description, info.Reference)
		}
		if ok {
			amount, currency = price.Amount, price.Currency
		}
	}

	if extractor != nil && (amount <= 0 || info.Brand == models.UnknownBrand) {
		ex, err := extractor.Extract(ctx, title, raw.Description)
		if err != nil {
			log.Printf("Standardize: extraction failed for %q: %v", truncateTitle(title), err)
		} else {
			amount, currency = applyExtraction(&info, ex, amount, currency)
		}
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: no listing price in %q", ErrRejected, title)
	}
	if currency == "" {
		currency = parser.DefaultCurrency
	}

	priceBase, err := converter.Convert(ctx, amount, currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	deal := &models.Deal{
		ID:              DealID(raw.Source, sourceURL),
		Source:          raw.Source,
		Title:           info.CleanTitle,
		OriginalTitle:   title,
		Brand:           info.Brand,
		Model:           info.Model,
		ReferenceNumber: info.Reference,
		ListingPrice:    utils.Round(amount, 2),
		ListingCurrency: strings.ToUpper(currency),
		PriceBase:       priceBase,
		BaseCurrency:    converter.Base(),
		DealLabel:       scoring.LabelNone,
		Tags:            []string{sourceTag(raw.Source)},
		SourceURL:       sourceURL,
		ImageURL:        raw.ImageURL,
		ImageURLs:       raw.ImageURLs,
		Description:     strings.TrimSpace(raw.Description),
		Condition:       usedCondition,
		PostedAt:        raw.PostedAt,
		LastUpdated:     now,
	}
	if deal.Title == "" {
		deal.Title = title
	}
	if deal.ImageURL == "" && len(deal.ImageURLs) > 0 {
		deal.ImageURL = deal.ImageURLs[0]
	}
	return deal, nil
}

// applyExtraction fills what the parsers missed. A numeric reference equal to
// the extracted price was the price all along.
func applyExtraction(info *parser.TitleInfo, ex scoring.Extraction, amount float64, currency string) (float64, string) {
	if amount <= 0 && ex.Price > 0 {
		amount, currency = ex.Price, ex.Currency
		if ref, err := strconv.ParseFloat(info.Reference, 64); err == nil && ref == ex.Price {
			info.Reference = models.NoReference
		}
	}
	if info.Brand == models.UnknownBrand && ex.Brand != "" {
		info.Brand = ex.Brand
		if known := parser.ParseTitle(ex.Brand).Brand; known != models.UnknownBrand {
			info.Brand = known
		}
		if ex.Model != "" {
			info.Model = ex.Model
		}
		info.CleanTitle = strings.TrimSpace(info.Brand + " " + info.Model)
	}
	return amount, currency
}

func truncateTitle(s string) string {
	if len(s) <= 40 {
		return s
	}
	return s[:40] + "..."
}

// DealID is stable across runs: the same listing URL always maps to the same
// document.
func DealID(source, sourceURL string) string {
	sum := sha1.Sum([]byte(sourceURL))
	return compactSource(source) + "_" + hex.EncodeToString(sum[:])[:idHashLength]
}

func sourceTag(source string) string {
	return "#" + compactSource(source) + "Deal"
}

func compactSource(source string) string {
	s := strings.Join(strings.Fields(source), "")
	if s == "" {
		return "Unknown"
	}
	return s
}
