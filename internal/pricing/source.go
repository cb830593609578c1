package pricing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"watch-deal-finder/internal/models"
	"watch-deal-finder/pkg/utils"
)

var (
	ErrInsufficientSamples = errors.New("not enough price samples")
	ErrNoMarketPrice       = errors.New("no market price consensus")
)

// Source produces one market-price estimate for a watch query.
type Source interface {
	Name() string
	Quote(ctx context.Context, query string) (*models.PriceQuote, error)
}

// SampleFilter bounds the raw samples a source may use. Samples outside
// [Min, Max] are dropped before the median is taken.
type SampleFilter struct {
	Min        float64
	Max        float64
	MinSamples int
}

// Estimate returns the median of the samples that pass the filter, and how
// many did.
func (f SampleFilter) Estimate(samples []float64) (float64, int, error) {
	kept := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s <= 0 {
			continue
		}
		if f.Min > 0 && s < f.Min {
			continue
		}
		if f.Max > 0 && s > f.Max {
			continue
		}
		kept = append(kept, s)
	}

	need := f.MinSamples
	if need < 1 {
		need = 1
	}
	if len(kept) < need {
		return 0, len(kept), fmt.Errorf("%w: %d of %d", ErrInsufficientSamples, len(kept), need)
	}
	return utils.Median(kept), len(kept), nil
}

var queryTokenPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// isRelevant reports whether every word of query appears in title, so that a
// search for "Rolex 16610" does not price straps or other references.
func isRelevant(title, query string) bool {
	if title == "" {
		return false
	}
	haystack := " " + strings.ToLower(queryTokenPattern.ReplaceAllString(title, " ")) + " "
	for _, word := range queryTokenPattern.Split(strings.ToLower(query), -1) {
		if word == "" {
			continue
		}
		if !strings.Contains(haystack, " "+word+" ") {
			return false
		}
	}
	return true
}

// dominantCurrency returns the most frequent currency among counts, with ties
// going to the alphabetically first code.
func dominantCurrency(counts map[string]int) string {
	best, bestN := "", 0
	for code, n := range counts {
		if n > bestN || (n == bestN && code < best) {
			best, bestN = code, n
		}
	}
	return best
}
