package scoring

import (
	"context"
	"fmt"
	"strings"

	"watch-deal-finder/internal/models"
)

const (
	RuleScorerName = "rules"

	baseScore = 50
)

var (
	tierOneBrands = map[string]bool{
		"Rolex":               true,
		"Patek Philippe":      true,
		"Audemars Piguet":     true,
		"Vacheron Constantin": true,
		"A. Lange & Söhne":    true,
	}
	tierTwoBrands = map[string]bool{
		"Omega":              true,
		"Cartier":            true,
		"Jaeger-LeCoultre":   true,
		"Grand Seiko":        true,
		"Breguet":            true,
		"Blancpain":          true,
		"IWC":                true,
		"Panerai":            true,
		"Zenith":             true,
		"Tudor":              true,
		"Breitling":          true,
		"Hublot":             true,
		"Glashütte Original": true,
	}
)

type marginBand struct {
	min    float64
	points int
}

// bands are checked top down; the first band the margin reaches wins.
var marginBands = []marginBand{
	{30, 30},
	{20, 22},
	{10, 15},
	{5, 8},
	{0, 2},
	{-10, -10},
}

const (
	belowBandsPoints = -25
	noMarginPoints   = -5
)

// RuleScorer scores deals deterministically from margin, brand liquidity,
// source trust and listing completeness. It never fails.
type RuleScorer struct{}

func NewRuleScorer() *RuleScorer { return &RuleScorer{} }

func (RuleScorer) Name() string { return RuleScorerName }

func (RuleScorer) Score(_ context.Context, deal *models.Deal) (Result, error) {
	score := baseScore
	var reasons []string

	if deal.EstimatedMargin == nil {
		score += noMarginPoints
		reasons = append(reasons, "no market price")
	} else {
		m := *deal.EstimatedMargin
		points := marginPoints(m)
		score += points
		reasons = append(reasons, fmt.Sprintf("margin %+.1f%% (%+d)", m, points))
	}

	brandPts := brandPoints(deal)
	score += brandPts
	if brandPts != 0 {
		reasons = append(reasons, fmt.Sprintf("brand %s (%+d)", deal.Brand, brandPts))
	}

	score += sourcePoints(deal.Source)

	if deal.HasReference() {
		score += 5
		reasons = append(reasons, "reference known")
	}
	if len(deal.ImageURLs) >= 3 {
		score += 3
	}
	if strings.TrimSpace(deal.Description) != "" {
		score += 2
	}

	return Result{
		Score:     clamp(score),
		Rationale: strings.Join(reasons, ", "),
		Scorer:    RuleScorerName,
	}, nil
}

func marginPoints(m float64) int {
	for _, b := range marginBands {
		if m >= b.min {
			return b.points
		}
	}
	return belowBandsPoints
}

func brandPoints(deal *models.Deal) int {
	switch {
	case !deal.HasBrand():
		return -10
	case tierOneBrands[deal.Brand]:
		return 10
	case tierTwoBrands[deal.Brand]:
		return 5
	default:
		return 0
	}
}

func sourcePoints(source string) int {
	switch source {
	case models.SourceReddit:
		return 3
	case models.SourceEbay:
		return 0
	default:
		// forums
		return 2
	}
}
