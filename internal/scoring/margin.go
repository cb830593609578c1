package scoring

import (
	"watch-deal-finder/pkg/utils"
)

// Margin returns the percentage a buyer would gain by paying listing for a
// watch worth market: (market - listing) / listing * 100, rounded to two
// decimals. ok is false when either price is missing.
func Margin(listing float64, market *float64) (margin float64, ok bool) {
	if listing <= 0 || market == nil || *market <= 0 {
		return 0, false
	}
	return utils.Round((*market-listing)/listing*100, 2), true
}

const (
	LabelTop        = "Top Deal"
	LabelGood       = "Good Deal"
	LabelOverpriced = "Overpriced"
	LabelOK         = "OK"
	LabelNone       = "N/A"
)

// Label classifies a scored deal. A deal without a margin has nothing to be
// judged against and is always N/A.
func Label(score int, margin *float64) string {
	if margin == nil {
		return LabelNone
	}
	switch {
	case score > 85:
		return LabelTop
	case score > 70:
		return LabelGood
	case *margin < 0:
		return LabelOverpriced
	default:
		return LabelOK
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
