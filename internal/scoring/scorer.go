package scoring

import (
	"context"
	"log"

	"watch-deal-finder/internal/models"
)

// Result is a deal score in [0, 100] with a short human readable reason.
type Result struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
	Scorer    string `json:"scorer"`
}

type Scorer interface {
	Name() string
	Score(ctx context.Context, deal *models.Deal) (Result, error)
}

// FallbackScorer asks primary first and falls back to secondary when primary
// fails. A nil primary always uses secondary.
type FallbackScorer struct {
	primary   Scorer
	secondary Scorer
}

func NewFallbackScorer(primary, secondary Scorer) *FallbackScorer {
	return &FallbackScorer{primary: primary, secondary: secondary}
}

func (f *FallbackScorer) Name() string {
	if f.primary == nil {
		return f.secondary.Name()
	}
	return f.primary.Name() + "+" + f.secondary.Name()
}

func (f *FallbackScorer) Score(ctx context.Context, deal *models.Deal) (Result, error) {
	if f.primary != nil {
		res, err := f.primary.Score(ctx, deal)
		if err == nil {
			return res, nil
		}
		log.Printf("Scoring: %s failed for %s, using %s: %v", f.primary.Name(), deal.ID, f.secondary.Name(), err)
	}
	return f.secondary.Score(ctx, deal)
}
