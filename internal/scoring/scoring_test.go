package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"

	"watch-deal-finder/internal/models"
)

func f64(v float64) *float64 { return &v }

func TestMargin(t *testing.T) {
	cases := []struct {
		name    string
		listing float64
		market  *float64
		want    float64
		ok      bool
	}{
		{"below market", 8000, f64(10000), 25, true},
		{"above market", 10000, f64(9000), -10, true},
		{"rounded", 3000, f64(3100), 3.33, true},
		{"no market", 8000, nil, 0, false},
		{"zero listing", 0, f64(10000), 0, false},
		{"zero market", 8000, f64(0), 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := Margin(c.listing, c.market)
			if got != c.want || ok != c.ok {
				t.Errorf("Margin(%v, %v) = %v, %v; want %v, %v", c.listing, c.market, got, ok, c.want, c.ok)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	cases := []struct {
		score  int
		margin *float64
		want   string
	}{
		{90, f64(35), LabelTop},
		{86, f64(-2), LabelTop},
		{85, f64(20), LabelGood},
		{71, f64(12), LabelGood},
		{70, f64(-1), LabelOverpriced},
		{60, f64(0), LabelOK},
		{95, nil, LabelNone},
	}
	for _, c := range cases {
		if got := Label(c.score, c.margin); got != c.want {
			t.Errorf("Label(%d, %v) = %q, want %q", c.score, c.margin, got, c.want)
		}
	}
}

func TestRuleScorer(t *testing.T) {
	cases := []struct {
		name string
		deal models.Deal
		want int
	}{
		{
			// 50 + 30 + 10 + 3 + 5 + 3 + 2
			name: "great rolex on reddit",
			deal: models.Deal{
				Source: models.SourceReddit, Brand: "Rolex", ReferenceNumber: "16610",
				EstimatedMargin: f64(32), ImageURLs: []string{"a", "b", "c"}, Description: "full set",
			},
			want: 100,
		},
		{
			// 50 + 8 + 5 + 0 + 5
			name: "tier two brand on ebay",
			deal: models.Deal{
				Source: models.SourceEbay, Brand: "Omega", ReferenceNumber: "311.30.42.30.01.005",
				EstimatedMargin: f64(6.5),
			},
			want: 68,
		},
		{
			// 50 - 5 - 10 + 2
			name: "unknown brand without market price on a forum",
			deal: models.Deal{Source: "WatchUSeek", Brand: models.UnknownBrand, ReferenceNumber: models.NoReference},
			want: 37,
		},
		{
			// 50 - 25 + 0 + 0
			name: "badly overpriced tier three",
			deal: models.Deal{Source: models.SourceEbay, Brand: "Seiko", ReferenceNumber: models.NoReference, EstimatedMargin: f64(-40)},
			want: 25,
		},
		{
			// 50 - 10 - 10 + 0
			name: "slightly overpriced unknown",
			deal: models.Deal{Source: models.SourceEbay, Brand: models.UnknownBrand, EstimatedMargin: f64(-3)},
			want: 30,
		},
	}

	s := NewRuleScorer()
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := s.Score(context.Background(), &c.deal)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if res.Score != c.want {
				t.Errorf("score = %d, want %d (%s)", res.Score, c.want, res.Rationale)
			}
			if res.Scorer != RuleScorerName || res.Rationale == "" {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestMarginPointsBands(t *testing.T) {
	cases := map[float64]int{30: 30, 29.99: 22, 20: 22, 10: 15, 5: 8, 0: 2, -0.01: -10, -10: -10, -10.01: -25}
	for m, want := range cases {
		if got := marginPoints(m); got != want {
			t.Errorf("marginPoints(%v) = %d, want %d", m, got, want)
		}
	}
}

type stubScorer struct {
	name string
	res  Result
	err  error
	hits int
}

func (s *stubScorer) Name() string { return s.name }

func (s *stubScorer) Score(context.Context, *models.Deal) (Result, error) {
	s.hits++
	return s.res, s.err
}

func TestFallbackScorer(t *testing.T) {
	deal := &models.Deal{ID: "Reddit_abc"}
	secondary := &stubScorer{name: "rules", res: Result{Score: 40, Scorer: "rules"}}

	failing := &stubScorer{name: "llm", err: errors.New("boom")}
	res, err := NewFallbackScorer(failing, secondary).Score(context.Background(), deal)
	if err != nil || res.Score != 40 || failing.hits != 1 {
		t.Errorf("fallback: res=%+v err=%v primary hits=%d", res, err, failing.hits)
	}

	working := &stubScorer{name: "llm", res: Result{Score: 77, Scorer: "llm"}}
	res, _ = NewFallbackScorer(working, secondary).Score(context.Background(), deal)
	if res.Score != 77 || secondary.hits != 1 {
		t.Errorf("primary result not used: %+v, secondary hits=%d", res, secondary.hits)
	}

	f := NewFallbackScorer(nil, secondary)
	if f.Name() != "rules" {
		t.Errorf("Name = %q", f.Name())
	}
	if res, _ := f.Score(context.Background(), deal); !strings.EqualFold(res.Scorer, "rules") {
		t.Errorf("nil primary: %+v", res)
	}
}
