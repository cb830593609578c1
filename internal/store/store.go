package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"watch-deal-finder/internal/models"
)

var ErrNotFound = errors.New("deal not found")

const defaultBatchSize = 200

// DealStore persists deals as documents keyed by deal id. UpsertDeals merges
// each deal into the stored document: fields present in the new deal win,
// fields it omits keep their stored value.
type DealStore interface {
	UpsertDeals(ctx context.Context, deals []*models.Deal) (int, error)
	GetDeal(ctx context.Context, id string) (*models.Deal, error)
	ListDeals(ctx context.Context, filters *models.DealFilters) ([]*models.Deal, error)
	Close() error
}

type Options struct {
	Driver    string // sqlite, postgres or memory
	DataDir   string
	DSN       string
	BatchSize int
}

func Open(ctx context.Context, opts Options) (DealStore, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "sqlite":
		return NewSQLite(opts.DataDir, opts.BatchSize)
	case "postgres", "postgresql":
		return NewPostgres(ctx, opts.DSN, opts.BatchSize)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// batches splits deals into chunks of size, skipping deals without an id.
func batches(deals []*models.Deal, size int) [][]*models.Deal {
	if size <= 0 {
		size = defaultBatchSize
	}
	var out [][]*models.Deal
	var cur []*models.Deal
	for _, d := range deals {
		if d == nil || strings.TrimSpace(d.ID) == "" {
			continue
		}
		cur = append(cur, d)
		if len(cur) == size {
			out = append(out, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func encodeDeal(d *models.Deal) ([]byte, error) {
	doc, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode deal %s: %w", d.ID, err)
	}
	return doc, nil
}

func decodeDeal(doc []byte) (*models.Deal, error) {
	var d models.Deal
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("decode deal: %w", err)
	}
	return &d, nil
}

// filterClause renders filters as a SQL WHERE clause over the indexed
// columns. placeholder returns the driver's bind marker for the n-th arg.
func filterClause(f *models.DealFilters, placeholder func(n int) string) (string, []any) {
	if f == nil {
		return "", nil
	}

	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", placeholder(len(args))))
	}

	if f.Brand != "" {
		add("LOWER(brand) = LOWER(?)", f.Brand)
	}
	if f.Source != "" {
		add("LOWER(source) LIKE ?", "%"+strings.ToLower(f.Source)+"%")
	}
	if f.MinPrice > 0 {
		add("price_base >= ?", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		add("price_base <= ?", f.MaxPrice)
	}
	if f.MinScore > 0 {
		add("score >= ?", f.MinScore)
	}
	if f.MinMargin != nil {
		add("margin >= ?", *f.MinMargin)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Matches applies filters the way filterClause does in SQL.
func Matches(d *models.Deal, f *models.DealFilters) bool {
	if f == nil {
		return true
	}
	if f.Brand != "" && !strings.EqualFold(d.Brand, f.Brand) {
		return false
	}
	if f.Source != "" && !strings.Contains(strings.ToLower(d.Source), strings.ToLower(f.Source)) {
		return false
	}
	if f.MinPrice > 0 && d.PriceBase < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && d.PriceBase > f.MaxPrice {
		return false
	}
	if f.MinScore > 0 && (d.Score == nil || *d.Score < f.MinScore) {
		return false
	}
	if f.MinMargin != nil && (d.EstimatedMargin == nil || *d.EstimatedMargin < *f.MinMargin) {
		return false
	}
	return true
}
