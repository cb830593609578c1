package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"watch-deal-finder/internal/models"
	"watch-deal-finder/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrInvalidQuery wraps every rejection of a deal query's filters or sort.
var ErrInvalidQuery = errors.New("invalid deal query")

var (
	validSortFields = []string{"score", "margin", "price", "updated"}
	validSortOrders = []string{"asc", "desc"}
)

// DealService answers read queries over stored deals.
type DealService struct {
	store store.DealStore
}

func NewDealService(s store.DealStore) *DealService {
	return &DealService{store: s}
}

func (s *DealService) GetDeal(ctx context.Context, id string) (*models.Deal, error) {
	return s.store.GetDeal(ctx, id)
}

func (s *DealService) ListDeals(ctx context.Context, q models.DealQuery) (*models.DealListResponse, error) {
	if err := validateDealQuery(&q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	deals, err := s.store.ListDeals(ctx, q.Filters)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}

	applySorting(deals, q.Sort)
	page, totalPages := applyPagination(deals, q.Page, q.Limit)

	return &models.DealListResponse{
		Deals:      page,
		Total:      len(deals),
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: totalPages,
		Filters:    q.Filters,
		Sort:       q.Sort,
	}, nil
}

func validateDealQuery(q *models.DealQuery) error {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}

	if f := q.Filters; f != nil {
		if f.MinPrice < 0 {
			return fmt.Errorf("minimum price cannot be negative")
		}
		if f.MaxPrice > 0 && f.MaxPrice < f.MinPrice {
			return fmt.Errorf("maximum price cannot be less than minimum price")
		}
		if f.MinScore < 0 || f.MinScore > 100 {
			return fmt.Errorf("minimum score must be between 0 and 100")
		}
	}

	if q.Sort != nil {
		if q.Sort.Order == "" {
			q.Sort.Order = "desc"
		}
		if !contains(validSortFields, q.Sort.Field) {
			return fmt.Errorf("invalid sort field: %s. Valid fields: %s", q.Sort.Field, strings.Join(validSortFields, ", "))
		}
		if !contains(validSortOrders, q.Sort.Order) {
			return fmt.Errorf("invalid sort order: %s. Valid orders: %s", q.Sort.Order, strings.Join(validSortOrders, ", "))
		}
	}
	return nil
}

// applySorting orders deals in place. Deals missing the sort value go last
// in either order.
func applySorting(deals []*models.Deal, sortParams *models.DealSort) {
	if sortParams == nil {
		return
	}
	desc := sortParams.Order == "desc"

	sort.SliceStable(deals, func(i, j int) bool {
		switch sortParams.Field {
		case "score":
			return lessOptional(intValue(deals[i].Score), intValue(deals[j].Score), desc)
		case "margin":
			return lessOptional(deals[i].EstimatedMargin, deals[j].EstimatedMargin, desc)
		case "price":
			if desc {
				return deals[i].PriceBase > deals[j].PriceBase
			}
			return deals[i].PriceBase < deals[j].PriceBase
		case "updated":
			if desc {
				return deals[i].LastUpdated.After(deals[j].LastUpdated)
			}
			return deals[i].LastUpdated.Before(deals[j].LastUpdated)
		default:
			return false
		}
	})
}

func lessOptional(a, b *float64, desc bool) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	case desc:
		return *a > *b
	default:
		return *a < *b
	}
}

func intValue(p *int) *float64 {
	if p == nil {
		return nil
	}
	v := float64(*p)
	return &v
}

func applyPagination(deals []*models.Deal, page, limit int) ([]*models.Deal, int) {
	total := len(deals)
	totalPages := int(math.Ceil(float64(total) / float64(limit)))

	start := (page - 1) * limit
	if start >= total {
		return []*models.Deal{}, totalPages
	}

	end := start + limit
	if end > total {
		end = total
	}

	return deals[start:end], totalPages
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
