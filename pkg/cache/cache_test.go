package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"watch-deal-finder/internal/models"
)

func TestGenerateQuoteKeyNormalizesQuery(t *testing.T) {
	a := GenerateQuoteKey("Rolex  16610", "eur")
	b := GenerateQuoteKey("rolex 16610 ", "EUR")
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
	if a != "market:EUR:rolex 16610" {
		t.Errorf("key = %q", a)
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var r *RedisCache
	ctx := context.Background()

	if r.IsAvailable() {
		t.Error("nil cache reports available")
	}
	if _, err := r.GetMarketPrice(ctx, "k"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("GetMarketPrice err = %v, want ErrUnavailable", err)
	}
	if err := r.SetMarketPrice(ctx, "k", &models.MarketPrice{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("SetMarketPrice err = %v, want ErrUnavailable", err)
	}
	if _, err := r.GetRates(ctx, "EUR"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("GetRates err = %v, want ErrUnavailable", err)
	}
	if got := r.GetStats(ctx)["status"]; got != "unavailable" {
		t.Errorf("status = %v", got)
	}
	if keys := r.GetAllKeys(ctx); len(keys) != 0 {
		t.Errorf("keys = %v", keys)
	}
	if ttl := r.GetKeyTTL(ctx, "k"); ttl != 0 {
		t.Errorf("ttl = %v", ttl)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close err = %v", err)
	}
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	if c := NewRedisCache(context.Background(), "", 0, time.Minute); c != nil {
		t.Error("expected nil cache for empty URL")
	}
	if c := NewRedisCache(context.Background(), "://bad", 0, time.Minute); c != nil {
		t.Error("expected nil cache for bad URL")
	}
}
