package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"watch-deal-finder/internal/models"
)

const (
	quotePrefix = "market:"
	ratesPrefix = "fx:"
)

var ErrUnavailable = errors.New("redis client not available")

// RedisCache stores market-price consensus results and exchange-rate tables.
// A nil *RedisCache is valid and behaves as an always-missing cache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and returns nil when Redis cannot be
// reached, so callers run uncached rather than failing.
func NewRedisCache(ctx context.Context, redisURL string, db int, ttl time.Duration) *RedisCache {
	if redisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("Failed to parse Redis URL: %v", err)
		return nil
	}
	opt.DB = db

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Redis connection failed: %v", err)
		_ = client.Close()
		return nil
	}

	log.Printf("Redis connected successfully, DB: %d, TTL: %s", db, ttl)

	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

// GetMarketPrice returns nil, nil on a cache miss.
func (r *RedisCache) GetMarketPrice(ctx context.Context, key string) (*models.MarketPrice, error) {
	if r == nil || r.client == nil {
		return nil, ErrUnavailable
	}

	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var mp models.MarketPrice
	if err := json.Unmarshal([]byte(val), &mp); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}
	mp.Cached = true
	return &mp, nil
}

func (r *RedisCache) SetMarketPrice(ctx context.Context, key string, mp *models.MarketPrice) error {
	if r == nil || r.client == nil {
		return ErrUnavailable
	}

	data, err := json.Marshal(mp)
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

// GetRates returns the cached rate table for base, or nil on a miss.
func (r *RedisCache) GetRates(ctx context.Context, base string) (map[string]float64, error) {
	if r == nil || r.client == nil {
		return nil, ErrUnavailable
	}

	val, err := r.client.Get(ctx, ratesPrefix+strings.ToUpper(base)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var rates map[string]float64
	if err := json.Unmarshal([]byte(val), &rates); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}
	return rates, nil
}

func (r *RedisCache) SetRates(ctx context.Context, base string, rates map[string]float64) error {
	if r == nil || r.client == nil {
		return ErrUnavailable
	}

	data, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}
	return r.client.Set(ctx, ratesPrefix+strings.ToUpper(base), data, r.ttl).Err()
}

// GenerateQuoteKey builds the cache key for a market-price query. Queries that
// differ only in case or spacing share a key.
func GenerateQuoteKey(query, currency string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return fmt.Sprintf("%s%s:%s", quotePrefix, strings.ToUpper(currency), norm)
}

func (r *RedisCache) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisCache) IsAvailable() bool {
	return r != nil && r.client != nil
}

func (r *RedisCache) GetStats(ctx context.Context) map[string]interface{} {
	if r == nil || r.client == nil {
		return map[string]interface{}{
			"status": "unavailable",
		}
	}

	info := r.client.Info(ctx, "memory").Val()
	return map[string]interface{}{
		"status":      "connected",
		"ttl_seconds": int(r.ttl.Seconds()),
		"quote_keys":  len(r.GetAllKeys(ctx)),
		"memory_info": info,
	}
}

func (r *RedisCache) GetAllKeys(ctx context.Context) []string {
	if r == nil || r.client == nil {
		return []string{}
	}
	keys, err := r.client.Keys(ctx, quotePrefix+"*").Result()
	if err != nil {
		return []string{}
	}
	return keys
}

func (r *RedisCache) FlushCache(ctx context.Context) error {
	if r == nil || r.client == nil {
		return ErrUnavailable
	}
	return r.client.FlushDB(ctx).Err()
}

func (r *RedisCache) GetKeyTTL(ctx context.Context, key string) time.Duration {
	if r == nil || r.client == nil {
		return 0
	}
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0
	}
	return ttl
}
