package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"watch-deal-finder/internal/models"
	"watch-deal-finder/internal/pricing"
	"watch-deal-finder/internal/scrapers"
	"watch-deal-finder/internal/services"
	"watch-deal-finder/internal/store"
)

type fakeFetcher struct {
	name     string
	listings []models.RawListing
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) FetchListings(context.Context) ([]models.RawListing, error) {
	return f.listings, nil
}

type fakePipeline struct {
	mu      sync.Mutex
	running bool
	last    *models.RunReport
	runs    []services.RunOptions
	fetcher *fakeFetcher
	done    chan struct{}
}

func (p *fakePipeline) Run(_ context.Context, opts services.RunOptions) (*models.RunReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, opts)
	p.last = &models.RunReport{RunID: "run-1", Stored: 3, DryRun: opts.DryRun}
	if p.done != nil {
		close(p.done)
	}
	return p.last, nil
}

func (p *fakePipeline) Running() bool { return p.running }

func (p *fakePipeline) LastReport() *models.RunReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *fakePipeline) Fetcher(name string) (scrapers.ListingFetcher, bool) {
	if p.fetcher != nil && strings.EqualFold(name, p.fetcher.name) {
		return p.fetcher, true
	}
	return nil, false
}

func (p *fakePipeline) FetcherNames() []string { return []string{"Reddit"} }

type fakeMarket struct{}

func (fakeMarket) MarketPrice(_ context.Context, query string) (*models.MarketPrice, error) {
	switch query {
	case "Rolex 16610":
		return &models.MarketPrice{Query: query, Value: 9800, Currency: "EUR"}, nil
	case "broken":
		return nil, errors.New("upstream exploded")
	}
	return nil, pricing.ErrNoMarketPrice
}

type fakeCache struct{ flushed bool }

func (c *fakeCache) IsAvailable() bool { return true }

func (c *fakeCache) GetStats(context.Context) map[string]interface{} {
	return map[string]interface{}{"status": "connected"}
}

func (c *fakeCache) GetAllKeys(context.Context) []string { return []string{"market:rolex 16610:EUR"} }

func (c *fakeCache) GetKeyTTL(context.Context, string) time.Duration { return time.Hour }

func (c *fakeCache) FlushCache(context.Context) error {
	c.flushed = true
	return nil
}

type failingDeals struct{}

func (failingDeals) ListDeals(context.Context, models.DealQuery) (*models.DealListResponse, error) {
	return nil, errors.New("database is locked")
}

func (failingDeals) GetDeal(context.Context, string) (*models.Deal, error) {
	return nil, errors.New("database is locked")
}

// blockingPipeline runs until its context is cancelled.
type blockingPipeline struct {
	fakePipeline
	started chan struct{}
	stopped chan struct{}
}

func (p *blockingPipeline) Run(ctx context.Context, _ services.RunOptions) (*models.RunReport, error) {
	close(p.started)
	<-ctx.Done()
	close(p.stopped)
	return nil, ctx.Err()
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func seedDeals(t *testing.T) *store.MemoryStore {
	t.Helper()
	mem := store.NewMemory()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	deals := []*models.Deal{
		{ID: "Reddit_a", Source: "Reddit", Brand: "Rolex", PriceBase: 9000, Score: intPtr(90), EstimatedMargin: floatPtr(20), LastUpdated: now},
		{ID: "eBay_b", Source: "eBay", Brand: "Omega", PriceBase: 4000, Score: intPtr(60), EstimatedMargin: floatPtr(5), LastUpdated: now.Add(time.Minute)},
		{ID: "eBay_c", Source: "eBay", Brand: "Seiko", PriceBase: 300, Score: intPtr(40), LastUpdated: now.Add(2 * time.Minute)},
	}
	if _, err := mem.UpsertDeals(context.Background(), deals); err != nil {
		t.Fatal(err)
	}
	return mem
}

func newTestRouter(t *testing.T, p *fakePipeline, cache CacheAdmin) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewHandlers(context.Background(), services.NewDealService(seedDeals(t)), p, fakeMarket{}, cache, time.Minute)
	r := gin.New()
	SetupRoutes(r, h, NewIPRateLimiter(100, 100))
	return r
}

func doRequest(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &fakePipeline{}, nil)

	w := doRequest(r, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["cache"] != "redis unavailable" || body["service"] != serviceName {
		t.Errorf("body = %v", body)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestListDeals(t *testing.T) {
	r := newTestRouter(t, &fakePipeline{}, nil)

	tests := []struct {
		name    string
		target  string
		status  int
		wantIDs []string
	}{
		{"default order is most recent first", "/api/deals", http.StatusOK, []string{"eBay_c", "eBay_b", "Reddit_a"}},
		{"sort by score", "/api/deals?sort=score", http.StatusOK, []string{"Reddit_a", "eBay_b", "eBay_c"}},
		{"source filter", "/api/deals?source=ebay&sort=price&order=asc", http.StatusOK, []string{"eBay_c", "eBay_b"}},
		{"margin filter", "/api/deals?min_margin=10", http.StatusOK, []string{"Reddit_a"}},
		{"paged", "/api/deals?sort=score&limit=1&page=2", http.StatusOK, []string{"eBay_b"}},
		{"bad sort field", "/api/deals?sort=rating", http.StatusBadRequest, nil},
		{"inverted price range", "/api/deals?min_price=500&max_price=100", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, http.MethodGet, tt.target)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var resp models.DealListResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if len(resp.Deals) != len(tt.wantIDs) {
				t.Fatalf("got %d deals, want %d", len(resp.Deals), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if resp.Deals[i].ID != id {
					t.Errorf("deal %d = %s, want %s", i, resp.Deals[i].ID, id)
				}
			}
		})
	}
}

func TestListDealsStoreFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(context.Background(), failingDeals{}, &fakePipeline{}, fakeMarket{}, nil, time.Minute)
	r := gin.New()
	SetupRoutes(r, h, NewIPRateLimiter(100, 100))

	if w := doRequest(r, http.MethodGet, "/api/deals"); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500: %s", w.Code, w.Body.String())
	}
	if w := doRequest(r, http.MethodGet, "/api/deals/Reddit_a"); w.Code != http.StatusInternalServerError {
		t.Errorf("get status = %d, want 500", w.Code)
	}
}

func TestGetDeal(t *testing.T) {
	r := newTestRouter(t, &fakePipeline{}, nil)

	if w := doRequest(r, http.MethodGet, "/api/deals/Reddit_a"); w.Code != http.StatusOK {
		t.Errorf("existing deal status = %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/deals/nope"); w.Code != http.StatusNotFound {
		t.Errorf("missing deal status = %d", w.Code)
	}
}

func TestParseTitle(t *testing.T) {
	r := newTestRouter(t, &fakePipeline{}, nil)

	w := doRequest(r, http.MethodGet, "/api/parse?title="+url.QueryEscape("[WTS] Rolex Submariner 16610 - $9,500 shipped"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Parsed struct {
			Brand     string `json:"brand"`
			Reference string `json:"reference_number"`
		} `json:"parsed"`
		ForSale    bool `json:"for_sale"`
		PriceFound bool `json:"price_found"`
		Price      struct {
			Amount float64 `json:"amount"`
		} `json:"price"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Parsed.Brand != "Rolex" || body.Parsed.Reference != "16610" {
		t.Errorf("parsed = %+v", body.Parsed)
	}
	if !body.ForSale || !body.PriceFound || body.Price.Amount != 9500 {
		t.Errorf("body = %+v", body)
	}

	if w := doRequest(r, http.MethodGet, "/api/parse"); w.Code != http.StatusBadRequest {
		t.Errorf("missing title status = %d", w.Code)
	}
}

func TestMarketPrice(t *testing.T) {
	r := newTestRouter(t, &fakePipeline{}, nil)

	tests := map[string]int{
		"/api/market-price?q=Rolex%2016610": http.StatusOK,
		"/api/market-price?q=Unknown":       http.StatusNotFound,
		"/api/market-price?q=broken":        http.StatusBadGateway,
		"/api/market-price":                 http.StatusBadRequest,
	}
	for target, want := range tests {
		if w := doRequest(r, http.MethodGet, target); w.Code != want {
			t.Errorf("%s: status = %d, want %d", target, w.Code, want)
		}
	}
}

func TestStartRun(t *testing.T) {
	t.Run("waits for the report", func(t *testing.T) {
		p := &fakePipeline{}
		r := newTestRouter(t, p, nil)

		w := doRequest(r, http.MethodPost, "/api/run?wait=true&dry_run=true")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		if len(p.runs) != 1 || !p.runs[0].DryRun {
			t.Errorf("runs = %+v", p.runs)
		}
	})

	t.Run("runs in the background", func(t *testing.T) {
		p := &fakePipeline{done: make(chan struct{})}
		r := newTestRouter(t, p, nil)

		w := doRequest(r, http.MethodPost, "/api/run")
		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d", w.Code)
		}
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
			t.Fatal("background run never happened")
		}
		if w := doRequest(r, http.MethodGet, "/api/run/last"); w.Code != http.StatusOK {
			t.Errorf("last run status = %d", w.Code)
		}
	})

	t.Run("background run stops with the server", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p := &blockingPipeline{started: make(chan struct{}), stopped: make(chan struct{})}
		h := NewHandlers(ctx, services.NewDealService(store.NewMemory()), p, fakeMarket{}, nil, time.Minute)
		r := gin.New()
		SetupRoutes(r, h, NewIPRateLimiter(100, 100))

		if w := doRequest(r, http.MethodPost, "/api/run"); w.Code != http.StatusAccepted {
			t.Fatalf("status = %d", w.Code)
		}
		select {
		case <-p.started:
		case <-time.After(2 * time.Second):
			t.Fatal("background run never started")
		}

		cancel()
		select {
		case <-p.stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("background run outlived the server context")
		}
	})

	t.Run("rejects a second run", func(t *testing.T) {
		p := &fakePipeline{running: true}
		r := newTestRouter(t, p, nil)

		if w := doRequest(r, http.MethodPost, "/api/run"); w.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", w.Code)
		}
		if len(p.runs) != 0 {
			t.Error("pipeline should not have been started")
		}
	})
}

func TestLastRunBeforeAnyRun(t *testing.T) {
	r := newTestRouter(t, &fakePipeline{}, nil)
	if w := doRequest(r, http.MethodGet, "/api/run/last"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	t.Run("no cache", func(t *testing.T) {
		r := newTestRouter(t, &fakePipeline{}, nil)
		for _, target := range []string{"/cache/stats", "/cache/debug"} {
			if w := doRequest(r, http.MethodGet, target); w.Code != http.StatusServiceUnavailable {
				t.Errorf("%s status = %d", target, w.Code)
			}
		}
		if w := doRequest(r, http.MethodDelete, "/cache/flush"); w.Code != http.StatusServiceUnavailable {
			t.Errorf("flush status = %d", w.Code)
		}
	})

	t.Run("with cache", func(t *testing.T) {
		c := &fakeCache{}
		r := newTestRouter(t, &fakePipeline{}, c)

		w := doRequest(r, http.MethodGet, "/cache/debug")
		if w.Code != http.StatusOK {
			t.Fatalf("debug status = %d", w.Code)
		}
		var body struct {
			TotalKeys int `json:"total_keys"`
			CacheKeys []struct {
				TTLSeconds int `json:"ttl_seconds"`
			} `json:"cache_keys"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.TotalKeys != 1 || body.CacheKeys[0].TTLSeconds != 3600 {
			t.Errorf("body = %+v", body)
		}

		if w := doRequest(r, http.MethodDelete, "/cache/flush"); w.Code != http.StatusOK || !c.flushed {
			t.Errorf("flush status = %d, flushed = %v", w.Code, c.flushed)
		}
	})
}

func TestTestSource(t *testing.T) {
	p := &fakePipeline{fetcher: &fakeFetcher{
		name:     "Reddit",
		listings: []models.RawListing{{Source: "Reddit", Title: "[WTS] Seiko SKX007"}},
	}}
	r := newTestRouter(t, p, nil)

	w := doRequest(r, http.MethodGet, "/test/reddit")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Source string `json:"source"`
		Count  int    `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Source != "Reddit" || body.Count != 1 {
		t.Errorf("body = %+v", body)
	}

	if w := doRequest(r, http.MethodGet, "/test/craigslist"); w.Code != http.StatusNotFound {
		t.Errorf("unknown source status = %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(context.Background(), services.NewDealService(store.NewMemory()), &fakePipeline{}, fakeMarket{}, nil, time.Minute)
	r := gin.New()
	SetupRoutes(r, h, NewIPRateLimiter(0.001, 2))

	for i := 0; i < 2; i++ {
		if w := doRequest(r, http.MethodGet, "/health"); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	if w := doRequest(r, http.MethodGet, "/health"); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, &fakePipeline{}, nil)
	w := doRequest(r, http.MethodOptions, "/api/deals")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
