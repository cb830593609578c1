package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"watch-deal-finder/internal/models"
	"watch-deal-finder/internal/parser"
	"watch-deal-finder/internal/pricing"
	"watch-deal-finder/internal/scrapers"
	"watch-deal-finder/internal/services"
	"watch-deal-finder/internal/store"
)

const (
	serviceName    = "watch-deal-finder"
	serviceVersion = "1.0.0"
)

type DealReader interface {
	ListDeals(ctx context.Context, q models.DealQuery) (*models.DealListResponse, error)
	GetDeal(ctx context.Context, id string) (*models.Deal, error)
}

type PipelineRunner interface {
	Run(ctx context.Context, opts services.RunOptions) (*models.RunReport, error)
	Running() bool
	LastReport() *models.RunReport
	Fetcher(name string) (scrapers.ListingFetcher, bool)
	FetcherNames() []string
}

// CacheAdmin is the cache surface exposed for inspection. nil means no cache
// is configured.
type CacheAdmin interface {
	IsAvailable() bool
	GetStats(ctx context.Context) map[string]interface{}
	GetAllKeys(ctx context.Context) []string
	GetKeyTTL(ctx context.Context, key string) time.Duration
	FlushCache(ctx context.Context) error
}

type Handlers struct {
	baseCtx    context.Context
	deals      DealReader
	pipeline   PipelineRunner
	market     services.MarketPricer
	cache      CacheAdmin
	runTimeout time.Duration
}

// NewHandlers builds the API handlers. Background runs started over HTTP are
// cancelled with ctx, which should live as long as the server.
func NewHandlers(ctx context.Context, deals DealReader, pipeline PipelineRunner, market services.MarketPricer, cache CacheAdmin, runTimeout time.Duration) *Handlers {
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	return &Handlers{
		baseCtx:    ctx,
		deals:      deals,
		pipeline:   pipeline,
		market:     market,
		cache:      cache,
		runTimeout: runTimeout,
	}
}

func (h *Handlers) Health(c *gin.Context) {
	health := gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
		"running": h.pipeline.Running(),
	}
	if h.cache != nil && h.cache.IsAvailable() {
		health["cache"] = "redis connected"
	} else {
		health["cache"] = "redis unavailable"
	}
	c.JSON(http.StatusOK, health)
}

func (h *Handlers) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Watch Deal Finder API",
		"version":     serviceVersion,
		"description": "Second-hand watch deals scored against an aggregated market price",
		"endpoints": map[string]string{
			"GET /api/deals":        "List deals with filtering, sorting and pagination",
			"GET /api/deals/:id":    "Get one deal",
			"GET /api/parse":        "Parse a listing title",
			"GET /api/market-price": "Aggregated market price for a query",
			"POST /api/run":         "Start a pipeline run",
			"GET /api/run/last":     "Report of the last run",
			"GET /health":           "Health check",
			"GET /cache/stats":      "Cache statistics",
		},
		"sources": h.pipeline.FetcherNames(),
	})
}

func (h *Handlers) ListDeals(c *gin.Context) {
	resp, err := h.deals.ListDeals(c.Request.Context(), parseDealQuery(c))
	if errors.Is(err, services.ErrInvalidQuery) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_query",
			Code:    http.StatusBadRequest,
			Message: err.Error(),
		})
		return
	}
	if err != nil {
		log.Printf("List deals error: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "list_failed",
			Code:    http.StatusInternalServerError,
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) GetDeal(c *gin.Context) {
	deal, err := h.deals.GetDeal(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Code:    http.StatusNotFound,
			Message: "deal " + c.Param("id") + " not found",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "get_failed",
			Code:    http.StatusInternalServerError,
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, deal)
}

func (h *Handlers) ParseTitle(c *gin.Context) {
	title := strings.TrimSpace(c.Query("title"))
	if title == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_title",
			Code:    http.StatusBadRequest,
			Message: "query parameter 'title' is required",
		})
		return
	}

	info := parser.ParseTitle(title)
	resp := gin.H{
		"title":       title,
		"parsed":      info,
		"for_sale":    parser.IsForSale(title),
		"price_found": false,
	}
	if price, ok := parser.ParsePrice(title, info.Reference); ok {
		resp["price_found"] = true
		resp["price"] = price
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) MarketPrice(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_query",
			Code:    http.StatusBadRequest,
			Message: "query parameter 'q' is required",
		})
		return
	}

	mp, err := h.market.MarketPrice(c.Request.Context(), query)
	if errors.Is(err, pricing.ErrNoMarketPrice) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "no_market_price",
			Code:    http.StatusNotFound,
			Message: "no market price available",
			Details: err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "market_price_failed",
			Code:    http.StatusBadGateway,
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, mp)
}

// StartRun starts a pipeline run in the background. With wait=true the
// request blocks and returns the run report.
func (h *Handlers) StartRun(c *gin.Context) {
	opts := services.RunOptions{DryRun: queryBool(c, "dry_run")}

	if h.pipeline.Running() {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "run_in_progress",
			Code:    http.StatusConflict,
			Message: services.ErrRunInProgress.Error(),
		})
		return
	}

	if queryBool(c, "wait") {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.runTimeout)
		defer cancel()
		report, err := h.pipeline.Run(ctx, opts)
		switch {
		case errors.Is(err, services.ErrRunInProgress):
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "run_in_progress",
				Code:    http.StatusConflict,
				Message: err.Error(),
			})
		case err != nil:
			log.Printf("Run %s failed: %v", report.RunID, err)
			c.JSON(http.StatusInternalServerError, report)
		default:
			c.JSON(http.StatusOK, report)
		}
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(h.baseCtx, h.runTimeout)
		defer cancel()
		if _, err := h.pipeline.Run(ctx, opts); err != nil {
			log.Printf("Background run failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message":   "run started",
		"dry_run":   opts.DryRun,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handlers) LastRun(c *gin.Context) {
	report := h.pipeline.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "no_runs",
			Code:    http.StatusNotFound,
			Message: "the pipeline has not run yet",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handlers) CacheStats(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not available"})
		return
	}
	c.JSON(http.StatusOK, h.cache.GetStats(c.Request.Context()))
}

func (h *Handlers) CacheDebug(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not available"})
		return
	}

	ctx := c.Request.Context()
	keys := h.cache.GetAllKeys(ctx)
	keyDetails := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		ttl := h.cache.GetKeyTTL(ctx, key)
		keyDetails = append(keyDetails, gin.H{
			"key":         key,
			"ttl_seconds": int(ttl.Seconds()),
			"expires_in":  ttl.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total_keys":  len(keys),
		"cache_keys":  keyDetails,
		"cache_stats": h.cache.GetStats(ctx),
	})
}

func (h *Handlers) CacheFlush(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not available"})
		return
	}
	if err := h.cache.FlushCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to flush cache",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "cache flushed successfully",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// TestSource runs a single fetcher and returns what it found without
// standardizing or storing anything.
func (h *Handlers) TestSource(c *gin.Context) {
	name := c.Param("source")
	fetcher, ok := h.pipeline.Fetcher(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown source " + name,
			"sources": h.pipeline.FetcherNames(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	listings, err := fetcher.FetchListings(ctx)
	resp := gin.H{
		"source":   fetcher.Name(),
		"count":    len(listings),
		"listings": listings,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func parseDealQuery(c *gin.Context) models.DealQuery {
	q := models.DealQuery{
		Page:  queryInt(c, "page"),
		Limit: queryInt(c, "limit"),
	}

	var filters models.DealFilters
	hasFilters := false
	if brand := c.Query("brand"); brand != "" {
		filters.Brand, hasFilters = brand, true
	}
	if source := c.Query("source"); source != "" {
		filters.Source, hasFilters = source, true
	}
	if v, ok := queryFloat(c, "min_price"); ok {
		filters.MinPrice, hasFilters = v, true
	}
	if v, ok := queryFloat(c, "max_price"); ok {
		filters.MaxPrice, hasFilters = v, true
	}
	if v := queryInt(c, "min_score"); v != 0 {
		filters.MinScore, hasFilters = v, true
	}
	if v, ok := queryFloat(c, "min_margin"); ok {
		filters.MinMargin, hasFilters = &v, true
	}
	if hasFilters {
		q.Filters = &filters
	}

	if field := c.Query("sort"); field != "" {
		q.Sort = &models.DealSort{Field: field, Order: c.Query("order")}
	}
	return q
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}

func queryFloat(c *gin.Context, key string) (float64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}
