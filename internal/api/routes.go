package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers every route on r. The limiter may be nil.
func SetupRoutes(r *gin.Engine, h *Handlers, limiter *IPRateLimiter) {
	r.Use(CORS(), RequestID())
	if limiter != nil {
		r.Use(limiter.Middleware())
		r.GET("/rate-limit/status", limiter.Status)
	}

	r.GET("/health", h.Health)

	v1 := r.Group("/api")
	{
		v1.GET("/info", h.Info)
		v1.GET("/deals", h.ListDeals)
		v1.GET("/deals/:id", h.GetDeal)
		v1.GET("/parse", h.ParseTitle)
		v1.GET("/market-price", h.MarketPrice)
		v1.POST("/run", h.StartRun)
		v1.GET("/run/last", h.LastRun)
	}

	cache := r.Group("/cache")
	{
		cache.GET("/stats", h.CacheStats)
		cache.GET("/debug", h.CacheDebug)
		cache.DELETE("/flush", h.CacheFlush)
	}

	r.GET("/test/:source", h.TestSource)
}
