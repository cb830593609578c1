package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"watch-deal-finder/internal/api"
	"watch-deal-finder/internal/app"
	"watch-deal-finder/internal/config"
	"watch-deal-finder/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, "")
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer a.Close()

	scheduler := services.NewScheduler(a.Pipeline, cfg.RunInterval)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// a nil *RedisCache must not become a non-nil CacheAdmin
	var cacheAdmin api.CacheAdmin
	if a.Cache != nil {
		cacheAdmin = a.Cache
	}
	h := api.NewHandlers(ctx, a.Deals, a.Pipeline, a.Market, cacheAdmin, 0)
	api.SetupRoutes(r, h, api.NewIPRateLimiter(10, 20)) // 10 req/sec, burst 20

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
