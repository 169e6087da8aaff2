package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	libredis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/logger"
)

// per-IP budget across the public API
const ipRateLimit = "120-M"

// CORSMiddleware restricts browsers to the configured origins in
// production; anything else is wide open for development.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	if cfg.Environment == "production" && len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}

	return cors.New(corsConfig)
}

// RateLimitMiddleware enforces the per-IP budget. The counter lives in
// redis when configured so replicas share one budget; otherwise it is
// process-local.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rate, err := limiter.NewRateFromFormatted(ipRateLimit)
	if err != nil {
		logger.Fatal("failed to parse rate limit", "error", err)
	}

	return mgin.NewMiddleware(limiter.New(newLimiterStore(cfg), rate))
}

func newLimiterStore(cfg *config.Config) limiter.Store {
	if cfg.RedisURL == "" {
		return memory.NewStore()
	}

	opts, err := libredis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("failed to parse REDIS_URL for rate limiting, using in-process store", "error", err)
		return memory.NewStore()
	}

	store, err := sredis.NewStoreWithOptions(libredis.NewClient(opts), limiter.StoreOptions{
		Prefix: "relay:ratelimit",
	})
	if err != nil {
		logger.Warn("failed to initialize redis rate limit store, using in-process store", "error", err)
		return memory.NewStore()
	}

	return store
}
