package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

// NewEngine builds the gin engine with recovery, request logging, metrics and
// CORS, and registers h's routes.
func NewEngine(h *HTTPHandler, logger zerolog.Logger, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(logger))
	r.Use(metrics.GinMiddleware())
	r.Use(cors.New(corsConfig(allowedOrigins)))

	h.RegisterRoutes(r)
	r.GET("/api/health", h.HealthCheck)
	return r
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range allowedOrigins {
		if o == "*" {
			cfg.AllowOriginFunc = func(string) bool { return true }
			return cfg
		}
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
		return cfg
	}
	cfg.AllowOrigins = allowedOrigins
	return cfg
}
