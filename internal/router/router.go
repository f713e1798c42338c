package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telemed-api/internal/handler/health"
	"github.com/jwalitptl/telemed-api/internal/handler/prometheus"
	"github.com/jwalitptl/telemed-api/internal/middleware"
	"github.com/jwalitptl/telemed-api/pkg/auth"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	Mode           string
	RateLimit      rate.Limit
	RateBurst      int
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxBodySize    int64
}

type Router struct {
	engine      *gin.Engine
	jwt         auth.JWTService
	metrics     *prometheus.Handler
	health      *health.Handler
	rateLimiter *middleware.RateLimiter
}

func NewRouter(
	config Config,
	logger zerolog.Logger,
	jwtSvc auth.JWTService,
	metrics *prometheus.Handler,
	healthH *health.Handler,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = middleware.DefaultRequestTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = rate.Inf
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = middleware.DefaultMaxBodySize
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	// RequestID first so every later middleware logs with the request-scoped logger.
	engine.Use(
		middleware.RequestID(logger),
		middleware.Recovery(),
		middleware.Logger(),
		metrics.Middleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(middleware.DefaultCORSConfig(config.CORSOrigins)),
		middleware.SizeLimit(config.MaxBodySize),
		middleware.Timeout(config.RequestTimeout),
	)

	return &Router{
		engine:  engine,
		jwt:     jwtSvc,
		metrics: metrics,
		health:  healthH,
		rateLimiter: middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		}),
	}
}

// Setup mounts ops endpoints at the root and the API under /api/v1. Public handlers are
// limited per client IP, protected handlers per authenticated actor.
func (r *Router) Setup(public []Handler, protected []Handler) {
	r.health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", r.metrics.Handler())

	api := r.engine.Group("/api/v1")

	open := api.Group("", r.rateLimiter.RateLimit())
	for _, h := range public {
		h.RegisterRoutes(open)
	}

	authed := api.Group("", middleware.Authenticate(r.jwt), r.rateLimiter.RateLimit())
	for _, h := range protected {
		h.RegisterRoutes(authed)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
