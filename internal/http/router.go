package http

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/networth/tracker/internal/accounts"
	"github.com/networth/tracker/internal/auth"
	"github.com/networth/tracker/internal/cache"
	"github.com/networth/tracker/internal/config"
	"github.com/networth/tracker/internal/http/handlers"
	"github.com/networth/tracker/internal/http/middlewares"
	"github.com/networth/tracker/internal/observability"
	"github.com/networth/tracker/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, cch *cache.Cache, cfg config.Config, prom *observability.Prom, promReg *prometheus.Registry) *gin.Engine {
	cfgEnv := os.Getenv("APP_ENV")

	if cfgEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	}

	r.Use(otelgin.Middleware("networth-tracker"))

	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
	}

	r.Use(middlewares.MaxBodyBytes(1 << 20))
	r.Use(middlewares.RequireJSON())

	// health
	pingDB := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	pingCache := func() error {
		if cch == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return cch.Ping(ctx)
	}

	h := handlers.NewHealthHandler(pingDB, pingCache)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if promReg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
	}

	// api docs
	r.GET("/swagger", handlers.SwaggerUI)
	r.StaticFile("/docs/openapi.yaml", "./docs/openapi.yaml")

	// wire up the auth flow

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL())
	usersRepo := postgres.NewUsersRepo(pool, prom)
	flows := accounts.NewService(usersRepo, cch, jwtManager, log)

	authHandler := handlers.NewAuthHandler(flows, prom)
	authMw := middlewares.NewAuthMiddleware(jwtManager)

	// global budget per client, counted in redis like the rest of the
	// session state
	limiter := middlewares.NewRateLimiter(
		cch.Raw(),
		cfg.RateLimitMax,
		time.Duration(cfg.RateLimitWindowSeconds)*time.Second,
	)

	users := r.Group("/v1/users")
	users.Use(limiter.RateLimiterMiddleware(middlewares.KeyByIP))

	users.POST("/register", authHandler.Register)
	users.POST("/login", authHandler.Login)
	users.GET("/validate-token", authHandler.ValidateToken)
	users.GET("/me", authMw.RequireAuth(), authHandler.Me)

	return r
}
