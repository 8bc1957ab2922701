package routes

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tair/product-console/internal/catalog/view"
	"github.com/tair/product-console/internal/console/health"
	"github.com/tair/product-console/internal/console/middleware"
	"github.com/tair/product-console/internal/console/session"
)

// AppConfig holds the HTTP server settings
type AppConfig struct {
	ServiceName  string
	AllowOrigins string
	BodyLimit    int
	SessionTTL   time.Duration
	FarmCacheTTL time.Duration
	RateRequests int
	RateWindow   time.Duration
}

// Deps are the collaborators the routes dispatch to
type Deps struct {
	Sessions *session.Registry
	Hub      *view.Hub
	Health   *health.Checker
	Gatherer prometheus.Gatherer
	// Redis is optional; without it caching and rate limiting are off
	Redis *redis.Client
}

// NewApp builds the console fiber app with middleware and routes
func NewApp(cfg AppConfig, deps Deps) *fiber.App {
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		AppName:      "Product Console",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    bodyLimit,
		ErrorHandler: ErrorHandler,
	})

	setupMiddleware(app, cfg)
	SetupRoutes(app, cfg, deps)
	return app
}

func setupMiddleware(app *fiber.App, cfg AppConfig) {
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware(cfg.ServiceName))
	app.Use(middleware.StructuredLoggingMiddleware())

	origins := cfg.AllowOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,OPTIONS,HEAD",
		AllowHeaders: "Origin, Content-Type, Accept, X-Request-Id, traceparent, tracestate",
		// browsers refuse credentials for a wildcard origin
		AllowCredentials: origins != "*",
		ExposeHeaders:    "X-Request-Id, X-Trace-Id, X-Export-Rows, Content-Disposition, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset",
		MaxAge:           86400,
	}))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/ws")
		},
	}))
}

// SetupRoutes registers the console API
func SetupRoutes(app *fiber.App, cfg AppConfig, deps Deps) {
	h := &handler{sessions: deps.Sessions, hub: deps.Hub}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(deps.Health.QuickCheck())
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		report := deps.Health.CheckAll(c.UserContext())
		status := fiber.StatusOK
		if report.Status == health.StatusUnhealthy {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(report)
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	withSession := middleware.SessionMiddleware(cfg.SessionTTL)
	limiter := middleware.NewRateLimiter(deps.Redis, cfg.RateRequests, cfg.RateWindow)

	api := app.Group("/api", withSession)
	api.Get("/farms", middleware.CacheMiddleware(deps.Redis, cfg.FarmCacheTTL), h.listFarms)

	s := api.Group("/session")
	s.Get("/", h.snapshot)
	s.Get("/export", limiter.Middleware(), h.export)
	s.Put("/farm", limiter.Middleware(), h.selectFarm)

	products := s.Group("/products/:index", limiter.Middleware())
	products.Post("/generate", h.generate)
	products.Post("/regenerate/:type", h.regenerate)
	products.Post("/image", h.uploadImage)
	products.Put("/descriptions/:type", h.editDescription)
	products.Post("/confirm", h.confirm)
	products.Post("/edit", h.enableEdit)

	app.Use("/ws", withSession, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/view", websocket.New(h.viewStream))
}

// ErrorHandler renders errors that escaped a handler in the console error shape
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	kind := "InternalError"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		kind = "RequestError"
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"kind":    kind,
			"message": err.Error(),
		},
		"path":      c.Path(),
		"requestId": c.GetRespHeader(fiber.HeaderXRequestID),
	})
}
