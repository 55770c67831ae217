package internal

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"visitorinsights/internal/config"
	"visitorinsights/internal/http"
	"visitorinsights/internal/http/middleware"
)

const (
	authRateLimit       = 10
	authRateLimitWindow = time.Minute
)

// NewServer builds the fiber app with global middleware and every route.
func NewServer(cfg *config.Config, h *http.Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.GetAppName(),
		DisableStartupMessage: true,
		ErrorHandler:          http.ErrorHandler(h.Logger),
		ReadTimeout:           30 * time.Second,
		// Cache misses refresh days synchronously.
		WriteTimeout: 5 * time.Minute,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.RequestLogger(h.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowMethods: "GET,POST,HEAD,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	MountAppRoutes(app, cfg, h)
	return app
}

// MountAppRoutes mounts the API, the health check and the dashboard assets.
func MountAppRoutes(app *fiber.App, cfg *config.Config, h *http.Handlers) {
	// Get also answers HEAD.
	app.Get("/_health", h.HealthIndexAction)

	api := app.Group("/api")

	// Login needs rate limiting to prevent brute force attacks
	authRateLimiter := middleware.AuthRateLimiter(cfg.IsProduction(), authRateLimit, authRateLimitWindow)
	api.Post("/auth/register", authRateLimiter, h.RegisterAction)
	api.Post("/auth/login", authRateLimiter, h.LoginAction)

	storeScope := middleware.StoreScope(h.Logger)
	api.Get("/stats/visitors", storeScope, h.VisitorStatsAction)
	api.Get("/visitors/list", storeScope, h.VisitorsListAction)
	api.Get("/admin/refresh", storeScope, h.AdminRefreshAction)
	api.Get("/devices", h.DevicesIndexAction)

	if dir := cfg.PublicDirectory; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			app.Static("/", dir, fiber.Static{Index: "index.html"})
		}
	}
}
