package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/simcheck/simcheck/internal/broker"
	"github.com/simcheck/simcheck/internal/config"
	"github.com/simcheck/simcheck/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Cache    *redis.Client
	Logger   *slog.Logger
	Provider broker.Provider
	// Static is set when Provider is the development stand-in; it enables
	// the /dev check URL route.
	Static *broker.StaticProvider
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Provider == nil {
		return fmt.Errorf("provider is required")
	}
	if d.Static != nil && !d.Cfg.IsDev() {
		return fmt.Errorf("static provider is only allowed when APP_ENV is development, got %s", d.Cfg.AppEnv)
	}
	// Redis-backed idempotency is required outside development.
	if !d.Cfg.IsDev() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	svc, err := broker.NewService(d.Provider, d.Cfg.StrictPhone, d.Logger)
	if err != nil {
		return err
	}
	handler := broker.NewHandler(svc)

	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	RegisterSubscriberCheckRoutes(api, handler)

	if d.Static != nil {
		RegisterDevRoutes(app, d.Static)
	}

	return nil
}
