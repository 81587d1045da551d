// Package main provides the cadence API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/cadence/pkg/services"
	"github.com/dukex/cadence/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger   *slog.Logger
	engine   *services.Engine
	health   func(ctx context.Context) error
	metrics  *prometheus.Registry
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	engine *services.Engine,
	health func(ctx context.Context) error,
	metrics *prometheus.Registry,
) *API {
	return &API{
		logger:   logger,
		engine:   engine,
		health:   health,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			if err := a.health(c.Context()); err != nil {
				a.logger.ErrorContext(c.Context(), "Readiness check failed", "error", err)

				return false
			}

			return true
		},
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{})))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cadence API")
	})

	web.Register(app, handlers)

	return app
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()
	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return app.ShutdownWithContext(context.WithoutCancel(ctx))
	}
}
