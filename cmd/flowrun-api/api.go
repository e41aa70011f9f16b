// Package main provides the flowrun API server.
package main

import (
	"log/slog"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/flows"
	"github.com/dukex/flowrun/pkg/schedule"
	"github.com/dukex/flowrun/pkg/web"
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
	runtime  *cmd.Runtime
	flows    flows.Repository
	metrics  prometheus.Gatherer
	validate *validator.Validate

	// scheduler is nil when scheduled runs are disabled.
	scheduler *schedule.Scheduler
}

func NewAPI(
	logger *slog.Logger,
	runtime *cmd.Runtime,
	flowRepository flows.Repository,
	metrics prometheus.Gatherer,
) *API {
	return &API{
		logger:   logger,
		runtime:  runtime,
		flows:    flowRepository,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.runtime.Supervisor,
		a.flows,
		a.runtime.Persistence,
		a.validate,
		a.runtime.Registry,
	)

	if a.scheduler != nil {
		handlers.WithScheduler(a.scheduler)
	}

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("flowrun API")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{})))

	handlers.Register(app)

	return app
}
