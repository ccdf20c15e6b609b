package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/gragraf/pkg/persistence"
	"github.com/dukex/gragraf/pkg/run"
	"github.com/dukex/gragraf/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	manager  *run.Manager
	store    persistence.SessionStore
	validate *validator.Validate
	app      *fiber.App
}

func NewAPI(logger *slog.Logger, manager *run.Manager, store persistence.SessionStore) *API {
	return &API{
		logger:   logger,
		manager:  manager,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	if a.app != nil {
		return a.app
	}

	handlers := web.NewAPIHandlers(a.manager, a.store, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Gragraf API")
	})

	handlers.Register(app)
	app.Get("/health", handlers.HealthCheck)

	a.app = app

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}

func (a *API) Shutdown() error {
	return a.App().Shutdown()
}
