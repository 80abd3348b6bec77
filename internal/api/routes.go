package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

func SetupRoutes(app *fiber.App, handler *Handler, log *zap.Logger) {
	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD",
	}))

	// Custom logger middleware
	app.Use(logger.New(logger.Config{
		Format:     "${time} ${pid} ${locals:requestid} ${status} - ${method} ${path}\n",
		TimeFormat: time.RFC3339,
		Output:     zap.NewStdLog(log).Writer(),
	}))

	// Prometheus scrape endpoint
	if handler.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(handler.metrics.Handler()))
	}

	// API v1 routes
	api := app.Group("/api/v1")

	// Health check
	api.Get("/health", handler.GetHealth)

	// Pipeline runs
	api.Get("/runs", handler.ListRuns)
	api.Post("/runs", handler.TriggerRun)
	api.Get("/runs/:id", handler.GetRun)

	// Final tables
	api.Get("/air-quality", handler.GetAirQuality)
	api.Get("/pedestrian", handler.GetPedestrian)
	api.Get("/areas", handler.GetAreas)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
			"path":  c.Path(),
		})
	})
}
