package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/api"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/config"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/logger"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/metrics"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/runs"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/scheduler"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/services"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/watcher"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	bootstrap, _ := zap.NewProduction()
	zap.ReplaceGlobals(bootstrap)
	bootstrap.Info("Starting Melbourne Air Quality and Pedestrian Traffic Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.Server.LogLevel)
	if err != nil {
		bootstrap.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	mt := metrics.New()

	// Open run history
	store, err := runs.Open(cfg.Database.Path, log)
	if err != nil {
		log.Fatal("Failed to open run history", zap.Error(err))
	}
	defer store.Close()

	// Serve results of the previous run until the next one completes
	results := services.NewResultCache(log)
	if err := results.WarmLoad(cfg.AirQualityOutputPath(), cfg.PedestrianOutputPath(), cfg.AreaMappingPath()); err != nil {
		log.Warn("Failed to load previous results", zap.Error(err))
	}

	pipeline, err := services.NewPipeline(cfg, store, results, mt, log)
	if err != nil {
		log.Fatal("Failed to initialize pipeline", zap.Error(err))
	}

	runOptions := services.RunOptions{Download: cfg.Download.OnRun}

	// Initialize scheduler
	var pipelineScheduler *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		pipelineScheduler = scheduler.NewScheduler(pipeline, cfg.Scheduler.Spec, runOptions, log)
		if err := pipelineScheduler.Start(); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	// Initialize input watcher
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if cfg.Watcher.Enabled {
		w, err := watcher.New(
			[]string{cfg.Paths.AirQualityDir, cfg.Paths.PedestrianDir},
			[]string{cfg.Paths.AirQualityWorkbook, cfg.Paths.PedestrianPattern},
			cfg.Watcher.Debounce,
			func() {
				if _, err := pipeline.Run(watchCtx, "watch", services.RunOptions{}); err != nil && !errors.Is(err, services.ErrRunInProgress) {
					log.Error("Watch triggered run failed", zap.Error(err))
				}
			},
			log,
		)
		if err != nil {
			log.Fatal("Failed to start watcher", zap.Error(err))
		}
		go func() {
			if err := w.Watch(watchCtx); err != nil {
				log.Error("Watcher stopped", zap.Error(err))
			}
		}()
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		JSONEncoder:  json.Marshal,
		ErrorHandler: errorHandler,
	})

	// Setup handlers and routes
	handler := api.NewHandler(pipeline, results, pipelineScheduler, mt, log)
	api.SetupRoutes(app, handler, log)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		log.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop background triggers
	stopWatch()
	if pipelineScheduler != nil {
		pipelineScheduler.Stop()
	}

	// Shutdown Fiber app
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}

	log.Info("Server stopped")
}

func errorHandler(c *fiber.Ctx, err error) error {
	zap.L().Error("HTTP error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))

	// Default to 500 status code
	code := fiber.StatusInternalServerError

	// Check if it's a Fiber error
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}
