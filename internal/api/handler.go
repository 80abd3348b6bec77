package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/metrics"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/runs"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/scheduler"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultPedestrianLimit = 1000

var seasons = map[string]bool{"summer": true, "autumn": true, "winter": true, "spring": true}

type Handler struct {
	pipeline  *services.Pipeline
	results   *services.ResultCache
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewHandler wires the API to the pipeline. scheduler and mt may be nil.
func NewHandler(pipeline *services.Pipeline, results *services.ResultCache, scheduler *scheduler.Scheduler, mt *metrics.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		pipeline:  pipeline,
		results:   results,
		scheduler: scheduler,
		metrics:   mt,
		logger:    logger,
	}
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	response := fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
		"stats":     h.pipeline.GetStats(),
	}
	if h.scheduler != nil {
		response["scheduler"] = h.scheduler.GetStatus()
	}
	return c.JSON(response)
}

// ListRuns handles GET /api/v1/runs
func (h *Handler) ListRuns(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Limit parameter must be a positive integer",
		})
	}

	history, err := h.pipeline.Runs().List(c.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to list runs",
			"details": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"runs":  history,
		"count": len(history),
	})
}

// GetRun handles GET /api/v1/runs/:id
func (h *Handler) GetRun(c *fiber.Ctx) error {
	run, err := h.pipeline.Runs().Get(c.Context(), c.Params("id"))
	if errors.Is(err, runs.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Run not found",
			"id":    c.Params("id"),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to load run",
			"details": err.Error(),
		})
	}
	return c.JSON(run)
}

// TriggerRun handles POST /api/v1/runs
func (h *Handler) TriggerRun(c *fiber.Ctx) error {
	opts := services.RunOptions{Download: c.QueryBool("download", false)}

	h.logger.Info("Pipeline run requested", zap.Bool("download", opts.Download))

	run, err := h.pipeline.RunAsync(c.UserContext(), "api", opts)
	if errors.Is(err, services.ErrRunInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A pipeline run is already in progress",
		})
	}
	if err != nil {
		h.logger.Error("Failed to start pipeline run", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to start pipeline run",
			"details": err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

// GetAirQuality handles GET /api/v1/air-quality
func (h *Handler) GetAirQuality(c *fiber.Ctx) error {
	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Date parameter must be formatted as YYYY-MM-DD",
			})
		}
	}

	season := strings.ToLower(c.Query("season"))
	if season != "" && !seasons[season] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Season parameter must be one of summer, autumn, winter, spring",
		})
	}

	rows, params := h.results.AirQuality(date, season)
	return c.JSON(fiber.Map{
		"parameters": params,
		"count":      len(rows),
		"data":       rows,
	})
}

// GetPedestrian handles GET /api/v1/pedestrian
func (h *Handler) GetPedestrian(c *fiber.Ctx) error {
	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Date parameter must be formatted as YYYY-MM-DD",
			})
		}
	}

	limit, err := strconv.Atoi(c.Query("limit", strconv.Itoa(defaultPedestrianLimit)))
	if err != nil || limit < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Limit parameter must be a positive integer",
		})
	}

	rows := h.results.Pedestrian(c.Query("location"), date, limit)
	return c.JSON(fiber.Map{
		"count": len(rows),
		"data":  rows,
	})
}

// GetAreas handles GET /api/v1/areas
func (h *Handler) GetAreas(c *fiber.Ctx) error {
	areas := h.results.Areas()
	return c.JSON(fiber.Map{
		"areas": areas,
		"count": len(areas),
	})
}

var startTime = time.Now()
