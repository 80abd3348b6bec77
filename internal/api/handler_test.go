package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/config"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/metrics"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/models"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/runs"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testApp struct {
	app      *fiber.App
	pipeline *services.Pipeline
	results  *services.ResultCache
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	mappings, err := config.DefaultMappings()
	require.NoError(t, err)

	dataDir := t.TempDir()
	cfg := &config.Config{Mappings: mappings}
	cfg.Paths.DataDir = dataDir
	cfg.Paths.AirQualityDir = filepath.Join(dataDir, "air_quality")
	cfg.Paths.PedestrianDir = filepath.Join(dataDir, "pedestrian")
	cfg.Paths.AreaMappingDir = filepath.Join(dataDir, "area_mapping")
	cfg.Paths.AirQualityWorkbook = "2022_air_quality_vic.xlsx"
	cfg.Paths.AirQualitySheet = "AllData"
	cfg.Paths.PedestrianPattern = "*_pedestrian_level.csv"
	cfg.CircuitBreaker.Threshold = 3
	cfg.CircuitBreaker.Timeout = time.Minute

	store, err := runs.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mt := metrics.New()
	results := services.NewResultCache(zap.NewNop())
	pipeline, err := services.NewPipeline(cfg, store, results, mt, zap.NewNop())
	require.NoError(t, err)

	app := fiber.New()
	SetupRoutes(app, NewHandler(pipeline, results, nil, mt, zap.NewNop()), zap.NewNop())

	return &testApp{app: app, pipeline: pipeline, results: results}
}

func (a *testApp) do(t *testing.T, method, target string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := a.app.Test(httptest.NewRequest(method, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if len(body) > 0 && body[0] == '{' {
		require.NoError(t, json.Unmarshal(body, &decoded))
	}
	return resp.StatusCode, decoded
}

func publishSample(results *services.ResultCache) {
	jan := time.Date(2022, 1, 1, 1, 0, 0, 0, time.UTC)
	lat, lon := -37.81, 144.96
	results.Publish(
		[]models.AirQualitySummary{
			{Timestamp: jan, Month: 1, Date: "2022-01-01", Day: 1, Hour: 1, Season: "summer", Values: map[string]float64{"CO": 0.5}},
		},
		[]string{"CO"},
		[]models.PedestrianCount{
			{Timestamp: jan, Location: "Melbourne Central", PedestrianCount: 10, Latitude: &lat, Longitude: &lon},
			{Timestamp: jan.Add(time.Hour), Location: "Melbourne Central", PedestrianCount: 30, Latitude: &lat, Longitude: &lon},
			{Timestamp: jan, Location: "Errol St (West)"},
		},
		[]models.AreaCoordinate{{QueryKey: "errol st, victoria, australia"}},
	)
}

func TestGetHealth(t *testing.T) {
	a := newTestApp(t)

	status, body := a.do(t, http.MethodGet, "/api/v1/health")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "stats")
	assert.NotContains(t, body, "scheduler")
}

func TestGetAirQuality(t *testing.T) {
	a := newTestApp(t)
	publishSample(a.results)

	status, body := a.do(t, http.MethodGet, "/api/v1/air-quality?season=Summer")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, []interface{}{"CO"}, body["parameters"])

	status, body = a.do(t, http.MethodGet, "/api/v1/air-quality?date=2022-02-01")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(0), body["count"])

	status, _ = a.do(t, http.MethodGet, "/api/v1/air-quality?season=monsoon")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodGet, "/api/v1/air-quality?date=01/01/2022")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestGetPedestrian(t *testing.T) {
	a := newTestApp(t)
	publishSample(a.results)

	status, body := a.do(t, http.MethodGet, "/api/v1/pedestrian?location=melbourne%20central")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(2), body["count"])

	status, body = a.do(t, http.MethodGet, "/api/v1/pedestrian?limit=1")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, body = a.do(t, http.MethodGet, "/api/v1/pedestrian?location=Errol%20St%20(West)")
	assert.Equal(t, fiber.StatusOK, status)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Nil(t, data[0].(map[string]interface{})["latitude"])

	status, _ = a.do(t, http.MethodGet, "/api/v1/pedestrian?limit=zero")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestGetAreas(t *testing.T) {
	a := newTestApp(t)
	publishSample(a.results)

	status, body := a.do(t, http.MethodGet, "/api/v1/areas")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])
}

func TestTriggerRunAndHistory(t *testing.T) {
	a := newTestApp(t)

	status, body := a.do(t, http.MethodPost, "/api/v1/runs")
	require.Equal(t, fiber.StatusAccepted, status)
	assert.Equal(t, "api", body["trigger"])
	id := body["id"].(string)

	// No input files exist, so the run fails
	require.Eventually(t, func() bool {
		last := a.pipeline.LastRun()
		return last != nil && last.Status == runs.StatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	status, body = a.do(t, http.MethodGet, "/api/v1/runs/"+id)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, runs.StatusFailed, body["status"])
	assert.NotEmpty(t, body["error"])

	status, body = a.do(t, http.MethodGet, "/api/v1/runs")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, _ = a.do(t, http.MethodGet, "/api/v1/runs/unknown")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = a.do(t, http.MethodGet, "/api/v1/runs?limit=-1")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)

	resp, err := a.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestUnknownEndpoint(t *testing.T) {
	a := newTestApp(t)

	status, body := a.do(t, http.MethodGet, "/api/v2/nothing")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Endpoint not found", body["error"])
}
