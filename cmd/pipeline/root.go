package main

import (
	"fmt"
	"os"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/config"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/logger"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/runs"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Normalize Melbourne air quality and pedestrian count data",
	Long: `Build analysis-ready tables from the EPA Victoria hourly air quality workbook
and the City of Melbourne hourly pedestrian counts.

Outputs:
  data/air_quality/air_quality_final.csv       hourly medians across all stations
  data/pedestrian/pedestrian_count_final.csv   hourly counts per sensor with coordinates
  data/area_mapping/area_coordinates.json      geocoder cache, queried only when missing

Settings are read from the environment and an optional .env file.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func setup(cmd *cobra.Command, args []string) error {
	bootstrap, _ := zap.NewProduction()
	zap.ReplaceGlobals(bootstrap)

	var err error
	cfg, err = config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log, err = logger.New(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(log)
	return nil
}

// newPipeline opens the run history and builds the pipeline. The returned
// store must be closed by the caller.
func newPipeline() (*services.Pipeline, *runs.Store) {
	store, err := runs.Open(cfg.Database.Path, log)
	if err != nil {
		exitWithError("failed to open run history", err)
	}

	pipeline, err := services.NewPipeline(cfg, store, nil, nil, log)
	if err != nil {
		store.Close()
		exitWithError("failed to create pipeline", err)
	}
	return pipeline, store
}

func exitWithError(msg string, err error) {
	log.Error(msg, zap.Error(err))
	log.Sync()
	os.Exit(1)
}
