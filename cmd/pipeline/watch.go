package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/services"
	"github.com/archeltaneka/melbourne-air-quality-pedestrian-traffic-analysis/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchInitial bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rerun the pipeline whenever raw input files change",
	Run:   runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchInitial, "initial", false, "Run the pipeline once before watching")
}

func runWatch(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, store := newPipeline()
	defer store.Close()

	trigger := func() {
		if _, err := pipeline.Run(ctx, "watch", services.RunOptions{}); err != nil {
			if errors.Is(err, services.ErrRunInProgress) {
				log.Info("Run already in progress, change will be picked up by it")
				return
			}
			log.Error("Pipeline run failed", zap.Error(err))
		}
	}

	w, err := watcher.New(
		[]string{cfg.Paths.AirQualityDir, cfg.Paths.PedestrianDir},
		[]string{cfg.Paths.AirQualityWorkbook, cfg.Paths.PedestrianPattern},
		cfg.Watcher.Debounce,
		trigger,
		log,
	)
	if err != nil {
		exitWithError("failed to start watcher", err)
	}

	if watchInitial {
		trigger()
	}

	if err := w.Watch(ctx); err != nil {
		exitWithError("watcher stopped", err)
	}
	log.Info("Watcher stopped")
}
