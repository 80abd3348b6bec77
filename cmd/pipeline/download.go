package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the raw air quality workbook and pedestrian files",
	Long: `Fetch the EPA Victoria workbook and the twelve monthly pedestrian count files.

A file that fails to download is skipped and an existing copy is kept.`,
	Run: downloadFiles,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}

func downloadFiles(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, store := newPipeline()
	defer store.Close()

	if err := pipeline.Download(ctx); err != nil {
		log.Warn("Some files could not be downloaded", zap.Error(err))
	}
}
