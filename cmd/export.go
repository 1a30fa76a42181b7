package cmd

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobdigest/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export jobs to CSV, skipping dismissed and passed-on listings",
	Run: func(cmd *cobra.Command, _ []string) {
		exportJobs(cmd)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "output file (default jobdigest-export-<date>.csv)")
}

func exportJobs(cmd *cobra.Command) {
	ctx := context.Background()

	appl, err := newApplication(ctx)
	if err != nil {
		log.Fatalf("starting %s: %s", app, err)
	}
	defer appl.Close()

	logger := appl.logger

	filename, _ := cmd.Flags().GetString("output")
	if filename == "" {
		filename = export.Filename(time.Now())
	}

	f, err := os.Create(filename)
	if err != nil {
		logger.Fatal("creating export file", zap.String("filename", filename), zap.Error(err))
	}

	rows, err := export.New(appl.store, logger).ExportAll(ctx, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filename)
		logger.Fatal("exporting jobs", zap.Error(err))
	}

	logger.Info("export written", zap.String("filename", filename), zap.Int("rows", rows))
}
