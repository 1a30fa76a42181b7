package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobdigest/internal/pipeline"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one fetch-and-score pipeline now, outside the daily schedule",
	Run: func(cmd *cobra.Command, _ []string) {
		fetch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().Bool("resume", false, "resume an interrupted run instead of starting a new one")
}

func fetch(cmd *cobra.Command) {
	ctx := context.Background()

	appl, err := newApplication(ctx)
	if err != nil {
		log.Fatalf("starting %s: %s", app, err)
	}
	defer appl.Close()

	logger := appl.logger

	runner, err := appl.newPipeline(ctx)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	var result *pipeline.Result
	if resume, _ := cmd.Flags().GetBool("resume"); resume {
		result, err = runner.Resume(ctx)
		if err == nil && result == nil {
			logger.Info("nothing to resume", zap.String("hint", "no run is in progress"))
			return
		}
	} else {
		result, err = runner.Run(ctx, true)
	}
	if err != nil {
		logger.Fatal("pipeline run failed", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("status", result.Status),
		zap.Int("jobs_fetched", result.JobsFetched),
		zap.Int("adzuna", result.AdzunaCount),
		zap.Int("jsearch", result.JSearchCount),
	}
	if result.Scoring != nil {
		fields = append(fields,
			zap.String("scoring_status", result.Scoring.Status),
			zap.Int("scored", result.Scoring.Scored),
			zap.Int("score_failures", result.Scoring.Failed),
		)
	}
	if len(result.Errors) > 0 {
		fields = append(fields, zap.Strings("errors", result.Errors))
	}
	logger.Info("run finished", fields...)
}
