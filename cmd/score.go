package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score all unscored jobs against your resume, or one job with --job",
	Run: func(cmd *cobra.Command, _ []string) {
		score(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().String("job", "", "score (or re-score) a single job by id")
}

func score(cmd *cobra.Command) {
	ctx := context.Background()

	appl, err := newApplication(ctx)
	if err != nil {
		log.Fatalf("starting %s: %s", app, err)
	}
	defer appl.Close()

	logger := appl.logger

	runner, err := appl.newScoringRunner(ctx)
	if err != nil {
		logger.Fatal("building the scorer", zap.Error(err))
	}

	if jobID, _ := cmd.Flags().GetString("job"); jobID != "" {
		job, err := runner.ScoreSingleJob(ctx, jobID)
		if err != nil {
			logger.Fatal("scoring job", zap.String("job_id", jobID), zap.Error(err))
		}
		if job.Score.Failed {
			logger.Warn("scoring attempt failed",
				zap.String("job_id", job.ID),
				zap.String("reasoning", job.Score.Reasoning),
			)
			return
		}
		logger.Info("job scored",
			zap.String("job_id", job.ID),
			zap.String("title", job.Title),
			zap.Int("score", job.Score.Value),
			zap.String("reasoning", job.Score.Reasoning),
		)
		return
	}

	summary, err := runner.ScoreAllUnscored(ctx)
	if err != nil {
		logger.Fatal("scoring jobs", zap.Error(err))
	}
	logger.Info("scoring finished",
		zap.String("status", summary.Status),
		zap.Int("scored", summary.Scored),
		zap.Int("failed", summary.Failed),
	)
}
