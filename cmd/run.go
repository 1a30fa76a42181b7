package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobdigest/internal/scheduler"
)

// verifyEvery is how often the daemon double-checks that the cron entry still
// exists.
const verifyEvery = time.Hour

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the jobdigest daemon: resume interrupted work and fetch on the daily schedule",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(_ *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appl, err := newApplication(ctx)
	if err != nil {
		log.Fatalf("starting the %s daemon: %s", app, err)
	}
	defer appl.Close()

	logger := appl.logger
	logger.Info("starting the jobdigest daemon", zap.String("version", version))

	runner, err := appl.newPipeline(ctx)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	// A checkpoint left behind by a killed process is picked up before the
	// schedule takes over.
	if result, err := runner.Resume(ctx); err != nil {
		logger.Error("resuming interrupted run", zap.Error(err))
	} else if result != nil {
		logger.Info("resumed interrupted run",
			zap.String("status", result.Status),
			zap.Int("jobs_fetched", result.JobsFetched),
		)
	}

	settings, err := appl.store.GetSettings(ctx)
	if err != nil {
		logger.Fatal("reading settings", zap.Error(err))
	}

	sched := scheduler.New(appl.store, logger, func(ctx context.Context, scheduled, actual time.Time) {
		result, err := runner.Run(ctx, false)
		if err != nil {
			logger.Error("scheduled run failed", zap.Error(err))
			return
		}
		logger.Info("scheduled run finished",
			zap.String("status", result.Status),
			zap.Int("jobs_fetched", result.JobsFetched),
			zap.Duration("behind_schedule", actual.Sub(scheduled)),
		)
	})

	next, err := sched.ScheduleDailyRun(settings.FetchHour, settings.FetchMinute)
	if err != nil {
		logger.Fatal("scheduling the daily run", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	logger.Info("daily run scheduled",
		zap.Int("hour", settings.FetchHour),
		zap.Int("minute", settings.FetchMinute),
		zap.Time("next_run", next),
	)

	go verifyLoop(ctx, sched, settings.FetchHour, settings.FetchMinute, logger)

	<-ctx.Done()
	logger.Info("shutting down", zap.String("reason", "signal received"))
}

// verifyLoop recreates the cron entry if it ever goes missing, mirroring the
// periodic alarm verification the fetch schedule relies on.
func verifyLoop(ctx context.Context, sched *scheduler.Scheduler, hour, minute int, logger *zap.Logger) {
	ticker := time.NewTicker(verifyEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			existed, err := sched.VerifyScheduleExists(hour, minute)
			if err != nil {
				logger.Error("verifying schedule", zap.Error(err))
				continue
			}
			if !existed {
				logger.Warn("schedule was missing, recreated",
					zap.Time("next_run", sched.NextRunTime()),
				)
			}
		}
	}
}
