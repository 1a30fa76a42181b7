package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"jobdigest/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daily counter, any in-progress run and recent fetch history",
	Run: func(_ *cobra.Command, _ []string) {
		status()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func status() {
	ctx := context.Background()

	appl, err := newApplication(ctx)
	if err != nil {
		log.Fatalf("starting %s: %s", app, err)
	}
	defer appl.Close()

	stats, err := appl.store.GetDailyStats(ctx)
	if err != nil {
		log.Fatalf("reading daily stats: %s", err)
	}
	fmt.Printf("Today (%s): %d/%d jobs fetched\n", stats.Date, stats.JobsFetched, model.DailyQuota)

	progress, err := appl.store.GetBatchProgress(ctx)
	if err != nil {
		log.Fatalf("reading batch progress: %s", err)
	}
	if progress.InProgress {
		fmt.Printf("Run in progress: stage %q (resume with `%s fetch --resume`)\n", progress.Stage, app)
	} else {
		fmt.Println("No run in progress")
	}

	jobs, err := appl.store.GetJobs(ctx)
	if err != nil {
		log.Fatalf("reading jobs: %s", err)
	}
	var unscored, failed int
	for _, job := range jobs {
		switch {
		case job.Unscored():
			unscored++
		case job.Score.Failed:
			failed++
		}
	}
	fmt.Printf("Jobs stored: %d (%d unscored, %d with failed scoring)\n", len(jobs), unscored, failed)

	history, err := appl.store.GetFetchHistory(ctx)
	if err != nil {
		log.Fatalf("reading fetch history: %s", err)
	}
	if len(history) == 0 {
		fmt.Println("No fetch runs recorded yet")
		return
	}

	fmt.Println("\nRecent runs:")
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		kind := "scheduled"
		if entry.Manual {
			kind = "manual"
		}
		if entry.Resumed {
			kind += ", resumed"
		}
		line := fmt.Sprintf("  %s  %-11s %3d jobs (adzuna %d, jsearch %d) [%s]",
			entry.StartedAt.Local().Format(time.DateTime),
			entry.Status, entry.JobsFetched, entry.AdzunaCount, entry.JSearchCount, kind)
		if entry.Scoring != nil {
			line += fmt.Sprintf(" scoring: %s (%d ok, %d failed)",
				entry.Scoring.Status, entry.Scoring.Scored, entry.Scoring.Failed)
		}
		fmt.Println(line)
		for _, msg := range entry.Errors {
			fmt.Printf("      error: %s\n", msg)
		}
	}
}
