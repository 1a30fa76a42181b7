package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"jobdigest/internal/model"
)

func newTestStore() *Store {
	s := New(NewMemoryBackend())
	s.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestDailyStatsRollsOnDateChange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if err := s.IncrementDailyCount(ctx, 42); err != nil {
		t.Fatalf("increment: %v", err)
	}

	stats, err := s.GetDailyStats(ctx)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.JobsFetched != 42 || stats.Date != "2026-03-14" {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// Next calendar day: the counter must come back zeroed.
	s.now = func() time.Time { return time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC) }

	stats, err = s.GetDailyStats(ctx)
	if err != nil {
		t.Fatalf("get stats after roll: %v", err)
	}
	if stats.JobsFetched != 0 || stats.Date != "2026-03-15" {
		t.Fatalf("expected fresh record, got %+v", stats)
	}
}

func TestFetchHistoryTrimsToLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for i := 0; i < model.FetchHistoryLimit+3; i++ {
		entry := model.FetchHistoryEntry{Date: fmt.Sprintf("2026-03-%02d", i+1), Status: model.RunSuccess}
		if err := s.AddFetchHistoryEntry(ctx, entry); err != nil {
			t.Fatalf("add entry %d: %v", i, err)
		}
	}

	history, err := s.GetFetchHistory(ctx)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != model.FetchHistoryLimit {
		t.Fatalf("expected %d entries, got %d", model.FetchHistoryLimit, len(history))
	}
	if history[0].Date != "2026-03-04" {
		t.Fatalf("expected oldest entries dropped, first is %s", history[0].Date)
	}
}

func TestUpdateJobMissingIDIsNoOp(t *testing.T) {
	s := newTestStore()

	job, err := s.UpdateJob(context.Background(), "adzuna-nope", map[string]any{"dismissed": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for missing id, got %+v", job)
	}
}

func TestUpdateJobPartialFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if err := s.SaveJob(ctx, &model.Job{ID: "adzuna-1", Title: "Go Developer", Status: model.StatusNew}); err != nil {
		t.Fatalf("save: %v", err)
	}

	updated, err := s.UpdateJob(ctx, "adzuna-1", map[string]any{
		"status": "applied",
		"notes":  "phone screen scheduled",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if updated.Status != model.StatusApplied {
		t.Fatalf("expected applied status, got %s", updated.Status)
	}
	if updated.ApplicationDate != "2026-03-14" {
		t.Fatalf("expected application date stamped, got %q", updated.ApplicationDate)
	}
	if updated.Notes != "phone screen scheduled" {
		t.Fatalf("unexpected notes: %q", updated.Notes)
	}
	if updated.Title != "Go Developer" {
		t.Fatalf("untouched field changed: %q", updated.Title)
	}

	// Re-applying must not overwrite an existing application date.
	if _, err := s.UpdateJob(ctx, "adzuna-1", map[string]any{"application_date": "2026-03-01"}); err != nil {
		t.Fatalf("update date: %v", err)
	}
	updated, err = s.UpdateJob(ctx, "adzuna-1", map[string]any{"status": "applied"})
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if updated.ApplicationDate != "2026-03-01" {
		t.Fatalf("application date overwritten: %q", updated.ApplicationDate)
	}
}

func TestUpdateJobTruncatesNotes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if err := s.SaveJob(ctx, &model.Job{ID: "jsearch-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	long := strings.Repeat("n", model.MaxNotesLen+50)
	updated, err := s.UpdateJob(ctx, "jsearch-1", map[string]any{"notes": long})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len([]rune(updated.Notes)) != model.MaxNotesLen {
		t.Fatalf("expected notes capped at %d, got %d", model.MaxNotesLen, len(updated.Notes))
	}
}

func TestSaveJobsMergesIntoMap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if err := s.SaveJobs(ctx, []*model.Job{{ID: "adzuna-1"}, {ID: "adzuna-2"}}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.SaveJobs(ctx, []*model.Job{{ID: "jsearch-1"}}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	jobs, err := s.GetJobs(ctx)
	if err != nil {
		t.Fatalf("get jobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected merged map of 3, got %d", len(jobs))
	}
}

func TestDefaultsForMissingRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	resume, err := s.GetResume(ctx)
	if err != nil || resume != nil {
		t.Fatalf("expected nil resume, got %+v (%v)", resume, err)
	}

	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.FetchHour != 6 || settings.EmploymentType != "FULLTIME" {
		t.Fatalf("unexpected default settings: %+v", settings)
	}

	progress, err := s.GetBatchProgress(ctx)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if progress.InProgress {
		t.Fatalf("expected no progress in a fresh store")
	}
}

func TestClearBatchProgress(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if err := s.SetBatchProgress(ctx, model.BatchProgress{InProgress: true, Stage: model.StageAllocation, TotalBatches: 4}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.ClearBatchProgress(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	progress, err := s.GetBatchProgress(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if progress.InProgress || progress.Stage != "" {
		t.Fatalf("expected cleared checkpoint, got %+v", progress)
	}
}
