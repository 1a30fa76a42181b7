package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"jobdigest/internal/model"
)

type stubJobStore struct {
	resume *model.Resume
	keys   model.APIKeys
	jobs   map[string]*model.Job

	saves []string
}

func (s *stubJobStore) GetResume(context.Context) (*model.Resume, error) { return s.resume, nil }

func (s *stubJobStore) GetAPIKeys(context.Context) (model.APIKeys, error) { return s.keys, nil }

func (s *stubJobStore) GetJobs(context.Context) (map[string]*model.Job, error) { return s.jobs, nil }

func (s *stubJobStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	return s.jobs[id], nil
}

func (s *stubJobStore) SaveJob(_ context.Context, job *model.Job) error {
	s.saves = append(s.saves, job.ID)
	s.jobs[job.ID] = job
	return nil
}

type stubScorer struct {
	results map[string]*Result
	err     error
	calls   []string
}

func (s *stubScorer) Score(_ context.Context, job *model.Job, _ string) (*Result, error) {
	s.calls = append(s.calls, job.ID)
	if s.err != nil {
		return nil, s.err
	}
	if r, ok := s.results[job.ID]; ok {
		return r, nil
	}
	return &Result{Value: 50}, nil
}

func scoringStore(jobs ...*model.Job) *stubJobStore {
	m := make(map[string]*model.Job, len(jobs))
	for _, j := range jobs {
		m[j.ID] = j
	}
	return &stubJobStore{
		resume: &model.Resume{Text: "resume text"},
		keys:   model.APIKeys{Gemini: "key"},
		jobs:   m,
	}
}

func newTestRunner(store *stubJobStore, scorer Scorer) *Runner {
	r := NewRunner(store, scorer, zap.NewNop())
	r.delay = 0
	return r
}

func TestScoreAllUnscoredNoResume(t *testing.T) {
	store := scoringStore(&model.Job{ID: "adzuna-1"})
	store.resume = nil
	scorer := &stubScorer{}

	summary, err := newTestRunner(store, scorer).ScoreAllUnscored(context.Background())
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if summary.Status != StatusNoResume {
		t.Fatalf("expected no_resume, got %q", summary.Status)
	}
	if len(scorer.calls) != 0 {
		t.Fatalf("scorer must not be called without a resume")
	}
}

func TestScoreAllUnscoredNoAPIKey(t *testing.T) {
	store := scoringStore(&model.Job{ID: "adzuna-1"})
	store.keys = model.APIKeys{}

	summary, err := newTestRunner(store, &stubScorer{}).ScoreAllUnscored(context.Background())
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if summary.Status != StatusNoAPIKey {
		t.Fatalf("expected no_api_key, got %q", summary.Status)
	}
}

func TestScoreAllUnscoredNoneToScore(t *testing.T) {
	scored := &model.Job{ID: "adzuna-1", Score: &model.Score{Value: 70}}
	failed := &model.Job{ID: "adzuna-2", Score: &model.Score{Failed: true}}
	store := scoringStore(scored, failed)
	scorer := &stubScorer{}

	summary, err := newTestRunner(store, scorer).ScoreAllUnscored(context.Background())
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if summary.Status != StatusNoneToScore {
		t.Fatalf("expected none_to_score, got %q", summary.Status)
	}
	if len(scorer.calls) != 0 {
		t.Fatalf("failed jobs must not be retried by the batch, calls: %v", scorer.calls)
	}
}

func TestScoreAllUnscoredMixedResults(t *testing.T) {
	store := scoringStore(
		&model.Job{ID: "adzuna-1"},
		&model.Job{ID: "adzuna-2"},
		&model.Job{ID: "jsearch-1", Score: &model.Score{Value: 90}},
	)
	scorer := &stubScorer{results: map[string]*Result{
		"adzuna-1": {Value: 85, Reasoning: "strong match", Details: &model.ScoreDetails{SkillsMatch: 90}},
		"adzuna-2": {Failed: true},
	}}

	runner := newTestRunner(store, scorer)
	fixed := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	runner.now = func() time.Time { return fixed }

	summary, err := runner.ScoreAllUnscored(context.Background())
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if summary.Status != StatusComplete || summary.Scored != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	good := store.jobs["adzuna-1"]
	if !good.Scored() || good.Score.Value != 85 || good.Score.Reasoning != "strong match" {
		t.Fatalf("unexpected scored job: %+v", good.Score)
	}
	if good.Score.Details == nil || good.Score.Details.SkillsMatch != 90 {
		t.Fatalf("details not recorded: %+v", good.Score.Details)
	}
	if !good.Score.ScoredAt.Equal(fixed) {
		t.Fatalf("scoredAt not stamped: %v", good.Score.ScoredAt)
	}

	bad := store.jobs["adzuna-2"]
	if bad.Unscored() || bad.Scored() {
		t.Fatalf("failed attempt must be recorded as failed: %+v", bad.Score)
	}
	if bad.Score.Reasoning != "Scoring failed" {
		t.Fatalf("missing fallback reasoning: %q", bad.Score.Reasoning)
	}

	// Each attempt checkpoints immediately, in deterministic order.
	if len(store.saves) != 2 || store.saves[0] != "adzuna-1" || store.saves[1] != "adzuna-2" {
		t.Fatalf("unexpected save order: %v", store.saves)
	}
}

func TestScoreAllUnscoredAbortsOnScorerError(t *testing.T) {
	store := scoringStore(&model.Job{ID: "adzuna-1"}, &model.Job{ID: "adzuna-2"})
	scorer := &stubScorer{err: context.Canceled}

	_, err := newTestRunner(store, scorer).ScoreAllUnscored(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if len(store.saves) != 0 {
		t.Fatalf("aborted attempt must not checkpoint, saves: %v", store.saves)
	}
}

func TestScoreSingleJobRescores(t *testing.T) {
	job := &model.Job{ID: "adzuna-1", Score: &model.Score{Failed: true, Reasoning: "old failure"}}
	store := scoringStore(job)
	scorer := &stubScorer{results: map[string]*Result{
		"adzuna-1": {Value: 72, Reasoning: "decent fit"},
	}}

	updated, err := newTestRunner(store, scorer).ScoreSingleJob(context.Background(), "adzuna-1")
	if err != nil {
		t.Fatalf("score single: %v", err)
	}
	if !updated.Scored() || updated.Score.Value != 72 {
		t.Fatalf("unexpected rescored job: %+v", updated.Score)
	}
	if len(store.saves) != 1 {
		t.Fatalf("expected one save, got %v", store.saves)
	}
}

func TestScoreSingleJobErrors(t *testing.T) {
	store := scoringStore()
	runner := newTestRunner(store, &stubScorer{})

	if _, err := runner.ScoreSingleJob(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown job")
	}

	store.resume = nil
	if _, err := runner.ScoreSingleJob(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error without resume")
	}
}
