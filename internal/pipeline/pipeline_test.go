package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"jobdigest/internal/allocation"
	"jobdigest/internal/keepalive"
	"jobdigest/internal/model"
	"jobdigest/internal/source"
	"jobdigest/internal/store"
)

type fetchCall struct {
	count int
	page  int
}

type stubFetcher struct {
	name  model.Source
	fetch func(count, page int) ([]*model.Job, error)
	calls []fetchCall
}

func (f *stubFetcher) Name() model.Source { return f.name }

func (f *stubFetcher) Fetch(_ context.Context, count int, params *source.SearchParams) ([]*model.Job, error) {
	page := 1
	if params != nil && params.Page > 0 {
		page = params.Page
	}
	f.calls = append(f.calls, fetchCall{count: count, page: page})
	return f.fetch(count, page)
}

func (f *stubFetcher) pages(page int) int {
	n := 0
	for _, c := range f.calls {
		if c.page == page {
			n++
		}
	}
	return n
}

type stubBatchScorer struct {
	summary *model.ScoringSummary
	err     error
	calls   int
}

func (s *stubBatchScorer) ScoreAllUnscored(context.Context) (*model.ScoringSummary, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.summary != nil {
		return s.summary, nil
	}
	return &model.ScoringSummary{Status: "complete"}, nil
}

func makeJobs(src model.Source, prefix string, n int) []*model.Job {
	jobs := make([]*model.Job, n)
	for i := range jobs {
		jobs[i] = &model.Job{
			ID:     model.JobID(src, fmt.Sprintf("%s%d", prefix, i)),
			Source: src,
			Title:  "Engineer",
		}
	}
	return jobs
}

func servesJobs(src model.Source, prefix string) func(count, page int) ([]*model.Job, error) {
	return func(count, page int) ([]*model.Job, error) {
		return makeJobs(src, fmt.Sprintf("%s-p%d-", prefix, page), count), nil
	}
}

func failing(msg string) func(count, page int) ([]*model.Job, error) {
	return func(int, int) ([]*model.Job, error) { return nil, errors.New(msg) }
}

type testPipeline struct {
	runner  *Runner
	store   *store.Store
	adzuna  *stubFetcher
	jsearch *stubFetcher
	scorer  *stubBatchScorer
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	st := store.New(store.NewMemoryBackend())
	adzuna := &stubFetcher{name: model.SourceAdzuna, fetch: servesJobs(model.SourceAdzuna, "a")}
	jsearch := &stubFetcher{name: model.SourceJSearch, fetch: servesJobs(model.SourceJSearch, "j")}
	scorer := &stubBatchScorer{}
	logger := zap.NewNop()
	runner := NewRunner(st, adzuna, jsearch,
		allocation.NewEngine(st, logger), scorer,
		keepalive.New(logger, nil, nil), logger)
	return &testPipeline{runner: runner, store: st, adzuna: adzuna, jsearch: jsearch, scorer: scorer}
}

func TestRunCapReached(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	if err := p.store.IncrementDailyCount(ctx, model.DailyQuota); err != nil {
		t.Fatal(err)
	}

	result, err := p.runner.Run(ctx, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusCapReached {
		t.Fatalf("expected cap_reached, got %q", result.Status)
	}
	if len(p.adzuna.calls)+len(p.jsearch.calls) != 0 {
		t.Fatalf("no fetches expected at cap")
	}
}

func TestRunFullQuotaScenario(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	if err := p.store.IncrementDailyCount(ctx, 60); err != nil {
		t.Fatal(err)
	}

	// 40 remaining: bootstraps fetch min(25, 20)=20 each and return 18/15
	// unique jobs, leaving min(40-33, 50)=7 for the remainder, split 4/3.
	p.adzuna.fetch = func(count, page int) ([]*model.Job, error) {
		if page == 1 {
			return makeJobs(model.SourceAdzuna, "boot", 18), nil
		}
		return makeJobs(model.SourceAdzuna, "rem", count), nil
	}
	p.jsearch.fetch = func(count, page int) ([]*model.Job, error) {
		if page == 1 {
			return makeJobs(model.SourceJSearch, "boot", 15), nil
		}
		return makeJobs(model.SourceJSearch, "rem", count), nil
	}

	result, err := p.runner.Run(ctx, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Status != string(model.RunSuccess) {
		t.Fatalf("expected success, got %q (errors: %v)", result.Status, result.Errors)
	}
	if result.JobsFetched != 40 || result.AdzunaCount != 22 || result.JSearchCount != 18 {
		t.Fatalf("unexpected counts: %+v", result)
	}

	if p.adzuna.calls[0].count != 20 || p.adzuna.calls[0].page != 1 {
		t.Fatalf("unexpected bootstrap call: %+v", p.adzuna.calls[0])
	}
	if p.adzuna.calls[1].count != 4 || p.adzuna.calls[1].page != 2 {
		t.Fatalf("unexpected remainder call: %+v", p.adzuna.calls[1])
	}
	if p.jsearch.calls[1].count != 3 {
		t.Fatalf("unexpected jsearch remainder: %+v", p.jsearch.calls[1])
	}

	stats, _ := p.store.GetDailyStats(ctx)
	if stats.JobsFetched != model.DailyQuota {
		t.Fatalf("daily counter not incremented: %d", stats.JobsFetched)
	}

	if p.scorer.calls != 1 {
		t.Fatalf("scoring not invoked exactly once: %d", p.scorer.calls)
	}
	if result.Scoring == nil || result.Scoring.Status != "complete" {
		t.Fatalf("scoring summary missing: %+v", result.Scoring)
	}

	history, _ := p.store.GetFetchHistory(ctx)
	if len(history) != 1 || history[0].Status != model.RunSuccess || !history[0].Manual {
		t.Fatalf("unexpected history: %+v", history)
	}

	metrics, _ := p.store.GetAdaptiveMetrics(ctx)
	if len(metrics.Adzuna.RecentWindow) != 1 || metrics.Adzuna.RecentWindow[0].JobCount != 18 {
		t.Fatalf("metrics not recorded: %+v", metrics.Adzuna.RecentWindow)
	}

	progress, _ := p.store.GetBatchProgress(ctx)
	if progress.InProgress {
		t.Fatalf("checkpoint not cleared")
	}
}

func TestRunDedupAgainstStoredJobs(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	dup := makeJobs(model.SourceAdzuna, "boot", 5)
	if err := p.store.SaveJobs(ctx, dup[:3]); err != nil {
		t.Fatal(err)
	}

	p.adzuna.fetch = func(count, page int) ([]*model.Job, error) {
		if page == 1 {
			return makeJobs(model.SourceAdzuna, "boot", 5), nil
		}
		return nil, nil
	}
	p.jsearch.fetch = func(int, int) ([]*model.Job, error) { return nil, nil }

	result, err := p.runner.Run(ctx, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.AdzunaCount != 2 {
		t.Fatalf("duplicates counted: %+v", result)
	}

	jobs, _ := p.store.GetJobs(ctx)
	if len(jobs) != 5 {
		t.Fatalf("expected 5 unique jobs stored, got %d", len(jobs))
	}

	stats, _ := p.store.GetDailyStats(ctx)
	if stats.JobsFetched != 2 {
		t.Fatalf("daily counter must only count new jobs: %d", stats.JobsFetched)
	}
}

func TestResumeSkipsCompletedBootstraps(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	if err := p.store.SetBatchProgress(ctx, model.BatchProgress{
		InProgress:   true,
		Stage:        model.StageAllocation,
		TotalBatches: 4,
		FetchedJobs:  model.ScratchCounts{AdzunaBootstrap: 20, JSearchBootstrap: 13},
	}); err != nil {
		t.Fatal(err)
	}

	result, err := p.runner.Resume(ctx)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	if p.adzuna.pages(1) != 0 || p.jsearch.pages(1) != 0 {
		t.Fatalf("bootstrap stages re-executed on resume: %+v %+v", p.adzuna.calls, p.jsearch.calls)
	}
	if p.adzuna.pages(2) != 1 || p.jsearch.pages(2) != 1 {
		t.Fatalf("remainder stage not executed: %+v %+v", p.adzuna.calls, p.jsearch.calls)
	}

	// Pool is min(100-0-33, 50) = 50, split evenly.
	if p.adzuna.calls[0].count != 25 || p.jsearch.calls[0].count != 25 {
		t.Fatalf("unexpected remainder counts: %+v %+v", p.adzuna.calls, p.jsearch.calls)
	}

	if result.Status != string(model.RunSuccess) || result.JobsFetched != 50 {
		t.Fatalf("unexpected result: %+v", result)
	}

	history, _ := p.store.GetFetchHistory(ctx)
	if len(history) != 1 || !history[0].Resumed {
		t.Fatalf("resumed run not recorded: %+v", history)
	}

	progress, _ := p.store.GetBatchProgress(ctx)
	if progress.InProgress {
		t.Fatalf("checkpoint not cleared after resume")
	}
}

func TestResumeWithNothingInProgress(t *testing.T) {
	p := newTestPipeline(t)

	result, err := p.runner.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
	if len(p.adzuna.calls) != 0 {
		t.Fatalf("no fetches expected")
	}
}

func TestRunPartialWhenOneSourceFails(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	p.adzuna.fetch = failing("rate limited")

	result, err := p.runner.Run(ctx, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Status != string(model.RunPartial) {
		t.Fatalf("expected partial, got %q", result.Status)
	}
	if result.JSearchCount == 0 || result.AdzunaCount != 0 {
		t.Fatalf("surviving source must still fetch: %+v", result)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected bootstrap and remainder errors, got %v", result.Errors)
	}
	if p.scorer.calls != 1 {
		t.Fatalf("scoring skipped on partial run")
	}
}

func TestRunFailedWhenBothSourcesFail(t *testing.T) {
	p := newTestPipeline(t)

	p.adzuna.fetch = failing("down")
	p.jsearch.fetch = failing("down")

	result, err := p.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != string(model.RunFailed) || result.JobsFetched != 0 {
		t.Fatalf("expected failed run, got %+v", result)
	}
}

func TestRunScoringFailureDoesNotFailRun(t *testing.T) {
	p := newTestPipeline(t)
	p.scorer.err = errors.New("model offline")

	result, err := p.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != string(model.RunSuccess) {
		t.Fatalf("scoring failure must not fail the run: %+v", result)
	}
	if len(result.Errors) != 1 || result.Errors[0] != "Scoring: model offline" {
		t.Fatalf("scoring error not recorded: %v", result.Errors)
	}
	if result.Scoring != nil {
		t.Fatalf("no summary expected on scoring failure")
	}
}

func TestRunSkipsRemainderWhenBootstrapsFillQuota(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	if err := p.store.IncrementDailyCount(ctx, 90); err != nil {
		t.Fatal(err)
	}

	// 10 remaining: bootstraps fetch 5 each, exhausting the quota.
	result, err := p.runner.Run(ctx, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.JobsFetched != 10 {
		t.Fatalf("unexpected total: %+v", result)
	}
	if p.adzuna.pages(2) != 0 || p.jsearch.pages(2) != 0 {
		t.Fatalf("remainder fetch must be skipped at quota: %+v %+v", p.adzuna.calls, p.jsearch.calls)
	}
}

// faultyBackend injects storage failures around an inner backend: Set fails
// on the nth write of failSetKey, Get always fails for keys in failGet.
type faultyBackend struct {
	store.Backend
	failSetKey  string
	failSetCall int
	setCalls    int
	failGet     map[string]bool
}

func (b *faultyBackend) Set(ctx context.Context, key string, value []byte) error {
	if key == b.failSetKey {
		b.setCalls++
		if b.setCalls == b.failSetCall {
			return errors.New("disk full")
		}
	}
	return b.Backend.Set(ctx, key, value)
}

func (b *faultyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.failGet[key] {
		return nil, errors.New("read error")
	}
	return b.Backend.Get(ctx, key)
}

func newFaultyPipeline(t *testing.T, backend store.Backend) *testPipeline {
	t.Helper()
	st := store.New(backend)
	adzuna := &stubFetcher{name: model.SourceAdzuna, fetch: servesJobs(model.SourceAdzuna, "a")}
	jsearch := &stubFetcher{name: model.SourceJSearch, fetch: servesJobs(model.SourceJSearch, "j")}
	scorer := &stubBatchScorer{}
	logger := zap.NewNop()
	runner := NewRunner(st, adzuna, jsearch,
		allocation.NewEngine(st, logger), scorer,
		keepalive.New(logger, nil, nil), logger)
	return &testPipeline{runner: runner, store: st, adzuna: adzuna, jsearch: jsearch, scorer: scorer}
}

func TestRunPartialWhenCheckpointWriteFails(t *testing.T) {
	// The first checkpoint write succeeds, so the adzuna bootstrap persists
	// its jobs; the second aborts the run before jsearch starts.
	backend := &faultyBackend{
		Backend:     store.NewMemoryBackend(),
		failSetKey:  store.KeyBatchProgress,
		failSetCall: 2,
	}
	p := newFaultyPipeline(t, backend)
	ctx := context.Background()

	result, err := p.runner.Run(ctx, true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Status != string(model.RunPartial) {
		t.Fatalf("status = %s, want partial: %+v", result.Status, result)
	}
	if result.JobsFetched != 25 || result.AdzunaCount != 25 || result.JSearchCount != 0 {
		t.Fatalf("persisted jobs must be counted on abort: %+v", result)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	jobs, err := p.store.GetJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 25 {
		t.Fatalf("persisted job count = %d, want 25", len(jobs))
	}

	history, err := p.store.GetFetchHistory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Status != model.RunPartial || history[0].JobsFetched != 25 {
		t.Fatalf("unexpected history: %+v", history)
	}
	if p.scorer.calls != 0 {
		t.Fatalf("scoring must not run after an abort")
	}
}

func TestRunFailedWhenFirstCheckpointWriteFails(t *testing.T) {
	backend := &faultyBackend{
		Backend:     store.NewMemoryBackend(),
		failSetKey:  store.KeyBatchProgress,
		failSetCall: 1,
	}
	p := newFaultyPipeline(t, backend)

	result, err := p.runner.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != string(model.RunFailed) || result.JobsFetched != 0 {
		t.Fatalf("nothing persisted must classify as failed: %+v", result)
	}
}

func TestResumeForceClearsCheckpointOnStatsError(t *testing.T) {
	backend := &faultyBackend{
		Backend: store.NewMemoryBackend(),
		failGet: map[string]bool{store.KeyDailyStats: true},
	}
	p := newFaultyPipeline(t, backend)
	ctx := context.Background()

	if err := p.store.SetBatchProgress(ctx, model.BatchProgress{
		InProgress: true,
		Stage:      model.StageAllocation,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := p.runner.Resume(ctx); err == nil {
		t.Fatalf("expected the stats read error to surface")
	}

	progress, err := p.store.GetBatchProgress(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if progress.InProgress {
		t.Fatalf("checkpoint must be cleared when resume cannot start: %+v", progress)
	}
}
