// Package pipeline drives the checkpointed daily fetch run: two bootstrap
// fetches, an allocation decision, a remainder fetch, then the scoring
// handoff. Progress is persisted after every stage so a killed process
// resumes exactly where it stopped.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"jobdigest/internal/allocation"
	"jobdigest/internal/keepalive"
	"jobdigest/internal/model"
	"jobdigest/internal/source"
	"jobdigest/internal/store"
)

const (
	// bootstrapCap limits each source's first fetch regardless of remaining
	// quota.
	bootstrapCap = 25

	livenessTag = "job-fetch"

	totalStages = 4
)

// StatusCapReached is returned when the daily quota is already exhausted and
// no run happens at all.
const StatusCapReached = "cap_reached"

// stageOrder is the canonical stage sequence. Resume starts at the saved
// stage and runs strictly forward from there; no stage re-executes and none
// are skipped.
var stageOrder = []string{
	model.StageBootstrapAdzuna,
	model.StageBootstrapJSearch,
	model.StageAllocation,
	model.StageRemainingFetch,
}

type fetcher interface {
	Name() model.Source
	Fetch(ctx context.Context, count int, params *source.SearchParams) ([]*model.Job, error)
}

type allocator interface {
	Compute(results *allocation.BootstrapResults) allocation.Split
	RecordRunMetrics(ctx context.Context, adzunaJobs, jsearchJobs []*model.Job) error
}

type scorer interface {
	ScoreAllUnscored(ctx context.Context) (*model.ScoringSummary, error)
}

// Result summarizes one run for the caller. Status mirrors the persisted
// history entry, plus the cap_reached short-circuit.
type Result struct {
	Status       string
	JobsFetched  int
	AdzunaCount  int
	JSearchCount int
	Errors       []string
	Scoring      *model.ScoringSummary
}

// Runner owns one pipeline instance. All mutable run state lives in a
// per-run runState value, so independent runners never share anything.
type Runner struct {
	store   *store.Store
	adzuna  fetcher
	jsearch fetcher
	alloc   allocator
	scorer  scorer
	keeper  *keepalive.Keeper
	logger  *zap.Logger
	now     func() time.Time
}

func NewRunner(st *store.Store, adzuna, jsearch fetcher, alloc allocator, sc scorer, keeper *keepalive.Keeper, logger *zap.Logger) *Runner {
	return &Runner{
		store:   st,
		adzuna:  adzuna,
		jsearch: jsearch,
		alloc:   alloc,
		scorer:  sc,
		keeper:  keeper,
		logger:  logger,
		now:     time.Now,
	}
}

// runState carries one run's mutable data through the stages.
type runState struct {
	maxJobs        int
	bootstrapCount int
	scratch        model.ScratchCounts
	entry          *model.FetchHistoryEntry

	adzunaJobs  []*model.Job
	jsearchJobs []*model.Job
	errors      []string
	scoringErr  string
	finished    bool
}

// Run executes a full pipeline from the first stage. The daily cap is checked
// up front; a run that starts always writes a history entry and clears its
// checkpoint, whatever happens in between.
func (r *Runner) Run(ctx context.Context, manual bool) (*Result, error) {
	stats, err := r.store.GetDailyStats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.JobsFetched >= model.DailyQuota {
		r.logger.Info("daily cap reached, skipping run", zap.Int("fetched", stats.JobsFetched))
		return &Result{Status: StatusCapReached}, nil
	}

	return r.execute(ctx, model.DailyQuota-stats.JobsFetched, stageOrder[0], model.ScratchCounts{}, manual, false)
}

// Resume picks up an interrupted run from its saved checkpoint. Returns nil
// when there is nothing to resume.
func (r *Runner) Resume(ctx context.Context) (*Result, error) {
	progress, err := r.store.GetBatchProgress(ctx)
	if err != nil {
		r.forceClearCheckpoint(ctx)
		return nil, err
	}
	if !progress.InProgress {
		return nil, nil
	}

	r.logger.Info("resuming interrupted run", zap.String("stage", progress.Stage))

	stats, err := r.store.GetDailyStats(ctx)
	if err != nil {
		r.forceClearCheckpoint(ctx)
		return nil, err
	}

	return r.execute(ctx, model.DailyQuota-stats.JobsFetched, progress.Stage, progress.FetchedJobs, false, true)
}

// forceClearCheckpoint drops the saved progress when a resume cannot even
// start, so a broken checkpoint is not retried forever. Best effort.
func (r *Runner) forceClearCheckpoint(ctx context.Context) {
	if err := r.store.ClearBatchProgress(ctx); err != nil {
		r.logger.Error("failed to clear checkpoint", zap.Error(err))
	}
}

func (r *Runner) execute(ctx context.Context, maxJobs int, startStage string, scratch model.ScratchCounts, manual, resumed bool) (*Result, error) {
	now := r.now().UTC()
	state := &runState{
		maxJobs:        maxJobs,
		bootstrapCount: min(bootstrapCap, maxJobs/2),
		scratch:        scratch,
		entry: &model.FetchHistoryEntry{
			Date:      model.DateOf(now),
			StartedAt: now,
			Status:    model.RunInProgress,
			Manual:    manual,
			Resumed:   resumed,
		},
	}

	runErr := r.keeper.WithLiveness(ctx, livenessTag, func(ctx context.Context) error {
		return r.runStages(ctx, state, startStage)
	})
	if runErr != nil {
		r.logger.Error("pipeline aborted", zap.Error(runErr))
		state.errors = append(state.errors, runErr.Error())
	}

	// Jobs persisted before an abort still count toward the outcome: a run
	// that saved anything is partial, not failed.
	state.entry.JobsFetched = state.entry.AdzunaCount + state.entry.JSearchCount

	// Scoring problems are reported but never reclassify a completed fetch.
	state.entry.Status = runOutcome(state.entry.JobsFetched, state.errors)
	completed := r.now().UTC()
	state.entry.CompletedAt = &completed
	state.entry.Errors = state.errors
	if state.scoringErr != "" {
		state.entry.Errors = append(state.entry.Errors, state.scoringErr)
	}

	if err := r.store.AddFetchHistoryEntry(ctx, *state.entry); err != nil {
		r.logger.Error("failed to record run history", zap.Error(err))
	}
	if err := r.store.ClearBatchProgress(ctx); err != nil {
		r.logger.Error("failed to clear checkpoint", zap.Error(err))
	}

	r.logger.Info("job fetch complete",
		zap.String("status", string(state.entry.Status)),
		zap.Int("jobs_fetched", state.entry.JobsFetched),
		zap.Int("adzuna", state.entry.AdzunaCount),
		zap.Int("jsearch", state.entry.JSearchCount),
		zap.Int("errors", len(state.errors)),
	)

	return &Result{
		Status:       string(state.entry.Status),
		JobsFetched:  state.entry.JobsFetched,
		AdzunaCount:  state.entry.AdzunaCount,
		JSearchCount: state.entry.JSearchCount,
		Errors:       state.entry.Errors,
		Scoring:      state.entry.Scoring,
	}, nil
}

// runStages dispatches the stage handlers in order, starting at startStage,
// persisting the checkpoint before each one. Stage-level source failures are
// recorded and the pipeline keeps going; only checkpoint and store failures
// abort.
func (r *Runner) runStages(ctx context.Context, state *runState, startStage string) error {
	handlers := map[string]func(context.Context, *runState) error{
		model.StageBootstrapAdzuna:  r.stageBootstrapAdzuna,
		model.StageBootstrapJSearch: r.stageBootstrapJSearch,
		model.StageAllocation:       r.stageAllocation,
		model.StageRemainingFetch:   r.stageRemainingFetch,
	}

	start := 0
	for i, name := range stageOrder {
		if name == startStage {
			start = i
			break
		}
	}

	for _, name := range stageOrder[start:] {
		if state.finished {
			break
		}

		if err := r.store.SetBatchProgress(ctx, model.BatchProgress{
			InProgress:   true,
			Stage:        name,
			TotalBatches: totalStages,
			FetchedJobs:  state.scratch,
		}); err != nil {
			return fmt.Errorf("checkpoint stage %s: %w", name, err)
		}

		if err := handlers[name](ctx, state); err != nil {
			return err
		}
	}

	total := state.entry.AdzunaCount + state.entry.JSearchCount
	if err := r.store.IncrementDailyCount(ctx, total); err != nil {
		return err
	}

	if err := r.alloc.RecordRunMetrics(ctx, state.adzunaJobs, state.jsearchJobs); err != nil {
		return err
	}

	r.runScoring(ctx, state)
	return nil
}

func (r *Runner) stageBootstrapAdzuna(ctx context.Context, state *runState) error {
	r.logger.Info("bootstrap fetch", zap.String("source", string(r.adzuna.Name())), zap.Int("count", state.bootstrapCount))

	jobs, err := r.fetchAndPersist(ctx, r.adzuna, state.bootstrapCount, nil)
	if err != nil {
		state.errors = append(state.errors, fmt.Sprintf("Adzuna: %s", err))
		return nil
	}

	state.adzunaJobs = jobs
	state.scratch.AdzunaBootstrap = len(jobs)
	state.entry.AdzunaCount += len(jobs)
	return nil
}

func (r *Runner) stageBootstrapJSearch(ctx context.Context, state *runState) error {
	r.logger.Info("bootstrap fetch", zap.String("source", string(r.jsearch.Name())), zap.Int("count", state.bootstrapCount))

	jobs, err := r.fetchAndPersist(ctx, r.jsearch, state.bootstrapCount, nil)
	if err != nil {
		state.errors = append(state.errors, fmt.Sprintf("JSearch: %s", err))
		return nil
	}

	state.jsearchJobs = jobs
	state.scratch.JSearchBootstrap = len(jobs)
	state.entry.JSearchCount += len(jobs)
	return nil
}

// stageAllocation sizes the remainder fetch. The allocation engine's split is
// computed over its fixed pool and then scaled down to what the quota still
// allows.
func (r *Runner) stageAllocation(_ context.Context, state *runState) error {
	totalBootstrap := state.scratch.AdzunaBootstrap + state.scratch.JSearchBootstrap
	remainingToFetch := min(state.maxJobs-totalBootstrap, allocation.Pool)

	if remainingToFetch <= 0 {
		r.logger.Info("quota exhausted by bootstraps, skipping remainder")
		state.finished = true
		return nil
	}

	split := r.alloc.Compute(&allocation.BootstrapResults{
		Adzuna:  state.adzunaJobs,
		JSearch: state.jsearchJobs,
	})

	total := split.Adzuna + split.JSearch
	adzunaShare := int(math.Round(float64(split.Adzuna) / float64(total) * float64(remainingToFetch)))
	jsearchShare := remainingToFetch - adzunaShare

	state.scratch.AdzunaRemaining = &adzunaShare
	state.scratch.JSearchRemaining = &jsearchShare

	r.logger.Info("remainder allocation",
		zap.Int("adzuna", adzunaShare),
		zap.Int("jsearch", jsearchShare),
		zap.Int("pool", remainingToFetch),
	)
	return nil
}

func (r *Runner) stageRemainingFetch(ctx context.Context, state *runState) error {
	// A resume that never reached the allocation stage falls back to the
	// even split over the full pool.
	adzunaShare := allocation.Pool / 2
	if state.scratch.AdzunaRemaining != nil {
		adzunaShare = *state.scratch.AdzunaRemaining
	}
	jsearchShare := allocation.Pool / 2
	if state.scratch.JSearchRemaining != nil {
		jsearchShare = *state.scratch.JSearchRemaining
	}

	if adzunaShare > 0 {
		jobs, err := r.fetchAndPersist(ctx, r.adzuna, adzunaShare, &source.SearchParams{Page: 2})
		if err != nil {
			state.errors = append(state.errors, fmt.Sprintf("Adzuna (remaining): %s", err))
		} else {
			state.entry.AdzunaCount += len(jobs)
		}
	}

	if jsearchShare > 0 {
		jobs, err := r.fetchAndPersist(ctx, r.jsearch, jsearchShare, &source.SearchParams{Page: 2})
		if err != nil {
			state.errors = append(state.errors, fmt.Sprintf("JSearch (remaining): %s", err))
		} else {
			state.entry.JSearchCount += len(jobs)
		}
	}

	return nil
}

// fetchAndPersist fetches from one source, drops listings already stored and
// saves the survivors immediately as a checkpoint.
func (r *Runner) fetchAndPersist(ctx context.Context, f fetcher, count int, params *source.SearchParams) ([]*model.Job, error) {
	jobs, err := f.Fetch(ctx, count, params)
	if err != nil {
		r.logger.Warn("source fetch failed", zap.String("source", string(f.Name())), zap.Error(err))
		return nil, err
	}

	fresh := make([]*model.Job, 0, len(jobs))
	for _, job := range jobs {
		existing, err := r.store.GetJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			fresh = append(fresh, job)
		}
	}

	if err := r.store.SaveJobs(ctx, fresh); err != nil {
		return nil, err
	}

	r.logger.Info("jobs persisted",
		zap.String("source", string(f.Name())),
		zap.Int("fetched", len(jobs)),
		zap.Int("new", len(fresh)),
	)
	return fresh, nil
}

// runScoring hands the new jobs to the scoring orchestrator. A scoring
// failure is recorded but never turns a completed fetch into a failed run.
func (r *Runner) runScoring(ctx context.Context, state *runState) {
	summary, err := r.scorer.ScoreAllUnscored(ctx)
	if err != nil {
		r.logger.Error("scoring stage failed", zap.Error(err))
		state.scoringErr = fmt.Sprintf("Scoring: %s", err)
		return
	}

	state.entry.Scoring = summary
	r.logger.Info("scoring handoff complete",
		zap.String("status", summary.Status),
		zap.Int("scored", summary.Scored),
		zap.Int("failed", summary.Failed),
	)
}

// runOutcome classifies a finished run: clean runs succeed, runs with
// recorded source errors are partial when anything was fetched and failed
// when nothing was.
func runOutcome(jobsFetched int, errors []string) model.RunStatus {
	if len(errors) == 0 {
		return model.RunSuccess
	}
	if jobsFetched > 0 {
		return model.RunPartial
	}
	return model.RunFailed
}
