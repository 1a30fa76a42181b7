package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"jobdigest/internal/model"
	"jobdigest/internal/util"
)

// scoreDelay spaces sequential model calls for rate-limit headroom.
const scoreDelay = 500 * time.Millisecond

// Batch statuses reported by ScoreAllUnscored.
const (
	StatusNoResume    = "no_resume"
	StatusNoAPIKey    = "no_api_key"
	StatusNoneToScore = "none_to_score"
	StatusComplete    = "complete"
)

type jobStore interface {
	GetResume(ctx context.Context) (*model.Resume, error)
	GetAPIKeys(ctx context.Context) (model.APIKeys, error)
	GetJobs(ctx context.Context) (map[string]*model.Job, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	SaveJob(ctx context.Context, job *model.Job) error
}

// Runner drives batch and single-job scoring. Jobs are scored one at a time
// and saved immediately after each attempt, so an interrupted batch loses at
// most the job in flight.
type Runner struct {
	store  jobStore
	scorer Scorer
	logger *zap.Logger

	delay time.Duration
	now   func() time.Time
}

func NewRunner(store jobStore, scorer Scorer, logger *zap.Logger) *Runner {
	return &Runner{
		store:  store,
		scorer: scorer,
		logger: logger,
		delay:  scoreDelay,
		now:    time.Now,
	}
}

// ScoreAllUnscored scores every job that has never been attempted. Jobs with
// a previous failed attempt are skipped until re-scored explicitly.
func (r *Runner) ScoreAllUnscored(ctx context.Context) (*model.ScoringSummary, error) {
	resume, err := r.store.GetResume(ctx)
	if err != nil {
		return nil, err
	}
	if resume == nil || resume.Text == "" {
		r.logger.Info("scoring skipped, no resume uploaded")
		return &model.ScoringSummary{Status: StatusNoResume}, nil
	}

	keys, err := r.store.GetAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	if keys.Gemini == "" {
		r.logger.Info("scoring skipped, no scoring api key configured")
		return &model.ScoringSummary{Status: StatusNoAPIKey}, nil
	}

	all, err := r.store.GetJobs(ctx)
	if err != nil {
		return nil, err
	}

	unscored := make([]*model.Job, 0, len(all))
	for _, job := range all {
		if job.Unscored() {
			unscored = append(unscored, job)
		}
	}
	if len(unscored) == 0 {
		return &model.ScoringSummary{Status: StatusNoneToScore}, nil
	}

	sort.Slice(unscored, func(i, j int) bool { return unscored[i].ID < unscored[j].ID })

	summary := &model.ScoringSummary{Status: StatusComplete}
	for i, job := range unscored {
		r.logger.Info("scoring job",
			zap.Int("position", i+1),
			zap.Int("total", len(unscored)),
			zap.String("job_id", job.ID),
			zap.String("title", job.Title),
			zap.String("company", job.Company),
		)

		if err := r.scoreOne(ctx, job, resume.Text, summary); err != nil {
			return nil, err
		}

		if i < len(unscored)-1 {
			if err := util.WaitFor(ctx, r.delay); err != nil {
				return nil, err
			}
		}
	}

	r.logger.Info("scoring complete",
		zap.Int("scored", summary.Scored),
		zap.Int("failed", summary.Failed),
		zap.Int("total", len(unscored)),
	)
	return summary, nil
}

// ScoreSingleJob scores or re-scores one job and returns the updated record.
// Unlike the batch path, missing prerequisites are errors here.
func (r *Runner) ScoreSingleJob(ctx context.Context, jobID string) (*model.Job, error) {
	resume, err := r.store.GetResume(ctx)
	if err != nil {
		return nil, err
	}
	if resume == nil || resume.Text == "" {
		return nil, fmt.Errorf("no resume uploaded, scoring requires a resume")
	}

	keys, err := r.store.GetAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	if keys.Gemini == "" {
		return nil, fmt.Errorf("scoring api key not configured")
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err := r.scoreOne(ctx, job, resume.Text, nil); err != nil {
		return nil, err
	}
	return job, nil
}

// scoreOne runs one attempt, stamps the result on the job and saves it as a
// checkpoint before the next attempt starts.
func (r *Runner) scoreOne(ctx context.Context, job *model.Job, resume string, summary *model.ScoringSummary) error {
	result, err := r.scorer.Score(ctx, job, resume)
	if err != nil {
		return err
	}

	score := &model.Score{ScoredAt: r.now().UTC()}
	if result.Failed {
		score.Failed = true
		score.Reasoning = result.Reasoning
		if score.Reasoning == "" {
			score.Reasoning = "Scoring failed"
		}
		if summary != nil {
			summary.Failed++
		}
	} else {
		score.Value = result.Value
		score.Reasoning = result.Reasoning
		score.Details = result.Details
		if summary != nil {
			summary.Scored++
		}
	}
	job.Score = score

	return r.store.SaveJob(ctx, job)
}
