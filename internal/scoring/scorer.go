// Package scoring evaluates stored jobs against the uploaded resume and
// records the results on each job.
package scoring

import (
	"context"

	"jobdigest/internal/model"
)

// Result is one scoring attempt. Failed carries the attempt-level outcome so
// a batch run keeps going when an individual job cannot be scored.
type Result struct {
	Failed    bool
	Value     int
	Reasoning string
	Details   *model.ScoreDetails
}

// Scorer produces a Result for one job. Implementations report per-job
// failures through Result.Failed and reserve the error return for conditions
// that should abort the whole batch, such as a cancelled context.
type Scorer interface {
	Score(ctx context.Context, job *model.Job, resume string) (*Result, error)
}
