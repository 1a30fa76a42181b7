// Package allocation splits the remaining daily quota between the two job
// sources based on same-run bootstrap quality.
package allocation

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"jobdigest/internal/model"
)

const (
	// Pool is the remaining-quota pool the split is computed over.
	Pool = 50

	// Floor is the minimum share per source. Neither source is ever starved
	// to zero, so a temporarily weak source can still recover.
	Floor = 10

	evenShare = Pool / 2

	// avgWeight and highValueWeight blend mean score with the high-value
	// percentage into one quality number.
	avgWeight       = 0.7
	highValueWeight = 0.3
)

// Split is the per-source share of the pool. The two shares always sum to
// Pool.
type Split struct {
	Adzuna  int
	JSearch int
}

// BootstrapResults carries the bootstrap-stage jobs per source into the
// allocation decision.
type BootstrapResults struct {
	Adzuna  []*model.Job
	JSearch []*model.Job
}

type metricsStore interface {
	GetAdaptiveMetrics(ctx context.Context) (model.AdaptiveMetrics, error)
	SetAdaptiveMetrics(ctx context.Context, metrics model.AdaptiveMetrics) error
}

// Engine computes quota splits and maintains the rolling quality history.
type Engine struct {
	store  metricsStore
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(store metricsStore, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger, now: time.Now}
}

// Compute returns the split for the bootstrap results. Missing results,
// an empty side, or an absence of scores all degenerate to the even split;
// otherwise the pool is divided proportionally to each source's quality and
// clamped to the floor.
func (e *Engine) Compute(results *BootstrapResults) Split {
	even := Split{Adzuna: evenShare, JSearch: evenShare}

	if results == nil || len(results.Adzuna) == 0 || len(results.JSearch) == 0 {
		return even
	}

	if !anyScored(results.Adzuna) && !anyScored(results.JSearch) {
		e.logger.Debug("no scores available yet, using even split")
		return even
	}

	adzunaQuality := quality(results.Adzuna)
	jsearchQuality := quality(results.JSearch)
	total := adzunaQuality + jsearchQuality
	if total == 0 {
		return even
	}

	adzuna := int(math.Round(Pool * adzunaQuality / total))
	jsearch := Pool - adzuna

	if adzuna < Floor {
		adzuna = Floor
		jsearch = Pool - Floor
	} else if jsearch < Floor {
		jsearch = Floor
		adzuna = Pool - Floor
	}

	e.logger.Info("adaptive allocation computed",
		zap.Int("adzuna", adzuna),
		zap.Int("jsearch", jsearch),
		zap.Float64("adzuna_quality", adzunaQuality),
		zap.Float64("jsearch_quality", jsearchQuality),
	)

	return Split{Adzuna: adzuna, JSearch: jsearch}
}

// RecordRunMetrics appends one quality sample per source to the rolling
// window and stamps the calibration time. The history is not consumed by
// Compute today; it feeds future strategies and the status surface.
func (e *Engine) RecordRunMetrics(ctx context.Context, adzunaJobs, jsearchJobs []*model.Job) error {
	metrics, err := e.store.GetAdaptiveMetrics(ctx)
	if err != nil {
		return err
	}

	now := e.now().UTC()

	metrics.Adzuna.RecentWindow = appendTrimmed(metrics.Adzuna.RecentWindow, runEntry(adzunaJobs, now))
	metrics.JSearch.RecentWindow = appendTrimmed(metrics.JSearch.RecentWindow, runEntry(jsearchJobs, now))
	metrics.LastCalibration = &now

	if err := e.store.SetAdaptiveMetrics(ctx, metrics); err != nil {
		return err
	}

	e.logger.Debug("adaptive metrics updated",
		zap.Int("adzuna_jobs", len(adzunaJobs)),
		zap.Int("jsearch_jobs", len(jsearchJobs)),
	)
	return nil
}

// quality blends the mean score with the high-value percentage. Jobs without
// a successful score are ignored; no scored jobs means zero quality.
func quality(jobs []*model.Job) float64 {
	var sum, highValue, n int
	for _, job := range jobs {
		if !job.Scored() {
			continue
		}
		n++
		sum += job.Score.Value
		if job.Score.Value >= model.HighValueScore {
			highValue++
		}
	}
	if n == 0 {
		return 0
	}

	avg := float64(sum) / float64(n)
	highValuePct := float64(highValue) / float64(n) * 100
	return avg*avgWeight + highValuePct*highValueWeight
}

func anyScored(jobs []*model.Job) bool {
	for _, job := range jobs {
		if job.Scored() {
			return true
		}
	}
	return false
}

func runEntry(jobs []*model.Job, now time.Time) model.MetricsEntry {
	entry := model.MetricsEntry{
		Date:     model.DateOf(now),
		JobCount: len(jobs),
	}

	var sum, highValue, n int
	for _, job := range jobs {
		if !job.Scored() {
			continue
		}
		n++
		sum += job.Score.Value
		if job.Score.Value >= model.HighValueScore {
			highValue++
		}
	}
	if n > 0 {
		avg := float64(sum) / float64(n)
		entry.AvgScore = &avg
		entry.HighValueCount = highValue
	}

	return entry
}

func appendTrimmed(window []model.MetricsEntry, entry model.MetricsEntry) []model.MetricsEntry {
	window = append(window, entry)
	if len(window) > model.MetricsWindow {
		window = window[len(window)-model.MetricsWindow:]
	}
	return window
}
