// Package store is the durable state layer: a small typed API over a
// pluggable key-value backend. Jobs live in their own keyspace indexed by
// job id so per-batch writes stay cheap as the job count grows.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"jobdigest/internal/model"
)

// Record keys for the kv keyspace.
const (
	KeyAPIKeys         = "apiKeys"
	KeySettings        = "settings"
	KeyResume          = "resume"
	KeyDailyStats      = "dailyStats"
	KeyOnboarding      = "onboarding"
	KeyBatchProgress   = "batchProgress"
	KeyFetchHistory    = "fetchHistory"
	KeyAdaptiveMetrics = "adaptiveMetrics"
)

// Backend is the raw storage a Store runs on. Get returns (nil, nil) for a
// missing key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	GetJob(ctx context.Context, id string) ([]byte, error)
	PutJob(ctx context.Context, id string, data []byte) error
	AllJobs(ctx context.Context) (map[string][]byte, error)
	Close() error
}

// Store exposes the typed operations the pipeline needs. All read-modify-write
// semantics (daily roll, history trim, partial job updates) live here, once,
// regardless of backend.
type Store struct {
	backend Backend

	// now is overridable in tests to pin the calendar day.
	now func() time.Time
}

func New(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) getRecord(ctx context.Context, key string, target any) (bool, error) {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("store get %s: %w", key, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("store decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setRecord(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store encode %s: %w", key, err)
	}
	if err := s.backend.Set(ctx, key, data); err != nil {
		return fmt.Errorf("store set %s: %w", key, err)
	}
	return nil
}

// GetJobs returns the full jobs map keyed by job id.
func (s *Store) GetJobs(ctx context.Context) (map[string]*model.Job, error) {
	raw, err := s.backend.AllJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("store list jobs: %w", err)
	}

	jobs := make(map[string]*model.Job, len(raw))
	for id, data := range raw {
		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, fmt.Errorf("store decode job %s: %w", id, err)
		}
		jobs[id] = &job
	}
	return jobs, nil
}

// GetJob returns one job, or nil when the id is unknown.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.backend.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("store get job %s: %w", id, err)
	}
	if data == nil {
		return nil, nil
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("store decode job %s: %w", id, err)
	}
	return &job, nil
}

// SaveJob writes a single job under its id.
func (s *Store) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("store encode job %s: %w", job.ID, err)
	}
	if err := s.backend.PutJob(ctx, job.ID, data); err != nil {
		return fmt.Errorf("store put job %s: %w", job.ID, err)
	}
	return nil
}

// SaveJobs merges the given jobs into the stored map.
func (s *Store) SaveJobs(ctx context.Context, jobs []*model.Job) error {
	for _, job := range jobs {
		if err := s.SaveJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// UpdateJob applies a partial field update (keys are the job's JSON field
// names) and returns the updated job. A missing id is a no-op returning nil,
// not an error. A transition into applied stamps the application date when it
// is absent.
func (s *Store) UpdateJob(ctx context.Context, id string, fields map[string]any) (*model.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	prevStatus := job.Status

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  job,
	})
	if err != nil {
		return nil, fmt.Errorf("store update job %s: %w", id, err)
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("store update job %s: %w", id, err)
	}

	if job.Status == model.StatusApplied && prevStatus != model.StatusApplied && job.ApplicationDate == "" {
		job.ApplicationDate = model.DateOf(s.now())
	}
	job.SetNotes(job.Notes)

	if err := s.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetDailyStats returns today's counter, rolling to a fresh zeroed record
// when the stored date is not today.
func (s *Store) GetDailyStats(ctx context.Context) (model.DailyStats, error) {
	today := model.DateOf(s.now())

	var stats model.DailyStats
	found, err := s.getRecord(ctx, KeyDailyStats, &stats)
	if err != nil {
		return model.DailyStats{}, err
	}
	if !found || stats.Date != today {
		return model.DailyStats{Date: today, JobsFetched: 0}, nil
	}
	return stats, nil
}

// IncrementDailyCount adds n to today's counter.
func (s *Store) IncrementDailyCount(ctx context.Context, n int) error {
	stats, err := s.GetDailyStats(ctx)
	if err != nil {
		return err
	}
	stats.JobsFetched += n
	return s.setRecord(ctx, KeyDailyStats, stats)
}

func (s *Store) GetBatchProgress(ctx context.Context) (model.BatchProgress, error) {
	var progress model.BatchProgress
	if _, err := s.getRecord(ctx, KeyBatchProgress, &progress); err != nil {
		return model.BatchProgress{}, err
	}
	return progress, nil
}

func (s *Store) SetBatchProgress(ctx context.Context, progress model.BatchProgress) error {
	return s.setRecord(ctx, KeyBatchProgress, progress)
}

// ClearBatchProgress resets the checkpoint so a completed or abandoned run
// cannot trigger another recovery attempt.
func (s *Store) ClearBatchProgress(ctx context.Context) error {
	return s.setRecord(ctx, KeyBatchProgress, model.BatchProgress{})
}

func (s *Store) GetFetchHistory(ctx context.Context) ([]model.FetchHistoryEntry, error) {
	var history []model.FetchHistoryEntry
	if _, err := s.getRecord(ctx, KeyFetchHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// AddFetchHistoryEntry appends a run record, keeping only the most recent
// model.FetchHistoryLimit entries.
func (s *Store) AddFetchHistoryEntry(ctx context.Context, entry model.FetchHistoryEntry) error {
	history, err := s.GetFetchHistory(ctx)
	if err != nil {
		return err
	}

	history = append(history, entry)
	if len(history) > model.FetchHistoryLimit {
		history = history[len(history)-model.FetchHistoryLimit:]
	}
	return s.setRecord(ctx, KeyFetchHistory, history)
}

func (s *Store) GetAdaptiveMetrics(ctx context.Context) (model.AdaptiveMetrics, error) {
	var metrics model.AdaptiveMetrics
	if _, err := s.getRecord(ctx, KeyAdaptiveMetrics, &metrics); err != nil {
		return model.AdaptiveMetrics{}, err
	}
	return metrics, nil
}

func (s *Store) SetAdaptiveMetrics(ctx context.Context, metrics model.AdaptiveMetrics) error {
	return s.setRecord(ctx, KeyAdaptiveMetrics, metrics)
}

// GetResume returns the stored resume or nil when none is uploaded.
func (s *Store) GetResume(ctx context.Context) (*model.Resume, error) {
	var resume model.Resume
	found, err := s.getRecord(ctx, KeyResume, &resume)
	if err != nil || !found {
		return nil, err
	}
	return &resume, nil
}

func (s *Store) SetResume(ctx context.Context, resume *model.Resume) error {
	return s.setRecord(ctx, KeyResume, resume)
}

func (s *Store) GetSettings(ctx context.Context) (model.Settings, error) {
	settings := model.DefaultSettings()
	if _, err := s.getRecord(ctx, KeySettings, &settings); err != nil {
		return model.Settings{}, err
	}
	return settings, nil
}

func (s *Store) SetSettings(ctx context.Context, settings model.Settings) error {
	return s.setRecord(ctx, KeySettings, settings)
}

func (s *Store) GetAPIKeys(ctx context.Context) (model.APIKeys, error) {
	var keys model.APIKeys
	if _, err := s.getRecord(ctx, KeyAPIKeys, &keys); err != nil {
		return model.APIKeys{}, err
	}
	return keys, nil
}

func (s *Store) SetAPIKeys(ctx context.Context, keys model.APIKeys) error {
	return s.setRecord(ctx, KeyAPIKeys, keys)
}

func (s *Store) GetOnboarding(ctx context.Context) (model.Onboarding, error) {
	var onboarding model.Onboarding
	if _, err := s.getRecord(ctx, KeyOnboarding, &onboarding); err != nil {
		return model.Onboarding{}, err
	}
	return onboarding, nil
}

func (s *Store) SetOnboarding(ctx context.Context, onboarding model.Onboarding) error {
	return s.setRecord(ctx, KeyOnboarding, onboarding)
}
