package model

import "time"

// DailyQuota is the hard ceiling on jobs fetched per calendar day across both
// sources.
const DailyQuota = 100

// Pipeline stage names persisted in BatchProgress checkpoints. The values are
// part of the stored format; renaming them would strand in-flight checkpoints.
const (
	StageBootstrapAdzuna  = "bootstrap-adzuna"
	StageBootstrapJSearch = "bootstrap-jsearch"
	StageAllocation       = "adaptive-allocation"
	StageRemainingFetch   = "remaining-fetch"
)

// DailyStats is a rolling single-day counter, not a ledger. The store rolls it
// to a zeroed record whenever the stored date differs from today.
type DailyStats struct {
	Date        string `json:"date"`
	JobsFetched int    `json:"jobs_fetched"`
}

// ScratchCounts carries partial-run data between checkpointed stages.
// The remaining allocations are pointers so a resumed run can tell "never
// computed" apart from "computed as zero".
type ScratchCounts struct {
	AdzunaBootstrap  int  `json:"adzuna_bootstrap,omitempty"`
	JSearchBootstrap int  `json:"jsearch_bootstrap,omitempty"`
	AdzunaRemaining  *int `json:"adzuna_remaining,omitempty"`
	JSearchRemaining *int `json:"jsearch_remaining,omitempty"`
}

// BatchProgress is the pipeline checkpoint. It is overwritten before each
// stage executes and cleared when a run completes or is abandoned.
type BatchProgress struct {
	InProgress   bool          `json:"in_progress"`
	Stage        string        `json:"stage,omitempty"`
	TotalBatches int           `json:"total_batches"`
	FetchedJobs  ScratchCounts `json:"fetched_jobs"`
}

// RunStatus classifies the outcome of one fetch run.
type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunSuccess    RunStatus = "success"
	RunPartial    RunStatus = "partial"
	RunFailed     RunStatus = "failed"
)

type ScoringSummary struct {
	Status string `json:"status"`
	Scored int    `json:"scored"`
	Failed int    `json:"failed"`
}

// FetchHistoryEntry is the append-only record of one run. The store keeps only
// the most recent entries (FetchHistoryLimit).
type FetchHistoryEntry struct {
	Date         string          `json:"date"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Status       RunStatus       `json:"status"`
	JobsFetched  int             `json:"jobs_fetched"`
	AdzunaCount  int             `json:"adzuna_count"`
	JSearchCount int             `json:"jsearch_count"`
	Errors       []string        `json:"errors,omitempty"`
	Manual       bool            `json:"manual"`
	Resumed      bool            `json:"resumed,omitempty"`
	Scoring      *ScoringSummary `json:"scoring,omitempty"`
}

// FetchHistoryLimit is the rolling retention for run history.
const FetchHistoryLimit = 7

// MetricsEntry is one run's quality sample for a single source.
type MetricsEntry struct {
	Date           string   `json:"date"`
	AvgScore       *float64 `json:"avg_score"`
	HighValueCount int      `json:"high_value_count"`
	JobCount       int      `json:"job_count"`
}

// MetricsWindow is the number of run entries retained per source.
const MetricsWindow = 7

type SourceMetrics struct {
	RecentWindow []MetricsEntry `json:"recent_window"`
}

// AdaptiveMetrics is the per-source quality history consumed by the
// allocation engine.
type AdaptiveMetrics struct {
	Adzuna          SourceMetrics `json:"adzuna"`
	JSearch         SourceMetrics `json:"jsearch"`
	LastCalibration *time.Time    `json:"last_calibration,omitempty"`
}

// Settings are the user's search preferences and schedule.
type Settings struct {
	FetchHour      int      `json:"fetch_hour" mapstructure:"fetch_hour"`
	FetchMinute    int      `json:"fetch_minute" mapstructure:"fetch_minute"`
	Timezone       string   `json:"timezone,omitempty"`
	SearchKeywords []string `json:"search_keywords" mapstructure:"search_keywords"`
	Location       string   `json:"location"`
	SalaryMin      *int     `json:"salary_min" mapstructure:"salary_min"`
	DatePosted     string   `json:"date_posted" mapstructure:"date_posted"`
	EmploymentType string   `json:"employment_type" mapstructure:"employment_type"`
	RemoteOnly     bool     `json:"remote_only" mapstructure:"remote_only"`
}

// DefaultSettings returns the settings used before the setup wizard runs.
func DefaultSettings() Settings {
	return Settings{
		FetchHour:      6,
		FetchMinute:    0,
		DatePosted:     "all",
		EmploymentType: "FULLTIME",
	}
}

type AdzunaKeys struct {
	AppID  string `json:"app_id"`
	AppKey string `json:"app_key"`
}

// APIKeys holds the three upstream credentials.
type APIKeys struct {
	Gemini  string     `json:"gemini"`
	Adzuna  AdzunaKeys `json:"adzuna"`
	JSearch string     `json:"jsearch"`
}

type Resume struct {
	Text       string    `json:"text"`
	FileName   string    `json:"file_name,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Onboarding struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
