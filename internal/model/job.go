package model

import (
	"fmt"
	"time"
)

// Source identifies which upstream API a job came from.
type Source string

const (
	SourceAdzuna  Source = "adzuna"
	SourceJSearch Source = "jsearch"
)

// Status is the user-facing triage state of a job.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusApplied   Status = "applied"
	StatusPassed    Status = "passed"
)

// MaxNotesLen bounds the free-text notes field.
const MaxNotesLen = 2000

// HighValueScore is the threshold above which a job counts as high-value
// for the adaptive allocation metrics.
const HighValueScore = 80

type Salary struct {
	Min       *int `json:"min"`
	Max       *int `json:"max"`
	Predicted bool `json:"predicted"`
}

// ScoreDetails is the 5-dimension breakdown returned by the scoring model.
type ScoreDetails struct {
	SkillsMatch        int `json:"skills_match"`
	ExperienceLevel    int `json:"experience_level"`
	TechStackAlignment int `json:"tech_stack_alignment"`
	TitleRelevance     int `json:"title_relevance"`
	IndustryFit        int `json:"industry_fit"`
}

// Score records one scoring attempt. A nil *Score on a Job means scoring was
// never attempted; Failed=true means it was attempted and failed. This
// replaces the old null / -1 / 0-100 sentinel convention with an explicit
// variant.
type Score struct {
	Failed    bool          `json:"failed,omitempty"`
	Value     int           `json:"value"`
	Reasoning string        `json:"reasoning,omitempty"`
	Details   *ScoreDetails `json:"details,omitempty"`
	ScoredAt  time.Time     `json:"scored_at"`
}

type GeneratedContent struct {
	Content     string     `json:"content"`
	GeneratedAt time.Time  `json:"generated_at"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	IsEdited    bool       `json:"is_edited"`
}

// Generated content kinds stored under Job.Generated.
const (
	ContentCoverLetter      = "coverLetter"
	ContentRecruiterMessage = "recruiterMessage"
)

// Job is one normalized listing. ID is immutable once created and doubles as
// the dedup and storage key.
type Job struct {
	ID              string                       `json:"job_id"`
	Source          Source                       `json:"source"`
	Title           string                       `json:"title"`
	Company         string                       `json:"company"`
	Location        string                       `json:"location"`
	Salary          Salary                       `json:"salary"`
	Description     string                       `json:"description"`
	URL             string                       `json:"url"`
	PostedAt        string                       `json:"posted_at"`
	FetchedAt       time.Time                    `json:"fetched_at"`
	Status          Status                       `json:"status"`
	Dismissed       bool                         `json:"dismissed"`
	Score           *Score                       `json:"score,omitempty"`
	Notes           string                       `json:"notes,omitempty"`
	ApplicationDate string                       `json:"application_date,omitempty"`
	ContractType    string                       `json:"contract_type,omitempty"`
	EmploymentType  string                       `json:"employment_type,omitempty"`
	IsRemote        bool                         `json:"is_remote,omitempty"`
	Generated       map[string]*GeneratedContent `json:"generated,omitempty"`
}

// JobID builds the globally unique id for a native listing id. The format is
// stable so re-fetching the same listing always maps to the same key.
func JobID(source Source, nativeID string) string {
	return fmt.Sprintf("%s-%s", source, nativeID)
}

// Unscored reports whether scoring was never attempted for this job. Jobs with
// a failed attempt are deliberately not unscored: they are skipped by batch
// scoring until explicitly re-scored.
func (j *Job) Unscored() bool {
	return j.Score == nil
}

// Scored reports whether the job carries a successful score.
func (j *Job) Scored() bool {
	return j.Score != nil && !j.Score.Failed
}

// SetStatus applies a triage transition. Moving to applied stamps the
// application date if it is not already set.
func (j *Job) SetStatus(status Status, now time.Time) {
	j.Status = status
	if status == StatusApplied && j.ApplicationDate == "" {
		j.ApplicationDate = DateOf(now)
	}
}

// SetNotes stores notes, truncating to MaxNotesLen runes.
func (j *Job) SetNotes(notes string) {
	runes := []rune(notes)
	if len(runes) > MaxNotesLen {
		notes = string(runes[:MaxNotesLen])
	}
	j.Notes = notes
}

// DateOf formats a timestamp as a YYYY-MM-DD date string.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}
