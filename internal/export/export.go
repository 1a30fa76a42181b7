// Package export renders stored jobs as RFC 4180 CSV for use in
// spreadsheets and external trackers.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobdigest/internal/model"
)

// columns is the explicit export whitelist. Order is the column order in the
// file; internal fields like the raw description stay out of the export.
var columns = []string{
	"jobId",
	"title",
	"company",
	"location",
	"url",
	"source",
	"postedAt",
	"fetchedAt",
	"score",
	"scoreReasoning",
	"status",
	"applicationDate",
	"notes",
	"dismissed",
	"coverLetter",
	"coverLetterGenerated",
	"coverLetterEdited",
	"recruiterMessage",
	"recruiterMessageGenerated",
	"recruiterMessageEdited",
}

type jobLister interface {
	GetJobs(ctx context.Context) (map[string]*model.Job, error)
}

// Exporter reads jobs from the store and writes them as CSV.
type Exporter struct {
	store  jobLister
	logger *zap.Logger
}

func New(store jobLister, logger *zap.Logger) *Exporter {
	return &Exporter{store: store, logger: logger}
}

// ExportAll writes every non-dismissed job that is not in the passed status.
// Returns the number of exported rows.
func (e *Exporter) ExportAll(ctx context.Context, w io.Writer) (int, error) {
	all, err := e.store.GetJobs(ctx)
	if err != nil {
		return 0, err
	}

	jobs := make([]*model.Job, 0, len(all))
	for _, job := range all {
		if job.Dismissed || job.Status == model.StatusPassed {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	if err := WriteCSV(w, jobs); err != nil {
		return 0, err
	}
	e.logger.Info("jobs exported",
		zap.Int("rows", len(jobs)),
		zap.Int("skipped", len(all)-len(jobs)),
	)
	return len(jobs), nil
}

// Filename builds the default export file name for a given day.
func Filename(now time.Time) string {
	return fmt.Sprintf("jobdigest-export-%s.csv", model.DateOf(now))
}

// WriteCSV renders jobs in column order with a UTF-8 BOM for spreadsheet
// compatibility. Fails when there is nothing to export.
func WriteCSV(w io.Writer, jobs []*model.Job) error {
	if len(jobs) == 0 {
		return fmt.Errorf("no jobs to export")
	}

	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, job := range jobs {
		if err := cw.Write(row(job)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(job *model.Job) []string {
	score, reasoning := "", ""
	if job.Score != nil {
		reasoning = job.Score.Reasoning
		if !job.Score.Failed {
			score = strconv.Itoa(job.Score.Value)
		}
	}

	cover := job.Generated[model.ContentCoverLetter]
	recruiter := job.Generated[model.ContentRecruiterMessage]

	fields := []string{
		job.ID,
		job.Title,
		job.Company,
		job.Location,
		job.URL,
		string(job.Source),
		job.PostedAt,
		formatTime(job.FetchedAt),
		score,
		reasoning,
		string(job.Status),
		job.ApplicationDate,
		job.Notes,
		yesNo(job.Dismissed),
		contentText(cover),
		contentTime(cover),
		contentEdited(cover),
		contentText(recruiter),
		contentTime(recruiter),
		contentEdited(recruiter),
	}
	for i, f := range fields {
		fields[i] = sanitizeField(f)
	}
	return fields
}

// sanitizeField neuters spreadsheet formula injection. Cells starting with
// =, +, - or @ get a leading single quote so Excel treats them as text.
func sanitizeField(s string) string {
	if strings.HasPrefix(s, "=") || strings.HasPrefix(s, "+") ||
		strings.HasPrefix(s, "-") || strings.HasPrefix(s, "@") {
		return "'" + s
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func contentText(c *model.GeneratedContent) string {
	if c == nil {
		return ""
	}
	return c.Content
}

func contentTime(c *model.GeneratedContent) string {
	if c == nil {
		return ""
	}
	return formatTime(c.GeneratedAt)
}

func contentEdited(c *model.GeneratedContent) string {
	if c == nil {
		return "No"
	}
	return yesNo(c.IsEdited)
}
