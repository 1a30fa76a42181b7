package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"jobdigest/internal/apierr"
	"jobdigest/internal/model"
)

func jsearchBody(ids ...string) string {
	results := make([]string, 0, len(ids))
	for _, id := range ids {
		results = append(results, fmt.Sprintf(`{
			"job_id": %q,
			"job_title": "Backend Engineer",
			"employer_name": "Initech",
			"job_city": "Denver",
			"job_state": "CO",
			"job_country": "US",
			"job_min_salary": 130000,
			"job_max_salary": 160000,
			"job_description": "Ship features",
			"job_apply_link": "https://example.com/apply/%s",
			"job_google_link": "https://google.com/%s",
			"job_posted_at_datetime_utc": "2026-03-11T00:00:00Z",
			"job_employment_type": "FULLTIME",
			"job_is_remote": true
		}`, id, id, id))
	}
	return `{"data":[` + strings.Join(results, ",") + `]}`
}

func TestJSearchFetchNormalizes(t *testing.T) {
	var gotQuery, gotKey, gotHost string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotKey = r.Header.Get("X-RapidAPI-Key")
		gotHost = r.Header.Get("X-RapidAPI-Host")
		fmt.Fprint(w, jsearchBody("abc"))
	}))
	defer server.Close()

	adapter := NewJSearch(&stubSettings{
		keys: model.APIKeys{JSearch: "rapid-key"},
		settings: model.Settings{
			SearchKeywords: []string{"golang", "backend"},
			Location:       "Denver",
		},
	}, zap.NewNop())
	adapter.APIURL = server.URL

	jobs, err := adapter.Fetch(context.Background(), 5, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotQuery != "golang backend in Denver" {
		t.Fatalf("unexpected query: %q", gotQuery)
	}
	if gotKey != "rapid-key" || gotHost != "jsearch.p.rapidapi.com" {
		t.Fatalf("unexpected auth headers: %q / %q", gotKey, gotHost)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	job := jobs[0]
	if job.ID != "jsearch-abc" {
		t.Fatalf("unexpected id: %q", job.ID)
	}
	if job.Source != model.SourceJSearch {
		t.Fatalf("unexpected source: %q", job.Source)
	}
	if job.Location != "Denver, CO" {
		t.Fatalf("unexpected location: %q", job.Location)
	}
	if job.URL != "https://example.com/apply/abc" {
		t.Fatalf("unexpected url: %q", job.URL)
	}
	if !job.IsRemote || job.EmploymentType != "FULLTIME" {
		t.Fatalf("unexpected remote/type: %v / %q", job.IsRemote, job.EmploymentType)
	}
	if job.Salary.Min == nil || *job.Salary.Min != 130000 {
		t.Fatalf("unexpected salary: %+v", job.Salary)
	}
	if !job.Unscored() || job.Status != model.StatusNew {
		t.Fatalf("freshly fetched job must be unscored and new")
	}
}

func TestJSearchFetchCountryFallbackLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"job_id":"x","job_title":"Dev","employer_name":"","job_country":"US","job_google_link":"g"}]}`)
	}))
	defer server.Close()

	adapter := NewJSearch(&stubSettings{keys: model.APIKeys{JSearch: "k"}}, zap.NewNop())
	adapter.APIURL = server.URL

	jobs, err := adapter.Fetch(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if jobs[0].Location != "US" {
		t.Fatalf("expected country fallback, got %q", jobs[0].Location)
	}
	if jobs[0].Company != "Unknown" {
		t.Fatalf("expected company default, got %q", jobs[0].Company)
	}
	if jobs[0].URL != "g" {
		t.Fatalf("expected google link fallback, got %q", jobs[0].URL)
	}
}

func TestJSearchFetchTruncatesToCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, jsearchBody("1", "2", "3", "4"))
	}))
	defer server.Close()

	adapter := NewJSearch(&stubSettings{keys: model.APIKeys{JSearch: "k"}}, zap.NewNop())
	adapter.APIURL = server.URL

	jobs, err := adapter.Fetch(context.Background(), 2, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected exactly 2 jobs, got %d", len(jobs))
	}
}

func TestJSearchFetchFilterParams(t *testing.T) {
	var q string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q = r.URL.RawQuery
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	adapter := NewJSearch(&stubSettings{
		keys: model.APIKeys{JSearch: "k"},
		settings: model.Settings{
			DatePosted:     "all",
			RemoteOnly:     true,
			EmploymentType: "FULLTIME",
		},
	}, zap.NewNop())
	adapter.APIURL = server.URL

	week := "week"
	if _, err := adapter.Fetch(context.Background(), 25, &SearchParams{DatePosted: &week}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(q, "date_posted=week") {
		t.Errorf("override date_posted missing from %q", q)
	}
	if !strings.Contains(q, "remote_jobs_only=true") {
		t.Errorf("remote filter missing from %q", q)
	}
	if !strings.Contains(q, "num_pages=3") {
		t.Errorf("expected 3 pages for 25 jobs, got %q", q)
	}
}

func TestJSearchFetchSkipsDatePostedAll(t *testing.T) {
	var q string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q = r.URL.RawQuery
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	adapter := NewJSearch(&stubSettings{
		keys:     model.APIKeys{JSearch: "k"},
		settings: model.Settings{DatePosted: "all"},
	}, zap.NewNop())
	adapter.APIURL = server.URL

	if _, err := adapter.Fetch(context.Background(), 10, nil); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if strings.Contains(q, "date_posted") {
		t.Fatalf("date_posted=all must be omitted, got %q", q)
	}
}

func TestJSearchFetchFailsFastWithoutKey(t *testing.T) {
	adapter := NewJSearch(&stubSettings{}, zap.NewNop())

	_, err := adapter.Fetch(context.Background(), 10, nil)
	var apiErr *apierr.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Retryable || apiErr.Service != "jsearch" {
		t.Fatalf("unexpected error shape: %+v", apiErr)
	}
}
