package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"jobdigest/internal/apierr"
	"jobdigest/internal/logger"
	"jobdigest/internal/model"
)

const (
	jsearchAPIURL   = "https://jsearch.p.rapidapi.com/search"
	jsearchHost     = "jsearch.p.rapidapi.com"
	jsearchPageSize = 10
	jsearchTimeout  = 15 * time.Second
)

// JSearch fetches listings from the JSearch API on RapidAPI.
type JSearch struct {
	store  settingsReader
	logger *zap.Logger

	APIURL     string
	HTTPClient *http.Client
}

func NewJSearch(store settingsReader, log *zap.Logger) *JSearch {
	return &JSearch{
		store:      store,
		logger:     logger.WithSource(log, string(model.SourceJSearch)),
		APIURL:     jsearchAPIURL,
		HTTPClient: &http.Client{Timeout: jsearchTimeout},
	}
}

func (j *JSearch) Name() model.Source {
	return model.SourceJSearch
}

type jsearchResponse struct {
	Data []jsearchResult `json:"data"`
}

type jsearchResult struct {
	JobID               string  `json:"job_id"`
	JobTitle            string  `json:"job_title"`
	EmployerName        string  `json:"employer_name"`
	JobCity             string  `json:"job_city"`
	JobState            string  `json:"job_state"`
	JobCountry          string  `json:"job_country"`
	JobMinSalary        float64 `json:"job_min_salary"`
	JobMaxSalary        float64 `json:"job_max_salary"`
	JobDescription      string  `json:"job_description"`
	JobApplyLink        string  `json:"job_apply_link"`
	JobGoogleLink       string  `json:"job_google_link"`
	JobPostedAtDatetime string  `json:"job_posted_at_datetime_utc"`
	JobEmploymentType   string  `json:"job_employment_type"`
	JobIsRemote         bool    `json:"job_is_remote"`
}

// Fetch retrieves up to count jobs in a single multi-page request (the API
// pages at roughly 10 results and accepts a num_pages parameter).
func (j *JSearch) Fetch(ctx context.Context, count int, params *SearchParams) ([]*model.Job, error) {
	keys, err := j.store.GetAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	if keys.JSearch == "" {
		return nil, apierr.NotConfigured("jsearch", "JSearch API key not configured")
	}

	settings, err := j.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	query := j.buildQuery(params, settings)
	datePosted := settings.DatePosted
	remoteOnly := settings.RemoteOnly
	employmentType := settings.EmploymentType
	if params != nil {
		if params.DatePosted != nil {
			datePosted = *params.DatePosted
		}
		if params.RemoteOnly != nil {
			remoteOnly = *params.RemoteOnly
		}
		if params.EmploymentType != nil {
			employmentType = *params.EmploymentType
		}
	}

	page := 1
	if params != nil && params.Page > 1 {
		page = params.Page
	}
	numPages := (count + jsearchPageSize - 1) / jsearchPageSize

	q := url.Values{}
	q.Set("query", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("num_pages", strconv.Itoa(numPages))
	if datePosted != "" && datePosted != "all" {
		q.Set("date_posted", datePosted)
	}
	if remoteOnly {
		q.Set("remote_jobs_only", "true")
	}
	if employmentType != "" {
		q.Set("employment_types", employmentType)
	}

	resp, err := j.request(ctx, keys.JSearch, q)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	jobs := make([]*model.Job, 0, len(resp.Data))
	for _, r := range resp.Data {
		jobs = append(jobs, j.normalize(r, now))
		if len(jobs) == count {
			break
		}
	}

	j.logger.Info("fetched jobs", zap.Int("count", len(jobs)))
	return jobs, nil
}

// buildQuery folds the location into the query text the way the API expects
// ("keywords in location").
func (j *JSearch) buildQuery(params *SearchParams, settings model.Settings) string {
	if params != nil && params.Query != "" {
		return params.Query
	}

	query := "software engineer"
	if len(settings.SearchKeywords) > 0 {
		query = joinKeywords(settings.SearchKeywords)
		if settings.Location != "" {
			query += " in " + settings.Location
		}
	}
	return query
}

func (j *JSearch) request(ctx context.Context, apiKey string, q url.Values) (*jsearchResponse, error) {
	reqURL := j.APIURL + "?" + q.Encode()

	return apierr.Do(ctx, func(ctx context.Context) (*jsearchResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-RapidAPI-Key", apiKey)
		req.Header.Set("X-RapidAPI-Host", jsearchHost)

		res, err := j.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			return nil, apierr.FromResponse(res, "jsearch")
		}

		var payload jsearchResponse
		if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode jsearch response: %w", err)
		}
		return &payload, nil
	}, apierr.Options{Observer: retryObserver(j.logger, "jsearch")})
}

func (j *JSearch) normalize(r jsearchResult, fetchedAt time.Time) *model.Job {
	company := r.EmployerName
	if company == "" {
		company = "Unknown"
	}

	location := r.JobCountry
	if r.JobCity != "" && r.JobState != "" {
		location = r.JobCity + ", " + r.JobState
	}

	jobURL := r.JobApplyLink
	if jobURL == "" {
		jobURL = r.JobGoogleLink
	}

	var salaryMin, salaryMax *int
	if r.JobMinSalary > 0 {
		salaryMin = intPtr(int(r.JobMinSalary))
	}
	if r.JobMaxSalary > 0 {
		salaryMax = intPtr(int(r.JobMaxSalary))
	}

	return &model.Job{
		ID:       model.JobID(model.SourceJSearch, r.JobID),
		Source:   model.SourceJSearch,
		Title:    r.JobTitle,
		Company:  company,
		Location: location,
		Salary: model.Salary{
			Min: salaryMin,
			Max: salaryMax,
		},
		Description:    r.JobDescription,
		URL:            jobURL,
		PostedAt:       r.JobPostedAtDatetime,
		EmploymentType: r.JobEmploymentType,
		IsRemote:       r.JobIsRemote,
		FetchedAt:      fetchedAt,
		Status:         model.StatusNew,
	}
}

// TestConnection issues a one-result probe to validate the configured key.
func (j *JSearch) TestConnection(ctx context.Context) error {
	keys, err := j.store.GetAPIKeys(ctx)
	if err != nil {
		return err
	}
	if keys.JSearch == "" {
		return apierr.NotConfigured("jsearch", "JSearch API key not configured")
	}

	q := url.Values{}
	q.Set("query", "software engineer")
	q.Set("page", "1")
	q.Set("num_pages", "1")

	_, err = j.request(ctx, keys.JSearch, q)
	return err
}
