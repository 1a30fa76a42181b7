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
	adzunaAPIURL   = "https://api.adzuna.com/v1/api/jobs/us/search"
	adzunaPageSize = 50
	adzunaTimeout  = 15 * time.Second
)

// Adzuna fetches listings from the Adzuna public API. APIURL and HTTPClient
// are exported so tests can point the adapter at a local server.
type Adzuna struct {
	store  settingsReader
	logger *zap.Logger

	APIURL     string
	HTTPClient *http.Client
}

func NewAdzuna(store settingsReader, log *zap.Logger) *Adzuna {
	return &Adzuna{
		store:      store,
		logger:     logger.WithSource(log, string(model.SourceAdzuna)),
		APIURL:     adzunaAPIURL,
		HTTPClient: &http.Client{Timeout: adzunaTimeout},
	}
}

func (a *Adzuna) Name() model.Source {
	return model.SourceAdzuna
}

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
}

type adzunaResult struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Company   struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	Description       string          `json:"description"`
	SalaryMin         float64         `json:"salary_min"`
	SalaryMax         float64         `json:"salary_max"`
	SalaryIsPredicted json.RawMessage `json:"salary_is_predicted"`
	RedirectURL       string          `json:"redirect_url"`
	Created           string          `json:"created"`
	ContractType      string          `json:"contract_type"`
}

// Fetch retrieves up to count jobs, paging at 50 per page and stopping early
// on an empty page. Missing credentials fail fast and are never retried.
func (a *Adzuna) Fetch(ctx context.Context, count int, params *SearchParams) ([]*model.Job, error) {
	keys, err := a.store.GetAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	if keys.Adzuna.AppID == "" || keys.Adzuna.AppKey == "" {
		return nil, apierr.NotConfigured("adzuna", "Adzuna API keys not configured")
	}

	settings, err := a.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	query := resolveQuery(params, settings, "software engineer")
	location := settings.Location
	salaryMin := settings.SalaryMin
	if params != nil {
		if params.Location != nil {
			location = *params.Location
		}
		if params.SalaryMin != nil {
			salaryMin = params.SalaryMin
		}
	}

	startPage := 1
	if params != nil && params.Page > 1 {
		startPage = params.Page
	}
	numPages := (count + adzunaPageSize - 1) / adzunaPageSize

	var jobs []*model.Job
	for page := startPage; page < startPage+numPages; page++ {
		batch, err := a.fetchPage(ctx, keys.Adzuna, page, count, query, location, salaryMin)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		jobs = append(jobs, batch...)
		if len(jobs) >= count {
			break
		}
	}

	if len(jobs) > count {
		jobs = jobs[:count]
	}

	a.logger.Info("fetched jobs", zap.Int("count", len(jobs)))
	return jobs, nil
}

func (a *Adzuna) fetchPage(ctx context.Context, keys model.AdzunaKeys, page, count int, query, location string, salaryMin *int) ([]*model.Job, error) {
	q := url.Values{}
	q.Set("app_id", keys.AppID)
	q.Set("app_key", keys.AppKey)
	q.Set("results_per_page", strconv.Itoa(min(count, adzunaPageSize)))
	q.Set("what", query)
	q.Set("content-type", "application/json")
	q.Set("sort_by", "date")
	if location != "" {
		q.Set("where", location)
	}
	if salaryMin != nil {
		q.Set("salary_min", strconv.Itoa(*salaryMin))
	}

	reqURL := fmt.Sprintf("%s/%d?%s", a.APIURL, page, q.Encode())

	resp, err := apierr.Do(ctx, func(ctx context.Context) (*adzunaResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		res, err := a.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			return nil, apierr.FromResponse(res, "adzuna")
		}

		var payload adzunaResponse
		if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode adzuna response: %w", err)
		}
		return &payload, nil
	}, apierr.Options{Observer: retryObserver(a.logger, "adzuna")})
	if err != nil {
		return nil, err
	}

	jobs := make([]*model.Job, 0, len(resp.Results))
	now := time.Now().UTC()
	for _, r := range resp.Results {
		jobs = append(jobs, a.normalize(r, now))
	}
	return jobs, nil
}

func (a *Adzuna) normalize(r adzunaResult, fetchedAt time.Time) *model.Job {
	company := r.Company.DisplayName
	if company == "" {
		company = "Unknown"
	}

	var salaryMin, salaryMax *int
	if r.SalaryMin > 0 {
		salaryMin = intPtr(int(r.SalaryMin))
	}
	if r.SalaryMax > 0 {
		salaryMax = intPtr(int(r.SalaryMax))
	}

	return &model.Job{
		ID:       model.JobID(model.SourceAdzuna, r.ID),
		Source:   model.SourceAdzuna,
		Title:    r.Title,
		Company:  company,
		Location: r.Location.DisplayName,
		Salary: model.Salary{
			Min:       salaryMin,
			Max:       salaryMax,
			Predicted: adzunaPredicted(r.SalaryIsPredicted),
		},
		Description:  r.Description,
		URL:          r.RedirectURL,
		PostedAt:     r.Created,
		ContractType: r.ContractType,
		FetchedAt:    fetchedAt,
		Status:       model.StatusNew,
	}
}

// adzunaPredicted handles the API returning salary_is_predicted as either
// the string "1"/"0" or a bare number.
func adzunaPredicted(raw json.RawMessage) bool {
	s := string(raw)
	return s == `"1"` || s == "1" || s == "true"
}

// TestConnection issues a one-result probe to validate the configured keys.
func (a *Adzuna) TestConnection(ctx context.Context) error {
	keys, err := a.store.GetAPIKeys(ctx)
	if err != nil {
		return err
	}
	if keys.Adzuna.AppID == "" || keys.Adzuna.AppKey == "" {
		return apierr.NotConfigured("adzuna", "Adzuna API keys not configured")
	}

	_, err = a.fetchPage(ctx, keys.Adzuna, 1, 1, "software engineer", "", nil)
	return err
}
