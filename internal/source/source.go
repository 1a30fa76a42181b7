// Package source normalizes the two upstream job-search APIs into the common
// Job shape. Adapters are pure transforms over network I/O: credentials and
// search preferences are read from the store per call, all HTTP goes through
// the retry layer, and nothing is persisted here.
package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"jobdigest/internal/apierr"
	"jobdigest/internal/model"
)

// SearchParams are per-call overrides. Nil pointer fields fall back to the
// persisted user settings; Page selects the starting page for remainder
// fetches (zero means first page).
type SearchParams struct {
	Query          string
	Location       *string
	SalaryMin      *int
	DatePosted     *string
	RemoteOnly     *bool
	EmploymentType *string
	Page           int
}

// Adapter fetches up to count normalized jobs from one upstream API.
type Adapter interface {
	Name() model.Source
	Fetch(ctx context.Context, count int, params *SearchParams) ([]*model.Job, error)
	// TestConnection issues a minimal one-result probe to validate
	// credentials and reachability.
	TestConnection(ctx context.Context) error
}

// settingsReader is the slice of the store the adapters consume.
type settingsReader interface {
	GetSettings(ctx context.Context) (model.Settings, error)
	GetAPIKeys(ctx context.Context) (model.APIKeys, error)
}

// retryObserver logs retry attempts without coupling the retry core to zap.
func retryObserver(logger *zap.Logger, service string) apierr.Observer {
	return apierr.ObserverFunc(func(attempt int, delay time.Duration, err error) {
		logger.Warn("retrying request",
			zap.String("service", service),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	})
}

// resolveQuery applies the override-then-settings fallback for the search
// text.
func resolveQuery(params *SearchParams, settings model.Settings, fallback string) string {
	if params != nil && params.Query != "" {
		return params.Query
	}
	if len(settings.SearchKeywords) > 0 {
		return joinKeywords(settings.SearchKeywords)
	}
	return fallback
}

func joinKeywords(keywords []string) string {
	out := ""
	for i, kw := range keywords {
		if i > 0 {
			out += " "
		}
		out += kw
	}
	return out
}

func intPtr(v int) *int { return &v }
