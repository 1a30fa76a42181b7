package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"jobdigest/internal/allocation"
	"jobdigest/internal/keepalive"
	"jobdigest/internal/logger"
	"jobdigest/internal/pipeline"
	"jobdigest/internal/scoring"
	"jobdigest/internal/scoring/gemini"
	"jobdigest/internal/secrets"
	"jobdigest/internal/source"
	"jobdigest/internal/store"
)

// application bundles the pieces every command needs: logger, config and an
// opened store.
type application struct {
	config *Config
	logger *zap.Logger
	store  *store.Store
}

func newApplication(ctx context.Context) (*application, error) {
	zl, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}

	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	backend, err := openBackend(ctx, config.Store)
	if err != nil {
		return nil, err
	}
	st := store.New(backend)

	appl := &application{config: config, logger: zl, store: st}
	if err := appl.syncAPIKeys(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return appl, nil
}

func (a *application) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func openBackend(ctx context.Context, cfg *StoreConfig) (store.Backend, error) {
	switch cfg.Backend {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = defaultStorePath
		}
		return store.OpenSQLite(path)
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("store.redis-url is required for the redis backend")
		}
		return store.OpenRedis(ctx, cfg.RedisURL)
	case "memory":
		return store.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// syncAPIKeys folds credentials from the environment and configured key files
// into the store's api-keys record. Values already set through the setup
// wizard are kept unless the environment or a key file provides a new one.
func (a *application) syncAPIKeys(ctx context.Context) error {
	keys, err := a.store.GetAPIKeys(ctx)
	if err != nil {
		return err
	}

	sources := []struct {
		dst *string
		src secrets.Source
	}{
		{&keys.Gemini, secrets.Source{Name: "gemini api key", Env: "GEMINI_API_KEY", File: a.config.Keys.GeminiFile}},
		{&keys.Adzuna.AppID, secrets.Source{Name: "adzuna app id", Env: "ADZUNA_APP_ID"}},
		{&keys.Adzuna.AppKey, secrets.Source{Name: "adzuna app key", Env: "ADZUNA_APP_KEY", File: a.config.Keys.AdzunaFile}},
		{&keys.JSearch, secrets.Source{Name: "jsearch api key", Env: "JSEARCH_API_KEY", File: a.config.Keys.JSearchFile}},
	}

	changed := false
	for _, s := range sources {
		value, err := secrets.LoadOptional(s.src)
		if err != nil {
			return err
		}
		if value != "" && value != *s.dst {
			*s.dst = value
			changed = true
		}
	}

	if !changed {
		return nil
	}
	return a.store.SetAPIKeys(ctx, keys)
}

// newScoringRunner wires the Gemini scorer when a key is available. Without a
// key the runner still works and reports the no_api_key status before the
// scorer would ever be called.
func (a *application) newScoringRunner(ctx context.Context) (*scoring.Runner, error) {
	keys, err := a.store.GetAPIKeys(ctx)
	if err != nil {
		return nil, err
	}

	var sc scoring.Scorer
	if keys.Gemini != "" {
		gen, err := gemini.NewGenerator(ctx, keys.Gemini, a.config.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("building gemini client: %w", err)
		}
		sc = gemini.NewScorer(gen, logger.WithCommonFields(a.logger, "gemini", gen.Model()))
	}

	return scoring.NewRunner(a.store, sc, a.logger), nil
}

// newPipeline assembles the full fetch pipeline. The keepalive keeper pings
// the store as its primary liveness signal and emits a heartbeat log line as
// the backup one.
func (a *application) newPipeline(ctx context.Context) (*pipeline.Runner, error) {
	scorer, err := a.newScoringRunner(ctx)
	if err != nil {
		return nil, err
	}

	primary := func(ctx context.Context) {
		if _, err := a.store.GetDailyStats(ctx); err != nil {
			a.logger.Warn("keepalive store ping failed", zap.Error(err))
		}
	}
	backup := func(context.Context) {
		a.logger.Debug("keepalive heartbeat")
	}
	keeper := keepalive.New(a.logger, primary, backup)

	return pipeline.NewRunner(
		a.store,
		source.NewAdzuna(a.store, logger.WithSource(a.logger, "adzuna")),
		source.NewJSearch(a.store, logger.WithSource(a.logger, "jsearch")),
		allocation.NewEngine(a.store, a.logger),
		scorer,
		keeper,
		a.logger,
	), nil
}

// newContentGenerator builds the outreach text generator. Unlike scoring, a
// missing Gemini key is a hard error here since there is nothing useful to do
// without it.
func (a *application) newContentGenerator(ctx context.Context) (*gemini.Generator, error) {
	keys, err := a.store.GetAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	if keys.Gemini == "" {
		return nil, fmt.Errorf("gemini api key is not configured, run %s setup or set GEMINI_API_KEY", app)
	}
	gen, err := gemini.NewGenerator(ctx, keys.Gemini, a.config.Gemini.Model)
	if err != nil {
		return nil, fmt.Errorf("building gemini client: %w", err)
	}
	return gen, nil
}
