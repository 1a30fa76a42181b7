package cmd

import (
	"errors"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "jobdigest"

	defaultStorePath   = "jobdigest.db"
	defaultGeminiModel = "gemini-2.5-flash"
)

// Config is the file/flag configuration. Everything the user sets up
// interactively (search settings, resume, credentials) lives in the store;
// the config file only selects the store backend and optional key files.
type Config struct {
	Store  *StoreConfig  `mapstructure:"store"`
	Gemini *GeminiConfig `mapstructure:"gemini"`
	Keys   *KeysConfig   `mapstructure:"keys"`
}

type StoreConfig struct {
	// Backend is sqlite (default), redis or memory.
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	RedisURL string `mapstructure:"redis-url"`
}

type GeminiConfig struct {
	Model string `mapstructure:"model"`
}

// KeysConfig points at files holding upstream credentials. Environment
// variables (GEMINI_API_KEY, ADZUNA_APP_ID, ADZUNA_APP_KEY, JSEARCH_API_KEY)
// take precedence; both are synced into the store's api-keys record at
// startup.
type KeysConfig struct {
	GeminiFile  string `mapstructure:"gemini-file"`
	AdzunaFile  string `mapstructure:"adzuna-file"`
	JSearchFile string `mapstructure:"jsearch-file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobdigest fetches job listings daily, scores them against your resume and helps with outreach",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// A local .env is the easiest place for API keys during development.
	_ = godotenv.Load()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobdigest.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	viper.SetDefault("store.backend", "sqlite")
	viper.SetDefault("store.path", defaultStorePath)
	viper.SetDefault("gemini.model", defaultGeminiModel)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		// An explicitly requested config file must parse.
		if err := viper.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
		return
	}

	viper.AddConfigPath(".")
	viper.SetConfigName(app + ".yaml")

	// Without --config the file is optional; defaults cover everything.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		config = &Config{}
	}
	if config.Store == nil {
		config.Store = &StoreConfig{Backend: "sqlite", Path: defaultStorePath}
	}
	if config.Gemini == nil {
		config.Gemini = &GeminiConfig{Model: defaultGeminiModel}
	}
	if config.Keys == nil {
		config.Keys = &KeysConfig{}
	}
	return config, nil
}
