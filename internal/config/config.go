package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverDuckDB   = "duckdb"

	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Database      DatabaseConfig
	Model         ModelConfig
	Eval          EvalConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type DatabaseConfig struct {
	Driver   string
	DSN      string
	User     string
	Password string
	Host     string
	Port     int
	Name     string
	// QueryTimeout of zero leaves statements unbounded.
	QueryTimeout time.Duration
}

// ModelConfig describes the pretrained translation model. TopK, TopP and
// NumberOfOutputs are carried for reference only: decoding is greedy and
// always requests a single sequence.
type ModelConfig struct {
	Provider        string
	Name            string
	BaseURL         string
	APIKey          string
	NumberOfOutputs int
	MaxLength       int
	TopK            int
	TopP            float64
	Timeout         time.Duration
}

type EvalConfig struct {
	DevDatasetPath string
	ExamplesPath   string
	OutputDir      string
	ParquetEnabled bool
}

type ObservabilityConfig struct {
	LogLevel        slog.Level
	LogJSON         bool
	MetricsTextfile string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("NLSQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid NLSQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "NLSQL_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "NLSQL_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "NLSQL_DB_DSN", &cfg.Database.DSN) },
		func() error { return applyString(lookup, "NLSQL_DB_USER", &cfg.Database.User) },
		func() error { return applyRawString(lookup, "NLSQL_DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "NLSQL_DB_HOST", &cfg.Database.Host) },
		func() error { return applyInt(lookup, "NLSQL_DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "NLSQL_DB_NAME", &cfg.Database.Name) },
		func() error { return applyDuration(lookup, "NLSQL_DB_QUERY_TIMEOUT", &cfg.Database.QueryTimeout) },
		func() error { return applyString(lookup, "NLSQL_MODEL_PROVIDER", &cfg.Model.Provider) },
		func() error { return applyString(lookup, "NLSQL_MODEL_NAME", &cfg.Model.Name) },
		func() error { return applyString(lookup, "NLSQL_MODEL_BASE_URL", &cfg.Model.BaseURL) },
		func() error { return applyString(lookup, "NLSQL_MODEL_API_KEY", &cfg.Model.APIKey) },
		func() error { return applyInt(lookup, "NLSQL_MODEL_NUMBER_OF_OUTPUTS", &cfg.Model.NumberOfOutputs) },
		func() error { return applyInt(lookup, "NLSQL_MODEL_MAX_LENGTH", &cfg.Model.MaxLength) },
		func() error { return applyInt(lookup, "NLSQL_MODEL_TOP_K", &cfg.Model.TopK) },
		func() error { return applyFloat(lookup, "NLSQL_MODEL_TOP_P", &cfg.Model.TopP) },
		func() error { return applyDuration(lookup, "NLSQL_MODEL_TIMEOUT", &cfg.Model.Timeout) },
		func() error { return applyString(lookup, "NLSQL_EVAL_DEV_DATASET", &cfg.Eval.DevDatasetPath) },
		func() error { return applyString(lookup, "NLSQL_EVAL_EXAMPLES", &cfg.Eval.ExamplesPath) },
		func() error { return applyString(lookup, "NLSQL_EVAL_OUTPUT_DIR", &cfg.Eval.OutputDir) },
		func() error { return applyBool(lookup, "NLSQL_EVAL_PARQUET", &cfg.Eval.ParquetEnabled) },
		func() error { return applyBool(lookup, "NLSQL_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "NLSQL_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyString(lookup, "NLSQL_METRICS_TEXTFILE", &cfg.Observability.MetricsTextfile) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverDuckDB:
	default:
		return fmt.Errorf("invalid NLSQL_DB_DRIVER: %q", c.Database.Driver)
	}
	switch c.Model.Provider {
	case ProviderHuggingFace, ProviderOpenAI:
	default:
		return fmt.Errorf("invalid NLSQL_MODEL_PROVIDER: %q", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Model.MaxLength <= 0 {
		return fmt.Errorf("model max length must be > 0")
	}
	if c.Eval.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "nlsql"},
		Database: DatabaseConfig{
			Driver:   DriverMySQL,
			User:     "root",
			Password: "",
			Host:     "127.0.0.1",
			Port:     3306,
			Name:     "university_info",
		},
		Model: ModelConfig{
			Provider:        ProviderHuggingFace,
			Name:            "obada-jaras/PANL_SQL_v0.2",
			BaseURL:         "https://api-inference.huggingface.co",
			NumberOfOutputs: 3,
			MaxLength:       512,
			TopK:            120,
			TopP:            0.95,
			Timeout:         60 * time.Second,
		},
		Eval: EvalConfig{
			DevDatasetPath: "data/dev_dataset.json",
			ExamplesPath:   "data/simple_data_with_examples_and_variations.json",
			OutputDir:      "output",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyRawString keeps surrounding whitespace; passwords may legitimately carry it.
func applyRawString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = raw
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
