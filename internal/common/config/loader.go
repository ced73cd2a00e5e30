// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"insight-workflows/internal/common/validation"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like REASONING_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay (config.<env>.yaml), merged if present.
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env from a few likely locations so tools and tests can
// run from nested directories.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from well-known env vars when the yaml
// left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Reasoning.APIKey == "" {
		if val := os.Getenv("REASONING_API_KEY"); val != "" {
			cfg.Reasoning.APIKey = val
		}
	}
	if cfg.Reasoning.APIKey == "" {
		if val := os.Getenv("GEMINI_API_KEY"); val != "" {
			cfg.Reasoning.APIKey = val
		}
	}

	if cfg.Registry.APIKey == "" {
		if val := os.Getenv("REGISTRY_API_KEY"); val != "" {
			cfg.Registry.APIKey = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}
	if cfg.Server.MaxStatusWait == 0 {
		cfg.Server.MaxStatusWait = 30000
	}

	// Stage budgets: scans are short, the reasoning-heavy stages get more.
	if cfg.Stages.SituationScan.Timeout == 0 {
		cfg.Stages.SituationScan.Timeout = 30000
	}
	if cfg.Stages.DeepAnalysis.Timeout == 0 {
		cfg.Stages.DeepAnalysis.Timeout = 60000
	}
	if cfg.Stages.SolutionFinding.Timeout == 0 {
		cfg.Stages.SolutionFinding.Timeout = 120000
	}

	if cfg.JobStore.Backend == "" {
		cfg.JobStore.Backend = "memory"
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.DataQuery.Backend == "" {
		cfg.DataQuery.Backend = "postgres"
	}
	if cfg.DataQuery.TimestampColumn == "" {
		cfg.DataQuery.TimestampColumn = "event_time"
	}
	if cfg.DataQuery.Timeout == 0 {
		cfg.DataQuery.Timeout = 15000
	}

	if cfg.Registry.Timeout == 0 {
		cfg.Registry.Timeout = 10000
	}

	if cfg.Reasoning.Provider == "" {
		cfg.Reasoning.Provider = "http"
	}
	if cfg.Reasoning.Model == "" {
		cfg.Reasoning.Model = "gemini-2.0-flash"
	}
	if cfg.Reasoning.Timeout == 0 {
		cfg.Reasoning.Timeout = 45000
	}
	if cfg.Reasoning.MaxRetries == 0 {
		cfg.Reasoning.MaxRetries = 2
	}
	if cfg.Reasoning.MaxTokens == 0 {
		cfg.Reasoning.MaxTokens = 2048
	}
	if cfg.Reasoning.Temperature == 0 {
		cfg.Reasoning.Temperature = 0.4
	}

	if cfg.Analysis.MaxDimensions == 0 {
		cfg.Analysis.MaxDimensions = 15
	}
	if cfg.Analysis.TopN == 0 {
		cfg.Analysis.TopN = 5
	}
	if len(cfg.Analysis.ExcludedKeys) == 0 {
		cfg.Analysis.ExcludedKeys = []string{
			"", "unknown", "unassigned", "n/a", "none", "null",
			"not assigned", "#", "other (unspecified)",
		}
	}

	if cfg.Debate.ImpactWeight == 0 && cfg.Debate.CostWeight == 0 && cfg.Debate.RiskWeight == 0 {
		cfg.Debate.ImpactWeight = 0.5
		cfg.Debate.CostWeight = 0.25
		cfg.Debate.RiskWeight = 0.25
	}

	if cfg.Situations.CriticalPct == 0 {
		cfg.Situations.CriticalPct = 25
	}
	if cfg.Situations.HighPct == 0 {
		cfg.Situations.HighPct = 15
	}
	if cfg.Situations.MediumPct == 0 {
		cfg.Situations.MediumPct = 8
	}
	if cfg.Situations.DefaultSnooze == 0 {
		cfg.Situations.DefaultSnooze = int((24 * time.Hour).Milliseconds())
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Registry.BaseURL == "" {
		return fmt.Errorf("registry.base_url is required")
	}
	if !validation.ValidateURL(cfg.Registry.BaseURL) {
		return fmt.Errorf("registry.base_url is not a valid URL")
	}

	switch cfg.JobStore.Backend {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis job store")
		}
	default:
		return fmt.Errorf("job_store.backend must be memory or redis, got %q", cfg.JobStore.Backend)
	}

	switch cfg.DataQuery.Backend {
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "elasticsearch":
		if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL == "" {
			return fmt.Errorf("database.elasticsearch.addresses or url is required")
		}
	default:
		return fmt.Errorf("data_query.backend must be postgres or elasticsearch, got %q", cfg.DataQuery.Backend)
	}

	switch cfg.Reasoning.Provider {
	case "http":
		if cfg.Reasoning.BaseURL == "" {
			return fmt.Errorf("reasoning.base_url is required for the http provider")
		}
	case "gemini":
		if cfg.Reasoning.APIKey == "" {
			return fmt.Errorf("reasoning.api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("reasoning.provider must be http or gemini, got %q", cfg.Reasoning.Provider)
	}

	if w := cfg.Debate.ImpactWeight + cfg.Debate.CostWeight + cfg.Debate.RiskWeight; w <= 0 {
		return fmt.Errorf("debate score weights must sum to a positive value")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
