// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Stages        StagesConfig        `mapstructure:"stages"`
	JobStore      JobStoreConfig      `mapstructure:"job_store"`
	Database      DatabaseConfig      `mapstructure:"database"`
	DataQuery     DataQueryConfig     `mapstructure:"data_query"`
	Registry      RegistryConfig      `mapstructure:"registry"`
	Reasoning     ReasoningConfig     `mapstructure:"reasoning"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Debate        DebateConfig        `mapstructure:"debate"`
	Situations    SituationsConfig    `mapstructure:"situations"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
	MaxStatusWait   int    `mapstructure:"max_status_wait"`  // milliseconds, cap on ?wait_ms
}

// StageConfig holds the core settings applicable to every stage type.
type StageConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Timeout int  `mapstructure:"timeout"` // milliseconds
}

// StagesConfig carries per-stage execution budgets. Deep analysis and
// solution finding tolerate longer timeouts than situation scans.
type StagesConfig struct {
	SituationScan   StageConfig `mapstructure:"situation_scan"`
	DeepAnalysis    StageConfig `mapstructure:"deep_analysis"`
	SolutionFinding StageConfig `mapstructure:"solution_finding"`
}

type JobStoreConfig struct {
	Backend      string `mapstructure:"backend"`       // memory | redis
	RetentionTTL int    `mapstructure:"retention_ttl"` // milliseconds, redis only; 0 = keep
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DataQueryConfig selects the warehouse backend the KT engine queries.
type DataQueryConfig struct {
	Backend         string `mapstructure:"backend"`          // postgres | elasticsearch
	TimestampColumn string `mapstructure:"timestamp_column"` // event-time column/field
	Timeout         int    `mapstructure:"timeout"`          // milliseconds
}

// RegistryConfig points at the external registry service (read-only lookups).
type RegistryConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// ReasoningConfig selects and tunes the reasoning-provider collaborator.
type ReasoningConfig struct {
	Provider    string  `mapstructure:"provider"` // http | gemini
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds, per sub-stage call
	MaxRetries  int     `mapstructure:"max_retries"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// AnalysisConfig tunes the KT root-cause engine.
type AnalysisConfig struct {
	MaxDimensions int      `mapstructure:"max_dimensions"`
	TopN          int      `mapstructure:"top_n"`
	ExcludedKeys  []string `mapstructure:"excluded_keys"`
}

// DebateConfig tunes the multi-persona debate engine.
type DebateConfig struct {
	ImpactWeight float64 `mapstructure:"impact_weight"`
	CostWeight   float64 `mapstructure:"cost_weight"`
	RiskWeight   float64 `mapstructure:"risk_weight"`
	RosterPath   string  `mapstructure:"roster_path"` // optional persona roster file
}

// SituationsConfig holds severity thresholds (absolute percent change) and
// the default snooze duration for the snooze action.
type SituationsConfig struct {
	CriticalPct   float64 `mapstructure:"critical_pct"`
	HighPct       float64 `mapstructure:"high_pct"`
	MediumPct     float64 `mapstructure:"medium_pct"`
	DefaultSnooze int     `mapstructure:"default_snooze"` // milliseconds
}

// NotificationConfig holds settings for the notify situation action.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled           bool   `mapstructure:"enabled"`
		SeverityThreshold string `mapstructure:"severity_threshold"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

type ObservabilityConfig struct {
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
