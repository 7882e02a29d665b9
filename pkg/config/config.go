package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the contract planner.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (database password) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Database configuration for snapshot persistence (PostgreSQL).
	// Optional: when Persist is false the snapshot store is memory-only.
	Database DatabaseConfig `yaml:"database"`

	// Planner behaviour knobs.
	Planner PlannerConfig `yaml:"planner"`

	// Feedback loop configuration.
	Feedback FeedbackConfig `yaml:"feedback"`
}

// DatabaseConfig holds PostgreSQL configuration for the snapshot store.
type DatabaseConfig struct {
	Persist  bool   `yaml:"persist" env:"SNAPSHOT_PERSIST" env-default:"false"`
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"planner"`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"PGDATABASE" env-default:"contract_nlq"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConns int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
}

// URL builds the postgres connection string.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// PlannerConfig holds the deterministic planner's knobs. The rule tables
// (allow-list, aliases, synonyms, FTS columns) live in a separate YAML file
// referenced by RulesPath; compiled-in defaults apply when it is absent.
type PlannerConfig struct {
	// Table is the one business table this planner is tuned to.
	Table string `yaml:"table" env:"PLANNER_TABLE" env-default:"Contract"`

	// FTSEngine selects the full-text predicate style: "like" or "contains".
	// Unrecognized values silently fall back to "like".
	FTSEngine string `yaml:"fts_engine" env:"PLANNER_FTS_ENGINE" env-default:"like"`

	// ShortTokenLen is the token length at or below which whole-word
	// matching replaces substring matching.
	ShortTokenLen int `yaml:"short_token_len" env:"PLANNER_SHORT_TOKEN_LEN" env-default:"2"`

	// RulesPath points at an optional YAML override file for the rule
	// tables. Empty means defaults only.
	RulesPath string `yaml:"rules_path" env:"PLANNER_RULES_PATH" env-default:""`
}

// FeedbackConfig holds the corrective-loop knobs.
type FeedbackConfig struct {
	// RatingThreshold is the minimum rating that closes the loop.
	RatingThreshold int `yaml:"rating_threshold" env:"FEEDBACK_RATING_THRESHOLD" env-default:"3"`

	// SnapshotTTLMinutes is how long snapshots stay correctable.
	SnapshotTTLMinutes int `yaml:"snapshot_ttl_minutes" env:"SNAPSHOT_TTL_MINUTES" env-default:"1440"`

	// SnapshotCacheSize bounds the in-memory snapshot cache.
	SnapshotCacheSize int `yaml:"snapshot_cache_size" env:"SNAPSHOT_CACHE_SIZE" env-default:"512"`
}

// Load reads configuration from config.yaml (if present) and the environment.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Version = version
	return cfg, nil
}
