// Package config loads taskmesh settings from a YAML file and TASKMESH_*
// environment variables using viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TASKMESH_ENGINE_BUDGET.
const EnvPrefix = "TASKMESH"

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
	Tools  ToolsConfig  `mapstructure:"tools"`
}

// EngineConfig stores the compaction limits.
type EngineConfig struct {
	Budget        int `mapstructure:"budget"`         // characters per task history
	MaxRounds     int `mapstructure:"max_rounds"`     // summarisation rounds per pass
	ExcerptLength int `mapstructure:"excerpt_length"` // characters quoted per summarised turn
}

// StoreConfig selects the message store.
type StoreConfig struct {
	Backend   string        `mapstructure:"backend"` // "memory" or "sql"
	DSN       string        `mapstructure:"dsn"`     // libSQL DSN, e.g. file:taskmesh.db
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Backend   string `mapstructure:"backend"` // "slog", "zerolog" or "none"
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"` // "json" or "text"
	AddSource bool   `mapstructure:"add_source"`
}

// ToolsConfig stores settings of the built-in tools.
type ToolsConfig struct {
	FetchTimeout   time.Duration   `mapstructure:"fetch_timeout"`
	FetchMaxBytes  int64           `mapstructure:"fetch_max_bytes"`
	DraftProvider  string          `mapstructure:"draft_provider"` // "template", "openai" or "anthropic"
	DraftModel     string          `mapstructure:"draft_model"`
	Retrieval      RetrievalConfig `mapstructure:"retrieval"`
	ProposalAccept float64         `mapstructure:"proposal_accept"`
}

// RetrievalConfig tunes the retrieval index behind rag.*.
type RetrievalConfig struct {
	ChunkSize int      `mapstructure:"chunk_size"`
	Workers   int      `mapstructure:"workers"`
	Exclude   []string `mapstructure:"exclude"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Engine: EngineConfig{Budget: 8000, MaxRounds: 5, ExcerptLength: 120},
		Store:  StoreConfig{Backend: "memory", DSN: "file:taskmesh.db", OpTimeout: 5 * time.Second},
		Log:    LogConfig{Backend: "slog", Level: "info", Format: "json"},
		Tools: ToolsConfig{
			FetchTimeout:   15 * time.Second,
			FetchMaxBytes:  1 << 20,
			DraftProvider:  "template",
			Retrieval:      RetrievalConfig{ChunkSize: 800, Workers: 4, Exclude: []string{".*"}},
			ProposalAccept: 0.95,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("engine.budget", d.Engine.Budget)
	v.SetDefault("engine.max_rounds", d.Engine.MaxRounds)
	v.SetDefault("engine.excerpt_length", d.Engine.ExcerptLength)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.op_timeout", d.Store.OpTimeout)

	v.SetDefault("log.backend", d.Log.Backend)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.add_source", d.Log.AddSource)

	v.SetDefault("tools.fetch_timeout", d.Tools.FetchTimeout)
	v.SetDefault("tools.fetch_max_bytes", d.Tools.FetchMaxBytes)
	v.SetDefault("tools.draft_provider", d.Tools.DraftProvider)
	v.SetDefault("tools.draft_model", d.Tools.DraftModel)
	v.SetDefault("tools.proposal_accept", d.Tools.ProposalAccept)
	v.SetDefault("tools.retrieval.chunk_size", d.Tools.Retrieval.ChunkSize)
	v.SetDefault("tools.retrieval.workers", d.Tools.Retrieval.Workers)
	v.SetDefault("tools.retrieval.exclude", d.Tools.Retrieval.Exclude)
}

// LoadConfig reads configPath (or config.yaml from the working directory
// and /etc/taskmesh when empty), applies TASKMESH_* environment overrides and
// validates the result. A missing config file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/taskmesh")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// engine.max_rounds becomes TASKMESH_ENGINE_MAX_ROUNDS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch {
	case c.Engine.Budget <= 0:
		return fmt.Errorf("engine.budget must be positive, got %d", c.Engine.Budget)
	case c.Engine.MaxRounds < 0:
		return fmt.Errorf("engine.max_rounds must not be negative, got %d", c.Engine.MaxRounds)
	case c.Engine.ExcerptLength <= 0:
		return fmt.Errorf("engine.excerpt_length must be positive, got %d", c.Engine.ExcerptLength)
	}
	if !oneOf(c.Store.Backend, "memory", "sql") {
		return fmt.Errorf("store.backend must be memory or sql, got %q", c.Store.Backend)
	}
	if c.Store.Backend == "sql" && c.Store.DSN == "" {
		return errors.New("store.dsn is required for the sql backend")
	}
	if !oneOf(c.Log.Backend, "slog", "zerolog", "none") {
		return fmt.Errorf("log.backend must be slog, zerolog or none, got %q", c.Log.Backend)
	}
	if !oneOf(c.Tools.DraftProvider, "template", "openai", "anthropic") {
		return fmt.Errorf("tools.draft_provider must be template, openai or anthropic, got %q", c.Tools.DraftProvider)
	}
	return nil
}

func oneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
