// Package config loads engine configuration from file and environment.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine and its surfaces.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Graph   GraphConfig   `mapstructure:"graph"`
	Memory  MemoryConfig  `mapstructure:"memory"`
	Recall  RecallConfig  `mapstructure:"recall"`
	Extract ExtractConfig `mapstructure:"extract"`
	Embed   EmbedConfig   `mapstructure:"embed"`
	Journal JournalConfig `mapstructure:"journal"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Persona Persona       `mapstructure:"persona"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds the HTTP surface configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// GraphConfig holds graph-store connection settings. Each logical tenant
// maps to its own database under the same server.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// MemoryConfig holds short-term memory settings.
type MemoryConfig struct {
	// Limit is the short-term window size in turns.
	Limit int `mapstructure:"limit"`
	// SchemaTTLHours bounds the schema cache freshness.
	SchemaTTLHours int `mapstructure:"schema_ttl_hours"`
}

// RecallConfig holds similarity-recall defaults.
type RecallConfig struct {
	TopK          int     `mapstructure:"top_k"`
	MinScore      float64 `mapstructure:"min_score"`
	RecencyHours  int     `mapstructure:"recency_hours"`
	TraverseDepth int     `mapstructure:"traverse_depth"`
}

// ExtractConfig holds the entity-extraction service settings.
type ExtractConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// EmbedConfig holds the embedding service settings. Dimensions must match
// the vector indexes created in the graph store.
type EmbedConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// JournalConfig holds the turn-journal settings.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// BreakerConfig holds circuit-breaker settings for graph-store calls.
type BreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // seconds
	Timeout          int     `mapstructure:"timeout"`  // seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// Persona names the two parties of the conversation. It can be loaded from
// a standalone YAML file so deployments can swap companions without
// touching the main config.
type Persona struct {
	UserName string `mapstructure:"user_name" yaml:"user_name"`
	AIName   string `mapstructure:"ai_name" yaml:"ai_name"`
}

// Load loads configuration from viper's current state plus environment
// overrides.
func Load() (*Config, error) {
	setDefaults()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(cfg)
	return cfg, nil
}

// LoadPersona reads a persona YAML file.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	p := &Persona{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}
	return p, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	viper.SetDefault("graph.uri", "neo4j://localhost:7687")
	viper.SetDefault("graph.username", "neo4j")
	viper.SetDefault("graph.database", "neo4j")

	viper.SetDefault("memory.limit", 7)
	viper.SetDefault("memory.schema_ttl_hours", 24)

	viper.SetDefault("recall.top_k", 5)
	viper.SetDefault("recall.min_score", 0.6)
	viper.SetDefault("recall.recency_hours", 720)
	viper.SetDefault("recall.traverse_depth", 2)

	viper.SetDefault("extract.model", "gpt-4o-mini")
	viper.SetDefault("embed.model", "text-embedding-3-small")
	viper.SetDefault("embed.dimensions", 1536)

	viper.SetDefault("breaker.enabled", true)
	viper.SetDefault("breaker.max_requests", 3)
	viper.SetDefault("breaker.interval", 60)
	viper.SetDefault("breaker.timeout", 30)
	viper.SetDefault("breaker.ready_to_trip_ratio", 0.6)

	viper.SetDefault("persona.user_name", "User")
	viper.SetDefault("persona.ai_name", "Companion")

	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("journal.path", home+"/.mnemon/journal")
	}
}

func overrideWithEnv(cfg *Config) {
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		cfg.Graph.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		cfg.Graph.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		cfg.Graph.Password = pass
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Extract.APIKey == "" {
			cfg.Extract.APIKey = key
		}
		if cfg.Embed.APIKey == "" {
			cfg.Embed.APIKey = key
		}
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if path := os.Getenv("JOURNAL_PATH"); path != "" {
		cfg.Journal.Path = path
	}
}
