// Package config holds all xBOT configuration, loaded from YAML with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all xBOT configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Social network collaborator endpoints
	Social SocialConfig `yaml:"social"`

	// Persistence
	Storage StorageConfig `yaml:"storage"`

	// Background loop intervals and horizons
	Loop LoopConfig `yaml:"loop"`

	// Decision thresholds
	Thresholds ThresholdConfig `yaml:"thresholds"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// SocialConfig configures the posting/follower-count collaborator.
type SocialConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// StorageConfig configures the backing store.
type StorageConfig struct {
	Driver       string `yaml:"driver"` // sqlite, postgres
	DatabasePath string `yaml:"database_path"`
	PostgresDSN  string `yaml:"postgres_dsn"`
}

// LoopConfig configures the periodic loops and measurement horizons.
type LoopConfig struct {
	LearningInterval     string `yaml:"learning_interval"`      // measurement poll cadence
	FollowerPollInterval string `yaml:"follower_poll_interval"` // follower tracking cadence
	SupervisorInterval   string `yaml:"supervisor_interval"`    // health check cadence
	ShortHorizon         string `yaml:"short_horizon"`
	LongHorizon          string `yaml:"long_horizon"`
	GoodHours            []int  `yaml:"good_hours"` // posting hours, ascending
}

// ThresholdConfig configures the Decision Engine and Supervisor gates.
type ThresholdConfig struct {
	PostFollowers     int     `yaml:"post_followers"`     // rule 1 follower gate
	PostConfidence    float64 `yaml:"post_confidence"`    // rule 1 confidence gate
	AccuracyFloor     float64 `yaml:"accuracy_floor"`     // supervisor health floor
	AccuracyTolerance int     `yaml:"accuracy_tolerance"` // reconciler |predicted-actual| tolerance
}

// LoggingConfig configures categorized file logging. Applied to the
// logging package at command startup.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Name:    "xbot",
		Version: "1.0.0",
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},
		Social: SocialConfig{
			Timeout: "30s",
		},
		Storage: StorageConfig{
			Driver:       "sqlite",
			DatabasePath: ".xbot/xbot.db",
		},
		Loop: LoopConfig{
			LearningInterval:     "2h",
			FollowerPollInterval: "30m",
			SupervisorInterval:   "15m",
			ShortHorizon:         "24h",
			LongHorizon:          "168h",
			GoodHours:            []int{9, 12, 15, 18, 21},
		},
		Thresholds: ThresholdConfig{
			PostFollowers:     3,
			PostConfidence:    0.7,
			AccuracyFloor:     0.3,
			AccuracyTolerance: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, applying defaults for any
// field left unset and env overrides for secrets.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets come from the environment instead of disk.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("XBOT_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("XBOT_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("XBOT_SOCIAL_API_KEY"); v != "" {
		c.Social.APIKey = v
	}
	if v := os.Getenv("XBOT_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
}

// Validate checks invariants that would otherwise surface deep inside a loop.
func (c *Config) Validate() error {
	if c.Thresholds.PostConfidence < 0 || c.Thresholds.PostConfidence > 1 {
		return fmt.Errorf("post_confidence must be in [0,1], got %v", c.Thresholds.PostConfidence)
	}
	if c.Thresholds.AccuracyFloor < 0 || c.Thresholds.AccuracyFloor > 1 {
		return fmt.Errorf("accuracy_floor must be in [0,1], got %v", c.Thresholds.AccuracyFloor)
	}
	if c.Thresholds.AccuracyTolerance < 0 {
		return fmt.Errorf("accuracy_tolerance must be >= 0, got %d", c.Thresholds.AccuracyTolerance)
	}
	if len(c.Loop.GoodHours) == 0 {
		return fmt.Errorf("loop.good_hours must not be empty")
	}
	for _, h := range c.Loop.GoodHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("loop.good_hours entry %d out of range", h)
		}
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"llm.timeout", c.LLM.Timeout},
		{"social.timeout", c.Social.Timeout},
		{"loop.learning_interval", c.Loop.LearningInterval},
		{"loop.follower_poll_interval", c.Loop.FollowerPollInterval},
		{"loop.supervisor_interval", c.Loop.SupervisorInterval},
		{"loop.short_horizon", c.Loop.ShortHorizon},
		{"loop.long_horizon", c.Loop.LongHorizon},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.name, err)
		}
	}
	return nil
}

// Duration parses one of the duration-typed fields, falling back to def
// when the field is empty or malformed. Validate catches malformed values
// at load time; the fallback keeps hand-built configs in tests ergonomic.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
