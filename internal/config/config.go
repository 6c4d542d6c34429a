package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the flat batchreg configuration.
type Config struct {
	// Endpoint is the registration form URL. Required for run.
	Endpoint string `json:"endpoint"`
	// FallbackEndpoint is the JSON status endpoint consulted when a
	// response cannot be classified. Empty disables the fallback channel.
	FallbackEndpoint string `json:"fallback_endpoint,omitempty"`

	// Concurrency window bounds for the adaptive gate.
	MinConcurrency     int `json:"min_concurrency"`
	InitialConcurrency int `json:"initial_concurrency"`
	MaxConcurrency     int `json:"max_concurrency"`

	// Peak window clamps the gate ceiling during busy hours.
	// PeakStartHour == PeakEndHour disables the clamp.
	PeakStartHour int `json:"peak_start_hour,omitempty"`
	PeakEndHour   int `json:"peak_end_hour,omitempty"`
	PeakLimit     int `json:"peak_limit,omitempty"`

	// Per-record retry policy.
	MaxAttempts      int     `json:"max_attempts"`
	AttemptTimeoutMS int     `json:"attempt_timeout_ms"`
	BaseDelayMS      int     `json:"base_delay_ms"`
	MaxDelayMS       int     `json:"max_delay_ms"`
	Multiplier       float64 `json:"multiplier"`

	// Session behavior.
	FreshSessionPerRecord bool   `json:"fresh_session_per_record"`
	SessionPoolCapacity   int    `json:"session_pool_capacity"`
	UserAgent             string `json:"user_agent,omitempty"`

	// Result handling.
	FlushThreshold int    `json:"flush_threshold"`
	ReportDir      string `json:"report_dir"`

	// MetricsAddr enables the metrics listener when non-empty,
	// e.g. "127.0.0.1:9939".
	MetricsAddr string `json:"metrics_addr,omitempty"`

	// Classifier pattern overrides. Empty slices keep the defaults.
	SuccessPatterns        []string `json:"success_patterns,omitempty"`
	RejectionPatterns      []string `json:"rejection_patterns,omitempty"`
	SessionExpiredPatterns []string `json:"session_expired_patterns,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		MinConcurrency:        1,
		InitialConcurrency:    3,
		MaxConcurrency:        3,
		PeakStartHour:         15,
		PeakEndHour:           16,
		PeakLimit:             2,
		MaxAttempts:           3,
		AttemptTimeoutMS:      45000,
		BaseDelayMS:           2000,
		MaxDelayMS:            10000,
		Multiplier:            1.5,
		FreshSessionPerRecord: true,
		SessionPoolCapacity:   50,
		FlushThreshold:        100,
		ReportDir:             "results",
	}
}

// LoadConfig reads config.json from dir. When dir is empty, ~/.batchreg is
// used. A missing file yields the defaults, not an error: only a file that
// exists but cannot be parsed fails.
func LoadConfig(dir string) (*Config, error) {
	path, err := configPath(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig writes config.json to dir, creating the directory if needed.
func SaveConfig(dir string, cfg *Config) error {
	path, err := configPath(dir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch {
	case c.MinConcurrency < 1:
		return fmt.Errorf("min_concurrency must be at least 1")
	case c.MaxConcurrency < c.MinConcurrency:
		return fmt.Errorf("max_concurrency must be >= min_concurrency")
	case c.InitialConcurrency < c.MinConcurrency || c.InitialConcurrency > c.MaxConcurrency:
		return fmt.Errorf("initial_concurrency must be within [min_concurrency, max_concurrency]")
	case c.MaxAttempts < 1:
		return fmt.Errorf("max_attempts must be at least 1")
	case c.Multiplier < 1:
		return fmt.Errorf("multiplier must be at least 1")
	case c.BaseDelayMS <= 0 || c.MaxDelayMS < c.BaseDelayMS:
		return fmt.Errorf("delay bounds invalid: base=%dms max=%dms", c.BaseDelayMS, c.MaxDelayMS)
	case c.PeakStartHour < 0 || c.PeakStartHour > 23 || c.PeakEndHour < 0 || c.PeakEndHour > 24:
		return fmt.Errorf("peak window hours out of range")
	}
	return nil
}

// AttemptTimeout returns the per-attempt timeout as a duration.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutMS) * time.Millisecond
}

// BaseDelay returns the first retry delay as a duration.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the retry delay cap as a duration.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

func configPath(dir string) (string, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".batchreg")
	}
	return filepath.Join(dir, "config.json"), nil
}
