// Package config loads assignctl settings from a YAML file and ASSIGNCTL_*
// environment variables
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sourceplane/assignctl/internal/retry"
)

const envPrefix = "ASSIGNCTL_"

// Graph configures the Microsoft Graph client
type Graph struct {
	BaseURL           string        `yaml:"baseURL"`
	Token             string        `yaml:"token,omitempty"` // bearer token; prefer ASSIGNCTL_GRAPH_TOKEN
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Engine holds the knobs of the reconciliation engine
type Engine struct {
	FetchConcurrency int          `yaml:"fetchConcurrency"`
	ApplyConcurrency int          `yaml:"applyConcurrency"`
	Retry            retry.Policy `yaml:"retry"`
}

// Config is the full assignctl configuration
type Config struct {
	Graph             Graph  `yaml:"graph"`
	Engine            Engine `yaml:"engine"`
	SnapshotDir       string `yaml:"snapshotDir"`
	CompressSnapshots bool   `yaml:"compressSnapshots"`
	HistoryDB         string `yaml:"historyDB"`
	LogLevel          string `yaml:"logLevel"`  // debug, info, warn, error
	LogFormat         string `yaml:"logFormat"` // text or json
	MetricsFile       string `yaml:"metricsFile"`
}

// DefaultEngine returns the engine settings used when nothing is configured
func DefaultEngine() Engine {
	return Engine{
		FetchConcurrency: 5,
		ApplyConcurrency: 2,
		Retry:            retry.DefaultPolicy(),
	}
}

// Defaults returns a configuration rooted at ~/.assignctl
func Defaults() *Config {
	home := homeDir()
	return &Config{
		Graph: Graph{
			BaseURL:           "https://graph.microsoft.com/beta",
			RequestsPerSecond: 8,
			Burst:             4,
			Timeout:           30 * time.Second,
		},
		Engine:      DefaultEngine(),
		SnapshotDir: filepath.Join(home, "snapshots"),
		HistoryDB:   filepath.Join(home, "history.db"),
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// DefaultPath is the config file read when no path is given
func DefaultPath() string {
	return filepath.Join(homeDir(), "config.yaml")
}

// Load builds a configuration from defaults, the YAML file at path and the
// environment, in that order. An empty path reads DefaultPath and tolerates
// its absence
func Load(path string) (*Config, error) {
	cfg := Defaults()

	optional := path == ""
	if optional {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ASSIGNCTL_* variables looked up with getenv
func (c *Config) ApplyEnv(getenv func(string) string) error {
	get := func(key string) string { return strings.TrimSpace(getenv(envPrefix + key)) }

	setString := func(key string, dst *string) {
		if v := get(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := get(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", envPrefix, key, v, err)
		}
		*dst = n
		return nil
	}
	setDuration := func(key string, dst *time.Duration) error {
		v := get(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s %q: %w", envPrefix, key, v, err)
		}
		*dst = d
		return nil
	}

	setString("GRAPH_BASE_URL", &c.Graph.BaseURL)
	setString("GRAPH_TOKEN", &c.Graph.Token)
	setString("SNAPSHOT_DIR", &c.SnapshotDir)
	setString("HISTORY_DB", &c.HistoryDB)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_FORMAT", &c.LogFormat)
	setString("METRICS_FILE", &c.MetricsFile)

	if v := get("GRAPH_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sGRAPH_RPS %q: %w", envPrefix, v, err)
		}
		c.Graph.RequestsPerSecond = f
	}
	if v := get("COMPRESS_SNAPSHOTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sCOMPRESS_SNAPSHOTS %q: %w", envPrefix, v, err)
		}
		c.CompressSnapshots = b
	}

	for key, dst := range map[string]*int{
		"GRAPH_BURST":       &c.Graph.Burst,
		"FETCH_CONCURRENCY": &c.Engine.FetchConcurrency,
		"APPLY_CONCURRENCY": &c.Engine.ApplyConcurrency,
		"MAX_RETRIES":       &c.Engine.Retry.MaxRetries,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}
	if err := setDuration("GRAPH_TIMEOUT", &c.Graph.Timeout); err != nil {
		return err
	}
	if err := setDuration("RETRY_BASE_DELAY", &c.Engine.Retry.BaseDelay); err != nil {
		return err
	}
	return setDuration("RETRY_MAX_DELAY", &c.Engine.Retry.MaxDelay)
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.Graph.BaseURL == "" {
		return fmt.Errorf("graph.baseURL must be set")
	}
	if c.Graph.RequestsPerSecond <= 0 {
		return fmt.Errorf("graph.requestsPerSecond must be positive, got %v", c.Graph.RequestsPerSecond)
	}
	if c.Graph.Burst <= 0 {
		return fmt.Errorf("graph.burst must be positive, got %d", c.Graph.Burst)
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("logFormat must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Validate checks concurrency ceilings and the retry policy
func (e Engine) Validate() error {
	if e.FetchConcurrency <= 0 {
		return fmt.Errorf("engine.fetchConcurrency must be positive, got %d", e.FetchConcurrency)
	}
	if e.ApplyConcurrency <= 0 {
		return fmt.Errorf("engine.applyConcurrency must be positive, got %d", e.ApplyConcurrency)
	}
	if err := e.Retry.Validate(); err != nil {
		return fmt.Errorf("engine.retry: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".assignctl"
	}
	return filepath.Join(home, ".assignctl")
}
