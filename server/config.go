package server

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen        = ":8080"
	defaultDBPath        = "durable.db"
	defaultConcurrency   = 4
	defaultLeaseDuration = 2 * time.Minute
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
)

// Config is the full daemon configuration.
type Config struct {
	Listen   string          `yaml:"listen"`
	DB       DBConfig        `yaml:"db"`
	Worker   WorkerConfig    `yaml:"worker"`
	Logging  LoggingConfig   `yaml:"logging"`
	Triggers []TriggerConfig `yaml:"triggers"`
}

// DBConfig holds sqlite settings.
type DBConfig struct {
	// Path is the sqlite database file. ":memory:" gives a non-durable
	// engine, which is only useful for demos.
	Path string `yaml:"path"`
}

// WorkerConfig sizes the task processing pool.
type WorkerConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	LeaseDuration time.Duration `yaml:"lease_duration"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TriggerConfig schedules a recurring workflow submission. The Input block
// is passed to the workflow verbatim as JSON.
type TriggerConfig struct {
	Schedule string    `yaml:"schedule"`
	Workflow string    `yaml:"workflow"`
	Input    yaml.Node `yaml:"input"`
}

// InputJSON converts the trigger's YAML input block to the JSON bytes the
// workflow receives.
func (t *TriggerConfig) InputJSON() ([]byte, error) {
	if t.Input.IsZero() {
		return []byte("{}"), nil
	}
	var v any
	if err := t.Input.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode trigger input: %w", err)
	}
	return json.Marshal(v)
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DB.Path == "" {
		c.DB.Path = defaultDBPath
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = defaultConcurrency
	}
	if c.Worker.LeaseDuration == 0 {
		c.Worker.LeaseDuration = defaultLeaseDuration
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	if c.Worker.Concurrency < 0 {
		return fmt.Errorf("worker concurrency must not be negative")
	}
	if c.Worker.LeaseDuration < 0 {
		return fmt.Errorf("worker lease duration must not be negative")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging format must be text or json, got %q", c.Logging.Format)
	}
	for i, tr := range c.Triggers {
		if tr.Schedule == "" {
			return fmt.Errorf("trigger %d: schedule is required", i)
		}
		if tr.Workflow == "" {
			return fmt.Errorf("trigger %d: workflow is required", i)
		}
	}
	return nil
}

// LoadConfig reads the YAML config file at the given path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
