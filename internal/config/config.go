package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/joelkehle/lucidra-engine/internal/findings"
)

// Config holds runtime settings. Values come from an optional YAML file
// and environment variables, with the environment winning.
// API keys are read by the findings providers straight from the
// environment and never appear here.
type Config struct {
	HTTPAddr string `yaml:"http_addr" env:"LUCIDRA_HTTP_ADDR" env-default:":8080"`
	// DBPath selects the SQLite store. Empty keeps sessions in memory.
	DBPath string `yaml:"db_path" env:"LUCIDRA_DB_PATH" env-default:""`

	Log       LogConfig       `yaml:"log"`
	Findings  FindingsConfig  `yaml:"findings"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	SectionsPath string `yaml:"sections_path" env:"LUCIDRA_SECTIONS_PATH" env-default:""`
	ChromePath   string `yaml:"chrome_path" env:"LUCIDRA_CHROME_PATH" env-default:""`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LUCIDRA_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LUCIDRA_LOG_FORMAT" env-default:"json"`
}

type FindingsConfig struct {
	// Sources is a comma-separated list of none, static, anthropic, openai.
	Sources     string        `yaml:"sources" env:"LUCIDRA_FINDINGS" env-default:"none"`
	Timeout     time.Duration `yaml:"timeout" env:"LUCIDRA_FINDINGS_TIMEOUT" env-default:"60s"`
	OpenAIModel string        `yaml:"openai_model" env:"OPENAI_MODEL" env-default:""`
	StaticPath  string        `yaml:"static_path" env:"LUCIDRA_FINDINGS_STATIC_PATH" env-default:""`
}

type TelemetryConfig struct {
	// Endpoint enables OTLP trace export when set.
	Endpoint    string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	ServiceName string `yaml:"service_name" env:"LUCIDRA_SERVICE_NAME" env-default:"lucidra-engine"`
}

// Load reads path when it is non-empty, then applies the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FindingSources returns the parsed provider list.
func (c *Config) FindingSources() []string {
	return findings.ParseSources(c.Findings.Sources)
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Log.Format)
	}
	if err := findings.CheckSources(c.FindingSources()); err != nil {
		return err
	}
	if c.Findings.Timeout < 0 {
		return fmt.Errorf("findings timeout must not be negative")
	}
	return nil
}
