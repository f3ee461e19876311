package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Faultgate FaultgateConfig `yaml:"faultgate"`
}

// FaultgateConfig is the project configuration.
type FaultgateConfig struct {
	Input      InputConfig      `yaml:"input"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`
	Rules      RulesConfig      `yaml:"rules"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InputConfig controls the fault intake.
type InputConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig controls Redis queue access.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// AggregatorConfig controls alert deduplication.
type AggregatorConfig struct {
	Window        time.Duration `yaml:"window"`
	Workers       int           `yaml:"workers"`
	DrainInterval time.Duration `yaml:"drain_interval"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// AnalyzerConfig controls device frequency analysis.
type AnalyzerConfig struct {
	LogDir        string   `yaml:"log_dir"`
	Files         []string `yaml:"files"`
	WindowMinutes int      `yaml:"window_minutes"`
	TopN          int      `yaml:"top_n"`
	MaxLines      int      `yaml:"max_lines"`
	BlockSize     int      `yaml:"block_size"`
}

// RulesConfig controls fault classification rules.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AlertsConfig controls the notification sink.
type AlertsConfig struct {
	Mode  string          `yaml:"mode"` // file|http|redis
	File  FileOutputConfig `yaml:"file"`
	HTTP  HTTPOutputConfig `yaml:"http"`
	Redis RedisSinkConfig  `yaml:"redis"`
}

// RedisSinkConfig config for the Redis alert sink.
type RedisSinkConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// FileOutputConfig config for local JSONL output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for webhook output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
