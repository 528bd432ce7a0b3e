// Package config loads the yaml configuration shared by the hub and agent
// binaries. Each binary reads the sections it needs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Plugins PluginsConfig `yaml:"plugins"`
	Agent   AgentConfig   `yaml:"agent"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

type PluginsConfig struct {
	Directory string `yaml:"directory"`
}

type AgentConfig struct {
	HubURL                   string `yaml:"hub_url"`
	DeviceID                 string `yaml:"device_id"`
	HeartbeatIntervalSeconds int    `yaml:"heartbeat_interval_seconds"`
	AggregatorTickIntervalMS int    `yaml:"aggregator_tick_interval_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ReadTimeoutMS == 0 {
		c.Server.ReadTimeoutMS = 30000
	}
	if c.Server.WriteTimeoutMS == 0 {
		c.Server.WriteTimeoutMS = 30000
	}
	if c.Plugins.Directory == "" {
		c.Plugins.Directory = "plugins"
	}
	if c.Agent.HeartbeatIntervalSeconds == 0 {
		c.Agent.HeartbeatIntervalSeconds = 30
	}
	if c.Agent.AggregatorTickIntervalMS == 0 {
		c.Agent.AggregatorTickIntervalMS = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Agent.HeartbeatIntervalSeconds < 1 {
		return fmt.Errorf("heartbeat interval must be at least 1 second")
	}
	if c.Agent.AggregatorTickIntervalMS < 100 {
		return fmt.Errorf("aggregator tick interval must be at least 100ms")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Logging.Format)
	}
	return nil
}

func (c *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

func (c *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *AgentConfig) GetHeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

func (c *AgentConfig) GetAggregatorTickInterval() time.Duration {
	return time.Duration(c.AggregatorTickIntervalMS) * time.Millisecond
}
