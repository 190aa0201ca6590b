package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Broker   BrokerConfig   `yaml:"broker"`
}

type ServerConfig struct {
	ListenPort int    `yaml:"listen_port"`
	StaticDir  string `yaml:"static_dir"` // Directory of web UI assets, empty disables
}

type DatabaseConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type AuthConfig struct {
	OperatorTokenHash string `yaml:"operator_token_hash"` // bcrypt hash guarding /api/status, empty disables
}

type BrokerConfig struct {
	CodeTTLMinutes     int `yaml:"code_ttl_minutes"`
	SessionIdleMinutes int `yaml:"session_idle_minutes"`
	MaxFailedAttempts  int `yaml:"max_failed_attempts"`
	BlockWindowMinutes int `yaml:"block_window_minutes"`
}

// CodeTTL is how long an unconsumed access code stays valid.
func (b BrokerConfig) CodeTTL() time.Duration {
	return time.Duration(b.CodeTTLMinutes) * time.Minute
}

// SessionIdleTimeout is how long a session survives without relay activity.
func (b BrokerConfig) SessionIdleTimeout() time.Duration {
	return time.Duration(b.SessionIdleMinutes) * time.Minute
}

// BlockWindow is how long an origin stays blocked after repeated failures.
func (b BrokerConfig) BlockWindow() time.Duration {
	return time.Duration(b.BlockWindowMinutes) * time.Minute
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Server.ListenPort == 0 {
		c.Server.ListenPort = 3000
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.Path == "" {
		c.Database.Path = "./famdesk.db"
	}
	if c.Broker.CodeTTLMinutes == 0 {
		c.Broker.CodeTTLMinutes = 10
	}
	if c.Broker.SessionIdleMinutes == 0 {
		c.Broker.SessionIdleMinutes = 60
	}
	if c.Broker.MaxFailedAttempts == 0 {
		c.Broker.MaxFailedAttempts = 3
	}
	if c.Broker.BlockWindowMinutes == 0 {
		c.Broker.BlockWindowMinutes = 30
	}
	if c.Broker.CodeTTLMinutes < 0 || c.Broker.SessionIdleMinutes < 0 ||
		c.Broker.MaxFailedAttempts < 0 || c.Broker.BlockWindowMinutes < 0 {
		return fmt.Errorf("broker durations and limits must be positive")
	}
	return nil
}
