package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config drives the collaboration client simulator.
type Config struct {
	Server   ServerConfig   `yaml:"Server"`
	Client   ClientConfig   `yaml:"Client"`
	Workload WorkloadConfig `yaml:"Workload"`
	Log      LogConfig      `yaml:"Log"`
}

// ServerConfig points at the gateway.
type ServerConfig struct {
	URL   string `yaml:"URL"`
	Token string `yaml:"Token"`
}

// ClientConfig tunes the transport.
type ClientConfig struct {
	MaxAttempts     int           `yaml:"MaxAttempts"`
	InitialInterval time.Duration `yaml:"InitialInterval"`
	MaxInterval     time.Duration `yaml:"MaxInterval"`
}

// WorkloadConfig describes the simulated editing session.
type WorkloadConfig struct {
	DocumentID string        `yaml:"DocumentID"`
	UserID     string        `yaml:"UserID"`
	UserName   string        `yaml:"UserName"`
	TypeDelay  time.Duration `yaml:"TypeDelay"`
	Text       string        `yaml:"Text"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
}

// DefaultConfig returns the development defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "ws://localhost:8080/ws",
		},
		Client: ClientConfig{
			MaxAttempts:     5,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
		},
		Workload: WorkloadConfig{
			DocumentID: "demo-doc",
			UserID:     "demo-user",
			UserName:   "Demo User",
			TypeDelay:  200 * time.Millisecond,
			Text:       "Hello from the collaboration client.",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a yaml config file, falling back to defaults for a
// missing path.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
