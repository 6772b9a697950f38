// Package config loads forkdemo settings from FORKDEMO_* environment variables.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

// Prefix is the environment variable prefix shared with child processes.
const Prefix = "FORKDEMO"

// Config holds the settings that are not part of the demo selection itself.
type Config struct {
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"warn"`
	LogDev      bool          `envconfig:"LOG_DEV" default:"false"`
	BombPause   time.Duration `envconfig:"BOMB_PAUSE" default:"1s"`
	Handshake   bool          `envconfig:"HANDSHAKE" default:"false"`
	MetricsFile string        `envconfig:"METRICS_FILE"`
	Report      string        `envconfig:"REPORT"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when the environment sets nothing.
func Default() *Config {
	return &Config{
		LogLevel:  "warn",
		BombPause: time.Second,
	}
}

// Validate checks values that flags or the environment may have set.
func (c *Config) Validate() error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.BombPause < 0 {
		return fmt.Errorf("bomb pause must not be negative, got %s", c.BombPause)
	}
	return nil
}

// Environ encodes the settings children need. Output files are cleared so
// only the original process writes them.
func (c *Config) Environ() []string {
	return []string{
		Prefix + "_LOG_LEVEL=" + c.LogLevel,
		Prefix + "_LOG_DEV=" + strconv.FormatBool(c.LogDev),
		Prefix + "_BOMB_PAUSE=" + c.BombPause.String(),
		Prefix + "_HANDSHAKE=" + strconv.FormatBool(c.Handshake),
		Prefix + "_METRICS_FILE=",
		Prefix + "_REPORT=",
	}
}
