// Package config loads relay server settings from the environment and flags.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds relay server configuration.
type Config struct {
	Addr            string        `env:"RELAY_ADDR"             envDefault:"localhost:3000"`
	HistoryWindow   int           `env:"RELAY_HISTORY_WINDOW"   envDefault:"50"`
	HistoryLimit    int           `env:"RELAY_HISTORY_LIMIT"    envDefault:"1000"`
	MaxFrameSize    int64         `env:"RELAY_MAX_FRAME_SIZE"   envDefault:"16777216"`
	MaxRequestSize  int           `env:"RELAY_MAX_REQUEST_SIZE" envDefault:"8192"`
	WriteTimeout    time.Duration `env:"RELAY_WRITE_TIMEOUT"    envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"RELAY_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Parse reads the environment into a Config and then applies flag
// overrides from args.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "host:port to listen on")
	fs.IntVar(&cfg.HistoryWindow, "history-window", cfg.HistoryWindow, "messages replayed to a joiner")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "messages retained per room")
	fs.Int64Var(&cfg.MaxFrameSize, "max-frame-size", cfg.MaxFrameSize, "largest accepted frame payload in bytes")
	fs.IntVar(&cfg.MaxRequestSize, "max-request-size", cfg.MaxRequestSize, "largest accepted upgrade request in bytes")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "deadline for a single outbound frame")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "time allowed for graceful shutdown")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("addr is required")
	case c.HistoryWindow < 0:
		return fmt.Errorf("history window must not be negative: %d", c.HistoryWindow)
	case c.HistoryLimit < 0:
		return fmt.Errorf("history limit must not be negative: %d", c.HistoryLimit)
	case c.MaxFrameSize < 0:
		return fmt.Errorf("max frame size must not be negative: %d", c.MaxFrameSize)
	case c.MaxRequestSize < 0:
		return fmt.Errorf("max request size must not be negative: %d", c.MaxRequestSize)
	}
	return nil
}
