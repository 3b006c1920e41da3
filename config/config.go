// Package config loads runtime tuning knobs with Viper from a config
// file plus environment overrides.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the ambient and domain stack need. Zero value
// is not valid; use Default() or Load().
type Config struct {
	// WorkerPoolSize bounds how many reactor drivers may run concurrently.
	WorkerPoolSize int `mapstructure:"worker_pool_size"`

	// DefaultStepTimeout is loaded with the rest of the configuration, but
	// no match build reads it: HTTP builds take their step-lock deadline
	// from the request's step_timeout_ms, and the echo subcommand builds
	// with no deadline. Zero means wait-for-all (spec.md §5).
	DefaultStepTimeout time.Duration `mapstructure:"default_step_timeout"`

	// ControllerBufferBytes bounds the pending host-bytes FIFO kept by each
	// client controller while its player is detached (spec.md §4.9, §9).
	ControllerBufferBytes int `mapstructure:"controller_buffer_bytes"`

	// HTTPAddr is where the control-surface HTTP/JSON API listens.
	HTTPAddr string `mapstructure:"http_addr"`

	// MetricsAddr is where /metrics is served.
	MetricsAddr string `mapstructure:"metrics_addr"`

	// SnapshotDBPath is the bbolt file backing the match-state snapshot
	// store. Empty disables snapshotting.
	SnapshotDBPath string `mapstructure:"snapshot_db_path"`

	// TCPAddr is where the length-prefixed TCP transport listens. Empty
	// disables the TCP listener.
	TCPAddr string `mapstructure:"tcp_addr"`

	// WSPath is the HTTP path the websocket transport is mounted at,
	// alongside the control-plane API on HTTPAddr.
	WSPath string `mapstructure:"ws_path"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() Config {
	return Config{
		WorkerPoolSize:        64,
		DefaultStepTimeout:    0,
		ControllerBufferBytes: 4 << 20, // 4 MiB, per the Open Question in spec.md §9
		HTTPAddr:              ":7777",
		MetricsAddr:           ":7778",
		SnapshotDBPath:        "",
		TCPAddr:               ":7779",
		WSPath:                "/ws",
	}
}

// Load reads configuration from path (if non-empty) and from environment
// variables prefixed REACTORIUM_, layered over Default().
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("reactorium")
	v.AutomaticEnv()
	v.SetDefault("worker_pool_size", cfg.WorkerPoolSize)
	v.SetDefault("default_step_timeout", cfg.DefaultStepTimeout)
	v.SetDefault("controller_buffer_bytes", cfg.ControllerBufferBytes)
	v.SetDefault("http_addr", cfg.HTTPAddr)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("snapshot_db_path", cfg.SnapshotDBPath)
	v.SetDefault("tcp_addr", cfg.TCPAddr)
	v.SetDefault("ws_path", cfg.WSPath)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
