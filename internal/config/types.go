// Package config resolves, parses, validates, and defaults rstd configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the fully materialized runtime configuration used by rstd.
type Config struct {
	Socket   SocketConfig   `toml:"socket"`
	Protocol ProtocolConfig `toml:"protocol"`
	Server   ServerConfig   `toml:"server"`
	Health   HealthConfig   `toml:"health"`
	Log      LogConfig      `toml:"log"`
}

// SocketConfig controls the listening endpoint.
type SocketConfig struct {
	Path         string   `toml:"path"`
	Permissions  string   `toml:"permissions"`
	Blocking     bool     `toml:"blocking"`
	RemoveStale  bool     `toml:"remove_stale"`
	PollInterval Duration `toml:"poll_interval"`
}

// ProtocolConfig controls per-connection pacing and bounds.
type ProtocolConfig struct {
	InterimFrames   int      `toml:"interim_frames"`
	InterimDelay    Duration `toml:"interim_delay"`
	MaxRequestBytes int64    `toml:"max_request_bytes"`
}

// ServerConfig controls accept-loop failure handling.
type ServerConfig struct {
	ErrorPolicy string `toml:"error_policy"`
}

// HealthConfig controls the optional gRPC health endpoint.
type HealthConfig struct {
	Enable bool   `toml:"enable"`
	Path   string `toml:"path"`
}

// LogConfig controls structured log level and console progress output.
type LogConfig struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}

// Duration is a time.Duration written as a Go duration string ("1s", "250ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
