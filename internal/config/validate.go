package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rbright/rstd/internal/ipc"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Socket.Path) == "" {
		return nil, fmt.Errorf("socket.path must not be empty")
	}
	if _, err := ParsePermissions(cfg.Socket.Permissions); err != nil {
		return nil, fmt.Errorf("socket.permissions: %w", err)
	}
	if cfg.Socket.PollInterval.Duration < 0 {
		return nil, fmt.Errorf("socket.poll_interval must be >= 0")
	}
	if cfg.Protocol.InterimFrames < 0 {
		return nil, fmt.Errorf("protocol.interim_frames must be >= 0")
	}
	if cfg.Protocol.InterimDelay.Duration < 0 {
		return nil, fmt.Errorf("protocol.interim_delay must be >= 0")
	}
	if cfg.Protocol.MaxRequestBytes < 0 {
		return nil, fmt.Errorf("protocol.max_request_bytes must be >= 0")
	}

	switch cfg.Server.ErrorPolicy {
	case "fatal", "isolate":
	default:
		return nil, fmt.Errorf("server.error_policy must be one of: fatal, isolate")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	if cfg.Health.Enable {
		if err := CheckHealthPath(cfg.HealthPathFor(cfg.Socket.Path), cfg.Socket.Path); err != nil {
			return nil, err
		}
	}

	if perm, _ := ParsePermissions(cfg.Socket.Permissions); perm&0o077 != 0 {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("socket.permissions %s allow access beyond the owner", cfg.Socket.Permissions),
		})
	}
	if cfg.Protocol.MaxRequestBytes == 0 {
		warnings = append(warnings, Warning{Message: "protocol.max_request_bytes=0 disables the request size bound"})
	}

	return warnings, nil
}

// ParsePermissions parses an octal mode string such as "0700" or "0o700".
func ParsePermissions(raw string) (os.FileMode, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0o")
	if trimmed == "" {
		return 0, fmt.Errorf("must not be empty")
	}
	mode, err := strconv.ParseUint(trimmed, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q", raw)
	}
	if mode > 0o777 {
		return 0, fmt.Errorf("mode %q has bits outside 0777", raw)
	}
	return os.FileMode(mode), nil
}

// HealthPath returns the health socket for the configured protocol socket.
func (c Config) HealthPath() string {
	return c.HealthPathFor(c.Socket.Path)
}

// HealthPathFor returns the configured health socket, defaulting to a sibling
// of socketPath. Callers that override the socket path pass the effective one.
func (c Config) HealthPathFor(socketPath string) string {
	if p := strings.TrimSpace(c.Health.Path); p != "" {
		return p
	}
	return socketPath + ".health"
}

// CheckHealthPath rejects a health socket that would land on the protocol
// socket or its owner lock.
func CheckHealthPath(healthPath, socketPath string) error {
	health := filepath.Clean(healthPath)
	switch health {
	case filepath.Clean(socketPath):
		return fmt.Errorf("health.path %s must differ from the socket path", healthPath)
	case filepath.Clean(ipc.OwnerLockPath(socketPath)):
		return fmt.Errorf("health.path %s collides with the socket owner lock", healthPath)
	}
	return nil
}
