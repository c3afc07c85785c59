package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvConfigPath names a config file when --config is not given.
const EnvConfigPath = "RSTD_CONFIG"

// ResolvePath picks the config file: the explicit flag, then $RSTD_CONFIG,
// then $XDG_CONFIG_HOME/rstd/config.toml, then ~/.config/rstd/config.toml.
func ResolvePath(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv(EnvConfigPath)} {
		if p := strings.TrimSpace(candidate); p != "" {
			return p, nil
		}
	}

	dir := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve config dir: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "rstd", "config.toml"), nil
}
