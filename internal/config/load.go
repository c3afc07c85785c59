package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Loaded is the outcome of Load: the file that was consulted, the effective
// settings and any warnings worth surfacing to the operator.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves the config location and overlays the file onto Default. A
// missing file is not an error; the defaults are used and a warning recorded.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: path, Config: Default()}
	content, found, err := readConfigFile(path)
	if err != nil {
		return Loaded{}, err
	}
	if !found {
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("no config at %s, running with built-in defaults (socket %s)", path, loaded.Config.Socket.Path),
		})
		return loaded, nil
	}

	cfg, warnings, err := Parse(content, loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("config %s: %w", path, err)
	}
	loaded.Config = cfg
	loaded.Warnings = warnings
	loaded.Exists = true
	return loaded, nil
}

func readConfigFile(path string) (string, bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("stat config %s: %w", path, err)
	case info.IsDir():
		return "", false, fmt.Errorf("config %s is a directory", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read config %s: %w", path, err)
	}
	return string(raw), true, nil
}
