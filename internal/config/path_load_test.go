package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/rstd/env.toml")
	resolved, err := ResolvePath("/tmp/custom.toml")
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.toml", resolved, "flag beats environment")

	resolved, err = ResolvePath("  ")
	require.NoError(t, err)
	require.Equal(t, "/etc/rstd/env.toml", resolved)

	t.Setenv(EnvConfigPath, "")
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "rstd", "config.toml"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "rstd", "config.toml"), resolved)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "built-in defaults")
}

func TestLoadDirectoryIsError(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "is a directory")
}

func TestLoadExistingTOMLParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[socket]
path = "/run/user/1000/rst.sock"
remove_stale = true

[protocol]
interim_frames = 3
interim_delay = "250ms"

[server]
error_policy = "isolate"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Empty(t, loaded.Warnings)

	cfg := loaded.Config
	require.Equal(t, "/run/user/1000/rst.sock", cfg.Socket.Path)
	require.True(t, cfg.Socket.RemoveStale)
	require.True(t, cfg.Socket.Blocking, "unset keys keep defaults")
	require.Equal(t, "0700", cfg.Socket.Permissions)
	require.Equal(t, 3, cfg.Protocol.InterimFrames)
	require.Equal(t, 250*time.Millisecond, cfg.Protocol.InterimDelay.Duration)
	require.Equal(t, "isolate", cfg.Server.ErrorPolicy)
}

func TestLoadInvalidConfigReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nerror_policy = \"retry\"\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "server.error_policy")
}
