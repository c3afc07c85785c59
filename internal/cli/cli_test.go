package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/rstd.toml", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/rstd.toml", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
	}{
		{name: "help short flag", args: []string{"-h"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help long flag", args: []string{"--help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help command", args: []string{"help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "version flag", args: []string{"--version"}, wantCmd: CommandVersion},
		{name: "version command", args: []string{"version"}, wantCmd: CommandVersion},
		{name: "config after command", args: []string{"status", "--config", "/tmp/cfg"}, wantCmd: CommandStatus, wantPath: "/tmp/cfg"},
		{name: "missing config path", args: []string{"--config"}, wantErr: "needs an argument"},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: "unknown flag"},
		{name: "unknown command", args: []string{"bogus"}, wantErr: "unknown command"},
		{name: "extra args after command", args: []string{"doctor", "extra"}, wantErr: "unknown command"},
		{name: "serve", args: []string{"serve"}, wantCmd: CommandServe},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
		})
	}
}

func TestParseServeFlags(t *testing.T) {
	parsed, err := Parse([]string{"serve", "--socket", "/tmp/x.sock", "--policy", "isolate"})
	require.NoError(t, err)
	require.Equal(t, "/tmp/x.sock", parsed.Serve.SocketPath)
	require.Equal(t, "isolate", parsed.Serve.Policy)
	require.Nil(t, parsed.Serve.RemoveStale)

	parsed, err = Parse([]string{"serve", "--remove-stale=false"})
	require.NoError(t, err)
	require.NotNil(t, parsed.Serve.RemoveStale)
	require.False(t, *parsed.Serve.RemoveStale)
}

func TestParseSendFlags(t *testing.T) {
	parsed, err := Parse([]string{"send"})
	require.NoError(t, err)
	require.Equal(t, CommandSend, parsed.Command)
	require.Equal(t, "request", parsed.Send.ID)
	require.Equal(t, DefaultSendTimeout, parsed.Send.Timeout)

	parsed, err = Parse([]string{"send", "-s", "/tmp/x.sock", "--id", "hello", "--timeout", "3s"})
	require.NoError(t, err)
	require.Equal(t, "/tmp/x.sock", parsed.Send.SocketPath)
	require.Equal(t, "hello", parsed.Send.ID)
	require.Equal(t, 3*time.Second, parsed.Send.Timeout)
}

func TestSubcommandHelpIsCaptured(t *testing.T) {
	parsed, err := Parse([]string{"serve", "--help"})
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Contains(t, parsed.HelpText, "--remove-stale")
}

func TestHelpTextListsCommands(t *testing.T) {
	text := HelpText("rstd")
	require.Contains(t, text, "Usage:")
	for _, cmd := range []string{"serve", "send", "status", "doctor", "version"} {
		require.Contains(t, text, cmd)
	}
	require.Contains(t, text, "--config")
}
