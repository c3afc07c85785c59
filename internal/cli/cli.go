// Package cli declares the rstd command tree and parses argv into a Parsed
// invocation for the app runner.
package cli

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Command string

const (
	CommandServe   Command = "serve"
	CommandSend    Command = "send"
	CommandStatus  Command = "status"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// ServeFlags carries per-invocation overrides for the server config.
type ServeFlags struct {
	SocketPath  string
	RemoveStale *bool
	Policy      string
}

// SendFlags describes one client exchange.
type SendFlags struct {
	SocketPath string
	ID         string
	Raw        string
	Timeout    time.Duration
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	HelpText   string
	Serve      ServeFlags
	Send       SendFlags
}

const DefaultSendTimeout = 10 * time.Second

// Parse maps argv onto the command tree without running anything.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	root := newRoot("rstd", &parsed)
	root.SetArgs(append([]string{}, args...))
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	if err := root.Execute(); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

// HelpText renders the top-level usage.
func HelpText(binaryName string) string {
	var parsed Parsed
	return helpFor(newRoot(binaryName, &parsed))
}

func newRoot(binaryName string, parsed *Parsed) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   binaryName + " <command>",
		Short: "Local unix-socket request/response server",
		Long: `rstd listens on a unix socket, serves one client at a time, and answers
each JSON request with paced "Processing" frames followed by one terminal frame.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(*cobra.Command, []string) error {
			if showVersion {
				parsed.Command = CommandVersion
				parsed.ShowHelp = false
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&parsed.ConfigPath, "config", "", "Config file path (default: $XDG_CONFIG_HOME/rstd/config.toml)")
	root.Flags().BoolVar(&showVersion, "version", false, "Show version")
	root.SetHelpFunc(func(c *cobra.Command, _ []string) {
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
		parsed.HelpText = helpFor(c)
	})

	root.AddCommand(
		newServeCommand(parsed),
		newSendCommand(parsed),
		leafCommand(parsed, CommandStatus, "Query the health endpoint of a running server"),
		leafCommand(parsed, CommandDoctor, "Run configuration and environment checks"),
		leafCommand(parsed, CommandVersion, "Print version information"),
	)
	return root
}

func newServeCommand(parsed *Parsed) *cobra.Command {
	var removeStale bool
	cmd := &cobra.Command{
		Use:   string(CommandServe),
		Short: "Listen on the socket and serve clients one at a time",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if c.Flags().Changed("remove-stale") {
				parsed.Serve.RemoveStale = &removeStale
			}
			selectCommand(parsed, CommandServe)
			return nil
		},
	}
	cmd.Flags().StringVarP(&parsed.Serve.SocketPath, "socket", "s", "", "Socket path (overrides socket.path)")
	cmd.Flags().BoolVar(&removeStale, "remove-stale", false, "Remove a dead socket left at the path (overrides socket.remove_stale)")
	cmd.Flags().StringVar(&parsed.Serve.Policy, "policy", "", "Connection error policy: fatal or isolate (overrides server.error_policy)")
	return cmd
}

func newSendCommand(parsed *Parsed) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(CommandSend),
		Short: "Send one request and print every response frame",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			selectCommand(parsed, CommandSend)
			return nil
		},
	}
	cmd.Flags().StringVarP(&parsed.Send.SocketPath, "socket", "s", "", "Socket path (default: socket.path)")
	cmd.Flags().StringVar(&parsed.Send.ID, "id", "request", "Request id")
	cmd.Flags().StringVar(&parsed.Send.Raw, "raw", "", "Send this payload verbatim instead of {\"id\": ...}")
	cmd.Flags().DurationVar(&parsed.Send.Timeout, "timeout", DefaultSendTimeout, "Exchange deadline")
	return cmd
}

func leafCommand(parsed *Parsed, command Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(command),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			selectCommand(parsed, command)
			return nil
		},
	}
}

func selectCommand(parsed *Parsed, command Command) {
	parsed.Command = command
	parsed.ShowHelp = false
}

func helpFor(c *cobra.Command) string {
	var b bytes.Buffer
	if desc := strings.TrimSpace(c.Long); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	} else if desc := strings.TrimSpace(c.Short); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	}
	b.WriteString(c.UsageString())
	return b.String()
}
