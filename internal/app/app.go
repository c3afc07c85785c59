// Package app wires parsed commands to config, logging, and the socket server.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/rstd/internal/cli"
	"github.com/rbright/rstd/internal/config"
	"github.com/rbright/rstd/internal/doctor"
	"github.com/rbright/rstd/internal/health"
	"github.com/rbright/rstd/internal/ipc"
	"github.com/rbright/rstd/internal/logging"
	"github.com/rbright/rstd/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("rstd"))
		return 2
	}

	if parsed.ShowHelp {
		if parsed.HelpText != "" {
			fmt.Fprint(r.Stdout, parsed.HelpText)
		} else {
			fmt.Fprint(r.Stdout, cli.HelpText("rstd"))
		}
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var console io.Writer
	if cfgLoaded.Config.Log.Console && parsed.Command == cli.CommandServe {
		console = r.Stdout
	}
	logRuntime, err := logging.New(logging.Options{Level: cfgLoaded.Config.Log.Level, Console: console})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, parsed.Serve, logger, logRuntime)
	case cli.CommandSend:
		return r.commandSend(ctx, cfgLoaded.Config, parsed.Send)
	case cli.CommandStatus:
		return r.commandStatus(ctx, cfgLoaded.Config)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, flags cli.ServeFlags, logger *slog.Logger, logRuntime logging.Runtime) int {
	settings, err := resolveServe(cfg, flags)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 2
	}

	opts, policy := settings.Endpoint, settings.Policy
	ep, err := ipc.Build(ctx, opts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: could not create the socket: %v\n", err)
		logger.Error("build endpoint failed", "socket", opts.Path, "error", err.Error())
		return 1
	}
	defer func() {
		if closeErr := ep.Close(); closeErr != nil {
			logger.Warn("close endpoint failed", "socket", ep.Path(), "error", closeErr.Error())
		}
	}()

	var healthSrv *health.Server
	if settings.HealthPath != "" {
		healthSrv, err = health.Start(settings.HealthPath, opts.Permissions, logger)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() { _ = healthSrv.Close() }()
	}

	proto := ipc.NewProtocol(logger)
	proto.InterimFrames = cfg.Protocol.InterimFrames
	proto.InterimDelay = cfg.Protocol.InterimDelay.Duration
	proto.MaxRequestBytes = cfg.Protocol.MaxRequestBytes
	proto.Console = logRuntime.Console

	logRuntime.Console.Info().Str("socket", ep.Path()).Msg("Starting the unix socket server, Press Ctrl^C to stop...")
	logger.Info("server started",
		"socket", ep.Path(),
		"permissions", fmt.Sprintf("%#o", opts.Permissions),
		"blocking", opts.Blocking,
		"policy", string(policy),
	)

	if healthSrv != nil {
		healthSrv.SetServing(true)
	}
	serveErr := ipc.Serve(ctx, ep, proto, ipc.ServeOptions{
		Policy:       policy,
		PollInterval: cfg.Socket.PollInterval.Duration,
		Logger:       logger,
		Console:      logRuntime.Console,
	})
	if healthSrv != nil {
		healthSrv.SetServing(false)
	}

	if serveErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", serveErr)
		logger.Error("server stopped", "error", serveErr.Error(), "kind", string(ipc.KindOf(serveErr)))
		return 1
	}
	logger.Info("server stopped")
	return 0
}

// serveSettings is the effective serve configuration after flag overrides.
type serveSettings struct {
	Endpoint ipc.Options
	Policy   ipc.ErrorPolicy
	// HealthPath is empty when the health endpoint is disabled.
	HealthPath string
}

func resolveServe(cfg config.Config, flags cli.ServeFlags) (serveSettings, error) {
	perm, err := config.ParsePermissions(cfg.Socket.Permissions)
	if err != nil {
		return serveSettings{}, fmt.Errorf("socket.permissions: %w", err)
	}

	opts := ipc.Options{
		Path:        cfg.Socket.Path,
		Permissions: perm,
		Blocking:    cfg.Socket.Blocking,
		RemoveStale: cfg.Socket.RemoveStale,
	}
	if flags.SocketPath != "" {
		opts.Path = flags.SocketPath
	}
	if flags.RemoveStale != nil {
		opts.RemoveStale = *flags.RemoveStale
	}

	rawPolicy := cfg.Server.ErrorPolicy
	if flags.Policy != "" {
		rawPolicy = flags.Policy
	}
	policy, err := ipc.ParseErrorPolicy(rawPolicy)
	if err != nil {
		return serveSettings{}, err
	}

	settings := serveSettings{Endpoint: opts, Policy: policy}
	if cfg.Health.Enable {
		settings.HealthPath = cfg.HealthPathFor(opts.Path)
		if err := config.CheckHealthPath(settings.HealthPath, opts.Path); err != nil {
			return serveSettings{}, err
		}
	}
	return settings, nil
}

func (r Runner) commandSend(ctx context.Context, cfg config.Config, flags cli.SendFlags) int {
	path := flags.SocketPath
	if path == "" {
		path = cfg.Socket.Path
	}

	var (
		frames []ipc.Response
		err    error
	)
	if flags.Raw != "" {
		frames, err = ipc.ExchangeRaw(ctx, path, []byte(flags.Raw), flags.Timeout)
	} else {
		frames, err = ipc.Exchange(ctx, path, ipc.Request{ID: flags.ID}, flags.Timeout)
	}

	for _, frame := range frames {
		line, marshalErr := json.Marshal(frame)
		if marshalErr != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", marshalErr)
			return 1
		}
		fmt.Fprintln(r.Stdout, string(line))
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	final, ok := ipc.Terminal(frames)
	if !ok {
		fmt.Fprintln(r.Stderr, "error: connection closed before a terminal frame")
		return 1
	}
	if final.Status != ipc.StatusOk {
		return 1
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context, cfg config.Config) int {
	if !cfg.Health.Enable {
		alive, err := ipc.Probe(ctx, cfg.Socket.Path, 0)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if alive {
			fmt.Fprintln(r.Stdout, "listening")
		} else {
			fmt.Fprintln(r.Stdout, "stopped")
		}
		return 0
	}

	status, err := health.Check(ctx, cfg.HealthPath(), 0)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 1
		}
		if errors.Is(err, health.ErrUnreachable) {
			fmt.Fprintln(r.Stdout, "stopped")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, status.String())
	if status != healthpb.HealthCheckResponse_SERVING {
		return 1
	}
	return 0
}
