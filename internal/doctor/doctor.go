// Package doctor runs readiness diagnostics for config, the socket path, and
// the health endpoint.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/rstd/internal/config"
	"github.com/rbright/rstd/internal/health"
	"github.com/rbright/rstd/internal/ipc"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders one line per check followed by a pass count.
func (r Report) String() string {
	var b strings.Builder
	passed := 0
	for _, check := range r.Checks {
		mark := "FAIL"
		if check.Pass {
			mark = "OK"
			passed++
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", mark, check.Name, check.Message)
	}
	fmt.Fprintf(&b, "%d/%d checks passed", passed, len(r.Checks))
	return b.String()
}

const probeTimeout = 300 * time.Millisecond

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkSocketDir(cfg.Config.Socket.Path))
	checks = append(checks, checkSocketPath(ctx, cfg.Config.Socket))

	if cfg.Config.Health.Enable {
		checks = append(checks, checkHealth(ctx, cfg.Config.HealthPath()))
	}

	return Report{Checks: checks}
}

// checkSocketDir validates that the socket's parent directory is usable.
func checkSocketDir(socketPath string) Check {
	dir := filepath.Dir(socketPath)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Check{Name: "socket.dir", Pass: true, Message: fmt.Sprintf("%s will be created", dir)}
		}
		return Check{Name: "socket.dir", Pass: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: "socket.dir", Pass: false, Message: fmt.Sprintf("%s is not a directory", dir)}
	}

	probe, err := os.CreateTemp(dir, ".rstd-doctor-*")
	if err != nil {
		return Check{Name: "socket.dir", Pass: false, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	return Check{Name: "socket.dir", Pass: true, Message: fmt.Sprintf("%s is writable", dir)}
}

// checkSocketPath reports whether the socket path is free, owned by a live
// server, or left behind by a dead one.
func checkSocketPath(ctx context.Context, socket config.SocketConfig) Check {
	info, err := os.Lstat(socket.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Check{Name: "socket.path", Pass: true, Message: fmt.Sprintf("%s is free", socket.Path)}
		}
		return Check{Name: "socket.path", Pass: false, Message: err.Error()}
	}
	if info.Mode()&os.ModeSocket == 0 {
		return Check{Name: "socket.path", Pass: false, Message: fmt.Sprintf("%s exists and is not a socket", socket.Path)}
	}

	alive, err := ipc.Probe(ctx, socket.Path, probeTimeout)
	if err != nil {
		return Check{Name: "socket.path", Pass: false, Message: err.Error()}
	}
	if alive {
		return Check{Name: "socket.path", Pass: true, Message: fmt.Sprintf("server listening on %s", socket.Path)}
	}
	if socket.RemoveStale {
		return Check{Name: "socket.path", Pass: true, Message: fmt.Sprintf("stale socket at %s will be removed on start", socket.Path)}
	}
	return Check{
		Name:    "socket.path",
		Pass:    false,
		Message: fmt.Sprintf("stale socket at %s; remove it or set socket.remove_stale = true", socket.Path),
	}
}

// checkHealth queries the gRPC health endpoint.
func checkHealth(ctx context.Context, path string) Check {
	status, err := health.Check(ctx, path, time.Second)
	if err != nil {
		return Check{Name: "health", Pass: false, Message: err.Error()}
	}
	return Check{
		Name:    "health",
		Pass:    status == healthpb.HealthCheckResponse_SERVING,
		Message: fmt.Sprintf("%s reports %s", path, status.String()),
	}
}
