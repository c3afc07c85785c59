// Package health exposes the accept loop's liveness over the standard gRPC
// health protocol on a sibling unix socket.
package health

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ErrInUse means another process is already serving on the health socket.
var ErrInUse = errors.New("health socket in use")

const staleDialTimeout = 200 * time.Millisecond

// Service is the health service name reported for the protocol endpoint.
const Service = "rstd.Protocol"

// Server serves grpc.health.v1.Health until closed.
type Server struct {
	path     string
	listener net.Listener
	grpc     *grpc.Server
	health   *grpchealth.Server
	logger   *slog.Logger

	serveErr  chan error
	closeOnce sync.Once
	closeErr  error
}

// Start listens on path and begins serving with Service marked NOT_SERVING.
func Start(path string, perm os.FileMode, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure health socket dir: %w", err)
	}
	if err := clearStale(path); err != nil {
		return nil, err
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen health socket %s: %w", path, err)
	}
	if err := os.Chmod(path, perm); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod health socket %s: %w", path, err)
	}

	hs := grpchealth.NewServer()
	hs.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{
		path:     path,
		listener: listener,
		grpc:     gs,
		health:   hs,
		logger:   logger,
		serveErr: make(chan error, 1),
	}
	go func() {
		s.serveErr <- gs.Serve(listener)
	}()

	logger.Info("health endpoint listening", "socket", path)
	return s, nil
}

// clearStale removes a health socket left behind by a dead server. A path
// that still accepts connections or is not a socket is left alone.
func clearStale(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat health socket %s: %w", path, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("health socket %s exists and is not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, staleDialTimeout)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", ErrInUse, path)
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("probe health socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale health socket %s: %w", path, err)
	}
	return nil
}

func (s *Server) Path() string { return s.path }

// SetServing flips both the overall and the protocol service status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
	s.logger.Debug("health status changed", "status", status.String())
}

// Close stops serving and removes the socket path.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.health.Shutdown()
		s.grpc.GracefulStop()

		err := <-s.serveErr
		if errors.Is(err, grpc.ErrServerStopped) {
			err = nil
		}
		if removeErr := os.Remove(s.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("remove health socket %s: %w", s.path, removeErr))
		}
		s.closeErr = err
	})
	return s.closeErr
}
