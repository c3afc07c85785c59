package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const DefaultSocketPath = "/tmp/rst.sock"

// Options describes the listening endpoint to create.
type Options struct {
	Path        string
	Permissions os.FileMode
	Blocking    bool

	// RemoveStale unlinks a pre-existing socket at Path when no server owns
	// it. Paths that are not sockets are never removed.
	RemoveStale  bool
	ProbeTimeout time.Duration
}

// Endpoint owns the listening socket and its filesystem entry.
type Endpoint struct {
	path     string
	perm     os.FileMode
	blocking bool
	listener *net.UnixListener
	owner    *ownerLock

	closeOnce sync.Once
	closeErr  error
}

// Build takes ownership of the socket path and binds the endpoint. The
// returned Endpoint must be closed; Close also removes the socket path and
// its owner lock.
func Build(ctx context.Context, opts Options) (ep *Endpoint, err error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, newError(KindCreation, "build endpoint", errors.New("socket path is empty"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, newError(KindCreation, "ensure socket dir", err)
	}

	owner, err := acquireOwner(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = owner.release()
		}
	}()

	if opts.RemoveStale {
		if err := removeStale(ctx, path, opts.ProbeTimeout); err != nil {
			return nil, err
		}
	}

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, newError(KindCreation, fmt.Sprintf("listen unix %s", path), err)
	}
	listener.SetUnlinkOnClose(false)

	if err := os.Chmod(path, opts.Permissions); err != nil {
		_ = listener.Close()
		_ = os.Remove(path)
		return nil, newError(KindCreation, fmt.Sprintf("chmod %s %#o", path, opts.Permissions), err)
	}

	return &Endpoint{
		path:     path,
		perm:     opts.Permissions,
		blocking: opts.Blocking,
		listener: listener,
		owner:    owner,
	}, nil
}

func (e *Endpoint) Path() string { return e.path }

func (e *Endpoint) Blocking() bool { return e.blocking }

func (e *Endpoint) Permissions() os.FileMode { return e.perm }

// Accept waits for the next client. A non-blocking endpoint returns
// ErrWouldBlock when no client is pending.
func (e *Endpoint) Accept() (net.Conn, Peer, error) {
	var (
		conn *net.UnixConn
		err  error
	)
	if e.blocking {
		conn, err = e.listener.AcceptUnix()
	} else {
		conn, err = acceptNonBlocking(e.listener)
		if errors.Is(err, ErrWouldBlock) {
			return nil, Peer{}, ErrWouldBlock
		}
	}
	if err != nil {
		return nil, Peer{}, newError(KindAccept, "accept connection", err)
	}

	return conn, describePeer(conn), nil
}

// Close stops listening, removes the socket path and releases ownership. It
// is safe to call more than once.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		err := e.listener.Close()
		if err != nil && errors.Is(err, net.ErrClosed) {
			err = nil
		}
		if removeErr := os.Remove(e.path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("remove socket %s: %w", e.path, removeErr))
		}
		e.closeErr = errors.Join(err, e.owner.release())
	})
	return e.closeErr
}

// Probe reports whether a server owns path. A running rstd server is
// recognized by its owner lock, so the socket is only dialed when no lock is
// held; dialing and hanging up counts as a malformed request to a server.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	held, err := ownerAlive(path)
	if err != nil {
		return false, fmt.Errorf("probe owner lock: %w", err)
	}
	if held {
		return true, nil
	}
	return dialAlive(ctx, path, timeout)
}

// dialAlive reports whether anything accepts connections on path.
func dialAlive(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err == nil {
		_ = conn.Close()
		return true, nil
	}
	if isSocketMissing(err) || isConnectionRefused(err) || isNotSocket(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

// removeStale runs with the owner lock held, so any listener still answering
// on path belongs to some other program.
func removeStale(ctx context.Context, path string, timeout time.Duration) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return newError(KindCreation, fmt.Sprintf("stat %s", path), err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return newError(KindCreation, "remove stale socket", fmt.Errorf("%s exists and is not a socket", path))
	}

	alive, err := dialAlive(ctx, path, timeout)
	if err != nil {
		return newError(KindCreation, fmt.Sprintf("probe existing socket %s", path), err)
	}
	if alive {
		return fmt.Errorf("%w: %s accepts connections", ErrAlreadyRunning, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return newError(KindCreation, fmt.Sprintf("remove stale socket %s", path), err)
	}
	return nil
}

// isSocketMissing reports absent-socket failures.
func isSocketMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// isConnectionRefused reports no-listener failures.
func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// isNotSocket reports paths that exist but are not unix sockets.
func isNotSocket(err error) bool {
	return errors.Is(err, syscall.ENOTSOCK)
}
