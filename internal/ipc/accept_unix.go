//go:build unix

package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// acceptNonBlocking takes a pending connection off the listener's queue
// without parking the goroutine in the runtime poller.
func acceptNonBlocking(l *net.UnixListener) (*net.UnixConn, error) {
	raw, err := l.SyscallConn()
	if err != nil {
		return nil, err
	}

	var (
		nfd       int
		acceptErr error
	)
	if ctrlErr := raw.Control(func(fd uintptr) {
		nfd, _, acceptErr = unix.Accept(int(fd))
	}); ctrlErr != nil {
		return nil, ctrlErr
	}
	if acceptErr != nil {
		if errors.Is(acceptErr, unix.EAGAIN) || errors.Is(acceptErr, unix.EWOULDBLOCK) || errors.Is(acceptErr, unix.EINTR) {
			return nil, ErrWouldBlock
		}
		return nil, os.NewSyscallError("accept", acceptErr)
	}
	unix.CloseOnExec(nfd)

	f := os.NewFile(uintptr(nfd), "rstd-conn")
	defer f.Close()

	c, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		_ = c.Close()
		return nil, fmt.Errorf("accepted %T, want *net.UnixConn", c)
	}
	return uc, nil
}
