//go:build !unix

package ipc

import (
	"errors"
	"net"
	"time"
)

func acceptNonBlocking(l *net.UnixListener) (*net.UnixConn, error) {
	if err := l.SetDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return nil, err
	}
	defer func() { _ = l.SetDeadline(time.Time{}) }()

	conn, err := l.AcceptUnix()
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil, ErrWouldBlock
	}
	return conn, err
}
