//go:build linux

package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

func peerCredentials(conn *net.UnixConn, peer *Peer) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}

	var (
		cred    *unix.Ucred
		credErr error
	)
	if ctrlErr := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); ctrlErr != nil || credErr != nil {
		return
	}

	peer.Credentialed = true
	peer.PID = cred.Pid
	peer.UID = cred.Uid
	peer.GID = cred.Gid
}
