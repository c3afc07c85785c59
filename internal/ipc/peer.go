package ipc

import (
	"fmt"
	"net"

	"github.com/google/uuid"
)

// Peer identifies one accepted client connection.
type Peer struct {
	ID   string
	Addr string

	// Credentialed is set when the kernel reported the peer process identity.
	Credentialed bool
	PID          int32
	UID          uint32
	GID          uint32
}

func (p Peer) String() string {
	addr := p.Addr
	if addr == "" {
		addr = "@"
	}
	if !p.Credentialed {
		return fmt.Sprintf("%s addr=%s", p.ID, addr)
	}
	return fmt.Sprintf("%s addr=%s pid=%d uid=%d gid=%d", p.ID, addr, p.PID, p.UID, p.GID)
}

func describePeer(conn *net.UnixConn) Peer {
	peer := Peer{ID: uuid.NewString()}
	if addr := conn.RemoteAddr(); addr != nil {
		peer.Addr = addr.String()
	}
	peerCredentials(conn, &peer)
	return peer
}
