//go:build linux

package server

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// sameUserPeer reports whether conn's connecting process runs as the
// current effective uid, using SO_PEERCRED (spec §4.9 Authorisation: "the
// helper accepts a client only when the connecting process's peer
// credentials are owned by the same user as the helper's installer").
func sameUserPeer(conn *net.UnixConn) bool {
	raw, err := conn.SyscallConn()
	if err != nil {
		return false
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil || cred == nil {
		return false
	}

	return int(cred.Uid) == os.Geteuid()
}
