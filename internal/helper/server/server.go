// Package server implements the Helper Server (spec §4.9): the privileged
// daemon that accepts connection-per-request JSON messages over a unix
// domain socket and executes the network/address/hosts/service operations
// an unprivileged client cannot perform itself. Grounded on
// original_source's kftray-helper communication/dispatch flow (lib.rs,
// platforms/common.rs), restructured around Go's net.Listener accept loop
// in place of the original's tokio listener task.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/helper/protocol"
	"github.com/kftray/kftray-core/internal/hostsfile"
	"github.com/kftray/kftray-core/internal/logging"
	"github.com/kftray/kftray-core/internal/model"
)

// Server is the helper's accept loop: one task per spec §5 ("one accept
// task plus one task per in-flight request").
type Server struct {
	SocketPath string
	Pool       *AddressPool
	Network    *NetworkManager
	Hosts      hostsfile.Manager

	listener *net.UnixListener
	stopCh   chan struct{}
	nextConn atomic.Int64
}

// New constructs a Server over the given socket path with fresh pool,
// network, and hosts-file state.
func New(socketPath string) *Server {
	return &Server{
		SocketPath: socketPath,
		Pool:       NewAddressPool(),
		Network:    NewNetworkManager(),
		Hosts:      hostsfile.NewDirectManager(hostsfile.DefaultPath()),
		stopCh:     make(chan struct{}),
	}
}

// Serve binds the socket and accepts connections until Stop is called or
// ctx is cancelled. Any stale socket file is removed first, matching the
// original's initialize_components.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.SocketPath)

	addr, err := net.ResolveUnixAddr("unix", s.SocketPath)
	if err != nil {
		return err
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return err
	}
	s.listener = listener
	defer listener.Close()

	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-s.stopCh:
			listener.Close()
		}
	}()

	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-s.stopCh:
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// Stop causes Serve to return by closing the listener.
func (s *Server) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

func (s *Server) handleConn(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()

	ownerID := fmt.Sprintf("conn-%d", s.nextConn.Add(1))
	defer s.Pool.ReleaseOwner(ownerID)

	if !sameUserPeer(conn) {
		logging.Warn("rejected helper connection from different user")
		return
	}

	_ = conn.SetDeadline(time.Now().Add(protocol.RequestTimeout))

	req, err := protocol.ReadRequest(conn)
	if err != nil {
		_ = protocol.WriteMessage(conn, model.HelperResponse{Result: model.ErrorResult(err.Error())})
		return
	}

	result := s.dispatch(ctx, ownerID, req)
	_ = protocol.WriteMessage(conn, model.HelperResponse{RequestID: req.RequestID, Result: result})
}

func (s *Server) dispatch(ctx context.Context, ownerID string, req model.HelperMessage) model.HelperResult {
	cmd := req.Command

	switch {
	case cmd.Ping:
		return model.StringSuccess("pong")

	case cmd.Network != nil:
		return s.dispatchNetwork(ctx, cmd.Network)

	case cmd.Address != nil:
		return s.dispatchAddress(cmd.Address, ownerID)

	case cmd.Host != nil:
		return s.dispatchHost(cmd.Host)

	case cmd.Service != nil:
		return s.dispatchService(cmd.Service)

	default:
		return model.ErrorResult(forwarderrors.ErrInvalidMessage.Error())
	}
}

func (s *Server) dispatchNetwork(ctx context.Context, cmd *model.NetworkCommand) model.HelperResult {
	switch cmd.Op {
	case "add":
		if err := s.Network.Add(ctx, cmd.Address); err != nil {
			return model.ErrorResult(err.Error())
		}
		return model.Success()
	case "remove":
		if err := s.Network.Remove(ctx, cmd.Address); err != nil {
			return model.ErrorResult(err.Error())
		}
		return model.Success()
	case "list":
		return model.ListSuccess(s.Network.List())
	default:
		return model.ErrorResult("unknown network op " + cmd.Op)
	}
}

func (s *Server) dispatchAddress(cmd *model.AddressCommand, ownerID string) model.HelperResult {
	switch cmd.Op {
	case "allocate":
		addr, err := s.Pool.Allocate(cmd.ServiceName, ownerID)
		if err != nil {
			return model.ErrorResult(err.Error())
		}
		return model.StringSuccess(addr)
	case "release":
		if err := s.Pool.Release(cmd.Address); err != nil {
			return model.ErrorResult(err.Error())
		}
		return model.Success()
	case "list":
		allocations := s.Pool.List()
		out := make([]model.AddressAllocation, 0, len(allocations))
		for _, a := range allocations {
			out = append(out, model.AddressAllocation{ServiceName: a.ServiceName, Address: a.Address})
		}
		return model.AllocationsSuccess(out)
	default:
		return model.ErrorResult("unknown address op " + cmd.Op)
	}
}

func (s *Server) dispatchHost(cmd *model.HostCommand) model.HelperResult {
	switch cmd.Op {
	case "add":
		if cmd.Entry == nil {
			return model.ErrorResult("host add requires an entry")
		}
		if err := s.Hosts.Add(cmd.ID, *cmd.Entry); err != nil {
			return model.ErrorResult(err.Error())
		}
		return model.Success()
	case "remove":
		if err := s.Hosts.Remove(cmd.ID); err != nil {
			return model.ErrorResult(err.Error())
		}
		return model.Success()
	case "remove_all":
		if err := s.Hosts.RemoveAll(); err != nil {
			return model.ErrorResult(err.Error())
		}
		return model.Success()
	case "list":
		records, err := s.Hosts.List()
		if err != nil {
			return model.ErrorResult(err.Error())
		}
		return model.HostEntriesSuccess(records)
	default:
		return model.ErrorResult("unknown host op " + cmd.Op)
	}
}

func (s *Server) dispatchService(cmd *model.ServiceCommand) model.HelperResult {
	switch cmd.Op {
	case "status":
		return model.StringSuccess("running")
	case "stop":
		go s.Stop()
		return model.Success()
	case "restart":
		return model.ErrorResult("restart must be performed by the installer, not the running process")
	default:
		return model.ErrorResult("unknown service op " + cmd.Op)
	}
}
