package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kftray/kftray-core/internal/helper/protocol"
	"github.com/kftray/kftray-core/internal/hostsfile"
	"github.com/kftray/kftray-core/internal/model"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "helper.sock")
	s := New(socketPath)
	s.Hosts = hostsfile.NewDirectManager(filepath.Join(t.TempDir(), "hosts"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, time.Second, 5*time.Millisecond)

	return s, socketPath
}

func roundTrip(t *testing.T, socketPath string, cmd model.HelperCommand) model.HelperResponse {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	req := protocol.NewRequest("test-client", cmd)
	require.NoError(t, protocol.WriteMessage(conn, req))

	resp, err := protocol.ReadResponse(conn, req.RequestID)
	require.NoError(t, err)
	return resp
}

func TestPingReturnsPong(t *testing.T) {
	_, sock := startTestServer(t)

	resp := roundTrip(t, sock, model.HelperCommand{Ping: true})
	assert.Equal(t, model.ResultStringSuccess, resp.Result.Kind)
	assert.Equal(t, "pong", resp.Result.String)
}

func TestAddressAllocateAndList(t *testing.T) {
	_, sock := startTestServer(t)

	resp := roundTrip(t, sock, model.HelperCommand{Address: &model.AddressCommand{Op: "allocate", ServiceName: "kftray-1"}})
	require.Equal(t, model.ResultStringSuccess, resp.Result.Kind)
	assert.NotEmpty(t, resp.Result.String)

	listResp := roundTrip(t, sock, model.HelperCommand{Address: &model.AddressCommand{Op: "list"}})
	require.Equal(t, model.ResultAllocationsSuccess, listResp.Result.Kind)
	assert.Len(t, listResp.Result.Allocations, 1)
}

func TestHostAddRemove(t *testing.T) {
	_, sock := startTestServer(t)

	addResp := roundTrip(t, sock, model.HelperCommand{Host: &model.HostCommand{
		Op: "add", ID: "7", Entry: &model.HostEntry{IP: "127.0.0.2", Hostname: "db.kftray.local"},
	}})
	require.Equal(t, model.ResultSuccess, addResp.Result.Kind)

	listResp := roundTrip(t, sock, model.HelperCommand{Host: &model.HostCommand{Op: "list"}})
	require.Equal(t, model.ResultHostEntriesSuccess, listResp.Result.Kind)
	require.Len(t, listResp.Result.HostEntries, 1)
	assert.Equal(t, "db.kftray.local", listResp.Result.HostEntries[0].Entry.Hostname)

	removeResp := roundTrip(t, sock, model.HelperCommand{Host: &model.HostCommand{Op: "remove", ID: "7"}})
	assert.Equal(t, model.ResultSuccess, removeResp.Result.Kind)
}

func TestRemovingMissingHostIsSuccess(t *testing.T) {
	_, sock := startTestServer(t)

	resp := roundTrip(t, sock, model.HelperCommand{Host: &model.HostCommand{Op: "remove", ID: "missing"}})
	assert.Equal(t, model.ResultSuccess, resp.Result.Kind)
}
