package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kftray/kftray-core/internal/helper/server"
	"github.com/kftray/kftray-core/internal/hostsfile"
	"github.com/kftray/kftray-core/internal/model"
)

func startServer(t *testing.T) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "helper.sock")
	s := server.New(socketPath)
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
		c := New("test", socketPath)
		return c.IsAvailable()
	}, time.Second, 5*time.Millisecond)

	return socketPath
}

func TestPingSucceedsAgainstRunningServer(t *testing.T) {
	sock := startServer(t)
	c := New("test-app", sock)

	assert.True(t, c.Ping(context.Background()))
}

func TestPingFailsWhenUnreachable(t *testing.T) {
	c := New("test-app", filepath.Join(t.TempDir(), "nonexistent.sock"))

	assert.False(t, c.Ping(context.Background()))
}

func TestAllocateThenReleaseAddress(t *testing.T) {
	sock := startServer(t)
	c := New("test-app", sock)

	addr, err := c.AllocateAddress(context.Background(), "kftray-1")
	require.NoError(t, err)
	assert.NotEmpty(t, addr)

	assert.NoError(t, c.ReleaseAddress(context.Background(), addr))
}

func TestRemoveLoopbackAddressOnNotFoundIsSuccess(t *testing.T) {
	sock := startServer(t)
	c := New("test-app", sock)

	err := c.RemoveLoopbackAddress(context.Background(), "127.0.0.9")
	assert.NoError(t, err)
}

func TestAddAndRemoveHostEntry(t *testing.T) {
	sock := startServer(t)
	c := New("test-app", sock)

	entry := model.HostEntry{IP: "127.0.0.2", Hostname: "svc.kftray.local"}
	require.NoError(t, c.AddHostEntry(context.Background(), "5", entry))
	assert.NoError(t, c.RemoveHostEntry(context.Background(), "5"))
}
