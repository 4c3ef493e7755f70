package tcp

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeDialer hands back one side of an in-memory net.Pipe per Dial call, and
// echoes everything written to the other side back reversed-case-free (a
// plain echo), standing in for a real pod-side listener.
type pipeDialer struct{}

func (pipeDialer) Dial(ctx context.Context) (net.Conn, error) {
	client, server := net.Pipe()
	go io.Copy(server, server) //nolint:errcheck
	return client, nil
}

func TestForwarderRelaysBytesBothWays(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &Forwarder{Listener: listener, Dialer: pipeDialer{}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go f.Serve(ctx, nil) //nolint:errcheck

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

type recordingObserver struct {
	c2r, r2c bytes.Buffer
}

func (o *recordingObserver) Observe(clientToRemote, remoteToClient io.Writer) (io.Writer, io.Writer) {
	return io.MultiWriter(clientToRemote, &o.c2r), io.MultiWriter(remoteToClient, &o.r2c)
}

func TestForwarderObserverSeesBothDirections(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	obs := &recordingObserver{}
	f := &Forwarder{Listener: listener, Dialer: pipeDialer{}, Observer: obs}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go f.Serve(ctx, nil) //nolint:errcheck

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 5)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "hello", obs.c2r.String())
	assert.Equal(t, "hello", obs.r2c.String())
}
