// Package udp implements the UDP Forwarder (spec §4.4): relay UDP datagrams
// to an in-cluster proxy pod over the same kube API TCP port-forward stream
// the TCP Forwarder uses, framing each datagram with a 4-byte big-endian
// length prefix since the SPDY stream itself is TCP-shaped and cannot carry
// datagram boundaries on its own. Grounded on the teacher's bidirectional
// io.Copy pattern in lib/gui.go's handleConnect, generalized to
// frame-aware copy loops instead of a raw byte pipe.
package udp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/kftray/kftray-core/internal/logging"
)

const maxDatagramSize = 65507

// StreamDialer opens the single TCP port-forward stream to the in-cluster
// proxy pod that relays framed UDP datagrams (spec §4.4 step 1). It is the
// same Dialer shape as the TCP forwarder's, reused here under its own name
// to keep this package's public surface self-contained.
type StreamDialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// Forwarder binds a local UDP socket and relays datagrams to/from the
// framed TCP stream opened by Dialer, one stream shared by every client
// address seen on the local socket (spec §4.4 steps 2-4).
type Forwarder struct {
	Conn     *net.UDPConn
	Dialer   StreamDialer
	ConfigID int64
}

// BindListener opens the local UDP socket for addr:port.
func BindListener(addr string, port int) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, fmt.Errorf("resolving udp addr: %w", err)
	}
	return net.ListenUDP("udp", udpAddr)
}

// Serve opens the framed TCP stream and relays datagrams until ctx is
// cancelled. It returns once either direction's copy loop exits.
func (f *Forwarder) Serve(ctx context.Context) error {
	stream, err := f.Dialer.Dial(ctx)
	if err != nil {
		logging.LogForwardOperation("open_udp_stream", f.ConfigID, "", 0, err)
		return fmt.Errorf("opening udp proxy stream: %w", err)
	}
	defer stream.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lastClient := make(chan *net.UDPAddr, 1)

	go func() {
		<-streamCtx.Done()
		f.Conn.Close()
		stream.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	var readErr, writeErr error

	go func() {
		defer wg.Done()
		defer cancel()
		readErr = f.localToStream(stream, lastClient)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		writeErr = f.streamToLocal(stream, lastClient)
	}()

	wg.Wait()

	if readErr != nil && readErr != io.EOF {
		return readErr
	}
	if writeErr != nil && writeErr != io.EOF {
		return writeErr
	}
	return nil
}

// localToStream reads datagrams from the local UDP socket and writes each as
// a length-prefixed frame onto stream, remembering the sender address so
// replies can be routed back (spec §4.4 steps 2, 4).
func (f *Forwarder) localToStream(stream net.Conn, lastClient chan<- *net.UDPAddr) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, clientAddr, err := f.Conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}

		select {
		case lastClient <- clientAddr:
		default:
			select {
			case <-lastClient:
			default:
			}
			lastClient <- clientAddr
		}

		if err := writeFrame(stream, buf[:n]); err != nil {
			return err
		}
	}
}

// streamToLocal reads length-prefixed frames from stream and writes each as
// a UDP datagram back to the most recent client address (spec §4.4 step 3).
func (f *Forwarder) streamToLocal(stream net.Conn, lastClient <-chan *net.UDPAddr) error {
	var addr *net.UDPAddr
	for {
		frame, err := readFrame(stream)
		if err != nil {
			return err
		}

		select {
		case addr = <-lastClient:
		default:
		}
		if addr == nil {
			continue
		}

		if _, err := f.Conn.WriteToUDP(frame, addr); err != nil {
			return err
		}
	}
}

func writeFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxDatagramSize {
		return nil, fmt.Errorf("frame size %d exceeds max datagram size", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
