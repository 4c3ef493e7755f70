// Package tcp implements the TCP Forwarder (spec §4.3): accept local TCP
// connections and relay bytes to a pod+port over a kube API port-forward
// stream. Where the teacher shells out to `kubectl port-forward`
// (lib/gui.go's handleConnect), this instead opens the SPDY port-forward
// stream directly through client-go's tools/portforward and transport/spdy
// packages, the way the rest of the pack's k8s port-forwarding tools
// (itegmark-nanoporter, knight42-krelay — see go.mod: both pull
// k8s.io/client-go/tools/portforward and moby/spdystream transitively)
// exercise the same client libraries instead of shelling out to kubectl.
package tcp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"

	"github.com/kftray/kftray-core/internal/logging"
	"github.com/kftray/kftray-core/internal/model"
)

// Dialer opens a port-forward stream connection to a single pod+port. It is
// satisfied by client-go's SPDY dialer; tests substitute an in-memory one.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// SPDYDialer opens a real kube API port-forward stream using SPDY upgrade,
// grounded on client-go's transport/spdy.RoundTripperFor + tools/portforward.
type SPDYDialer struct {
	RESTConfig *rest.Config
	Clientset  kubernetes.Interface
	Namespace  string
	PodName    string
	PodPort    int32
}

// Dial opens one stream pair to the pod's port by driving client-go's
// portforward.PortForwarder over a loopback listener it owns internally,
// then connecting to that listener — the standard way to get a plain
// net.Conn out of the streaming API.
func (d SPDYDialer) Dial(ctx context.Context) (net.Conn, error) {
	transport, upgrader, err := spdy.RoundTripperFor(d.RESTConfig)
	if err != nil {
		return nil, fmt.Errorf("building spdy round tripper: %w", err)
	}

	req := d.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(d.Namespace).
		Name(d.PodName).
		SubResource("portforward")

	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, req.URL())

	stopChan := make(chan struct{})
	readyChan := make(chan struct{})

	pf, err := portforward.NewOnAddresses(
		dialer,
		[]string{"127.0.0.1"},
		[]string{fmt.Sprintf("0:%d", d.PodPort)},
		stopChan,
		readyChan,
		io.Discard,
		io.Discard,
	)
	if err != nil {
		close(stopChan)
		return nil, fmt.Errorf("constructing port forwarder: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- pf.ForwardPorts() }()

	select {
	case <-readyChan:
	case err := <-errCh:
		return nil, fmt.Errorf("port forward failed before ready: %w", err)
	case <-ctx.Done():
		close(stopChan)
		return nil, ctx.Err()
	}

	ports, err := pf.GetPorts()
	if err != nil || len(ports) == 0 {
		close(stopChan)
		return nil, fmt.Errorf("no local port allocated for forward: %w", err)
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", ports[0].Local))
	if err != nil {
		close(stopChan)
		return nil, fmt.Errorf("dialing local forward port: %w", err)
	}

	return &stopOnCloseConn{Conn: conn, stop: stopChan, once: new(sync.Once)}, nil
}

// stopOnCloseConn closes the underlying PortForwarder's stop channel exactly
// once when the connection is closed, so one TCP connection from a client
// maps to exactly one kube port-forward stream, torn down with it.
type stopOnCloseConn struct {
	net.Conn
	stop chan struct{}
	once *sync.Once
}

func (c *stopOnCloseConn) Close() error {
	c.once.Do(func() { close(c.stop) })
	return c.Conn.Close()
}

// Forwarder accepts local TCP connections on a listener and relays bytes to
// the dialer's target, one pair of copy loops per connection sharing a
// single cancellation per connection (spec §4.3 steps 3-4).
//
// Observer, if set, taps both directions of each connection so an HTTP
// Observer can reconstruct request/response records without altering the
// bytes in flight (spec §4.3 step 5).
type Forwarder struct {
	Listener net.Listener
	Dialer   Dialer
	ConfigID int64
	Observer ConnObserver
}

// ConnObserver receives a copy of bytes flowing in each direction of one
// forwarded connection. Implementations must not block the copy loop.
type ConnObserver interface {
	Observe(clientToRemote, remoteToClient io.Writer) (tapClientToRemote, tapRemoteToClient io.Writer)
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. Each connection's forwarding errors are reported to onError but
// never stop the listener loop.
func (f *Forwarder) Serve(ctx context.Context, onError func(error)) error {
	for {
		conn, err := f.Listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		go f.handleConn(ctx, conn, onError)
	}
}

func (f *Forwarder) handleConn(ctx context.Context, clientConn net.Conn, onError func(error)) {
	defer clientConn.Close()

	remoteConn, err := f.Dialer.Dial(ctx)
	if err != nil {
		logging.LogForwardOperation("open_stream", f.ConfigID, "", 0, err)
		if onError != nil {
			onError(err)
		}
		return
	}
	defer remoteConn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var toRemote, toClient io.Writer = remoteConn, clientConn
	if f.Observer != nil {
		toRemote, toClient = f.Observer.Observe(remoteConn, clientConn)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		io.Copy(toRemote, clientConn) //nolint:errcheck
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		io.Copy(toClient, remoteConn) //nolint:errcheck
	}()

	go func() {
		<-connCtx.Done()
		clientConn.Close()
		remoteConn.Close()
	}()

	wg.Wait()
}

// BindListener opens the local TCP listener for addr:port. Bind failure is
// fatal for the session and is not retried by the forwarder itself (spec
// §4.3).
func BindListener(addr string, port int) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf("%s:%d", addr, port))
}

// NewSPDYDialer builds the stream dialer for a resolved pod target.
func NewSPDYDialer(restConfig *rest.Config, clientset kubernetes.Interface, namespace string, pod model.TargetPod) SPDYDialer {
	return SPDYDialer{
		RESTConfig: restConfig,
		Clientset:  clientset,
		Namespace:  namespace,
		PodName:    pod.PodName,
		PodPort:    pod.ContainerPort,
	}
}
