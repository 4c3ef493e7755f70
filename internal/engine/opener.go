// Package engine wires the Forward Supervisor's ForwardOpener to the
// concrete TCP/UDP Forwarders and the Expose Deployer (spec §4.3, §4.4,
// §4.7). Grounded on the teacher's handleConnect in lib/gui.go, which
// picked a single forwarding strategy inline; this generalizes that
// dispatch into one Opener serving every (workload_type, protocol)
// combination the specification defines.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"k8s.io/client-go/kubernetes"

	"github.com/kftray/kftray-core/internal/cloudtarget"
	"github.com/kftray/kftray-core/internal/expose"
	"github.com/kftray/kftray-core/internal/forward/tcp"
	"github.com/kftray/kftray-core/internal/forward/udp"
	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/httpobserve"
	"github.com/kftray/kftray-core/internal/kubecache"
	"github.com/kftray/kftray-core/internal/logging"
	"github.com/kftray/kftray-core/internal/model"
	"github.com/kftray/kftray-core/internal/resolver"
	"github.com/kftray/kftray-core/internal/supervisor"
)

// Opener implements supervisor.ForwardOpener over the real TCP/UDP
// forwarders and the expose deployer.
type Opener struct {
	// HTTPLogDir and HTTPLogRotateBytes configure the per-configuration
	// httpobserve.Observer attached when a configuration has
	// http_logs_enabled (spec §4.5). An Observer is built fresh for each
	// session since it is keyed to one (config_id, local_port) pair.
	HTTPLogDir         string
	HTTPLogRotateBytes int64
}

// Open binds the local listener/socket described by cfg and returns a
// ForwardSession ready to Serve (spec §4.3 steps 1-2, §4.4 steps 1-2, §4.7
// steps 1-3).
func (o Opener) Open(ctx context.Context, cfg model.Configuration, pod model.TargetPod, client *kubecache.Client) (supervisor.ForwardSession, error) {
	if cfg.WorkloadType == model.WorkloadProxy {
		return o.openExpose(ctx, cfg, client)
	}

	switch cfg.Protocol {
	case model.ProtocolUDP:
		return o.openUDP(cfg, pod, client)
	default:
		return o.openTCP(cfg, pod, client)
	}
}

func (o Opener) openTCP(cfg model.Configuration, pod model.TargetPod, client *kubecache.Client) (supervisor.ForwardSession, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.EffectiveLocalAddress(), cfg.LocalPort))
	if err != nil {
		return nil, classifyBindError(err)
	}

	var observer tcp.ConnObserver
	if cfg.HTTPLogsEnabled {
		observer = &httpobserve.Observer{
			ConfigID:    cfg.ID,
			LocalPort:   cfg.LocalPort,
			Dir:         o.HTTPLogDir,
			RotateBytes: o.HTTPLogRotateBytes,
		}
	}

	forwarder := &tcp.Forwarder{
		Listener: listener,
		ConfigID: cfg.ID,
		Observer: observer,
		Dialer: tcp.SPDYDialer{
			RESTConfig: client.RESTConfig,
			Clientset:  client.Clientset,
			Namespace:  cfg.Namespace,
			PodName:    pod.PodName,
			PodPort:    pod.ContainerPort,
		},
	}

	return &tcpSession{listener: listener, forwarder: forwarder}, nil
}

func (o Opener) openUDP(cfg model.Configuration, pod model.TargetPod, client *kubecache.Client) (supervisor.ForwardSession, error) {
	conn, err := udp.BindListener(cfg.EffectiveLocalAddress(), cfg.LocalPort)
	if err != nil {
		return nil, classifyBindError(err)
	}

	forwarder := &udp.Forwarder{
		Conn:     conn,
		ConfigID: cfg.ID,
		Dialer: tcp.SPDYDialer{
			RESTConfig: client.RESTConfig,
			Clientset:  client.Clientset,
			Namespace:  cfg.Namespace,
			PodName:    pod.PodName,
			PodPort:    pod.ContainerPort,
		},
	}

	return &udpSession{conn: conn, forwarder: forwarder}, nil
}

// openExpose deploys the in-cluster proxy, resolves its own pod by the
// deployment's app=<name> label, and opens a TCP forward to it, or a framed
// UDP forward for UDP configurations (spec §4.7 steps 1-3).
func (o Opener) openExpose(ctx context.Context, cfg model.Configuration, client *kubecache.Client) (supervisor.ForwardSession, error) {
	if cfg.CloudTarget != nil {
		endpoint, err := cloudtarget.ResolveRDSEndpoint(ctx, cloudtarget.Options{
			Region:  cfg.CloudTarget.Region,
			Profile: cfg.CloudTarget.Profile,
		}, cfg.CloudTarget.Identifier)
		if err != nil {
			return nil, fmt.Errorf("resolving cloud target: %w", err)
		}
		cfg.RemoteAddress = endpoint.Address
		cfg.RemotePort.Number = endpoint.Port
	}

	dep, err := expose.Deploy(ctx, client.Clientset, cfg)
	if err != nil {
		return nil, fmt.Errorf("deploying expose proxy: %w", err)
	}

	pod, err := resolveExposedPod(ctx, client.Clientset, cfg.Namespace, dep.Name, dep.ServicePort)
	if err != nil {
		_ = expose.Teardown(context.Background(), client.Clientset, dep)
		return nil, fmt.Errorf("resolving exposed proxy pod: %w", err)
	}

	var inner supervisor.ForwardSession
	if cfg.Protocol == model.ProtocolUDP {
		inner, err = o.openUDP(cfg, pod, client)
	} else {
		inner, err = o.openTCP(cfg, pod, client)
	}
	if err != nil {
		_ = expose.Teardown(context.Background(), client.Clientset, dep)
		return nil, err
	}

	return &exposeSession{inner: inner, clientset: client.Clientset, dep: dep}, nil
}

func resolveExposedPod(ctx context.Context, clientset kubernetes.Interface, namespace, name string, servicePort int32) (model.TargetPod, error) {
	target := model.Target{
		Selector:  model.Selector{PodLabel: "app=" + name},
		Port:      model.PortRef{Number: servicePort},
		Namespace: namespace,
	}
	return resolver.Resolve(ctx, clientset, target)
}

// classifyBindError maps a net.Listen/ListenUDP failure onto the fatal
// bind-error sentinels the supervisor uses to skip backoff-retries of a
// port that will never become free (spec §7).
func classifyBindError(err error) error {
	if errors.Is(err, syscall.EADDRINUSE) {
		return fmt.Errorf("%w: %s", forwarderrors.ErrAddressInUse, err)
	}
	if errors.Is(err, syscall.EACCES) {
		return fmt.Errorf("%w: %s", forwarderrors.ErrPermissionDenied, err)
	}
	return err
}

type tcpSession struct {
	listener net.Listener
	forwarder *tcp.Forwarder
}

func (s *tcpSession) Serve(ctx context.Context) error {
	return s.forwarder.Serve(ctx, func(err error) {
		logging.LogForwardOperation("connection_error", s.forwarder.ConfigID, "", 0, err)
	})
}

func (s *tcpSession) Close() error {
	return s.listener.Close()
}

type udpSession struct {
	conn      *net.UDPConn
	forwarder *udp.Forwarder
}

func (s *udpSession) Serve(ctx context.Context) error {
	return s.forwarder.Serve(ctx)
}

func (s *udpSession) Close() error {
	return s.conn.Close()
}

type exposeSession struct {
	inner     supervisor.ForwardSession
	clientset kubernetes.Interface
	dep       *expose.Deployment
}

func (s *exposeSession) Serve(ctx context.Context) error {
	return s.inner.Serve(ctx)
}

func (s *exposeSession) Close() error {
	innerErr := s.inner.Close()
	teardownErr := expose.Teardown(context.Background(), s.clientset, s.dep)
	if innerErr != nil {
		return innerErr
	}
	return teardownErr
}
