// Package supervisor implements the Forward Supervisor (spec §4.6): a
// per-configuration task driving resolve -> bind -> serve, restarting on
// failure with exponential backoff. Grounded on the teacher's
// handleConnect/handleDisconnect process-monitoring goroutine in
// lib/gui.go (resolve client, start forwarding, watch for exit, clean up,
// log every transition through internal/logging), generalized from one
// exec.Command("kubectl", "port-forward", ...) process into the full
// pessimistic state machine the specification calls for.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kftray/kftray-core/internal/eventbus"
	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/kubecache"
	"github.com/kftray/kftray-core/internal/logging"
	"github.com/kftray/kftray-core/internal/model"
	"k8s.io/client-go/kubernetes"
)

const (
	initialBackoff   = 200 * time.Millisecond
	maxBackoff       = 30 * time.Second
	cleanRunResetAge = 30 * time.Second
)

// ClientProvider obtains an authenticated cluster handle, satisfied by
// *kubecache.Cache.
type ClientProvider interface {
	Get(ctx context.Context, key kubecache.Key) (*kubecache.Client, error)
}

// PodResolver resolves a Target into a TargetPod, satisfied by the
// resolver package's Resolve function via ResolverFunc.
type PodResolver interface {
	Resolve(ctx context.Context, clientset kubernetes.Interface, target model.Target) (model.TargetPod, error)
}

// ResolverFunc adapts a plain function to PodResolver.
type ResolverFunc func(ctx context.Context, clientset kubernetes.Interface, target model.Target) (model.TargetPod, error)

func (f ResolverFunc) Resolve(ctx context.Context, clientset kubernetes.Interface, target model.Target) (model.TargetPod, error) {
	return f(ctx, clientset, target)
}

// ForwardSession is one bound, running forward (TCP, UDP, or expose-backed).
// Serve blocks until the session ends, either because ctx was cancelled
// (a clean stop) or because of a forwarding error (a failure to recover
// from with a restart).
type ForwardSession interface {
	Serve(ctx context.Context) error
	Close() error
}

// ForwardOpener binds the local listener/socket for cfg against the
// resolved pod and returns a ForwardSession ready to Serve. Bind failures
// are classified via forwarderrors.ErrAddressInUse / ErrPermissionDenied
// to decide whether the supervisor retries (spec §7).
type ForwardOpener interface {
	Open(ctx context.Context, cfg model.Configuration, pod model.TargetPod, client *kubecache.Client) (ForwardSession, error)
}

// HelperClient is the subset of the Helper Protocol the supervisor needs
// during binding: loopback address allocation and hosts-file registration
// (spec §4.6 "binding" transition).
type HelperClient interface {
	AllocateAddress(ctx context.Context, serviceName string) (string, error)
	ReleaseAddress(ctx context.Context, address string) error
	AddHostEntry(ctx context.Context, id string, entry model.HostEntry) error
	RemoveHostEntry(ctx context.Context, id string) error
}

// StateStore persists the (running, owning_pid) tuple, satisfied by the
// store package's ConfigStore.
type StateStore interface {
	UpdateState(ctx context.Context, id int64, running bool, pid int) error
}

// Dependencies are the collaborators a Supervisor drives through one
// configuration's lifecycle. Helper may be nil for configs that never need
// loopback aliasing or hosts entries.
type Dependencies struct {
	Clients  ClientProvider
	Resolver PodResolver
	Opener   ForwardOpener
	Helper   HelperClient
	Store    StateStore
	Events   *eventbus.Bus
}

// Supervisor drives one Configuration through idle -> resolving -> binding
// -> serving -> stopping/failed, per spec §4.6.
type Supervisor struct {
	config model.Configuration
	deps   Dependencies

	mu      sync.Mutex
	state   model.RunState
	reason  string
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	restart chan struct{}

	backoffCurrent   time.Duration
	servingSince     time.Time
	allocatedAddress string
}

// New constructs a Supervisor for cfg. It starts idle.
func New(cfg model.Configuration, deps Dependencies) *Supervisor {
	return &Supervisor{
		config:         cfg,
		deps:           deps,
		state:          model.StateIdle,
		backoffCurrent: initialBackoff,
		restart:        make(chan struct{}, 1),
	}
}

// State returns the current state and, if failed, the failure reason.
func (s *Supervisor) State() (model.RunState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

// Start begins the supervisor loop. Calling Start while already running is
// a no-op returning nil (testable property 1).
func (s *Supervisor) Start(ctx context.Context, ownerPID int) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	opLog, runCtx := logging.StartOperation(runCtx, "supervisor", "run")

	go func() {
		defer close(s.done)
		s.run(runCtx, ownerPID)
		opLog.Complete("stopped", nil)
	}()

	return nil
}

// Stop cancels the forwarder, awaits its exit, releases helper-owned
// resources, and emits running=false (spec §4.6 "stop"). Stop is
// idempotent.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.setStateLocked(model.StateIdle, "")
	s.mu.Unlock()

	return nil
}

// TriggerRestart requests an immediate restart, bypassing any pending
// backoff sleep. Used for the network up-edge bulk restart and explicit
// restart commands (spec §4.6 restart triggers b, c).
func (s *Supervisor) TriggerRestart() {
	select {
	case s.restart <- struct{}{}:
	default:
	}
}

func (s *Supervisor) setStateLocked(st model.RunState, reason string) {
	s.state = st
	s.reason = reason
}

func (s *Supervisor) setState(st model.RunState, reason string) {
	s.mu.Lock()
	s.setStateLocked(st, reason)
	s.mu.Unlock()

	if s.deps.Events != nil {
		s.deps.Events.Publish(s.config.ID, st == model.StateServing)
	}
}

func (s *Supervisor) run(ctx context.Context, ownerPID int) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.attempt(ctx, ownerPID); err != nil {
			if ctx.Err() != nil {
				return
			}

			var fatal fatalBindError
			if errors.As(err, &fatal) {
				s.setState(model.StateFailed, err.Error())
				s.updateStore(ctx, false, 0)
				return
			}

			// Evaluate the clean-run reset now, against the servingSince this
			// failed attempt stamped (or the previous attempt's, if this one
			// never reached serving), before waitBackoffOrRestart grows the
			// backoff for the next try.
			s.resetBackoffIfStable()

			s.setState(model.StateFailed, err.Error())
			s.updateStore(ctx, false, 0)

			if !s.waitBackoffOrRestart(ctx) {
				return
			}
			continue
		}

		// attempt returned nil only via an explicit restart trigger or
		// context cancellation observed inside Serve; loop to retry
		// immediately without backoff.
		if ctx.Err() != nil {
			return
		}
	}
}

// attempt runs one full resolve -> bind -> serve cycle and blocks for the
// duration of serving. A nil return means the session ended because of a
// restart trigger or context cancellation, not a failure.
func (s *Supervisor) attempt(ctx context.Context, ownerPID int) error {
	s.setState(model.StateResolving, "")

	key := kubecache.Key{KubeconfigPath: s.config.KubeconfigPath, Context: s.config.Context}
	client, err := s.deps.Clients.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("obtaining kube client: %w", err)
	}

	// Proxy-workload configs have no pre-existing target to resolve: the
	// Opener deploys the in-cluster proxy and discovers its own pod as
	// part of binding (spec §4.7).
	var pod model.TargetPod
	if s.config.WorkloadType != model.WorkloadProxy {
		target := model.Target{
			Selector:  s.config.Selector(),
			Port:      s.config.Port(),
			Namespace: s.config.Namespace,
		}

		var err error
		pod, err = s.deps.Resolver.Resolve(ctx, client.Clientset, target)
		if err != nil {
			return fmt.Errorf("resolving target: %w", err)
		}
	}

	s.setState(model.StateBinding, "")

	if err := s.bindHelperResources(ctx); err != nil {
		return fmt.Errorf("binding helper resources: %w", err)
	}

	session, err := s.deps.Opener.Open(ctx, s.config, pod, client)
	if err != nil {
		if isFatalBindError(err) {
			s.releaseHelperResources(context.Background())
			return fatalBindError{err}
		}
		s.releaseHelperResources(context.Background())
		return fmt.Errorf("opening forward: %w", err)
	}
	defer session.Close()

	s.mu.Lock()
	s.servingSince = time.Now()
	s.mu.Unlock()

	s.setState(model.StateServing, "")
	s.updateStore(ctx, true, ownerPID)

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- session.Serve(serveCtx) }()

	select {
	case <-ctx.Done():
		s.setState(model.StateStopping, "")
		<-serveErrCh
		s.releaseHelperResources(context.Background())
		return nil
	case <-s.restart:
		cancelServe()
		<-serveErrCh
		s.setState(model.StateStopping, "")
		return nil
	case err := <-serveErrCh:
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("serving forward: %w", err)
	}
}

func (s *Supervisor) bindHelperResources(ctx context.Context) error {
	if s.deps.Helper == nil {
		return nil
	}

	if s.config.AutoLoopbackAddress {
		addr, err := s.deps.Helper.AllocateAddress(ctx, s.config.ServiceKeyName())
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.allocatedAddress = addr
		s.mu.Unlock()
	}

	if s.config.DomainEnabled && s.config.Alias != "" {
		entry := model.HostEntry{IP: "127.0.0.1", Hostname: s.config.Alias}
		if err := s.deps.Helper.AddHostEntry(ctx, s.config.HostsID(), entry); err != nil {
			return err
		}
	}

	return nil
}

func (s *Supervisor) releaseHelperResources(ctx context.Context) {
	if s.deps.Helper == nil {
		return
	}
	if s.config.AutoLoopbackAddress {
		s.mu.Lock()
		addr := s.allocatedAddress
		s.allocatedAddress = ""
		s.mu.Unlock()

		if addr != "" {
			if err := s.deps.Helper.ReleaseAddress(ctx, addr); err != nil {
				logging.Warn("failed releasing loopback address", "config_id", s.config.ID, "error", err)
			}
		}
	}
	if s.config.DomainEnabled && s.config.Alias != "" {
		if err := s.deps.Helper.RemoveHostEntry(ctx, s.config.HostsID()); err != nil {
			logging.Warn("failed removing hosts entry", "config_id", s.config.ID, "error", err)
		}
	}
}

func (s *Supervisor) updateStore(ctx context.Context, running bool, pid int) {
	if s.deps.Store == nil {
		return
	}
	if err := s.deps.Store.UpdateState(ctx, s.config.ID, running, pid); err != nil {
		logging.Warn("failed updating config state", "config_id", s.config.ID, "error", err)
	}
}

// waitBackoffOrRestart sleeps for the current backoff duration, doubling it
// for next time (capped at 30s), unless a restart is requested or ctx is
// cancelled first. Returns false if the caller should give up.
func (s *Supervisor) waitBackoffOrRestart(ctx context.Context) bool {
	s.mu.Lock()
	d := s.backoffCurrent
	next := d * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	s.backoffCurrent = next
	s.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.restart:
		return true
	case <-timer.C:
		return true
	}
}

// resetBackoffIfStable resets the backoff to its initial value if the run
// that just ended had been serving for at least cleanRunResetAge. Called
// from run()'s failure branch, against the servingSince the ended attempt
// stamped, before the next attempt overwrites it.
func (s *Supervisor) resetBackoffIfStable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.servingSince.IsZero() && time.Since(s.servingSince) >= cleanRunResetAge {
		s.backoffCurrent = initialBackoff
		s.servingSince = time.Time{}
	}
}

type fatalBindError struct{ err error }

func (e fatalBindError) Error() string { return e.err.Error() }
func (e fatalBindError) Unwrap() error { return e.err }

func isFatalBindError(err error) bool {
	return errors.Is(err, forwarderrors.ErrAddressInUse) || errors.Is(err, forwarderrors.ErrPermissionDenied)
}
