// Package netmonitor implements the Network Supervisor (spec §4.8): a
// single cooperative loop that probes connectivity and, on a down->up
// transition that has stayed up for sleep_up, broadcasts a network-up
// notification for bulk restart. Grounded closely on original_source's
// kftray-network-monitor crate (types.MonitorConfig/TaskState, network.rs's
// concurrent TCP-connect probing, controller.rs's start/stop/restart
// idempotence), translated from tokio tasks into goroutines the way the
// rest of this module translates the original's async Rust into Go's
// goroutine-and-channel idiom.
package netmonitor

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/logging"
)

// Config mirrors the original's MonitorConfig defaults (spec §4.8, §5).
type Config struct {
	NetworkTimeout  time.Duration
	MonitorInterval time.Duration
	SleepUp         time.Duration
	SleepDown       time.Duration
	Endpoints       []string
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		NetworkTimeout:  200 * time.Millisecond,
		MonitorInterval: 2 * time.Second,
		SleepUp:         500 * time.Millisecond,
		SleepDown:       100 * time.Millisecond,
		Endpoints:       []string{"8.8.8.8:53", "1.1.1.1:53", "8.8.4.4:53"},
	}
}

// Dialer opens a TCP connection for a connectivity probe. Tests substitute
// a fake; production uses net.Dialer.DialContext.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// taskState mirrors the original's TaskState: tracks the up/down edge and
// whether the current "up" run has been stable long enough to fire yet.
// upFirePending stays true across ticks from the down->up edge until a
// later tick observes networkStableSince old enough to fire, so the fire
// check is decoupled from the edge-detecting tick itself.
type taskState struct {
	lastNetworkState   bool
	networkStableSince time.Time
	upFirePending      bool
	healthCheckRunning bool
	lastHealthCheck    time.Time
}

func (t *taskState) shouldHealthCheck(interval time.Duration) bool {
	if t.healthCheckRunning {
		return false
	}
	return t.lastHealthCheck.IsZero() || time.Since(t.lastHealthCheck) > interval
}

// updateNetworkState records an edge when isUp differs from the last
// observed state. A down->up edge arms upFirePending; the caller fires once
// a later tick finds the stable duration satisfied, then clears it.
func (t *taskState) updateNetworkState(isUp bool) {
	if isUp == t.lastNetworkState {
		return
	}
	t.lastNetworkState = isUp
	if isUp {
		t.networkStableSince = time.Now()
		t.upFirePending = true
		return
	}
	t.networkStableSince = time.Time{}
	t.upFirePending = false
}

// Controller is the process-global Network Supervisor controller (spec §5's
// second sanctioned singleton, alongside the Kube Client Cache). It is
// lazily constructed via New and safe for concurrent Start/Stop/Restart.
type Controller struct {
	cfg    Config
	dialer Dialer
	onUp   func()

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Controller. onUp is invoked once per confirmed down->up
// transition; callers wire this to the Forward Supervisors' bulk restart.
func New(cfg Config, dialer Dialer, onUp func()) *Controller {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &Controller{cfg: cfg, dialer: dialer, onUp: onUp}
}

// Start begins the monitor loop. Calling Start while already running
// returns ErrAlreadyRunning (spec §4.8 "Start is idempotent").
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return forwarderrors.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.mu.Unlock()

	logging.LogNetworkEvent("monitor_start", nil)

	go func() {
		defer close(c.done)
		c.loop(runCtx)
	}()

	return nil
}

// Stop cancels the loop and awaits its exit. Stop when not running returns
// ErrNotRunning (spec §4.8).
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return forwarderrors.ErrNotRunning
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	logging.LogNetworkEvent("monitor_stop", nil)
	return nil
}

// Restart stops (if running) then starts the monitor, mirroring the
// original's best-effort restart semantics.
func (c *Controller) Restart(ctx context.Context) error {
	if c.IsRunning() {
		if err := c.Stop(); err != nil {
			logging.Warn("network monitor stop during restart failed", "error", err)
		}
	}
	return c.Start(ctx)
}

// IsRunning reports whether the loop is currently active.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) loop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.MonitorInterval)
	defer ticker.Stop()

	state := &taskState{lastNetworkState: true}
	var restartGate sync.Mutex
	restartInFlight := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !state.shouldHealthCheck(c.cfg.MonitorInterval) {
				continue
			}
			state.healthCheckRunning = true
			state.lastHealthCheck = time.Now()

			up := c.checkConnectivity(ctx)
			state.healthCheckRunning = false

			state.updateNetworkState(up)
			if !up || !state.upFirePending {
				continue
			}

			if time.Since(state.networkStableSince) < c.cfg.SleepUp {
				continue
			}
			state.upFirePending = false

			restartGate.Lock()
			if restartInFlight {
				restartGate.Unlock()
				continue
			}
			restartInFlight = true
			restartGate.Unlock()

			logging.LogNetworkEvent("network_up", map[string]any{})

			go func() {
				if c.onUp != nil {
					c.onUp()
				}
				restartGate.Lock()
				restartInFlight = false
				restartGate.Unlock()
			}()
		}
	}
}

// checkConnectivity probes every configured endpoint concurrently; "up"
// means at least one connect succeeds within NetworkTimeout (spec §4.8
// step 1).
func (c *Controller) checkConnectivity(ctx context.Context) bool {
	results := make(chan bool, len(c.cfg.Endpoints))

	for _, endpoint := range c.cfg.Endpoints {
		endpoint := endpoint
		go func() {
			probeCtx, cancel := context.WithTimeout(ctx, c.cfg.NetworkTimeout)
			defer cancel()

			conn, err := c.dialer.DialContext(probeCtx, "tcp", endpoint)
			if err != nil {
				results <- false
				return
			}
			conn.Close()
			results <- true
		}()
	}

	for range c.cfg.Endpoints {
		if <-results {
			return true
		}
	}
	return false
}
