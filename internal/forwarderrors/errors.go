// Package forwarderrors defines the typed-reason error taxonomy used across
// the forward engine (spec §7). All recoverable failures are values; panics
// are reserved for invariant violations that cannot be contained.
package forwarderrors

import "errors"

// Resolution errors (Pod Resolver, spec §4.2).
var (
	ErrNoPods               = errors.New("no pods matched the label query")
	ErrNoReadyPod           = errors.New("no ready pod matched the label query")
	ErrNamedPortNotFound    = errors.New("named port not found on pod")
	ErrServiceHasNoSelector = errors.New("service has no selector and no label fallback matched")
)

// Local-bind errors (TCP/UDP Forwarder). Fatal for the session; never retried
// by the forwarder itself.
var (
	ErrAddressInUse    = errors.New("local address already in use")
	ErrPermissionDenied = errors.New("permission denied binding local address")
)

// Helper errors (spec §4.9/§7). Transport errors are retried by the client;
// semantic errors are surfaced unchanged.
var (
	ErrHelperUnavailable  = errors.New("helper is not reachable")
	ErrHelperTransport    = errors.New("helper transport error")
	ErrNetworkConfig      = errors.New("helper network configuration error")
	ErrAddressPool        = errors.New("helper address pool error")
	ErrInvalidMessage     = errors.New("invalid helper message")
	ErrRequestIDMismatch  = errors.New("helper response request id mismatch")
)

// Expose-deploy errors (spec §4.7/§7).
var (
	ErrResourceConflict = errors.New("resource already exists with mismatched labels")
	ErrReadyWaitTimeout = errors.New("timed out waiting for expose resources to become ready")
)

// Network supervisor errors (spec §4.8/§7).
var (
	ErrAlreadyRunning = errors.New("network supervisor is already running")
	ErrNotRunning     = errors.New("network supervisor is not running")
)

// CacheCorruption is raised only when an invariant the Kube Client Cache
// relies on (a post-lock entry with a nil client) is violated; this can only
// happen from a bug elsewhere in the process, so it panics rather than
// returning a value the caller could plausibly recover from.
type CacheCorruption struct {
	Key string
}

func (e CacheCorruption) Error() string {
	return "kube client cache entry for " + e.Key + " is corrupted"
}
