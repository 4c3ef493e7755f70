// Package model defines the data shapes shared across kftray-core's
// subsystems: the externally-owned Configuration record, the runtime
// Target/TargetPod/ForwardSession values derived from it, and the wire
// shapes used by the helper protocol and HTTP observer.
package model

import (
	"fmt"
	"time"
)

// WorkloadType selects how a Configuration's target is reached.
type WorkloadType string

const (
	WorkloadService WorkloadType = "service"
	WorkloadPod     WorkloadType = "pod"
	WorkloadProxy    WorkloadType = "proxy"
)

// Protocol is the transport a Configuration forwards.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// Configuration is an externally-owned record identified by a stable 64-bit
// id. The core never persists it; a config store (see internal/store)
// supplies and owns these values.
type Configuration struct {
	ID                  int64
	WorkloadType        WorkloadType
	Protocol            Protocol
	Context             string
	KubeconfigPath      string
	Namespace           string
	Service             string
	Target              string
	RemotePort          PortRef
	LocalPort           int
	LocalAddress        string
	RemoteAddress       string
	Alias               string
	DomainEnabled       bool
	AutoLoopbackAddress bool
	HTTPLogsEnabled     bool
	CertManagerEnabled  bool
	CloudTarget         *CloudTarget
}

// CloudTarget names an AWS RDS instance or cluster to resolve into
// RemoteAddress/RemotePort before an expose-mode deployment is rendered,
// supplementing a literal RemoteAddress with one discovered from the
// account (spec §4.7 "Expose Deployer" + "remote_address" field).
type CloudTarget struct {
	Identifier string
	Region     string
	Profile    string
}

// EffectiveLocalAddress returns LocalAddress, defaulting to loopback.
func (c Configuration) EffectiveLocalAddress() string {
	if c.LocalAddress == "" {
		return "127.0.0.1"
	}
	return c.LocalAddress
}

// Selector derives the Pod Resolver selector for this Configuration: a
// Service selector when Target names a service workload, otherwise Target
// is taken as a direct pod-label query.
func (c Configuration) Selector() Selector {
	if c.WorkloadType == WorkloadService {
		return Selector{ServiceName: c.Target}
	}
	return Selector{PodLabel: c.Target}
}

// Port derives the Target's PortRef from RemotePort.
func (c Configuration) Port() PortRef {
	return c.RemotePort
}

// ServiceKeyName is the helper-facing key used for loopback address
// allocation, stable across restarts of this configuration.
func (c Configuration) ServiceKeyName() string {
	return fmt.Sprintf("kftray-%d", c.ID)
}

// HostsID is the id this configuration's alias entry is tagged with in the
// hosts file; the entry's marker reads "# kftray:<id>".
func (c Configuration) HostsID() string {
	return fmt.Sprintf("%d", c.ID)
}

// PortRef is either a numeric port or a named port resolved against a pod
// spec's container ports.
type PortRef struct {
	Number int32
	Name   string
}

// IsNamed reports whether the port must be resolved by name.
func (p PortRef) IsNamed() bool { return p.Name != "" }

// RunState is the lifecycle phase of a Configuration's forward session, per
// the Forward Supervisor state machine.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateResolving RunState = "resolving"
	StateBinding   RunState = "binding"
	StateServing   RunState = "serving"
	StateStopping  RunState = "stopping"
	StateFailed    RunState = "failed"
)

// ConfigState is the (is_running, owning_process_id) tuple maintained by the
// supervisor for a single Configuration. Other processes ignore rows whose
// ProcessID does not match their own.
type ConfigState struct {
	ConfigID  int64
	Running   bool
	ProcessID int
	State     RunState
	Reason    string
	UpdatedAt time.Time
}

// Selector identifies how pods are found for a Target: either by the
// selector of a named Service, or directly by a pod label query.
type Selector struct {
	ServiceName string
	PodLabel    string
}

// IsService reports whether the selector names a Service (as opposed to a
// direct pod-label query).
func (s Selector) IsService() bool { return s.ServiceName != "" }

// Target is an internal value derived from a Configuration, immutable for
// the lifetime of one forward session.
type Target struct {
	Selector  Selector
	Port      PortRef
	Namespace string
}

// TargetPod is the concrete pod+port a Target resolves to. Resolved fresh at
// each forward session start.
type TargetPod struct {
	PodName       string
	ContainerPort int32
}

// ExposedResources names the cluster resources an expose-mode session
// created, kept so cleanup can run by name even if the deployer's in-memory
// state is lost.
type ExposedResources struct {
	Name         string
	DeploymentOK bool
	ServiceOK    bool
	IngressOK    bool
}

// ForwardSessionInfo is a read-only snapshot of a Forward Supervisor's
// active session, exposed to external collaborators via the State/Event Bus.
type ForwardSessionInfo struct {
	ConfigID  int64
	State     RunState
	LocalAddr string
	LocalPort int
	TargetPod TargetPod
	StartedAt time.Time
}
