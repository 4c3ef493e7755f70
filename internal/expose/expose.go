// Package expose implements the Expose Deployer (spec §4.7): for
// workload_type=proxy configurations, render and create an in-cluster proxy
// deployment/service/optional-ingress, wait for readiness, and hand the
// resulting service port to a standard TCP Forwarder. Grounded on the
// teacher's CreateSocatProxyPod/WaitForPodRunning/DeleteSocatProxyPod
// (lib/kubernetes.go), generalized from one hard-coded socat command into
// a templated, protocol-agnostic proxy deployment.
package expose

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"

	"github.com/kftray/kftray-core/internal/expose/manifests"
	"github.com/kftray/kftray-core/internal/kuberesources"
	"github.com/kftray/kftray-core/internal/logging"
	"github.com/kftray/kftray-core/internal/model"
)

// DefaultReadyTimeout is the default wait for the proxy pod to become ready
// (spec §4.7 step 2).
const DefaultReadyTimeout = 60 * time.Second

// Deployment is the set of cluster resources one expose-mode session
// created, kept so Teardown can clean up by name alone even if process
// state is lost (spec's Forward Session model).
type Deployment struct {
	Name         string
	Namespace    string
	HasIngress   bool
	ServicePort  int32
	ReadyTimeout time.Duration
}

// Deploy renders the three manifests, creates them in order, and waits for
// the proxy pod to become Ready (spec §4.7 steps 1-2).
func Deploy(ctx context.Context, clientset kubernetes.Interface, cfg model.Configuration) (*Deployment, error) {
	name, err := deterministicName()
	if err != nil {
		return nil, fmt.Errorf("generating expose deployment name: %w", err)
	}

	values := manifests.Values{
		Name:               name,
		ConfigID:           cfg.ID,
		Namespace:          cfg.Namespace,
		RemoteAddress:      cfg.RemoteAddress,
		RemotePort:         cfg.RemotePort.Number,
		LocalPort:          int32(cfg.LocalPort),
		Protocol:           string(cfg.Protocol),
		Domain:             cfg.Alias,
		CertManagerEnabled: cfg.CertManagerEnabled,
	}

	dep, err := manifests.RenderDeployment(values)
	if err != nil {
		return nil, err
	}
	if err := kuberesources.CreateDeployment(ctx, clientset, cfg.Namespace, dep); err != nil {
		return nil, fmt.Errorf("creating expose deployment: %w", err)
	}

	svc, err := manifests.RenderService(values)
	if err != nil {
		return nil, err
	}
	if err := kuberesources.CreateService(ctx, clientset, cfg.Namespace, svc); err != nil {
		return nil, fmt.Errorf("creating expose service: %w", err)
	}

	hasIngress := cfg.DomainEnabled && cfg.Alias != ""
	if hasIngress {
		ing, err := manifests.RenderIngress(values)
		if err != nil {
			return nil, err
		}
		if err := kuberesources.CreateIngress(ctx, clientset, cfg.Namespace, ing); err != nil {
			return nil, fmt.Errorf("creating expose ingress: %w", err)
		}
	}

	timeout := DefaultReadyTimeout
	selector := kuberesources.ManagedLabelSelector(name)
	if err := kuberesources.WaitForPodReady(ctx, clientset, cfg.Namespace, selector, timeout); err != nil {
		logging.LogExposeOperation("wait_ready", name, cfg.Namespace, err)
		return nil, err
	}

	logging.LogExposeOperation("deploy", name, cfg.Namespace, nil)

	return &Deployment{
		Name:         name,
		Namespace:    cfg.Namespace,
		HasIngress:   hasIngress,
		ServicePort:  int32(cfg.LocalPort),
		ReadyTimeout: timeout,
	}, nil
}

// Teardown deletes every resource this deployment created, by label
// selector, in reverse order. Cleanup is idempotent: missing resources are
// not errors (spec §4.7 step 4).
func Teardown(ctx context.Context, clientset kubernetes.Interface, dep *Deployment) error {
	selector := kuberesources.ManagedLabelSelector(dep.Name)
	return kuberesources.DeleteBySelector(ctx, clientset, dep.Namespace, selector)
}

// deterministicName generates "kftray-forward-<ts>-<rand6>" per spec §4.7
// step 1.
func deterministicName() (string, error) {
	var buf [3]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("kftray-forward-%d-%s", time.Now().Unix(), hex.EncodeToString(buf[:])), nil
}
