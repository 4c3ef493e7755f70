// Package kuberesources implements the Resource Ops component (spec §4
// overview table): create/delete/await-ready for the pod, service, secret,
// and ingress manifests the Expose Deployer uses. Generalizes the teacher's
// CreateSocatProxyPod/WaitForPodRunning/DeleteSocatProxyPod/
// CleanupOrphanedAproxymatePodsForUser (lib/kubernetes.go) from a single
// hard-coded socat pod into resource-agnostic create/delete/wait operations
// keyed by label selector.
package kuberesources

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/logging"
)

// ManagedLabelSelector is the label query used to find/clean up every
// resource kftray-core creates for a given deploy name, generalizing the
// teacher's "aproxymate.managed=true" convention.
func ManagedLabelSelector(name string) string {
	return fmt.Sprintf("app=%s,kftray.managed=true", name)
}

// ManagedLabels returns the labels every created resource carries.
func ManagedLabels(name string) map[string]string {
	return map[string]string{
		"app":            name,
		"kftray.managed": "true",
	}
}

// CreateDeployment creates dep, treating an AlreadyExists conflict as success
// when the existing object's managed-name label matches (spec §7 "resource-
// create conflict → idempotent success if labels match; else fatal").
func CreateDeployment(ctx context.Context, clientset kubernetes.Interface, namespace string, dep *appsv1.Deployment) error {
	_, err := clientset.AppsV1().Deployments(namespace).Create(ctx, dep, metav1.CreateOptions{})
	if err == nil {
		logging.LogExposeOperation("create_deployment", dep.Name, namespace, nil)
		return nil
	}
	if apierrors.IsAlreadyExists(err) {
		existing, getErr := clientset.AppsV1().Deployments(namespace).Get(ctx, dep.Name, metav1.GetOptions{})
		if getErr == nil && existing.Labels["app"] == dep.Labels["app"] {
			return nil
		}
		return forwarderrors.ErrResourceConflict
	}
	logging.LogExposeOperation("create_deployment", dep.Name, namespace, err)
	return fmt.Errorf("creating deployment %s: %w", dep.Name, err)
}

// CreateService creates svc with the same idempotent-conflict handling as
// CreateDeployment.
func CreateService(ctx context.Context, clientset kubernetes.Interface, namespace string, svc *corev1.Service) error {
	_, err := clientset.CoreV1().Services(namespace).Create(ctx, svc, metav1.CreateOptions{})
	if err == nil {
		logging.LogExposeOperation("create_service", svc.Name, namespace, nil)
		return nil
	}
	if apierrors.IsAlreadyExists(err) {
		existing, getErr := clientset.CoreV1().Services(namespace).Get(ctx, svc.Name, metav1.GetOptions{})
		if getErr == nil && existing.Labels["app"] == svc.Labels["app"] {
			return nil
		}
		return forwarderrors.ErrResourceConflict
	}
	logging.LogExposeOperation("create_service", svc.Name, namespace, err)
	return fmt.Errorf("creating service %s: %w", svc.Name, err)
}

// CreateIngress creates ing with the same idempotent-conflict handling.
func CreateIngress(ctx context.Context, clientset kubernetes.Interface, namespace string, ing *networkingv1.Ingress) error {
	_, err := clientset.NetworkingV1().Ingresses(namespace).Create(ctx, ing, metav1.CreateOptions{})
	if err == nil {
		logging.LogExposeOperation("create_ingress", ing.Name, namespace, nil)
		return nil
	}
	if apierrors.IsAlreadyExists(err) {
		existing, getErr := clientset.NetworkingV1().Ingresses(namespace).Get(ctx, ing.Name, metav1.GetOptions{})
		if getErr == nil && existing.Labels["app"] == ing.Labels["app"] {
			return nil
		}
		return forwarderrors.ErrResourceConflict
	}
	logging.LogExposeOperation("create_ingress", ing.Name, namespace, err)
	return fmt.Errorf("creating ingress %s: %w", ing.Name, err)
}

// CreateSecret creates sec used by expose-mode TLS material (cert-manager
// pre-seeded secrets or similar).
func CreateSecret(ctx context.Context, clientset kubernetes.Interface, namespace string, sec *corev1.Secret) error {
	_, err := clientset.CoreV1().Secrets(namespace).Create(ctx, sec, metav1.CreateOptions{})
	if err == nil || apierrors.IsAlreadyExists(err) {
		return nil
	}
	return fmt.Errorf("creating secret %s: %w", sec.Name, err)
}

// WaitForPodReady polls until a pod matching selector in namespace reaches
// Ready, or timeout elapses (spec §4.7 step 2, default 60s per §5).
func WaitForPodReady(ctx context.Context, clientset kubernetes.Interface, namespace, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return forwarderrors.ErrReadyWaitTimeout
		case <-ticker.C:
			pods, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
			if err != nil {
				continue
			}
			for _, pod := range pods.Items {
				if podReady(pod) {
					return nil
				}
			}
		}
	}
}

func podReady(pod corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// DeleteBySelector deletes deployments, services, and ingresses matching
// selector in namespace. Missing resources are not errors — cleanup is
// idempotent, per spec §4.7 step 4.
func DeleteBySelector(ctx context.Context, clientset kubernetes.Interface, namespace, selector string) error {
	opts := metav1.ListOptions{LabelSelector: selector}

	ingresses, err := clientset.NetworkingV1().Ingresses(namespace).List(ctx, opts)
	if err == nil {
		for _, ing := range ingresses.Items {
			deleteIgnoreMissing(clientset.NetworkingV1().Ingresses(namespace).Delete(ctx, ing.Name, metav1.DeleteOptions{}))
		}
	}

	services, err := clientset.CoreV1().Services(namespace).List(ctx, opts)
	if err == nil {
		for _, svc := range services.Items {
			deleteIgnoreMissing(clientset.CoreV1().Services(namespace).Delete(ctx, svc.Name, metav1.DeleteOptions{}))
		}
	}

	deployments, err := clientset.AppsV1().Deployments(namespace).List(ctx, opts)
	if err == nil {
		for _, dep := range deployments.Items {
			deleteIgnoreMissing(clientset.AppsV1().Deployments(namespace).Delete(ctx, dep.Name, metav1.DeleteOptions{}))
		}
	}

	logging.LogExposeOperation("cleanup_by_selector", selector, namespace, nil)
	return nil
}

func deleteIgnoreMissing(err error) {
	if err != nil && !apierrors.IsNotFound(err) {
		logging.Warn("failed to delete expose resource during cleanup", "error", err)
	}
}
