// Package resolver implements the Pod Resolver (spec §4.2): translating a
// Target into a concrete TargetPod by walking service selectors, pod
// readiness, and named container ports. Grounded on the teacher's
// client-go usage style in lib/kubernetes.go, generalized from a one-shot
// socat-proxy lookup into the spec's full selector/port resolution.
package resolver

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"

	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/model"
)

// Resolve implements the algorithm in spec §4.2 against the given clientset.
func Resolve(ctx context.Context, clientset kubernetes.Interface, target model.Target) (model.TargetPod, error) {
	selector, err := labelQueryFor(ctx, clientset, target)
	if err != nil {
		return model.TargetPod{}, err
	}

	pods, err := clientset.CoreV1().Pods(target.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return model.TargetPod{}, fmt.Errorf("listing pods for selector %q: %w", selector, err)
	}
	if len(pods.Items) == 0 {
		return model.TargetPod{}, forwarderrors.ErrNoPods
	}

	pod, err := firstReadyPod(pods.Items)
	if err != nil {
		return model.TargetPod{}, err
	}

	port, err := containerPort(pod, target.Port)
	if err != nil {
		return model.TargetPod{}, err
	}

	return model.TargetPod{PodName: pod.Name, ContainerPort: port}, nil
}

// labelQueryFor derives the label selector string for a Target: a direct
// pod-label query, or a Service's spec.selector with a fallback to
// app=<service> if the service does not exist (the fallback mandated by
// spec §4.2 / §9's Open Question resolution).
func labelQueryFor(ctx context.Context, clientset kubernetes.Interface, target model.Target) (string, error) {
	if !target.Selector.IsService() {
		return target.Selector.PodLabel, nil
	}

	svc, err := clientset.CoreV1().Services(target.Namespace).Get(ctx, target.Selector.ServiceName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Sprintf("app=%s", target.Selector.ServiceName), nil
		}
		return "", fmt.Errorf("getting service %q: %w", target.Selector.ServiceName, err)
	}

	if len(svc.Spec.Selector) == 0 {
		return "", forwarderrors.ErrServiceHasNoSelector
	}

	return labels.SelectorFromSet(svc.Spec.Selector).String(), nil
}

// firstReadyPod returns the first pod in pods whose Ready condition is True.
// No tie-break beyond list order is specified; this implementation is
// deterministic within a single call (spec §4.2 step 3).
func firstReadyPod(pods []corev1.Pod) (corev1.Pod, error) {
	for _, pod := range pods {
		if isPodReady(pod) {
			return pod, nil
		}
	}
	return corev1.Pod{}, forwarderrors.ErrNoReadyPod
}

func isPodReady(pod corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// containerPort resolves a PortRef against the pod's container ports. A
// numeric PortRef passes through unchanged; a named PortRef is looked up
// across every container.
func containerPort(pod corev1.Pod, ref model.PortRef) (int32, error) {
	if !ref.IsNamed() {
		return ref.Number, nil
	}

	for _, container := range pod.Spec.Containers {
		for _, p := range container.Ports {
			if p.Name == ref.Name {
				return p.ContainerPort, nil
			}
		}
	}
	return 0, forwarderrors.ErrNamedPortNotFound
}
