package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/model"
)

func readyPod(name, namespace string, labels map[string]string, ports []corev1.ContainerPort) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "app", Ports: ports}},
		},
		Status: corev1.PodStatus{
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
		},
	}
}

// TestResolveServiceNamedPort exercises testable property 5: a service whose
// selector matches exactly one ready pod with a named port resolves that
// pod and port.
func TestResolveServiceNamedPort(t *testing.T) {
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "api", Namespace: "default"},
		Spec:       corev1.ServiceSpec{Selector: map[string]string{"app": "api"}},
	}
	pod := readyPod("api-0", "default", map[string]string{"app": "api"}, []corev1.ContainerPort{
		{Name: "api", ContainerPort: 8080},
	})

	client := fake.NewSimpleClientset(svc, pod)

	target := model.Target{
		Selector:  model.Selector{ServiceName: "api"},
		Port:      model.PortRef{Name: "api"},
		Namespace: "default",
	}

	got, err := Resolve(context.Background(), client, target)
	require.NoError(t, err)
	assert.Equal(t, "api-0", got.PodName)
	assert.EqualValues(t, 8080, got.ContainerPort)
}

func TestResolveServiceNotFoundFallsBackToAppLabel(t *testing.T) {
	pod := readyPod("echo-0", "default", map[string]string{"app": "echo"}, []corev1.ContainerPort{
		{Name: "http", ContainerPort: 8080},
	})
	client := fake.NewSimpleClientset(pod)

	target := model.Target{
		Selector:  model.Selector{ServiceName: "echo"},
		Port:      model.PortRef{Number: 8080},
		Namespace: "default",
	}

	got, err := Resolve(context.Background(), client, target)
	require.NoError(t, err)
	assert.Equal(t, "echo-0", got.PodName)
	assert.EqualValues(t, 8080, got.ContainerPort)
}

func TestResolveServiceWithNoSelectorIsError(t *testing.T) {
	svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "headless", Namespace: "default"}}
	client := fake.NewSimpleClientset(svc)

	target := model.Target{
		Selector:  model.Selector{ServiceName: "headless"},
		Port:      model.PortRef{Number: 80},
		Namespace: "default",
	}

	_, err := Resolve(context.Background(), client, target)
	assert.ErrorIs(t, err, forwarderrors.ErrServiceHasNoSelector)
}

func TestResolveNoReadyPod(t *testing.T) {
	notReady := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "p", Namespace: "default", Labels: map[string]string{"app": "x"}},
	}
	client := fake.NewSimpleClientset(notReady)

	target := model.Target{Selector: model.Selector{PodLabel: "app=x"}, Port: model.PortRef{Number: 80}, Namespace: "default"}

	_, err := Resolve(context.Background(), client, target)
	assert.ErrorIs(t, err, forwarderrors.ErrNoReadyPod)
}

func TestResolveNamedPortNotFound(t *testing.T) {
	pod := readyPod("p", "default", map[string]string{"app": "x"}, []corev1.ContainerPort{{Name: "other", ContainerPort: 1}})
	client := fake.NewSimpleClientset(pod)

	target := model.Target{Selector: model.Selector{PodLabel: "app=x"}, Port: model.PortRef{Name: "missing"}, Namespace: "default"}

	_, err := Resolve(context.Background(), client, target)
	assert.ErrorIs(t, err, forwarderrors.ErrNamedPortNotFound)
}
