package expose

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/model"
)

// Deploy's ready-wait has no real kubelet to flip pod status in the fake
// clientset, so these tests bound the wait with a short-lived context and
// assert on the resource-creation side effects rather than on success.
func TestDeployCreatesDeploymentAndService(t *testing.T) {
	clientset := fake.NewSimpleClientset()

	cfg := model.Configuration{
		ID: 9, Namespace: "default", Protocol: model.ProtocolTCP,
		RemoteAddress: "db.internal", RemotePort: model.PortRef{Number: 5432}, LocalPort: 5432,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Deploy(ctx, clientset, cfg)
	assert.ErrorIs(t, err, forwarderrors.ErrReadyWaitTimeout)

	deployments, listErr := clientset.AppsV1().Deployments("default").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, listErr)
	assert.Len(t, deployments.Items, 1)

	services, listErr := clientset.CoreV1().Services("default").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, listErr)
	assert.Len(t, services.Items, 1)
}

func TestDeployCreatesIngressWhenDomainEnabled(t *testing.T) {
	clientset := fake.NewSimpleClientset()

	cfg := model.Configuration{
		ID: 10, Namespace: "default", Protocol: model.ProtocolTCP,
		RemoteAddress: "db.internal", RemotePort: model.PortRef{Number: 5432}, LocalPort: 5432,
		DomainEnabled: true, Alias: "db.example.com",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Deploy(ctx, clientset, cfg)
	assert.ErrorIs(t, err, forwarderrors.ErrReadyWaitTimeout)

	ingresses, listErr := clientset.NetworkingV1().Ingresses("default").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, listErr)
	assert.Len(t, ingresses.Items, 1)
}

func TestTeardownIsIdempotent(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	dep := &Deployment{Name: "kftray-forward-1-abcdef", Namespace: "default"}

	err := Teardown(context.Background(), clientset, dep)
	require.NoError(t, err)

	err = Teardown(context.Background(), clientset, dep)
	assert.NoError(t, err)
}
