package kuberesources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kftray/kftray-core/internal/forwarderrors"
)

func testDeployment(name string) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default", Labels: ManagedLabels(name)},
	}
}

func TestCreateDeploymentSucceeds(t *testing.T) {
	clientset := fake.NewSimpleClientset()

	err := CreateDeployment(context.Background(), clientset, "default", testDeployment("kftray-1"))
	require.NoError(t, err)

	_, err = clientset.AppsV1().Deployments("default").Get(context.Background(), "kftray-1", metav1.GetOptions{})
	assert.NoError(t, err)
}

func TestCreateDeploymentAlreadyExistsSameLabelsIsSuccess(t *testing.T) {
	clientset := fake.NewSimpleClientset(testDeployment("kftray-1"))

	err := CreateDeployment(context.Background(), clientset, "default", testDeployment("kftray-1"))
	assert.NoError(t, err)
}

func TestCreateDeploymentAlreadyExistsMismatchedLabelsIsConflict(t *testing.T) {
	existing := testDeployment("kftray-1")
	existing.Labels["app"] = "someone-else"
	clientset := fake.NewSimpleClientset(existing)

	err := CreateDeployment(context.Background(), clientset, "default", testDeployment("kftray-1"))
	assert.ErrorIs(t, err, forwarderrors.ErrResourceConflict)
}

func TestWaitForPodReadyTimesOutWithNoMatchingPod(t *testing.T) {
	clientset := fake.NewSimpleClientset()

	err := WaitForPodReady(context.Background(), clientset, "default", "app=kftray-1", 1500*time.Millisecond)
	assert.ErrorIs(t, err, forwarderrors.ErrReadyWaitTimeout)
}

func TestWaitForPodReadySucceedsWhenPodIsReady(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "kftray-1-abc", Namespace: "default", Labels: map[string]string{"app": "kftray-1"}},
		Status: corev1.PodStatus{
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
		},
	}
	clientset := fake.NewSimpleClientset(pod)

	err := WaitForPodReady(context.Background(), clientset, "default", "app=kftray-1", 3*time.Second)
	assert.NoError(t, err)
}

func TestDeleteBySelectorRemovesMatchingDeployment(t *testing.T) {
	clientset := fake.NewSimpleClientset(testDeployment("kftray-1"))

	err := DeleteBySelector(context.Background(), clientset, "default", ManagedLabelSelector("kftray-1"))
	require.NoError(t, err)

	deployments, err := clientset.AppsV1().Deployments("default").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, deployments.Items)
}

func TestDeleteBySelectorOnEmptyClusterIsNoOp(t *testing.T) {
	clientset := fake.NewSimpleClientset()

	err := DeleteBySelector(context.Background(), clientset, "default", ManagedLabelSelector("nothing"))
	assert.NoError(t, err)
}
