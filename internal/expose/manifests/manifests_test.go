package manifests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDeploymentSubstitutesPlaceholders(t *testing.T) {
	v := Values{
		Name: "kftray-forward-abc123", ConfigID: 42, Namespace: "default",
		RemoteAddress: "db.internal", RemotePort: 5432, LocalPort: 5432, Protocol: "tcp",
	}

	dep, err := RenderDeployment(v)
	require.NoError(t, err)
	assert.Equal(t, "kftray-forward-abc123", dep.Name)
	assert.Equal(t, "default", dep.Namespace)
	require.Len(t, dep.Spec.Template.Spec.Containers, 1)

	env := map[string]string{}
	for _, e := range dep.Spec.Template.Spec.Containers[0].Env {
		env[e.Name] = e.Value
	}
	assert.Equal(t, "db.internal", env["REMOTE_ADDRESS"])
	assert.Equal(t, "5432", env["REMOTE_PORT"])
	assert.Equal(t, "tcp", env["PROXY_TYPE"])
}

func TestRenderServiceUDPProtocol(t *testing.T) {
	v := Values{Name: "kftray-forward-xyz", Namespace: "default", LocalPort: 53, Protocol: "udp"}

	svc, err := RenderService(v)
	require.NoError(t, err)
	require.Len(t, svc.Spec.Ports, 1)
	assert.EqualValues(t, "UDP", svc.Spec.Ports[0].Protocol)
}

func TestRenderIngressWithCertManager(t *testing.T) {
	v := Values{
		Name: "kftray-forward-abc", Namespace: "default", LocalPort: 443,
		Domain: "svc.example.com", ConfigID: 7, CertManagerEnabled: true,
	}

	ing, err := RenderIngress(v)
	require.NoError(t, err)
	require.Len(t, ing.Spec.TLS, 1)
	assert.Equal(t, []string{"svc.example.com"}, ing.Spec.TLS[0].Hosts)
	assert.Equal(t, "kftray-expose-tls-7", ing.Spec.TLS[0].SecretName)
}
