// Package manifests renders the Expose Deployer's deployment/service/ingress
// manifests from embedded Go text/template files (spec §4.7, §6 "Expose
// manifest placeholders"), in place of the original Rust implementation's
// string-replace templating (original_source's
// kftray-portforward/src/expose/templates.rs render_template). Go's
// text/template plus embed.FS gives the same "load a template, substitute
// placeholders" shape the teacher's corpus favors for config rendering
// (viper/yaml for process config; here, text/template for manifests).
package manifests

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"sigs.k8s.io/yaml"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	deploymentTmpl = template.Must(template.ParseFS(templateFS, "templates/deployment.yaml.tmpl"))
	serviceTmpl    = template.Must(template.ParseFS(templateFS, "templates/service.yaml.tmpl"))
	ingressTmpl    = template.Must(template.ParseFS(templateFS, "templates/ingress.yaml.tmpl"))
)

// Values carries every placeholder spec §6 requires the three templates to
// accept.
type Values struct {
	Name               string
	ConfigID           int64
	Namespace          string
	RemoteAddress      string
	RemotePort         int32
	LocalPort          int32
	Protocol           string
	Domain             string
	CertManagerEnabled bool
}

// RenderDeployment renders and decodes the deployment manifest.
func RenderDeployment(v Values) (*appsv1.Deployment, error) {
	raw, err := render(deploymentTmpl, v)
	if err != nil {
		return nil, err
	}
	var dep appsv1.Deployment
	if err := yaml.Unmarshal(raw, &dep); err != nil {
		return nil, fmt.Errorf("decoding rendered deployment manifest: %w", err)
	}
	return &dep, nil
}

// RenderService renders and decodes the service manifest.
func RenderService(v Values) (*corev1.Service, error) {
	raw, err := render(serviceTmpl, v)
	if err != nil {
		return nil, err
	}
	var svc corev1.Service
	if err := yaml.Unmarshal(raw, &svc); err != nil {
		return nil, fmt.Errorf("decoding rendered service manifest: %w", err)
	}
	return &svc, nil
}

// RenderIngress renders and decodes the ingress manifest. Only called when
// a domain alias is configured for expose mode.
func RenderIngress(v Values) (*networkingv1.Ingress, error) {
	raw, err := render(ingressTmpl, v)
	if err != nil {
		return nil, err
	}
	var ing networkingv1.Ingress
	if err := yaml.Unmarshal(raw, &ing); err != nil {
		return nil, fmt.Errorf("decoding rendered ingress manifest: %w", err)
	}
	return &ing, nil
}

func render(tmpl *template.Template, v Values) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("rendering manifest template: %w", err)
	}
	return buf.Bytes(), nil
}
