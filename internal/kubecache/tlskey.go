package kubecache

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"

	"k8s.io/client-go/rest"
)

// tlsProviderOnce guards the one-shot, process-global TLS provider install
// that some backends require before the first client is built.
var tlsProviderOnce sync.Once

func installTLSProvider() {
	// Intentionally a no-op hook: kept as an explicit one-shot seam so a
	// platform-specific TLS provider can be installed here exactly once per
	// process, the way the cache's client construction expects.
}

// normalizeClientKey converts a PKCS#8 RSA client key to PKCS#1 when present,
// which is the one special case client construction must handle (spec §4.1);
// everything else about TLSClientConfig is left untouched.
func normalizeClientKey(cfg *rest.Config) error {
	tlsProviderOnce.Do(installTLSProvider)

	keyData := cfg.TLSClientConfig.KeyData
	if len(keyData) == 0 {
		return nil
	}

	block, _ := pem.Decode(keyData)
	if block == nil || block.Type != "PRIVATE KEY" {
		// Not PKCS#8-encoded (or no PEM at all); nothing to convert.
		return nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Leave the key as-is; the TLS handshake will surface a clearer error
		// than we could synthesize here.
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		// Only RSA keys need PKCS#1 conversion; EC/Ed25519 keys stay PKCS#8.
		return nil
	}

	cfg.TLSClientConfig.KeyData = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(rsaKey),
	})
	return nil
}
