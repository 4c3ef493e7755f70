// Package kubecache amortises authenticated Kubernetes client construction
// across forward sessions (spec §4.1). Grounded on the teacher's
// lib/kubernetes.go client-building pattern (clientcmd deferred loading),
// generalized with a TTL and a golang.org/x/sync/singleflight dedupe that the
// teacher's one-shot CLI had no need for.
package kubecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"github.com/kftray/kftray-core/internal/forwarderrors"
	"github.com/kftray/kftray-core/internal/logging"
)

// Key identifies a cached client by the kubeconfig path and context used to
// build it. Either field may be empty, meaning "default kubeconfig" /
// "current context".
type Key struct {
	KubeconfigPath string
	Context        string
}

// Client is the cached, shared handle returned by Get. Multiple callers for
// the same Key observe the same *Client.
type Client struct {
	Clientset  kubernetes.Interface
	RESTConfig *rest.Config
}

type cacheEntry struct {
	client    *Client
	createdAt time.Time
}

// Cache is the process-wide Kube Client Cache. It is safe for concurrent use
// and, per spec §5, is one of the only two process-global singletons (the
// other being the Network Supervisor controller) — both initialised lazily
// via New and passed by reference, never re-initialised.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[Key]*cacheEntry

	group singleflight.Group
}

// New constructs a Cache with the given entry TTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{ttl: ttl, entries: make(map[Key]*cacheEntry)}
}

func (k Key) groupKey() string { return k.KubeconfigPath + "|" + k.Context }

// Get returns a non-expired cached client for key, building one with a
// single-flight call if none exists or the cached one has expired. Errors
// during construction are not cached — the next caller retries from scratch.
func (c *Cache) Get(ctx context.Context, key Key) (*Client, error) {
	if client, ok := c.peek(key); ok {
		return client, nil
	}

	opCtx, _ := logging.StartOperation(ctx, "kubecache", "get_client")

	v, err, _ := c.group.Do(key.groupKey(), func() (any, error) {
		// Re-check under the single-flight group: another caller may have
		// populated the entry while we were waiting to enter Do.
		if client, ok := c.peek(key); ok {
			return client, nil
		}

		client, err := buildClient(key)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = &cacheEntry{client: client, createdAt: time.Now()}
		c.mu.Unlock()

		return client, nil
	})
	if err != nil {
		opCtx.Error("failed to build kube client", err, "context", key.Context)
		return nil, err
	}

	opCtx.Complete("built", nil)
	return v.(*Client), nil
}

func (c *Cache) peek(key Key) (*Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.client == nil {
		panic(forwarderrors.CacheCorruption{Key: key.groupKey()})
	}
	if time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.client, true
}

// Invalidate drops the cached entry for key, if any.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// CleanupExpired drops entries older than the cache's TTL. Intended to be
// called periodically by a background ticker owned by the cache's caller.
func (c *Cache) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if time.Since(entry.createdAt) > c.ttl {
			delete(c.entries, key)
		}
	}
}

func buildClient(key Key) (*Client, error) {
	kubeconfigPath := key.KubeconfigPath
	if kubeconfigPath == "" {
		if home := homedir.HomeDir(); home != "" {
			kubeconfigPath = filepath.Join(home, ".kube", "config")
		} else {
			return nil, fmt.Errorf("unable to locate kubeconfig: home directory not found and no path provided")
		}
	}

	if _, err := os.Stat(kubeconfigPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("kubeconfig file not found at path: %s", kubeconfigPath)
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	loadingRules.ExplicitPath = kubeconfigPath

	overrides := &clientcmd.ConfigOverrides{}
	if key.Context != "" {
		overrides.CurrentContext = key.Context
	}

	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client config: %w", err)
	}

	if err := normalizeClientKey(restConfig); err != nil {
		return nil, fmt.Errorf("failed to normalize client key: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return &Client{Clientset: clientset, RESTConfig: restConfig}, nil
}
