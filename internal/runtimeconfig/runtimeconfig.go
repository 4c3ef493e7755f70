// Package runtimeconfig loads kftray-core's own runtime tunables — not
// Configuration records (those live in the external store, see internal/store)
// but the engine-wide knobs: cache TTLs, monitor intervals, the helper socket
// path, and the HTTP log directory. Grounded on the teacher's cmd/root.go +
// lib/config_paths.go viper wiring.
package runtimeconfig

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	ConfigFilename       = "kftray-core.yaml"
	HiddenConfigFilename = ".kftray-core.yaml"
)

// Config is kftray-core's own runtime configuration.
type Config struct {
	KubeClientTTL      time.Duration `mapstructure:"kube_client_ttl"`
	MonitorInterval    time.Duration `mapstructure:"monitor_interval"`
	NetworkTimeout     time.Duration `mapstructure:"network_timeout"`
	SleepUp            time.Duration `mapstructure:"sleep_up"`
	SleepDown          time.Duration `mapstructure:"sleep_down"`
	HelperSocketPath   string        `mapstructure:"helper_socket_path"`
	HTTPLogDir         string        `mapstructure:"http_log_dir"`
	HTTPLogRotateBytes int64         `mapstructure:"http_log_rotate_bytes"`
	ExposeReadyTimeout time.Duration `mapstructure:"expose_ready_timeout"`
	HelperRequestTimeout time.Duration `mapstructure:"helper_request_timeout"`
}

// Default returns the documented defaults (spec §4.1, §4.8, §4.5, §5).
func Default() Config {
	return Config{
		KubeClientTTL:        time.Hour,
		MonitorInterval:      2 * time.Second,
		NetworkTimeout:       200 * time.Millisecond,
		SleepUp:              500 * time.Millisecond,
		SleepDown:            100 * time.Millisecond,
		HelperSocketPath:     defaultHelperSocketPath(),
		HTTPLogDir:           defaultHTTPLogDir(),
		HTTPLogRotateBytes:   10 * 1024 * 1024,
		ExposeReadyTimeout:   60 * time.Second,
		HelperRequestTimeout: 10 * time.Second,
	}
}

func defaultHelperSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "kftray-helper.sock")
	}
	return filepath.Join(os.TempDir(), "kftray-helper.sock")
}

func defaultHTTPLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./kftray-http-logs"
	}
	return filepath.Join(home, ".kftray", "http-logs")
}

// SearchPaths returns the standard config-file search locations in priority
// order (current directory first, then home directory).
func SearchPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return []string{"./" + ConfigFilename, "./" + HiddenConfigFilename}
	}
	return []string{
		"./" + ConfigFilename,
		"./" + HiddenConfigFilename,
		filepath.Join(home, ConfigFilename),
		filepath.Join(home, HiddenConfigFilename),
	}
}

// FindExisting returns the first existing config file among SearchPaths, or
// "" if none exists.
func FindExisting() string {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads configuration from path (or the first match from SearchPaths if
// path is empty), overlaying values onto Default().
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = FindExisting()
	}
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
