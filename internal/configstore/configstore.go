// Package configstore is a local, file-backed implementation of
// store.ConfigStore (spec §6): the external collaborator that owns durable
// Configuration state. Grounded on the teacher's AppConfig/ProxyConfig
// persistence (lib/config.go, lib/config_paths.go — gopkg.in/yaml.v3 marshal
// of a flat proxy-config list), generalized from one-shot CLI reads into a
// read/write store the supervisor calls on every state transition.
//
// Other stores (a database, a desktop app's embedded one) are equally valid
// ConfigStore implementations; this one exists so kftray-core runs
// standalone from a single YAML file the way the teacher's CLI does.
package configstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kftray/kftray-core/internal/model"
)

// fileConfiguration is the on-disk shape of one Configuration, named the way
// the teacher's ProxyConfig fields are (snake_case yaml keys).
type fileConfiguration struct {
	ID                  int64  `yaml:"id"`
	WorkloadType        string `yaml:"workload_type"`
	Protocol            string `yaml:"protocol"`
	Context             string `yaml:"context,omitempty"`
	KubeconfigPath      string `yaml:"kubeconfig_path,omitempty"`
	Namespace           string `yaml:"namespace"`
	Target              string `yaml:"target"`
	RemotePortNumber    int32  `yaml:"remote_port,omitempty"`
	RemotePortName      string `yaml:"remote_port_name,omitempty"`
	LocalPort           int    `yaml:"local_port"`
	LocalAddress        string `yaml:"local_address,omitempty"`
	RemoteAddress       string `yaml:"remote_address,omitempty"`
	Alias               string `yaml:"alias,omitempty"`
	DomainEnabled       bool   `yaml:"domain_enabled,omitempty"`
	AutoLoopbackAddress bool   `yaml:"auto_loopback_address,omitempty"`
	HTTPLogsEnabled     bool   `yaml:"http_logs_enabled,omitempty"`
	CertManagerEnabled  bool   `yaml:"cert_manager_enabled,omitempty"`
	Running             bool   `yaml:"running,omitempty"`
	ProcessID           int    `yaml:"process_id,omitempty"`
}

// fileDocument is the root shape of the configuration file, one list under
// "forwards" the way the teacher's AppConfig holds one list under
// "proxy_configs".
type fileDocument struct {
	Forwards []fileConfiguration `yaml:"forwards"`
}

func (c fileConfiguration) toModel() model.Configuration {
	return model.Configuration{
		ID:                  c.ID,
		WorkloadType:        model.WorkloadType(c.WorkloadType),
		Protocol:            model.Protocol(c.Protocol),
		Context:             c.Context,
		KubeconfigPath:      c.KubeconfigPath,
		Namespace:           c.Namespace,
		Target:              c.Target,
		RemotePort:          model.PortRef{Number: c.RemotePortNumber, Name: c.RemotePortName},
		LocalPort:           c.LocalPort,
		LocalAddress:        c.LocalAddress,
		RemoteAddress:       c.RemoteAddress,
		Alias:               c.Alias,
		DomainEnabled:       c.DomainEnabled,
		AutoLoopbackAddress: c.AutoLoopbackAddress,
		HTTPLogsEnabled:     c.HTTPLogsEnabled,
		CertManagerEnabled:  c.CertManagerEnabled,
	}
}

func fromModel(cfg model.Configuration, running bool, pid int) fileConfiguration {
	return fileConfiguration{
		ID:                  cfg.ID,
		WorkloadType:        string(cfg.WorkloadType),
		Protocol:            string(cfg.Protocol),
		Context:             cfg.Context,
		KubeconfigPath:      cfg.KubeconfigPath,
		Namespace:           cfg.Namespace,
		Target:              cfg.Target,
		RemotePortNumber:    cfg.RemotePort.Number,
		RemotePortName:      cfg.RemotePort.Name,
		LocalPort:           cfg.LocalPort,
		LocalAddress:        cfg.LocalAddress,
		RemoteAddress:       cfg.RemoteAddress,
		Alias:               cfg.Alias,
		DomainEnabled:       cfg.DomainEnabled,
		AutoLoopbackAddress: cfg.AutoLoopbackAddress,
		HTTPLogsEnabled:     cfg.HTTPLogsEnabled,
		CertManagerEnabled:  cfg.CertManagerEnabled,
		Running:             running,
		ProcessID:           pid,
	}
}

// FileStore is a mutex-guarded, YAML-file-backed store.ConfigStore.
type FileStore struct {
	path string

	mu      sync.Mutex
	configs map[int64]model.Configuration
	running map[int64]bool
	pids    map[int64]int
}

// Open loads path. A missing file yields an empty store; no file is written
// until the first UpdateState.
func Open(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		configs: make(map[int64]model.Configuration),
		running: make(map[int64]bool),
		pids:    make(map[int64]int),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading configuration file %s: %w", path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing configuration file %s: %w", path, err)
	}

	for _, fc := range doc.Forwards {
		s.configs[fc.ID] = fc.toModel()
		s.running[fc.ID] = fc.Running
		s.pids[fc.ID] = fc.ProcessID
	}

	return s, nil
}

// ListActive implements store.ConfigStore.
func (s *FileStore) ListActive(ctx context.Context, owningPID int) ([]model.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []model.Configuration
	for id, cfg := range s.configs {
		if s.running[id] && s.pids[id] == owningPID {
			active = append(active, cfg)
		}
	}
	return active, nil
}

// Get implements store.ConfigStore.
func (s *FileStore) Get(ctx context.Context, id int64) (model.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return model.Configuration{}, fmt.Errorf("configuration %d not found", id)
	}
	return cfg, nil
}

// UpdateState implements store.ConfigStore, persisting the new tuple to disk
// immediately so a crash leaves an accurate last-known state on restart.
func (s *FileStore) UpdateState(ctx context.Context, id int64, running bool, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[id]; !ok {
		return fmt.Errorf("configuration %d not found", id)
	}

	s.running[id] = running
	s.pids[id] = pid

	return s.persistLocked()
}

// LoadHTTPLogsFlag implements store.ConfigStore.
func (s *FileStore) LoadHTTPLogsFlag(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.configs[id]
	if !ok {
		return false, fmt.Errorf("configuration %d not found", id)
	}
	return cfg.HTTPLogsEnabled, nil
}

// All returns every configuration in the store, ordered by id ascending,
// for CLI listing commands.
func (s *FileStore) All() []model.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Configuration, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// State returns the last-persisted (running, pid) tuple for id, for CLI
// listing commands that show state without starting a supervisor.
func (s *FileStore) State(id int64) (running bool, pid int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok = s.configs[id]
	return s.running[id], s.pids[id], ok
}

func (s *FileStore) persistLocked() error {
	doc := fileDocument{Forwards: make([]fileConfiguration, 0, len(s.configs))}
	for id, cfg := range s.configs {
		doc.Forwards = append(doc.Forwards, fromModel(cfg, s.running[id], s.pids[id]))
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshaling configuration file: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}
