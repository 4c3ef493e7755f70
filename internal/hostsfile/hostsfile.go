// Package hostsfile edits the system hosts file for `kftray-<id>` domain
// aliases. It implements the dual direct/helper path design note (spec §9):
// Manager is the single interface both the privileged helper (editing
// directly, since it already runs with the required permissions) and a
// non-privileged caller without helper access (falling back to a
// best-effort direct edit) implement, so tests exercise one interface with
// two backends. Grounded on original_source's hostsfile.rs/hostfile_direct.rs.
package hostsfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/kftray/kftray-core/internal/model"
)

// Manager adds/removes/lists hosts-file entries tagged by id.
type Manager interface {
	Add(id string, entry model.HostEntry) error
	Remove(id string) error
	RemoveAll() error
	List() ([]model.HostEntryRecord, error)
}

// HelperProtocolClient is the subset of the helper client a HelperManager
// delegates to, named as an interface here (rather than importing
// internal/helper/client directly) so this package stays usable from the
// privileged helper server, which never talks to itself over its own socket.
type HelperProtocolClient interface {
	IsAvailable() bool
	AddHostEntry(ctx context.Context, id string, entry model.HostEntry) error
	RemoveHostEntry(ctx context.Context, id string) error
	RemoveAllHostEntries(ctx context.Context) error
	ListHostEntries(ctx context.Context) ([]model.HostEntryRecord, error)
}

// HelperManager delegates hosts-file edits to the privileged helper over its
// socket, for callers that do not themselves run with permission to edit the
// hosts file directly (spec §9 "Dual direct/helper hosts-file path").
type HelperManager struct {
	Client HelperProtocolClient
}

// NewHelperManager constructs a HelperManager over an already-dialable
// helper client.
func NewHelperManager(c HelperProtocolClient) *HelperManager {
	return &HelperManager{Client: c}
}

func (m *HelperManager) Add(id string, entry model.HostEntry) error {
	return m.Client.AddHostEntry(context.Background(), id, entry)
}

func (m *HelperManager) Remove(id string) error {
	return m.Client.RemoveHostEntry(context.Background(), id)
}

func (m *HelperManager) RemoveAll() error {
	return m.Client.RemoveAllHostEntries(context.Background())
}

func (m *HelperManager) List() ([]model.HostEntryRecord, error) {
	return m.Client.ListHostEntries(context.Background())
}

// NewManager selects HelperManager when the helper is reachable, falling
// back to DirectManager otherwise (spec §9): a process without the helper
// installed still gets best-effort hosts-file editing if it happens to run
// with sufficient privilege itself.
func NewManager(helperClient HelperProtocolClient, directPath string) Manager {
	if helperClient != nil && helperClient.IsAvailable() {
		return NewHelperManager(helperClient)
	}
	return NewDirectManager(directPath)
}

// marker returns the trailing comment tag a managed line carries, letting
// Remove/List find entries without needing a side index.
func marker(id string) string { return "# kftray:" + id }

// DefaultPath returns the OS-conventional hosts file location.
func DefaultPath() string {
	if runtime.GOOS == "windows" {
		root := os.Getenv("SystemRoot")
		if root == "" {
			root = `C:\Windows`
		}
		return filepath.Join(root, "System32", "drivers", "etc", "hosts")
	}
	return "/etc/hosts"
}

// DirectManager edits the hosts file in place under a process-local lock,
// via write-new-then-rename for atomicity (spec §4.9 Host semantics).
type DirectManager struct {
	path string
	mu   sync.Mutex
}

// NewDirectManager constructs a manager over path (DefaultPath() in
// production, a temp file in tests).
func NewDirectManager(path string) *DirectManager {
	return &DirectManager{path: path}
}

// Add appends or replaces the managed line for id (idempotent: adding twice
// overwrites rather than duplicating).
func (m *DirectManager) Add(id string, entry model.HostEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines, err := m.readLines()
	if err != nil {
		return err
	}

	tag := marker(id)
	line := fmt.Sprintf("%s\t%s\t%s", entry.IP, entry.Hostname, tag)

	out := make([]string, 0, len(lines)+1)
	replaced := false
	for _, l := range lines {
		if strings.HasSuffix(strings.TrimRight(l, "\n"), tag) {
			out = append(out, line)
			replaced = true
			continue
		}
		out = append(out, l)
	}
	if !replaced {
		out = append(out, line)
	}

	return m.writeLines(out)
}

// Remove deletes the managed line for id. Removing a non-existent id is
// success (spec §4.9: "not found" is success).
func (m *DirectManager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines, err := m.readLines()
	if err != nil {
		return err
	}

	tag := marker(id)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.HasSuffix(strings.TrimRight(l, "\n"), tag) {
			continue
		}
		out = append(out, l)
	}

	return m.writeLines(out)
}

// RemoveAll deletes every kftray-managed line, leaving the rest of the file
// untouched.
func (m *DirectManager) RemoveAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines, err := m.readLines()
	if err != nil {
		return err
	}

	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.Contains(l, "# kftray:") {
			continue
		}
		out = append(out, l)
	}

	return m.writeLines(out)
}

// List returns every currently managed entry.
func (m *DirectManager) List() ([]model.HostEntryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines, err := m.readLines()
	if err != nil {
		return nil, err
	}

	var records []model.HostEntryRecord
	for _, l := range lines {
		id, entry, ok := parseManagedLine(l)
		if !ok {
			continue
		}
		records = append(records, model.HostEntryRecord{ID: id, Entry: entry})
	}
	return records, nil
}

func parseManagedLine(line string) (id string, entry model.HostEntry, ok bool) {
	const prefix = "# kftray:"
	idx := strings.Index(line, prefix)
	if idx < 0 {
		return "", model.HostEntry{}, false
	}
	id = strings.TrimSpace(line[idx+len(prefix):])

	fields := strings.Fields(line[:idx])
	if len(fields) < 2 {
		return "", model.HostEntry{}, false
	}
	return id, model.HostEntry{IP: fields[0], Hostname: fields[1]}, true
}

func (m *DirectManager) readLines() ([]string, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading hosts file %s: %w", m.path, err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func (m *DirectManager) writeLines(lines []string) error {
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}

	tmp := m.path + ".kftray-tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing temp hosts file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("renaming temp hosts file into place: %w", err)
	}
	return nil
}
