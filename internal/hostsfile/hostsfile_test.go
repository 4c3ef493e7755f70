package hostsfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kftray/kftray-core/internal/model"
)

type fakeHelperProtocolClient struct {
	available bool
	entries   map[string]model.HostEntry
}

func newFakeHelperProtocolClient(available bool) *fakeHelperProtocolClient {
	return &fakeHelperProtocolClient{available: available, entries: map[string]model.HostEntry{}}
}

func (f *fakeHelperProtocolClient) IsAvailable() bool { return f.available }

func (f *fakeHelperProtocolClient) AddHostEntry(ctx context.Context, id string, entry model.HostEntry) error {
	f.entries[id] = entry
	return nil
}

func (f *fakeHelperProtocolClient) RemoveHostEntry(ctx context.Context, id string) error {
	delete(f.entries, id)
	return nil
}

func (f *fakeHelperProtocolClient) RemoveAllHostEntries(ctx context.Context) error {
	f.entries = map[string]model.HostEntry{}
	return nil
}

func (f *fakeHelperProtocolClient) ListHostEntries(ctx context.Context) ([]model.HostEntryRecord, error) {
	var records []model.HostEntryRecord
	for id, entry := range f.entries {
		records = append(records, model.HostEntryRecord{ID: id, Entry: entry})
	}
	return records, nil
}

func newTestManager(t *testing.T) *DirectManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1\tlocalhost\n"), 0o644))
	return NewDirectManager(path)
}

func TestAddThenListReturnsEntry(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Add("42", model.HostEntry{IP: "127.0.0.2", Hostname: "db.kftray.local"}))

	records, err := m.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "42", records[0].ID)
	assert.Equal(t, "db.kftray.local", records[0].Entry.Hostname)
}

func TestAddTwiceReplacesRatherThanDuplicates(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Add("42", model.HostEntry{IP: "127.0.0.2", Hostname: "old.local"}))
	require.NoError(t, m.Add("42", model.HostEntry{IP: "127.0.0.3", Hostname: "new.local"}))

	records, err := m.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new.local", records[0].Entry.Hostname)
}

func TestRemoveMissingIDIsSuccess(t *testing.T) {
	m := newTestManager(t)

	assert.NoError(t, m.Remove("nonexistent"))
}

func TestRemoveAllLeavesUnmanagedLinesIntact(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Add("1", model.HostEntry{IP: "127.0.0.2", Hostname: "a.local"}))
	require.NoError(t, m.Add("2", model.HostEntry{IP: "127.0.0.3", Hostname: "b.local"}))
	require.NoError(t, m.RemoveAll())

	records, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	data, err := os.ReadFile(m.path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "localhost")
}

func TestHelperManagerDelegatesToClient(t *testing.T) {
	fake := newFakeHelperProtocolClient(true)
	m := NewHelperManager(fake)

	require.NoError(t, m.Add("7", model.HostEntry{IP: "127.0.0.4", Hostname: "svc.kftray.local"}))
	records, err := m.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "7", records[0].ID)

	require.NoError(t, m.Remove("7"))
	records, err = m.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, m.Add("8", model.HostEntry{IP: "127.0.0.5", Hostname: "other.kftray.local"}))
	require.NoError(t, m.RemoveAll())
	records, err = m.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNewManagerPicksHelperWhenAvailable(t *testing.T) {
	fake := newFakeHelperProtocolClient(true)
	m := NewManager(fake, filepath.Join(t.TempDir(), "hosts"))

	_, ok := m.(*HelperManager)
	assert.True(t, ok)
}

func TestNewManagerFallsBackToDirectWhenHelperUnavailable(t *testing.T) {
	fake := newFakeHelperProtocolClient(false)
	m := NewManager(fake, filepath.Join(t.TempDir(), "hosts"))

	_, ok := m.(*DirectManager)
	assert.True(t, ok)
}

func TestNewManagerFallsBackToDirectWhenClientNil(t *testing.T) {
	m := NewManager(nil, filepath.Join(t.TempDir(), "hosts"))

	_, ok := m.(*DirectManager)
	assert.True(t, ok)
}
