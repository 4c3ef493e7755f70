package configstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forwards.yaml")
	doc := `forwards:
  - id: 1
    workload_type: service
    protocol: tcp
    namespace: default
    target: postgres
    remote_port: 5432
    local_port: 5432
  - id: 2
    workload_type: pod
    protocol: udp
    namespace: default
    target: app=dns-proxy
    remote_port: 53
    local_port: 5053
    running: true
    process_id: 4242
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	store, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, store.All())
}

func TestGetReturnsParsedConfiguration(t *testing.T) {
	store, err := Open(writeFixture(t))
	require.NoError(t, err)

	cfg, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Target)
	assert.EqualValues(t, 5432, cfg.RemotePort.Number)
}

func TestListActiveFiltersByOwningPID(t *testing.T) {
	store, err := Open(writeFixture(t))
	require.NoError(t, err)

	active, err := store.ListActive(context.Background(), 4242)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(2), active[0].ID)

	none, err := store.ListActive(context.Background(), 9999)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateStatePersistsToDisk(t *testing.T) {
	path := writeFixture(t)
	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, store.UpdateState(context.Background(), 1, true, 555))

	reloaded, err := Open(path)
	require.NoError(t, err)

	active, err := reloaded.ListActive(context.Background(), 555)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(1), active[0].ID)
}

func TestUpdateStateUnknownIDIsError(t *testing.T) {
	store, err := Open(writeFixture(t))
	require.NoError(t, err)

	err = store.UpdateState(context.Background(), 999, true, 1)
	assert.Error(t, err)
}

func TestAllIsOrderedByID(t *testing.T) {
	store, err := Open(writeFixture(t))
	require.NoError(t, err)

	all := store.All()
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)
}

func TestStateReportsLastPersistedTuple(t *testing.T) {
	store, err := Open(writeFixture(t))
	require.NoError(t, err)

	running, pid, ok := store.State(2)
	require.True(t, ok)
	assert.True(t, running)
	assert.Equal(t, 4242, pid)

	_, _, ok = store.State(999)
	assert.False(t, ok)
}
