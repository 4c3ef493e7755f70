package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindHelperBinaryInExeDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, helperBinaryName())
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh"), 0o755))

	found, err := findHelperBinaryIn(dir)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestFindHelperBinaryInResourcesSidecar(t *testing.T) {
	dir := t.TempDir()
	resourcesDir := filepath.Join(dir, "resources")
	require.NoError(t, os.MkdirAll(resourcesDir, 0o755))
	path := filepath.Join(resourcesDir, helperBinaryName())
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh"), 0o755))

	found, err := findHelperBinaryIn(dir)
	require.NoError(t, err)
	assert.Equal(t, path, found)
}

func TestFindHelperBinaryNotFoundIsHardError(t *testing.T) {
	dir := t.TempDir()

	_, err := findHelperBinaryIn(dir)
	assert.Error(t, err)
}
