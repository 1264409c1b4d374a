package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-wizard/internal/domain"
)

func TestDefaultDataDir(t *testing.T) {
	dir := DefaultDataDir()

	assert.NotEmpty(t, dir)
	assert.Equal(t, ".pharmaguard", filepath.Base(dir))
}

func TestManager_HistoryDBPath(t *testing.T) {
	m := &Manager{config: &domain.Config{DataDir: "/home/user/.pharmaguard"}}

	assert.Equal(t, "/home/user/.pharmaguard/history.db", m.HistoryDBPath())

	m.config.History.Path = "/var/lib/pharmaguard/reports.db"
	assert.Equal(t, "/var/lib/pharmaguard/reports.db", m.HistoryDBPath())
}

func TestManager_ExportDir(t *testing.T) {
	m := &Manager{config: &domain.Config{DataDir: "/home/user/.pharmaguard"}}

	assert.Equal(t, "/home/user/.pharmaguard/exports", m.ExportDir())
}

func TestManager_DataDirFallsBackToDefault(t *testing.T) {
	m := &Manager{config: &domain.Config{}}

	assert.Equal(t, DefaultDataDir(), m.DataDir())
}

func TestManager_EnsureDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "pharmaguard")
	m := &Manager{config: &domain.Config{DataDir: dataDir}}

	require.NoError(t, m.EnsureDataDir())

	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	info, err = os.Stat(filepath.Join(dataDir, "exports"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent
	require.NoError(t, m.EnsureDataDir())
}
