package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir is where local state lives when data_dir is not configured
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return filepath.Join(os.TempDir(), "pharmaguard")
	}
	return filepath.Join(homeDir, ".pharmaguard")
}

// DataDir resolves the local data directory
func (m *Manager) DataDir() string {
	if m.config.DataDir != "" {
		return m.config.DataDir
	}
	return DefaultDataDir()
}

// HistoryDBPath returns the SQLite report history path, defaulting to a file
// inside the data directory
func (m *Manager) HistoryDBPath() string {
	if m.config.History.Path != "" {
		return m.config.History.Path
	}
	return filepath.Join(m.DataDir(), "history.db")
}

// ExportDir returns the directory for JSON report exports
func (m *Manager) ExportDir() string {
	return filepath.Join(m.DataDir(), "exports")
}

// EnsureDataDir creates the data and export directories if they don't exist
func (m *Manager) EnsureDataDir() error {
	if err := os.MkdirAll(m.DataDir(), 0755); err != nil {
		return err
	}
	return os.MkdirAll(m.ExportDir(), 0755)
}
