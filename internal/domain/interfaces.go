package domain

import (
	"context"
)

// Analyzer submits a variant file for every drug and returns one result per drug
// in the order the drugs were given
type Analyzer interface {
	Analyze(ctx context.Context, file *VariantFile, drugs []Drug, patientID string) ([]RiskResult, error)
}

// VariantFile is an uploaded variant file held in memory
type VariantFile struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Content []byte `json:"-"`
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetBackendConfig() *BackendConfig
	GetSessionConfig() *SessionConfig
	GetHistoryConfig() *HistoryConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
