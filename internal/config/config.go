package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pharmaguard-wizard/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. PHARMAGUARD_SERVER_PORT
const EnvPrefix = "PHARMAGUARD"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// Option configures a Manager
type Option func(*Manager)

// WithConfigFile reads configuration from an explicit file instead of searching
// the default locations
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.configFile = path
	}
}

// NewManager creates a new configuration manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from a .env file, a YAML file and the environment
func (m *Manager) loadConfig() error {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pharmaguard/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The frontend build variable is honoured so one .env serves both
	if err := v.BindEnv("backend.base_url", EnvPrefix+"_BACKEND_BASE_URL", "API_BASE_URL"); err != nil {
		return fmt.Errorf("error binding environment: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.Backend.BaseURL = strings.TrimRight(config.Backend.BaseURL, "/")

	m.v = v
	m.config = config
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("data_dir", "")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "150s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost:5173",
		"http://localhost:3000",
		"http://127.0.0.1:5173",
	})
	v.SetDefault("server.max_upload_bytes", 50*1024*1024)

	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", "120s")
	v.SetDefault("backend.rate_limit", 0)
	v.SetDefault("backend.max_concurrency", 0)
	v.SetDefault("backend.default_patient_id", "unknown")
	v.SetDefault("backend.breaker.max_requests", 3)
	v.SetDefault("backend.breaker.interval", "30s")
	v.SetDefault("backend.breaker.timeout", "60s")
	v.SetDefault("backend.breaker.min_requests", 5)
	v.SetDefault("backend.breaker.failure_ratio", 0.6)

	// Session defaults
	v.SetDefault("session.max_sessions", 1000)
	v.SetDefault("session.ttl", "1h")

	// History defaults
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.path", "")
	v.SetDefault("history.dsn", "")

	v.SetDefault("catalog.path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetBackendConfig returns the analysis backend configuration
func (m *Manager) GetBackendConfig() *domain.BackendConfig {
	return &m.config.Backend
}

// GetSessionConfig returns session store configuration
func (m *Manager) GetSessionConfig() *domain.SessionConfig {
	return &m.config.Session
}

// GetHistoryConfig returns report history configuration
func (m *Manager) GetHistoryConfig() *domain.HistoryConfig {
	return &m.config.History
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server max upload bytes must be positive")
	}

	if config.Backend.BaseURL == "" {
		return fmt.Errorf("backend base URL is required")
	}
	u, err := url.Parse(config.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend base URL: %s", config.Backend.BaseURL)
	}
	if config.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}
	if config.Backend.MaxConcurrency < 0 {
		return fmt.Errorf("backend max concurrency cannot be negative")
	}
	if r := config.Backend.Breaker.FailureRatio; r <= 0 || r > 1 {
		return fmt.Errorf("breaker failure ratio must be in (0, 1]: %v", r)
	}

	if config.Session.MaxSessions <= 0 {
		return fmt.Errorf("session max sessions must be positive")
	}
	if config.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}

	switch strings.ToLower(config.History.Driver) {
	case "sqlite", "none", "":
	case "postgres":
		if config.History.DSN == "" {
			return fmt.Errorf("history DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid history driver: %s", config.History.Driver)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}

var _ domain.ConfigManager = (*Manager)(nil)
