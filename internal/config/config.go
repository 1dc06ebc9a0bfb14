package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AuthServer holds all configuration for the auth service.
type AuthServer struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Sessions
	SessionTTL      int `yaml:"session_ttl"`      // seconds
	CleanupInterval int `yaml:"cleanup_interval"` // seconds

	// Security
	LoginTryBeforeBan  int `yaml:"login_try_before_ban"`
	LoginBlockAfterBan int `yaml:"login_block_after_ban"` // seconds

	// Observability, empty disables the listener
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// DefaultAuthServer returns AuthServer config with sensible defaults.
func DefaultAuthServer() AuthServer {
	return AuthServer{
		BindAddress:        "0.0.0.0",
		Port:               27015,
		SessionTTL:         86400,
		CleanupInterval:    60,
		LoginTryBeforeBan:  5,
		LoginBlockAfterBan: 900,
		MetricsAddr:        "",
		LogLevel:           "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "ironrift",
			Password: "ironrift",
			DBName:   "ironrift",
			SSLMode:  "disable",
		},
	}
}

// LoadAuthServer loads auth service config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadAuthServer(path string) (AuthServer, error) {
	cfg := DefaultAuthServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
