package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Coordinator holds all configuration for the matchmaking coordinator.
type Coordinator struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Auth service used for token validation
	AuthHost string `yaml:"auth_host"`
	AuthPort int    `yaml:"auth_port"`

	// Matchmaking
	PlayersPerMatch   int `yaml:"players_per_match"`
	AcceptTimeout     int `yaml:"accept_timeout"`     // seconds
	ValidationTimeout int `yaml:"validation_timeout"` // seconds
	QueueStatusEvery  int `yaml:"queue_status_every"` // seconds

	// Server registry
	HeartbeatTTL int `yaml:"heartbeat_ttl"` // seconds

	// Reconnect window after a mid-game disconnect
	ReconnectGrace int `yaml:"reconnect_grace"` // seconds

	// Observability, empty disables the listener
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// DefaultCoordinator returns Coordinator config with sensible defaults.
func DefaultCoordinator() Coordinator {
	return Coordinator{
		BindAddress:       "0.0.0.0",
		Port:              27016,
		AuthHost:          "127.0.0.1",
		AuthPort:          27015,
		PlayersPerMatch:   10,
		AcceptTimeout:     20,
		ValidationTimeout: 5,
		QueueStatusEvery:  5,
		HeartbeatTTL:      15,
		ReconnectGrace:    180,
		MetricsAddr:       "",
		LogLevel:          "info",
	}
}

// LoadCoordinator loads coordinator config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadCoordinator(path string) (Coordinator, error) {
	cfg := DefaultCoordinator()

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
