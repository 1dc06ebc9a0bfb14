package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GameServer holds all configuration for a dedicated game server.
type GameServer struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Address advertised to the coordinator and handed to clients
	PublicHost string `yaml:"public_host"`

	// Coordinator connection
	CoordinatorHost string `yaml:"coordinator_host"`
	CoordinatorPort int    `yaml:"coordinator_port"`

	// Server identity
	ServerID uint64 `yaml:"server_id"`
	Capacity int    `yaml:"capacity"` // players

	// Simulation
	TickRate          int `yaml:"tick_rate"`          // ticks per second
	HeartbeatInterval int `yaml:"heartbeat_interval"` // seconds
	InputTimeout      int `yaml:"input_timeout"`      // seconds

	// Match lifecycle
	MatchDuration  int `yaml:"match_duration"`  // seconds of game time before the match ends
	AbandonedGrace int `yaml:"abandoned_grace"` // seconds an empty match is kept before it ends

	// Observability, empty disables the listener
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// DefaultGameServer returns GameServer config with sensible defaults.
func DefaultGameServer() GameServer {
	return GameServer{
		BindAddress:       "0.0.0.0",
		Port:              27017,
		PublicHost:        "127.0.0.1",
		CoordinatorHost:   "127.0.0.1",
		CoordinatorPort:   27016,
		ServerID:          1,
		Capacity:          100,
		TickRate:          30,
		HeartbeatInterval: 2,
		InputTimeout:      10,
		MatchDuration:     1800,
		AbandonedGrace:    60,
		MetricsAddr:       "",
		LogLevel:          "info",
	}
}

// LoadGameServer loads game server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadGameServer(path string) (GameServer, error) {
	cfg := DefaultGameServer()

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
