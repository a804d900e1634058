package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort         = "8081"
	DefaultMaxBodyBytes = 1 << 20

	BackendMemory = "memory"
	BackendRaft   = "raft"
)

type Config struct {
	Port         string      `yaml:"port"`
	HTTPAddr     string      `yaml:"http_addr"`
	GRPCAddr     string      `yaml:"grpc_addr"`
	LogLevel     string      `yaml:"log_level"`
	LogJSON      bool        `yaml:"log_json"`
	MaxBodyBytes int64       `yaml:"max_body_bytes"`
	Store        StoreConfig `yaml:"store"`
	Raft         RaftConfig  `yaml:"raft"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
	Shards  int    `yaml:"shards"`
}

type RaftConfig struct {
	NodeID           string        `yaml:"node_id"`
	ApplyTimeout     time.Duration `yaml:"apply_timeout"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	ElectionTimeout  time.Duration `yaml:"election_timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:         DefaultPort,
		LogLevel:     "info",
		MaxBodyBytes: DefaultMaxBodyBytes,
		Store: StoreConfig{
			Backend: BackendMemory,
			Shards:  16,
		},
		Raft: RaftConfig{
			NodeID:           "node-1",
			ApplyTimeout:     5 * time.Second,
			HeartbeatTimeout: time.Second,
			ElectionTimeout:  time.Second,
		},
	}
}

// LoadConfig loads configuration from a YAML file if path is provided,
// then applies environment variable overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = net.JoinHostPort("", cfg.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	switch c.Store.Backend {
	case BackendMemory, BackendRaft:
	default:
		return fmt.Errorf("unknown store backend %q (want %q or %q)", c.Store.Backend, BackendMemory, BackendRaft)
	}
	if c.Store.Shards < 1 {
		return fmt.Errorf("store shards must be at least 1, got %d", c.Store.Shards)
	}
	if c.Store.Backend == BackendRaft {
		if c.Raft.NodeID == "" {
			return fmt.Errorf("NODE_ID is required for the raft backend")
		}
		if c.Raft.ElectionTimeout < c.Raft.HeartbeatTimeout {
			return fmt.Errorf("raft election_timeout (%s) must not be below heartbeat_timeout (%s)",
				c.Raft.ElectionTimeout, c.Raft.HeartbeatTimeout)
		}
	}
	return nil
}

// applyEnvOverrides allows environment variables to override YAML config values
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("GRPC_ADDR"); v != "" {
		cfg.GRPCAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_JSON value: %w", err)
		}
		cfg.LogJSON = b
	}
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_BODY_BYTES value: %w", err)
		}
		cfg.MaxBodyBytes = n
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("STORE_SHARDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid STORE_SHARDS value: %w", err)
		}
		cfg.Store.Shards = n
	}
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.Raft.NodeID = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"RAFT_APPLY_TIMEOUT", &cfg.Raft.ApplyTimeout},
		{"RAFT_HEARTBEAT_TIMEOUT", &cfg.Raft.HeartbeatTimeout},
		{"RAFT_ELECTION_TIMEOUT", &cfg.Raft.ElectionTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", d.env, err)
		}
		*d.dst = parsed
	}
	return nil
}
