// Package config handles eventbridge configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nugget/eventbridge/internal/obslog"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/eventbridge/config.yaml, /config/config.yaml,
// /etc/eventbridge/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "eventbridge", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/eventbridge/config.yaml")
	return paths
}

// searchPathsFunc is indirected so tests can substitute a controlled
// set of paths rather than the real filesystem-dependent defaults.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds all eventbridge configuration. The 10-second command
// deadline and 0-based event numbering are hard constants elsewhere in
// the module, not configuration (SPEC_FULL.md §10.2).
type Config struct {
	Transport     TransportConfig     `yaml:"transport"`
	AdminHTTP     AdminHTTPConfig     `yaml:"admin_http"`
	Store         StoreConfig         `yaml:"store"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	LogLevel      string              `yaml:"log_level"`
	LogFormat     string              `yaml:"log_format"` // text, json
}

// TransportConfig selects which transport.Transport/transport.Server
// implementation to run and carries that transport's addressing.
type TransportConfig struct {
	// Kind is one of "memory", "websocket", "mqtt".
	Kind      string          `yaml:"kind"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// WebSocketConfig configures the wstransport client/server.
type WebSocketConfig struct {
	Address string `yaml:"address"` // server bind address, e.g. ":8081"
	URL     string `yaml:"url"`     // client dial URL, e.g. "ws://localhost:8081/ws"
}

// MQTTConfig configures the mqtttransport client/server, including the
// per-instance topic addressing scheme both sides derive from Prefix.
type MQTTConfig struct {
	BrokerURL   string `yaml:"broker_url"`
	TopicPrefix string `yaml:"topic_prefix"`
	InstanceID  string `yaml:"instance_id"` // client only; empty generates one
}

// AdminHTTPConfig configures the gin-gonic operator surface
// (/healthz, /metrics, /debug/pending).
type AdminHTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// StoreConfig configures the SQLite-backed event store demo.
type StoreConfig struct {
	DSN string `yaml:"dsn"` // database/sql data source name
}

// SubscriptionsConfig configures the §13 opt-in bounded-queue mode on
// the client protocol instance. Unbounded remains the core default.
type SubscriptionsConfig struct {
	Bounded  bool `yaml:"bounded"`
	Capacity int  `yaml:"capacity"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${EVENTBRIDGE_MQTT_BROKER_URL}).
	// This is a convenience for container deployments; the recommended
	// approach is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Transport.Kind == "" {
		c.Transport.Kind = "memory"
	}
	if c.Transport.WebSocket.Address == "" {
		c.Transport.WebSocket.Address = ":8081"
	}
	if c.Transport.MQTT.TopicPrefix == "" {
		c.Transport.MQTT.TopicPrefix = "eventbridge"
	}
	if c.AdminHTTP.Port == 0 {
		c.AdminHTTP.Port = 8080
	}
	if c.Store.DSN == "" {
		c.Store.DSN = "./data/eventbridge.db"
	}
	if c.Subscriptions.Bounded && c.Subscriptions.Capacity == 0 {
		c.Subscriptions.Capacity = 256
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case "memory", "websocket", "mqtt":
	default:
		return fmt.Errorf("transport.kind %q unknown (valid: memory, websocket, mqtt)", c.Transport.Kind)
	}
	if c.Transport.Kind == "mqtt" && c.Transport.MQTT.BrokerURL == "" {
		return fmt.Errorf("transport.mqtt.broker_url is required when transport.kind is mqtt")
	}
	if c.AdminHTTP.Port < 1 || c.AdminHTTP.Port > 65535 {
		return fmt.Errorf("admin_http.port %d out of range (1-65535)", c.AdminHTTP.Port)
	}
	if c.Subscriptions.Bounded && c.Subscriptions.Capacity < 1 {
		return fmt.Errorf("subscriptions.capacity %d must be positive when subscriptions.bounded is true", c.Subscriptions.Capacity)
	}
	if c.LogLevel != "" {
		if _, err := obslog.ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format %q unknown (valid: text, json)", c.LogFormat)
	}
	return nil
}

// Default returns a default configuration suitable for local
// development against the in-memory transport. All defaults are
// already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
