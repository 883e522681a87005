package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("admin_http:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	// When no config exists anywhere, should error. Override
	// searchPathsFunc to avoid finding real config files on developer
	// machines (~/.config/eventbridge/config.yaml, etc.).
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "config.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("admin_http:\n  port: 8080\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("transport:\n  kind: mqtt\n  mqtt:\n    broker_url: ${EVENTBRIDGE_TEST_BROKER}\n"), 0600)
	os.Setenv("EVENTBRIDGE_TEST_BROKER", "tcp://localhost:1883")
	defer os.Unsetenv("EVENTBRIDGE_TEST_BROKER")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Transport.MQTT.BrokerURL != "tcp://localhost:1883" {
		t.Errorf("broker_url = %q, want %q", cfg.Transport.MQTT.BrokerURL, "tcp://localhost:1883")
	}
}

func TestLoad_InlineValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("store:\n  dsn: /var/lib/eventbridge/store.db\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Store.DSN != "/var/lib/eventbridge/store.db" {
		t.Errorf("dsn = %q, want %q", cfg.Store.DSN, "/var/lib/eventbridge/store.db")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Transport.Kind != "memory" {
		t.Errorf("default transport.kind = %q, want %q", cfg.Transport.Kind, "memory")
	}
	if cfg.Transport.WebSocket.Address != ":8081" {
		t.Errorf("default transport.websocket.address = %q, want %q", cfg.Transport.WebSocket.Address, ":8081")
	}
	if cfg.Transport.MQTT.TopicPrefix != "eventbridge" {
		t.Errorf("default transport.mqtt.topic_prefix = %q, want %q", cfg.Transport.MQTT.TopicPrefix, "eventbridge")
	}
	if cfg.AdminHTTP.Port != 8080 {
		t.Errorf("default admin_http.port = %d, want 8080", cfg.AdminHTTP.Port)
	}
	if cfg.Store.DSN != "./data/eventbridge.db" {
		t.Errorf("default store.dsn = %q, want %q", cfg.Store.DSN, "./data/eventbridge.db")
	}
}

func TestApplyDefaults_BoundedSubscriptionsGetDefaultCapacity(t *testing.T) {
	cfg := Default()
	cfg.Subscriptions.Bounded = true
	cfg.applyDefaults()

	if cfg.Subscriptions.Capacity != 256 {
		t.Errorf("expected default bounded capacity 256, got %d", cfg.Subscriptions.Capacity)
	}
}

func TestApplyDefaults_UnboundedSubscriptionsLeaveCapacityZero(t *testing.T) {
	cfg := Default()
	cfg.applyDefaults()

	if cfg.Subscriptions.Capacity != 0 {
		t.Errorf("expected capacity 0 for unbounded subscriptions, got %d", cfg.Subscriptions.Capacity)
	}
}

func TestValidate_UnknownTransportKind(t *testing.T) {
	cfg := Default()
	cfg.Transport.Kind = "carrier-pigeon"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown transport.kind")
	}
	if !strings.Contains(err.Error(), "transport.kind") {
		t.Errorf("error should mention transport.kind, got: %v", err)
	}
}

func TestValidate_MQTTRequiresBrokerURL(t *testing.T) {
	cfg := Default()
	cfg.Transport.Kind = "mqtt"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for mqtt transport without broker_url")
	}
	if !strings.Contains(err.Error(), "broker_url") {
		t.Errorf("error should mention broker_url, got: %v", err)
	}
}

func TestValidate_AdminHTTPPortOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.AdminHTTP.Port = 70000

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for out-of-range admin_http.port")
	}
	if !strings.Contains(err.Error(), "admin_http.port") {
		t.Errorf("error should mention admin_http.port, got: %v", err)
	}
}

func TestValidate_BoundedSubscriptionsRequirePositiveCapacity(t *testing.T) {
	cfg := Default()
	cfg.Subscriptions.Bounded = true
	cfg.Subscriptions.Capacity = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for bounded subscriptions with zero capacity")
	}
	if !strings.Contains(err.Error(), "subscriptions.capacity") {
		t.Errorf("error should mention subscriptions.capacity, got: %v", err)
	}
}

func TestValidate_UnknownLogFormat(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown log_format")
	}
	if !strings.Contains(err.Error(), "log_format") {
		t.Errorf("error should mention log_format, got: %v", err)
	}
}

func TestValidate_UnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "screaming"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log_level")
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate cleanly, got: %v", err)
	}
}
