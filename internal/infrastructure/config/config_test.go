package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfigFile(t, `
engine:
  identifier: "edge-1"
  binary: "/opt/engine/sbin/engine"
  working_dir: "/var/lib/graylogic-edge"
  address: "127.0.0.1"
  port: 8081
  ssl:
    port: 8443
    certificate: "/etc/edge/cert.pem"
    certificate_key: "/etc/edge/key.pem"
  directives:
    max_pool_size: 6
    friendly_error_pages: false
    client_max_body_size: "10m"
  raw_directive_prefixes: ["client_"]
  locations:
    - path: "/api"
      directives:
        proxy_buffering: false
  timeouts:
    start: 40s
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	e := cfg.Engine
	if e.Identifier != "edge-1" {
		t.Errorf("Engine.Identifier = %q, want %q", e.Identifier, "edge-1")
	}
	if e.Address != "127.0.0.1" || e.Port != 8081 {
		t.Errorf("listener = %s:%d, want 127.0.0.1:8081", e.Address, e.Port)
	}
	if e.SSL.Port != 8443 {
		t.Errorf("Engine.SSL.Port = %d, want 8443", e.SSL.Port)
	}
	if v, ok := e.Directives["max_pool_size"].(int); !ok || v != 6 {
		t.Errorf("directives.max_pool_size = %#v, want int 6", e.Directives["max_pool_size"])
	}
	if v, ok := e.Directives["friendly_error_pages"].(bool); !ok || v {
		t.Errorf("directives.friendly_error_pages = %#v, want false", e.Directives["friendly_error_pages"])
	}
	if len(e.Locations) != 1 || e.Locations[0].Path != "/api" {
		t.Errorf("Engine.Locations = %+v", e.Locations)
	}
	if e.Timeouts.Start != 40*time.Second {
		t.Errorf("Engine.Timeouts.Start = %v, want 40s", e.Timeouts.Start)
	}
	if e.Timeouts.Stop != 60*time.Second {
		t.Errorf("Engine.Timeouts.Stop = %v, want default 60s", e.Timeouts.Stop)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
}

func TestLoad_ListenDefaults(t *testing.T) {
	tests := []struct {
		name    string
		content string
		address string
		port    int
		socket  string
	}{
		{
			name:    "tcp defaults",
			content: "engine:\n  working_dir: /srv/edge\n",
			address: DefaultAddress,
			port:    DefaultPort,
		},
		{
			name:    "socket suppresses defaults",
			content: "engine:\n  working_dir: /srv/edge\n  socket_file: /run/edge.sock\n",
			socket:  "/run/edge.sock",
		},
		{
			name:    "explicit port keeps default address",
			content: "engine:\n  port: 9000\n",
			address: DefaultAddress,
			port:    9000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfigFile(t, tt.content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Engine.Address != tt.address || cfg.Engine.Port != tt.port || cfg.Engine.SocketFile != tt.socket {
				t.Errorf("listener = %q %d %q, want %q %d %q",
					cfg.Engine.Address, cfg.Engine.Port, cfg.Engine.SocketFile,
					tt.address, tt.port, tt.socket)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfigFile(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfigFile(t, `
engine:
  socket_file: "/run/edge.sock"
  address: "127.0.0.1"
`))
	if err == nil {
		t.Error("Load() expected validation error for socket_file with address, got nil")
	}
}

func TestLoad_InvalidPortEnv(t *testing.T) {
	t.Setenv("GRAYLOGIC_EDGE_ENGINE_PORT", "eighty")
	_, err := Load(writeConfigFile(t, "engine: {}\n"))
	if err == nil {
		t.Error("Load() expected error for non-numeric port override, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.applyListenDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"socket listener", func(c *Config) {
			c.Engine.Address, c.Engine.Port, c.Engine.SocketFile = "", 0, "/run/edge.sock"
		}, false},
		{"missing binary", func(c *Config) { c.Engine.Binary = "" }, true},
		{"missing working dir", func(c *Config) { c.Engine.WorkingDir = "" }, true},
		{"socket and address", func(c *Config) { c.Engine.SocketFile = "/run/edge.sock" }, true},
		{"invalid port high", func(c *Config) { c.Engine.Port = 70000 }, true},
		{"ssl without certificate", func(c *Config) { c.Engine.SSL.Port = 8443 }, true},
		{"ssl with socket", func(c *Config) {
			c.Engine.Address, c.Engine.Port, c.Engine.SocketFile = "", 0, "/run/edge.sock"
			c.Engine.SSL = EngineSSLConfig{Port: 8443, Certificate: "c", CertificateKey: "k"}
		}, true},
		{"negative timeout", func(c *Config) { c.Engine.Timeouts.Stop = -time.Second }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"mqtt enabled without host", func(c *Config) { c.MQTT.Enabled, c.MQTT.Broker.Host = true, "" }, true},
		{"mqtt disabled without host", func(c *Config) { c.MQTT.Broker.Host = "" }, false},
		{"influxdb enabled without bucket", func(c *Config) { c.InfluxDB.Enabled, c.InfluxDB.Bucket = true, "" }, true},
		{"invalid log output", func(c *Config) { c.Logging.Output = "syslog" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_EDGE_ENGINE_BINARY", "/opt/engine/bin/engine")
	t.Setenv("GRAYLOGIC_EDGE_ENGINE_WORKING_DIR", "/srv/edge")
	t.Setenv("GRAYLOGIC_EDGE_ENGINE_ADDRESS", "10.0.0.5")
	t.Setenv("GRAYLOGIC_EDGE_ENGINE_PORT", "8088")
	t.Setenv("GRAYLOGIC_EDGE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_EDGE_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_EDGE_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_EDGE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_EDGE_LOG_LEVEL", "debug")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Engine.Binary != "/opt/engine/bin/engine" {
		t.Errorf("Engine.Binary = %q", cfg.Engine.Binary)
	}
	if cfg.Engine.WorkingDir != "/srv/edge" {
		t.Errorf("Engine.WorkingDir = %q", cfg.Engine.WorkingDir)
	}
	if cfg.Engine.Address != "10.0.0.5" || cfg.Engine.Port != 8088 {
		t.Errorf("listener = %s:%d", cfg.Engine.Address, cfg.Engine.Port)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestApplyEnvOverrides_SocketFile(t *testing.T) {
	t.Setenv("GRAYLOGIC_EDGE_ENGINE_SOCKET_FILE", "/run/edge.sock")

	cfg, err := Load(writeConfigFile(t, "engine: {}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.SocketFile != "/run/edge.sock" || cfg.Engine.Address != "" || cfg.Engine.Port != 0 {
		t.Errorf("listener = %q %q %d", cfg.Engine.SocketFile, cfg.Engine.Address, cfg.Engine.Port)
	}
}

func TestLoad_SampleConfigListenerOverrides(t *testing.T) {
	sample := filepath.Join("..", "..", "..", "configs", "config.yaml")
	tests := []struct {
		name       string
		env        map[string]string
		wantSocket string
		wantAddr   string
		wantPort   int
	}{
		{
			name:       "socket replaces file address",
			env:        map[string]string{"GRAYLOGIC_EDGE_ENGINE_SOCKET_FILE": "/run/edge.sock"},
			wantSocket: "/run/edge.sock",
		},
		{
			name:     "address keeps file port",
			env:      map[string]string{"GRAYLOGIC_EDGE_ENGINE_ADDRESS": "10.0.0.5"},
			wantAddr: "10.0.0.5",
			wantPort: 3000,
		},
		{
			name:     "port keeps file address",
			env:      map[string]string{"GRAYLOGIC_EDGE_ENGINE_PORT": "8088"},
			wantAddr: "127.0.0.1",
			wantPort: 8088,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(sample)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			e := cfg.Engine
			if e.SocketFile != tt.wantSocket || e.Address != tt.wantAddr || e.Port != tt.wantPort {
				t.Errorf("listener = %q %q %d, want %q %q %d",
					e.SocketFile, e.Address, e.Port, tt.wantSocket, tt.wantAddr, tt.wantPort)
			}
		})
	}
}

func TestLoad_TCPOverrideReplacesFileSocket(t *testing.T) {
	t.Setenv("GRAYLOGIC_EDGE_ENGINE_PORT", "8088")

	cfg, err := Load(writeConfigFile(t, "engine:\n  socket_file: /run/edge.sock\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.SocketFile != "" || cfg.Engine.Address != DefaultAddress || cfg.Engine.Port != 8088 {
		t.Errorf("listener = %q %q %d", cfg.Engine.SocketFile, cfg.Engine.Address, cfg.Engine.Port)
	}
}

func TestApplyEnvOverrides_ConflictingListeners(t *testing.T) {
	t.Setenv("GRAYLOGIC_EDGE_ENGINE_SOCKET_FILE", "/run/edge.sock")
	t.Setenv("GRAYLOGIC_EDGE_ENGINE_PORT", "8088")

	if err := applyEnvOverrides(defaultConfig()); err == nil {
		t.Error("applyEnvOverrides() accepted both a socket and a TCP listener")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Engine.Identifier != "Engine" {
		t.Errorf("defaultConfig Engine.Identifier = %q, want Engine", cfg.Engine.Identifier)
	}
	if cfg.Engine.DirectivePrefix != "engine_" {
		t.Errorf("defaultConfig Engine.DirectivePrefix = %q, want engine_", cfg.Engine.DirectivePrefix)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("defaultConfig should leave mqtt and influxdb disabled")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("defaultConfig Logging.Output = %q, want stderr", cfg.Logging.Output)
	}
	if cfg.Engine.Address != "" || cfg.Engine.Port != 0 {
		t.Error("listener defaults must not be applied before the socket check")
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(sample) error = %v", err)
	}
	if cfg.Engine.Port != 3000 || cfg.Engine.Address != "127.0.0.1" {
		t.Errorf("listen = %s:%d, want 127.0.0.1:3000", cfg.Engine.Address, cfg.Engine.Port)
	}
	if len(cfg.Engine.Locations) != 1 || cfg.Engine.Locations[0].Path != "/static/" {
		t.Errorf("Locations = %+v", cfg.Engine.Locations)
	}
	if cfg.Engine.Timeouts.Stop != 60*time.Second {
		t.Errorf("Timeouts.Stop = %v, want 60s", cfg.Engine.Timeouts.Stop)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("sample config enables a broker")
	}
}
