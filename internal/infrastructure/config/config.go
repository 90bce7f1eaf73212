package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default listener used when neither a socket nor an address is configured.
const (
	DefaultAddress = "0.0.0.0"
	DefaultPort    = 3000
)

// Config is the root configuration structure for Gray Logic Edge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig describes the supervised engine instance.
type EngineConfig struct {
	// Identifier names the instance in messages and MQTT topics.
	// Default: "Engine"
	Identifier string `yaml:"identifier"`

	// Binary is the path to the engine executable.
	Binary string `yaml:"binary"`

	// WorkingDir receives engine.conf and is the engine's prefix directory.
	WorkingDir string `yaml:"working_dir"`

	// SocketFile makes the engine listen on a unix socket.
	// Mutually exclusive with Address/Port.
	SocketFile string `yaml:"socket_file,omitempty"`

	// Address and Port make the engine listen on TCP.
	// Default: 0.0.0.0:3000 when no socket_file is set.
	Address string `yaml:"address,omitempty"`
	Port    int    `yaml:"port,omitempty"`

	SSL EngineSSLConfig `yaml:"ssl"`

	// PIDFile and LogFile default to engine.pid and engine.log in WorkingDir.
	PIDFile string `yaml:"pid_file,omitempty"`
	LogFile string `yaml:"log_file,omitempty"`

	// User is the account engine workers run as. Empty keeps the engine default.
	User string `yaml:"user,omitempty"`

	// ConfigTemplate overrides the built-in engine.conf template.
	ConfigTemplate string `yaml:"config_template,omitempty"`

	// Directives are passed through to the template's option helper.
	Directives map[string]any `yaml:"directives"`

	// DirectivePrefix is prepended to directive names.
	// Default: "engine_"
	DirectivePrefix string `yaml:"directive_prefix"`

	// RawDirectivePrefixes mark directive names used without the prefix.
	RawDirectivePrefixes []string `yaml:"raw_directive_prefixes"`

	Locations []LocationConfig    `yaml:"locations"`
	Timeouts  EngineTimeoutConfig `yaml:"timeouts"`
}

// EngineSSLConfig enables an additional SSL listener.
type EngineSSLConfig struct {
	Port           int    `yaml:"port"`
	Certificate    string `yaml:"certificate"`
	CertificateKey string `yaml:"certificate_key"`
}

// LocationConfig is one location block with its own directives.
type LocationConfig struct {
	Path       string         `yaml:"path"`
	Directives map[string]any `yaml:"directives"`
}

// EngineTimeoutConfig contains engine lifecycle timeouts.
type EngineTimeoutConfig struct {
	// Start bounds the whole start attempt. Default: 25s
	Start time.Duration `yaml:"start"`

	// Stop is the grace period between SIGTERM and SIGKILL. Default: 60s
	Stop time.Duration `yaml:"stop"`

	// LogActivity is how long the log may stay silent before the PID file
	// appears. Default: 12s
	LogActivity time.Duration `yaml:"log_activity"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Listener defaults, only when neither socket nor address is set
//
// Environment variables follow the pattern: GRAYLOGIC_EDGE_SECTION_KEY
// For example: GRAYLOGIC_EDGE_ENGINE_BINARY, GRAYLOGIC_EDGE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	cfg.applyListenDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Identifier:      "Engine",
			Binary:          "/usr/sbin/nginx",
			WorkingDir:      "./data/engine",
			DirectivePrefix: "engine_",
			Timeouts: EngineTimeoutConfig{
				Start:       25 * time.Second,
				Stop:        60 * time.Second,
				LogActivity: 12 * time.Second,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-edge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "graylogic",
			Bucket:        "edge",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// applyListenDefaults fills in the TCP listener unless a socket is configured.
func (c *Config) applyListenDefaults() {
	if c.Engine.SocketFile != "" {
		return
	}
	if c.Engine.Address == "" {
		c.Engine.Address = DefaultAddress
	}
	if c.Engine.Port == 0 {
		c.Engine.Port = DefaultPort
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_EDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Engine
	if v := os.Getenv("GRAYLOGIC_EDGE_ENGINE_BINARY"); v != "" {
		cfg.Engine.Binary = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_ENGINE_WORKING_DIR"); v != "" {
		cfg.Engine.WorkingDir = v
	}
	// Choosing a listener by environment replaces the one from the file.
	socket := os.Getenv("GRAYLOGIC_EDGE_ENGINE_SOCKET_FILE")
	address := os.Getenv("GRAYLOGIC_EDGE_ENGINE_ADDRESS")
	port := os.Getenv("GRAYLOGIC_EDGE_ENGINE_PORT")
	if socket != "" && (address != "" || port != "") {
		return errors.New("GRAYLOGIC_EDGE_ENGINE_SOCKET_FILE cannot be combined with GRAYLOGIC_EDGE_ENGINE_ADDRESS/PORT")
	}
	if socket != "" {
		cfg.Engine.SocketFile = socket
		cfg.Engine.Address = ""
		cfg.Engine.Port = 0
	}
	if address != "" || port != "" {
		cfg.Engine.SocketFile = ""
	}
	if address != "" {
		cfg.Engine.Address = address
	}
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("GRAYLOGIC_EDGE_ENGINE_PORT: %w", err)
		}
		cfg.Engine.Port = p
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_EDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_EDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_EDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Engine validation
	e := c.Engine
	if e.Binary == "" {
		errs = append(errs, "engine.binary is required")
	}
	if e.WorkingDir == "" {
		errs = append(errs, "engine.working_dir is required")
	}
	switch {
	case e.SocketFile != "" && (e.Address != "" || e.Port != 0):
		errs = append(errs, "engine.socket_file cannot be combined with engine.address/engine.port")
	case e.SocketFile == "" && e.Address == "":
		errs = append(errs, "engine.socket_file or engine.address is required")
	case e.SocketFile == "" && (e.Port < 1 || e.Port > 65535):
		errs = append(errs, "engine.port must be between 1 and 65535")
	}
	if e.SSL.Port != 0 {
		if e.SocketFile != "" {
			errs = append(errs, "engine.ssl.port requires a TCP listener")
		}
		if e.SSL.Port < 1 || e.SSL.Port > 65535 {
			errs = append(errs, "engine.ssl.port must be between 1 and 65535")
		}
		if e.SSL.Certificate == "" || e.SSL.CertificateKey == "" {
			errs = append(errs, "engine.ssl.certificate and engine.ssl.certificate_key are required with engine.ssl.port")
		}
	}
	if e.Timeouts.Start < 0 || e.Timeouts.Stop < 0 || e.Timeouts.LogActivity < 0 {
		errs = append(errs, "engine.timeouts must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Output) {
	case "", "stdout", "stderr":
	default:
		errs = append(errs, "logging.output must be stdout or stderr")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
