package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the BleBox bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	BleBox    BleBoxConfig    `yaml:"blebox"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// An empty secret leaves the API unauthenticated.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// BleBoxConfig contains device discovery and polling settings.
type BleBoxConfig struct {
	// Discovery
	ScanPacing     time.Duration `yaml:"scan_pacing"`
	RescanDelay    time.Duration `yaml:"rescan_delay"` // 0 scans once at startup
	MinMaskBits    int           `yaml:"min_mask_bits"`
	MaxMaskBits    int           `yaml:"max_mask_bits"`
	Interfaces     []string      `yaml:"interfaces"`
	ExtraAddresses []string      `yaml:"extra_addresses"`
	MaxDevices     int           `yaml:"max_devices"`

	// Polling
	GeneralPollInterval  time.Duration `yaml:"general_poll_interval"`
	SpecificPollInterval time.Duration `yaml:"specific_poll_interval"`
	Jitter               time.Duration `yaml:"jitter"`
	FailureThreshold     int           `yaml:"failure_threshold"`

	// Requests
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RequestPacing  time.Duration `yaml:"request_pacing"`

	HealthInterval time.Duration `yaml:"health_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_BLEBOX_SECTION_KEY
// For example: GRAYLOGIC_BLEBOX_MQTT_HOST, GRAYLOGIC_BLEBOX_MAX_DEVICES
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, with environment overrides
// applied, for runs without a config file.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/blebox.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-blebox",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		BleBox: BleBoxConfig{
			ScanPacing:           100 * time.Millisecond,
			MinMaskBits:          16,
			MaxMaskBits:          32,
			MaxDevices:           98,
			GeneralPollInterval:  30 * time.Second,
			SpecificPollInterval: 10 * time.Second,
			Jitter:               5 * time.Second,
			FailureThreshold:     4,
			RequestTimeout:       5 * time.Second,
			RequestPacing:        300 * time.Millisecond,
			HealthInterval:       30 * time.Second,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_BLEBOX_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_BLEBOX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_BLEBOX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_BLEBOX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_BLEBOX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_BLEBOX_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_BLEBOX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("GRAYLOGIC_BLEBOX_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Discovery
	if v := os.Getenv("GRAYLOGIC_BLEBOX_INTERFACES"); v != "" {
		cfg.BleBox.Interfaces = splitList(v)
	}
	if v := os.Getenv("GRAYLOGIC_BLEBOX_EXTRA_ADDRESSES"); v != "" {
		cfg.BleBox.ExtraAddresses = splitList(v)
	}
	if v := os.Getenv("GRAYLOGIC_BLEBOX_MAX_DEVICES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BleBox.MaxDevices = n
		}
	}
	if v := os.Getenv("GRAYLOGIC_BLEBOX_RESCAN_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BleBox.RescanDelay = d
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A configured secret enables bearer auth; a short one is refused
	// rather than silently weakening it.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	errs = append(errs, c.BleBox.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (b *BleBoxConfig) validate() []string {
	var errs []string

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"blebox.scan_pacing", b.ScanPacing},
		{"blebox.general_poll_interval", b.GeneralPollInterval},
		{"blebox.specific_poll_interval", b.SpecificPollInterval},
		{"blebox.request_timeout", b.RequestTimeout},
		{"blebox.request_pacing", b.RequestPacing},
		{"blebox.health_interval", b.HealthInterval},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, p.name+" must be positive")
		}
	}
	if b.Jitter < 0 {
		errs = append(errs, "blebox.jitter must not be negative")
	}
	if b.RescanDelay < 0 {
		errs = append(errs, "blebox.rescan_delay must not be negative")
	}
	if b.FailureThreshold < 0 {
		errs = append(errs, "blebox.failure_threshold must not be negative")
	}
	if b.MaxDevices <= 0 {
		errs = append(errs, "blebox.max_devices must be positive")
	}
	if b.MinMaskBits < 0 || b.MinMaskBits >= b.MaxMaskBits || b.MaxMaskBits > 32 {
		errs = append(errs, "blebox mask bounds must satisfy 0 <= min_mask_bits < max_mask_bits <= 32")
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
