package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.lan"
    port: 1883
  qos: 1
blebox:
  general_poll_interval: 1m
  specific_poll_interval: 15s
  rescan_delay: 10m
  max_devices: 20
  interfaces: ["eth0"]
  extra_addresses: ["10.0.5.20"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.MQTT.Broker.Host != "broker.lan" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.BleBox.GeneralPollInterval != time.Minute {
		t.Errorf("GeneralPollInterval = %v, want 1m", cfg.BleBox.GeneralPollInterval)
	}
	if cfg.BleBox.SpecificPollInterval != 15*time.Second {
		t.Errorf("SpecificPollInterval = %v, want 15s", cfg.BleBox.SpecificPollInterval)
	}
	if cfg.BleBox.RescanDelay != 10*time.Minute {
		t.Errorf("RescanDelay = %v", cfg.BleBox.RescanDelay)
	}
	if cfg.BleBox.MaxDevices != 20 {
		t.Errorf("MaxDevices = %d", cfg.BleBox.MaxDevices)
	}
	if !slices.Equal(cfg.BleBox.ExtraAddresses, []string{"10.0.5.20"}) {
		t.Errorf("ExtraAddresses = %v", cfg.BleBox.ExtraAddresses)
	}

	// Untouched keys keep their defaults.
	if cfg.BleBox.Jitter != 5*time.Second || cfg.BleBox.FailureThreshold != 4 {
		t.Errorf("defaults lost: jitter=%v threshold=%d", cfg.BleBox.Jitter, cfg.BleBox.FailureThreshold)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "invalid: [yaml: content")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
blebox:
  max_devices: 0
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"site.id", "blebox.max_devices"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing site ID", func(c *Config) { c.Site.ID = "" }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"invalid port", func(c *Config) { c.API.Port = 70000 }, true},
		{"port ignored when API disabled", func(c *Config) { c.API.Enabled = false; c.API.Port = 0 }, false},
		{"no JWT secret", func(c *Config) { c.Security.JWT.Secret = "" }, false},
		{"JWT secret too short", func(c *Config) { c.Security.JWT.Secret = "short" }, true},
		{"JWT secret long enough", func(c *Config) { c.Security.JWT.Secret = strings.Repeat("k", 32) }, false},
		{"zero poll interval", func(c *Config) { c.BleBox.GeneralPollInterval = 0 }, true},
		{"zero request pacing", func(c *Config) { c.BleBox.RequestPacing = 0 }, true},
		{"negative jitter", func(c *Config) { c.BleBox.Jitter = -time.Second }, true},
		{"zero jitter", func(c *Config) { c.BleBox.Jitter = 0 }, false},
		{"negative threshold", func(c *Config) { c.BleBox.FailureThreshold = -1 }, true},
		{"zero threshold", func(c *Config) { c.BleBox.FailureThreshold = 0 }, false},
		{"zero population cap", func(c *Config) { c.BleBox.MaxDevices = 0 }, true},
		{"inverted mask bounds", func(c *Config) { c.BleBox.MinMaskBits = 24; c.BleBox.MaxMaskBits = 20 }, true},
		{"mask bound above 32", func(c *Config) { c.BleBox.MaxMaskBits = 33 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_BLEBOX_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_BLEBOX_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_BLEBOX_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_BLEBOX_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_BLEBOX_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_BLEBOX_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_BLEBOX_JWT_SECRET", "jwt-secret")
	t.Setenv("GRAYLOGIC_BLEBOX_INTERFACES", "eth0, wlan0,")
	t.Setenv("GRAYLOGIC_BLEBOX_EXTRA_ADDRESSES", "10.0.0.7")
	t.Setenv("GRAYLOGIC_BLEBOX_MAX_DEVICES", "12")
	t.Setenv("GRAYLOGIC_BLEBOX_RESCAN_DELAY", "5m")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
	if !slices.Equal(cfg.BleBox.Interfaces, []string{"eth0", "wlan0"}) {
		t.Errorf("Interfaces = %v", cfg.BleBox.Interfaces)
	}
	if !slices.Equal(cfg.BleBox.ExtraAddresses, []string{"10.0.0.7"}) {
		t.Errorf("ExtraAddresses = %v", cfg.BleBox.ExtraAddresses)
	}
	if cfg.BleBox.MaxDevices != 12 {
		t.Errorf("MaxDevices = %d", cfg.BleBox.MaxDevices)
	}
	if cfg.BleBox.RescanDelay != 5*time.Minute {
		t.Errorf("RescanDelay = %v", cfg.BleBox.RescanDelay)
	}
}

func TestApplyEnvOverrides_IgnoresMalformedNumbers(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("GRAYLOGIC_BLEBOX_MAX_DEVICES", "lots")
	t.Setenv("GRAYLOGIC_BLEBOX_RESCAN_DELAY", "soon")

	applyEnvOverrides(cfg)

	if cfg.BleBox.MaxDevices != 98 || cfg.BleBox.RescanDelay != 0 {
		t.Errorf("malformed overrides applied: %+v", cfg.BleBox)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Broker.ClientID != "graylogic-blebox" {
		t.Errorf("ClientID = %q", cfg.MQTT.Broker.ClientID)
	}

	b := cfg.BleBox
	if b.GeneralPollInterval != 30*time.Second || b.SpecificPollInterval != 10*time.Second {
		t.Errorf("poll intervals = %v / %v", b.GeneralPollInterval, b.SpecificPollInterval)
	}
	if b.ScanPacing != 100*time.Millisecond || b.RequestPacing != 300*time.Millisecond || b.RequestTimeout != 5*time.Second {
		t.Errorf("pacing/timeout = %v %v %v", b.ScanPacing, b.RequestPacing, b.RequestTimeout)
	}
	if b.MaxDevices != 98 || b.MinMaskBits != 16 || b.MaxMaskBits != 32 {
		t.Errorf("limits = %+v", b)
	}
	if b.RescanDelay != 0 {
		t.Errorf("RescanDelay = %v, want one-shot", b.RescanDelay)
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("GRAYLOGIC_BLEBOX_MQTT_HOST", "env-broker")
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
}
