package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-blebox/internal/api"
	"github.com/nerrad567/gray-logic-blebox/internal/bridges/blebox"
	"github.com/nerrad567/gray-logic-blebox/internal/infrastructure/config"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// writeConfig writes a minimal config with its database in a temp dir.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := `
site:
  id: test-site
database:
  path: "` + filepath.Join(dir, "blebox.db") + `"
  wal_mode: true
  busy_timeout: 5
logging:
  level: error
  format: text
  output: stderr
` + extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestGetConfigPath(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv(configEnvVar, "")
	if got := getConfigPath(""); got != "" {
		t.Errorf("no flag, env or default file: got %q, want empty", got)
	}

	if err := os.MkdirAll("configs", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(defaultConfigPath, []byte("site:\n  id: x\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := getConfigPath(""); got != defaultConfigPath {
		t.Errorf("default file present: got %q", got)
	}

	t.Setenv(configEnvVar, "/etc/blebox.yaml")
	if got := getConfigPath(""); got != "/etc/blebox.yaml" {
		t.Errorf("env set: got %q", got)
	}
	if got := getConfigPath("/opt/flag.yaml"); got != "/opt/flag.yaml" {
		t.Errorf("flag set: got %q", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(configEnvVar, "")

	cfg, source, err := loadConfig(&options{})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if source != "(defaults)" {
		t.Errorf("source = %q", source)
	}
	if cfg.BleBox.MaxDevices != 98 {
		t.Errorf("MaxDevices = %d, want 98", cfg.BleBox.MaxDevices)
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	_, err := execute(t, "--config", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("serve should fail with an invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "graylogic-blebox "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestTokenCommand(t *testing.T) {
	path := writeConfig(t, "security:\n  jwt:\n    secret: \""+testSecret+"\"\n")

	out, err := execute(t, "--config", path, "token", "--subject", "panel", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}

	claims, err := api.ParseToken(strings.TrimSpace(out), testSecret)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.Subject != "panel" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if d := time.Until(claims.ExpiresAt.Time); d > time.Hour {
		t.Errorf("ttl = %v, want at most 1h", d)
	}
}

func TestTokenCommand_NoSecret(t *testing.T) {
	t.Setenv("GRAYLOGIC_BLEBOX_JWT_SECRET", "")
	path := writeConfig(t, "")

	if _, err := execute(t, "--config", path, "token"); err == nil {
		t.Error("token without a secret should fail")
	}
}

func TestMigrateCommands(t *testing.T) {
	path := writeConfig(t, "")

	out, err := execute(t, "--config", path, "migrate", "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("fresh database status = %q, want a pending migration", out)
	}

	if _, err := execute(t, "--config", path, "migrate", "up"); err != nil {
		t.Fatalf("up error = %v", err)
	}
	out, err = execute(t, "--config", path, "migrate", "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "applied") || strings.Contains(out, "pending") {
		t.Errorf("status after up = %q", out)
	}

	if _, err := execute(t, "--config", path, "migrate", "down"); err != nil {
		t.Fatalf("down error = %v", err)
	}
	out, err = execute(t, "--config", path, "migrate", "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("status after down = %q", out)
	}
}

func TestLastWill(t *testing.T) {
	will, err := lastWill()
	if err != nil {
		t.Fatal(err)
	}
	if will.Topic != "graylogic/health/blebox" {
		t.Errorf("Topic = %q", will.Topic)
	}

	var msg blebox.HealthMessage
	if err := json.Unmarshal(will.Payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status != blebox.HealthOffline || msg.Reason != "unexpected_disconnect" {
		t.Errorf("will = %+v", msg)
	}
}

func TestScannerConfig(t *testing.T) {
	cfg := config.BleBoxConfig{
		ScanPacing:     50 * time.Millisecond,
		RescanDelay:    time.Hour,
		MinMaskBits:    20,
		MaxMaskBits:    30,
		Interfaces:     []string{"eth0"},
		ExtraAddresses: []string{"10.0.0.7"},
	}

	got := scannerConfig(cfg)
	if got.Pacing != cfg.ScanPacing || got.RescanDelay != time.Hour {
		t.Errorf("timing = %v/%v", got.Pacing, got.RescanDelay)
	}
	if got.Bounds != (blebox.MaskBounds{Min: 20, Max: 30}) {
		t.Errorf("Bounds = %+v", got.Bounds)
	}
	if len(got.Interfaces) != 1 || got.ExtraAddresses[0] != "10.0.0.7" {
		t.Errorf("addresses = %v/%v", got.Interfaces, got.ExtraAddresses)
	}
}

func TestBuildCore(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	c, err := buildCore(cfg.BleBox, nil)
	if err != nil {
		t.Fatalf("buildCore() error = %v", err)
	}
	defer c.scheduler.Close()

	if c.registry.Count() != 0 || c.scanner.Running() {
		t.Error("fresh core should be idle and empty")
	}
}

func TestPrintDevices(t *testing.T) {
	devices := []blebox.Snapshot{
		{ID: "1afe34e750b8", Type: "switchbox", Address: "192.168.1.20", Name: "Hall", Responding: true},
	}

	var table bytes.Buffer
	if err := printDevices(&table, devices, false); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[1], "192.168.1.20") {
		t.Errorf("table = %q", table.String())
	}

	var js bytes.Buffer
	if err := printDevices(&js, nil, true); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(js.String()) != "[]" {
		t.Errorf("empty JSON = %q, want []", js.String())
	}
}

func TestPrintLines(t *testing.T) {
	var buf bytes.Buffer
	if err := printLines(&buf, []string{"192.168.1.1", "192.168.1.3"}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "192.168.1.1\n192.168.1.3\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestTypesCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		header   string
		contains []string
		rows     int
	}{
		{
			name:     "families",
			args:     []string{"types"},
			header:   "TYPE",
			contains: []string{"switchbox", "getRelayState", "setSimpleRelayState"},
			rows:     len(blebox.DefaultFamilies()),
		},
		{
			name:     "commands",
			args:     []string{"types", "--commands"},
			header:   "COMMAND",
			contains: []string{"getDeviceState", "/s/{0}/p/{1}"},
			rows:     len(blebox.CommandNames()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			lines := strings.Split(strings.TrimSpace(out), "\n")
			if !strings.HasPrefix(lines[0], tt.header) || len(lines) != tt.rows+1 {
				t.Errorf("output = %q", out)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q", want)
				}
			}
		})
	}
}
