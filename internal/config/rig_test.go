package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/banshee-data/gantry/internal/actuator"
	"github.com/banshee-data/gantry/internal/encounter"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestEmptyRigConfigDefaults(t *testing.T) {
	cfg := EmptyRigConfig()

	if got := cfg.GetSerialPort(); got != "/dev/ttyUSB0" {
		t.Errorf("GetSerialPort() = %q, want /dev/ttyUSB0", got)
	}
	if got := cfg.GetTickInterval(); got != time.Second {
		t.Errorf("GetTickInterval() = %v, want 1s", got)
	}
	if got := cfg.GetHandshakeTimeout(); got != 30*time.Second {
		t.Errorf("GetHandshakeTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetReadBufferSize(); got != 64 {
		t.Errorf("GetReadBufferSize() = %d, want 64", got)
	}
	if got := cfg.GetQueueOrder(); got != encounter.OrderCommit {
		t.Errorf("GetQueueOrder() = %v, want commit", got)
	}
	if got := cfg.GetLocation(); got != time.UTC {
		t.Errorf("GetLocation() = %v, want UTC", got)
	}
	if cfg.GetEchoCommands() {
		t.Error("GetEchoCommands() = true, want false")
	}
	if got := cfg.GetDBPath(); got != "gantry.db" {
		t.Errorf("GetDBPath() = %q, want gantry.db", got)
	}
	if got := cfg.GetListen(); got != ":8081" {
		t.Errorf("GetListen() = %q, want :8081", got)
	}
	if got := cfg.GetLimits(); got != actuator.DefaultLimits() {
		t.Errorf("GetLimits() = %+v, want defaults", got)
	}

	opts := cfg.GetSerialOptions()
	if opts.BaudRate != 115200 || opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "N" {
		t.Errorf("GetSerialOptions() = %+v, want 115200 8N1", opts)
	}
	if opts.ReadTimeout != "50ms" {
		t.Errorf("ReadTimeout = %q, want 50ms", opts.ReadTimeout)
	}
}

func TestLoadRigConfig(t *testing.T) {
	path := writeConfig(t, "rig.json", `{
  "serial_port": "/dev/ttyACM1",
  "serial": {"baud_rate": 9600, "parity": "even"},
  "tick_interval": "250ms",
  "read_buffer_size": 16,
  "queue_order": "start_time",
  "timezone": "Europe/London",
  "echo_commands": true
}`)

	cfg, err := LoadRigConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetSerialPort(); got != "/dev/ttyACM1" {
		t.Errorf("GetSerialPort() = %q", got)
	}
	opts := cfg.GetSerialOptions()
	if opts.BaudRate != 9600 || opts.Parity != "E" {
		t.Errorf("GetSerialOptions() = %+v, want 9600 even parity", opts)
	}
	if got := cfg.GetTickInterval(); got != 250*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 250ms", got)
	}
	if got := cfg.GetReadBufferSize(); got != 16 {
		t.Errorf("GetReadBufferSize() = %d, want 16", got)
	}
	if got := cfg.GetQueueOrder(); got != encounter.OrderStartTime {
		t.Errorf("GetQueueOrder() = %v, want start_time", got)
	}
	if got := cfg.GetLocation().String(); got != "Europe/London" {
		t.Errorf("GetLocation() = %s", got)
	}
	if !cfg.GetEchoCommands() {
		t.Error("GetEchoCommands() = false, want true")
	}
	// omitted fields keep their defaults
	if got := cfg.GetHandshakeTimeout(); got != 30*time.Second {
		t.Errorf("GetHandshakeTimeout() = %v, want 30s", got)
	}
}

func TestLoadRigConfig_PartialLimits(t *testing.T) {
	cfg, err := LoadRigConfig(writeConfig(t, "rig.json", `{"limits": {"max_azimuth": 270, "min_elevation": 5}}`))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	want := actuator.Limits{MinAzimuth: 0, MaxAzimuth: 270, MinElevation: 5, MaxElevation: 90}
	if got := cfg.GetLimits(); got != want {
		t.Errorf("GetLimits() = %+v, want %+v", got, want)
	}
}

func TestLoadRigConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "rig.yaml", `{}`, ".json extension"},
		{"bad json", "rig.json", `{"tick_interval": `, "failed to parse"},
		{"bad duration", "rig.json", `{"tick_interval": "soon"}`, "tick_interval"},
		{"zero duration", "rig.json", `{"handshake_timeout": "0s"}`, "must be positive"},
		{"tiny buffer", "rig.json", `{"read_buffer_size": 1}`, "read_buffer_size"},
		{"huge buffer", "rig.json", `{"read_buffer_size": 100000}`, "read_buffer_size"},
		{"bad order", "rig.json", `{"queue_order": "random"}`, "queue order"},
		{"bad timezone", "rig.json", `{"timezone": "Mars/Olympus"}`, "timezone"},
		{"bad parity", "rig.json", `{"serial": {"parity": "M"}}`, "parity"},
		{"empty azimuth range", "rig.json", `{"limits": {"min_azimuth": 200, "max_azimuth": 100}}`, "limits"},
		{"elevation below default min", "rig.json", `{"limits": {"max_elevation": -5}}`, "elevation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRigConfig(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRigConfig_Missing(t *testing.T) {
	if _, err := LoadRigConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRigConfig_TooLarge(t *testing.T) {
	big := `{"serial_port": "` + strings.Repeat("x", 1024*1024) + `"}`
	_, err := LoadRigConfig(writeConfig(t, "big.json", big))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults file does not validate: %v", err)
	}
	if got := cfg.GetTickInterval(); got != time.Second {
		t.Errorf("defaults tick_interval = %v, want 1s", got)
	}
	if got := cfg.GetReadBufferSize(); got != 64 {
		t.Errorf("defaults read_buffer_size = %d, want 64", got)
	}
}
