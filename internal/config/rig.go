package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/gantry/internal/actuator"
	"github.com/banshee-data/gantry/internal/encounter"
	"github.com/banshee-data/gantry/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical rig defaults file.
const DefaultConfigPath = "config/gantry.defaults.json"

const (
	defaultSerialPort       = "/dev/ttyUSB0"
	defaultTickInterval     = time.Second
	defaultReadBufferSize   = 64
	defaultHandshakeTimeout = 30 * time.Second
	defaultDBPath           = "gantry.db"
	defaultListen           = ":8081"

	// a read must hold at least one marker pair
	minReadBufferSize = 2
	maxReadBufferSize = 4096
)

// RigConfig is the on-disk configuration for a gantry rig. Every field is
// optional; the Get* methods supply the default for anything left unset.
type RigConfig struct {
	// Transport
	SerialPort     *string                `json:"serial_port,omitempty"`
	Serial         *serialmux.PortOptions `json:"serial,omitempty"`
	ReadBufferSize *int                   `json:"read_buffer_size,omitempty"`

	// Scheduling
	TickInterval     *string `json:"tick_interval,omitempty"`     // duration string like "1s"
	HandshakeTimeout *string `json:"handshake_timeout,omitempty"` // duration string like "30s"
	QueueOrder       *string `json:"queue_order,omitempty"`       // "commit" or "start_time"
	Timezone         *string `json:"timezone,omitempty"`

	// Outputs
	EchoCommands *bool         `json:"echo_commands,omitempty"`
	Limits       *LimitsConfig `json:"limits,omitempty"`

	// Journal and debug server
	DBPath *string `json:"db_path,omitempty"`
	Listen *string `json:"listen,omitempty"`
}

// LimitsConfig overrides individual drive limits in degrees; unset fields
// keep actuator.DefaultLimits.
type LimitsConfig struct {
	MinAzimuth   *float64 `json:"min_azimuth,omitempty"`
	MaxAzimuth   *float64 `json:"max_azimuth,omitempty"`
	MinElevation *float64 `json:"min_elevation,omitempty"`
	MaxElevation *float64 `json:"max_elevation,omitempty"`
}

// EmptyRigConfig returns a RigConfig with every field unset.
func EmptyRigConfig() *RigConfig {
	return &RigConfig{}
}

// LoadRigConfig loads a RigConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadRigConfig(path string) (*RigConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRigConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// current directory. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *RigConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadRigConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *RigConfig) Validate() error {
	for name, v := range map[string]*string{
		"tick_interval":     c.TickInterval,
		"handshake_timeout": c.HandshakeTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	if c.ReadBufferSize != nil {
		if n := *c.ReadBufferSize; n < minReadBufferSize || n > maxReadBufferSize {
			return fmt.Errorf("read_buffer_size must be between %d and %d, got %d", minReadBufferSize, maxReadBufferSize, n)
		}
	}

	if c.QueueOrder != nil {
		if _, err := encounter.ParseOrder(*c.QueueOrder); err != nil {
			return err
		}
	}

	if c.Timezone != nil && *c.Timezone != "" {
		if _, err := time.LoadLocation(*c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", *c.Timezone, err)
		}
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}

	if err := c.GetLimits().Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}

	return nil
}

// GetSerialPort returns the serial device path or the default.
func (c *RigConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return defaultSerialPort
	}
	return *c.SerialPort
}

// GetSerialOptions returns the normalised port options. Invalid options were
// rejected by Validate; if they slip through the defaults are used.
func (c *RigConfig) GetSerialOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	normalised, err := opts.Normalise()
	if err != nil {
		normalised, _ = serialmux.PortOptions{}.Normalise()
	}
	return normalised
}

// GetReadBufferSize returns the per-read buffer size in bytes.
func (c *RigConfig) GetReadBufferSize() int {
	if c.ReadBufferSize == nil {
		return defaultReadBufferSize
	}
	return *c.ReadBufferSize
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *RigConfig) GetTickInterval() time.Duration {
	return parseDurationOr(c.TickInterval, defaultTickInterval)
}

// GetHandshakeTimeout parses and returns the HandshakeTimeout as a time.Duration.
func (c *RigConfig) GetHandshakeTimeout() time.Duration {
	return parseDurationOr(c.HandshakeTimeout, defaultHandshakeTimeout)
}

// GetQueueOrder returns the queue ordering policy.
func (c *RigConfig) GetQueueOrder() encounter.Order {
	if c.QueueOrder == nil {
		return encounter.OrderCommit
	}
	order, err := encounter.ParseOrder(*c.QueueOrder)
	if err != nil {
		return encounter.OrderCommit
	}
	return order
}

// GetLocation returns the zone handshake times are interpreted in.
func (c *RigConfig) GetLocation() *time.Location {
	if c.Timezone == nil || *c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(*c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetEchoCommands reports whether fired commands are echoed to the port.
func (c *RigConfig) GetEchoCommands() bool {
	if c.EchoCommands == nil {
		return false
	}
	return *c.EchoCommands
}

// GetLimits returns the drive limits with any configured overrides applied.
func (c *RigConfig) GetLimits() actuator.Limits {
	l := actuator.DefaultLimits()
	if c.Limits == nil {
		return l
	}
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{c.Limits.MinAzimuth, &l.MinAzimuth},
		{c.Limits.MaxAzimuth, &l.MaxAzimuth},
		{c.Limits.MinElevation, &l.MinElevation},
		{c.Limits.MaxElevation, &l.MaxElevation},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return l
}

// GetDBPath returns the journal database path.
func (c *RigConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return defaultDBPath
	}
	return *c.DBPath
}

// GetListen returns the debug HTTP listen address.
func (c *RigConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return defaultListen
	}
	return *c.Listen
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
