package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the operator config shipped with the repository.
const DefaultConfigPath = "config/operator.defaults.json"

// OperatorConfig is the on-disk configuration of the operator station.
// Every field is optional; the Get* accessors supply defaults for omitted
// values, so partial configs are safe.
type OperatorConfig struct {
	// Controller
	Preset *string                 `json:"preset,omitempty"` // "sitl" or "hardware"
	Gains  map[string]GainOverride `json:"gains,omitempty"`  // keyed by axis: x, y, z, yaw
	BaseZ  *float64                `json:"base_z,omitempty"`

	// Pose acquisition
	UseTreeLookup  *bool   `json:"use_tree_lookup,omitempty"`
	ReferenceFrame *string `json:"reference_frame,omitempty"`
	VehicleFrame   *string `json:"vehicle_frame,omitempty"`
	TargetFrame    *string `json:"target_frame,omitempty"`
	PoseTimeout    *string `json:"pose_timeout,omitempty"` // duration string like "200ms"
	PoseMaxAge     *string `json:"pose_max_age,omitempty"`

	// Loop timing
	TickPeriod     *string `json:"tick_period,omitempty"`
	FailureBackoff *string `json:"failure_backoff,omitempty"`

	// Vehicle link
	SerialPort     *string `json:"serial_port,omitempty"`
	SerialBaudRate *int    `json:"serial_baud_rate,omitempty"`
	CANInterface   *string `json:"can_interface,omitempty"`

	// Storage and surfaces
	DBPath     *string `json:"db_path,omitempty"`
	Listen     *string `json:"listen,omitempty"`
	GRPCListen *string `json:"grpc_listen,omitempty"`
}

// GainOverride replaces individual constants of one preset channel.
type GainOverride struct {
	Kp     *float64 `json:"kp,omitempty"`
	Ki     *float64 `json:"ki,omitempty"`
	Kd     *float64 `json:"kd,omitempty"`
	Filter *float64 `json:"filter,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyOperatorConfig returns a config with every field unset.
func EmptyOperatorConfig() *OperatorConfig {
	return &OperatorConfig{}
}

// LoadOperatorConfig loads an OperatorConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadOperatorConfig(path string) (*OperatorConfig, error) {
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

	cfg := EmptyOperatorConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded; intended for
// test setup.
func MustLoadDefaultConfig() *OperatorConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadOperatorConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *OperatorConfig) Validate() error {
	if c.Preset != nil {
		if _, err := PresetByName(*c.Preset); err != nil {
			return err
		}
	}

	for axis := range c.Gains {
		switch axis {
		case "x", "y", "z", "yaw":
		default:
			return fmt.Errorf("gains: unknown axis %q", axis)
		}
		if f := c.Gains[axis].Filter; f != nil && *f < 0 {
			return fmt.Errorf("gains.%s.filter must be non-negative, got %f", axis, *f)
		}
	}

	durations := []struct {
		name string
		val  *string
	}{
		{"pose_timeout", c.PoseTimeout},
		{"pose_max_age", c.PoseMaxAge},
		{"tick_period", c.TickPeriod},
		{"failure_backoff", c.FailureBackoff},
	}
	for _, d := range durations {
		if d.val == nil || *d.val == "" {
			continue
		}
		v, err := time.ParseDuration(*d.val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.val, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, *d.val)
		}
	}
	if c.TickPeriod != nil && *c.TickPeriod != "" && c.GetTickPeriod() == 0 {
		return fmt.Errorf("tick_period must be positive")
	}

	if c.SerialBaudRate != nil && *c.SerialBaudRate <= 0 {
		return fmt.Errorf("serial_baud_rate must be positive, got %d", *c.SerialBaudRate)
	}

	return nil
}

// GetPreset returns the selected preset with gain and base overrides
// applied.
func (c *OperatorConfig) GetPreset() (Preset, error) {
	name := "sitl"
	if c.Preset != nil && *c.Preset != "" {
		name = *c.Preset
	}
	p, err := PresetByName(name)
	if err != nil {
		return Preset{}, err
	}
	if c.BaseZ != nil {
		p.BaseZ = *c.BaseZ
	}
	for axis, g := range c.Gains {
		switch axis {
		case "x":
			g.apply(&p.X.Kp, &p.X.Ki, &p.X.Kd, &p.X.Filter)
		case "y":
			g.apply(&p.Y.Kp, &p.Y.Ki, &p.Y.Kd, &p.Y.Filter)
		case "z":
			g.apply(&p.Z.Kp, &p.Z.Ki, &p.Z.Kd, &p.Z.Filter)
		case "yaw":
			g.apply(&p.Yaw.Kp, &p.Yaw.Ki, &p.Yaw.Kd, &p.Yaw.Filter)
		}
	}
	return p, p.Validate()
}

func (g GainOverride) apply(kp, ki, kd, filter *float64) {
	if g.Kp != nil {
		*kp = *g.Kp
	}
	if g.Ki != nil {
		*ki = *g.Ki
	}
	if g.Kd != nil {
		*kd = *g.Kd
	}
	if g.Filter != nil {
		*filter = *g.Filter
	}
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func stringOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

// GetUseTreeLookup returns use_tree_lookup or the default (true).
func (c *OperatorConfig) GetUseTreeLookup() bool {
	if c.UseTreeLookup == nil {
		return true
	}
	return *c.UseTreeLookup
}

// GetReferenceFrame returns reference_frame or the default.
func (c *OperatorConfig) GetReferenceFrame() string {
	return stringOr(c.ReferenceFrame, "local_origin_ned")
}

// GetVehicleFrame returns vehicle_frame or the default.
func (c *OperatorConfig) GetVehicleFrame() string {
	return stringOr(c.VehicleFrame, "erov")
}

// GetTargetFrame returns target_frame or the default.
func (c *OperatorConfig) GetTargetFrame() string {
	return stringOr(c.TargetFrame, "bluerov2_ghost")
}

// GetPoseTimeout returns pose_timeout or the default.
func (c *OperatorConfig) GetPoseTimeout() time.Duration {
	return parseDurationOr(c.PoseTimeout, 200*time.Millisecond)
}

// GetPoseMaxAge returns pose_max_age or the default.
func (c *OperatorConfig) GetPoseMaxAge() time.Duration {
	return parseDurationOr(c.PoseMaxAge, 200*time.Millisecond)
}

// GetTickPeriod returns tick_period or the default.
func (c *OperatorConfig) GetTickPeriod() time.Duration {
	return parseDurationOr(c.TickPeriod, 100*time.Millisecond)
}

// GetFailureBackoff returns failure_backoff or the default.
func (c *OperatorConfig) GetFailureBackoff() time.Duration {
	return parseDurationOr(c.FailureBackoff, 50*time.Millisecond)
}

// GetSerialPort returns serial_port; empty disables the serial link.
func (c *OperatorConfig) GetSerialPort() string {
	return stringOr(c.SerialPort, "")
}

// GetSerialBaudRate returns serial_baud_rate or the default.
func (c *OperatorConfig) GetSerialBaudRate() int {
	if c.SerialBaudRate == nil {
		return 115200
	}
	return *c.SerialBaudRate
}

// GetCANInterface returns can_interface; empty disables CAN actuation.
func (c *OperatorConfig) GetCANInterface() string {
	return stringOr(c.CANInterface, "")
}

// GetDBPath returns db_path or the default.
func (c *OperatorConfig) GetDBPath() string {
	return stringOr(c.DBPath, "operator.db")
}

// GetListen returns the HTTP listen address or the default.
func (c *OperatorConfig) GetListen() string {
	return stringOr(c.Listen, ":8090")
}

// GetGRPCListen returns the gRPC listen address or the default.
func (c *OperatorConfig) GetGRPCListen() string {
	return stringOr(c.GRPCListen, "localhost:50061")
}
