package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyOperatorConfigDefaults(t *testing.T) {
	cfg := EmptyOperatorConfig()

	if !cfg.GetUseTreeLookup() {
		t.Errorf("GetUseTreeLookup() = false, want true")
	}
	if got := cfg.GetReferenceFrame(); got != "local_origin_ned" {
		t.Errorf("GetReferenceFrame() = %q", got)
	}
	if got := cfg.GetVehicleFrame(); got != "erov" {
		t.Errorf("GetVehicleFrame() = %q", got)
	}
	if got := cfg.GetTargetFrame(); got != "bluerov2_ghost" {
		t.Errorf("GetTargetFrame() = %q", got)
	}
	if got := cfg.GetTickPeriod(); got != 100*time.Millisecond {
		t.Errorf("GetTickPeriod() = %v", got)
	}
	if got := cfg.GetPoseTimeout(); got != 200*time.Millisecond {
		t.Errorf("GetPoseTimeout() = %v", got)
	}
	if got := cfg.GetFailureBackoff(); got != 50*time.Millisecond {
		t.Errorf("GetFailureBackoff() = %v", got)
	}
	if got := cfg.GetSerialBaudRate(); got != 115200 {
		t.Errorf("GetSerialBaudRate() = %d", got)
	}
	if cfg.GetSerialPort() != "" || cfg.GetCANInterface() != "" {
		t.Errorf("links should be disabled by default")
	}

	p, err := cfg.GetPreset()
	if err != nil {
		t.Fatalf("GetPreset() error: %v", err)
	}
	if p.Name != "sitl" {
		t.Errorf("default preset = %q, want sitl", p.Name)
	}
}

func TestDefaultConfigFileMatchesGetters(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyOperatorConfig()

	if cfg.GetTickPeriod() != empty.GetTickPeriod() {
		t.Errorf("tick_period %v differs from built-in default %v", cfg.GetTickPeriod(), empty.GetTickPeriod())
	}
	if cfg.GetPoseTimeout() != empty.GetPoseTimeout() {
		t.Errorf("pose_timeout %v differs from built-in default %v", cfg.GetPoseTimeout(), empty.GetPoseTimeout())
	}
	if cfg.GetReferenceFrame() != empty.GetReferenceFrame() {
		t.Errorf("reference_frame %q differs from built-in default", cfg.GetReferenceFrame())
	}
}

func TestLoadOperatorConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "operator.json")

	testJSON := `{
  "preset": "hardware",
  "use_tree_lookup": false,
  "tick_period": "50ms",
  "base_z": -30,
  "gains": {"x": {"kp": 25, "ki": 0.5}},
  "serial_port": "/dev/ttyUSB0"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadOperatorConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetUseTreeLookup() {
		t.Errorf("Expected use_tree_lookup false")
	}
	if got := cfg.GetTickPeriod(); got != 50*time.Millisecond {
		t.Errorf("GetTickPeriod() = %v, want 50ms", got)
	}
	if got := cfg.GetSerialPort(); got != "/dev/ttyUSB0" {
		t.Errorf("GetSerialPort() = %q", got)
	}

	p, err := cfg.GetPreset()
	if err != nil {
		t.Fatalf("GetPreset() error: %v", err)
	}
	if p.Name != "hardware" || p.BaseZ != -30 {
		t.Errorf("preset = %s base_z %v, want hardware -30", p.Name, p.BaseZ)
	}
	if p.X.Kp != 25 || p.X.Ki != 0.5 || p.X.Kd != 60 {
		t.Errorf("x gains = %+v, want kp 25 ki 0.5 kd 60", p.X)
	}
	if p.Y.Kp != 20 {
		t.Errorf("y gains should be untouched, got %+v", p.Y)
	}
}

func TestLoadOperatorConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := LoadOperatorConfig("/nonexistent/path/to/config.json"); err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}

	yamlPath := filepath.Join(tmpDir, "operator.yaml")
	if err := os.WriteFile(yamlPath, []byte("preset: sitl"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOperatorConfig(yamlPath); err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("Expected extension error, got %v", err)
	}

	badPath := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(badPath, []byte(`{"preset": `), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOperatorConfig(badPath); err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}

	bigPath := filepath.Join(tmpDir, "big.json")
	if err := os.WriteFile(bigPath, make([]byte, 1024*1024+1), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOperatorConfig(bigPath); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected size error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OperatorConfig
		wantErr bool
	}{
		{"empty", OperatorConfig{}, false},
		{"known preset", OperatorConfig{Preset: ptrString("HARDWARE")}, false},
		{"unknown preset", OperatorConfig{Preset: ptrString("bathtub")}, true},
		{"bad duration", OperatorConfig{PoseTimeout: ptrString("soon")}, true},
		{"negative duration", OperatorConfig{FailureBackoff: ptrString("-5ms")}, true},
		{"zero tick period", OperatorConfig{TickPeriod: ptrString("0s")}, true},
		{"bad baud", OperatorConfig{SerialBaudRate: ptrInt(0)}, true},
		{"unknown gain axis", OperatorConfig{Gains: map[string]GainOverride{"roll": {}}}, true},
		{"negative filter", OperatorConfig{Gains: map[string]GainOverride{"z": {Filter: ptrFloat64(-1)}}}, true},
		{"tree lookup flag", OperatorConfig{UseTreeLookup: ptrBool(false)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
