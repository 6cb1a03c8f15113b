package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/erov.guidance/internal/pid"
	"github.com/banshee-data/erov.guidance/internal/shaper"
)

// Output limits shared by every channel of both presets.
const (
	channelMax = 1000
	channelMin = -1000
)

// Preset is a named set of controller constants for one kind of vehicle.
type Preset struct {
	Name string `json:"name"`

	Yaw pid.Config `json:"yaw"`
	X   pid.Config `json:"x"`
	Y   pid.Config `json:"y"`
	Z   pid.Config `json:"z"`

	// BaseZ is added to the vertical PID output before shaping.
	BaseZ float64 `json:"base_z"`

	XOffset   float64 `json:"x_offset"`
	YOffset   float64 `json:"y_offset"`
	YawOffset float64 `json:"yaw_offset"`
	YawBias   float64 `json:"yaw_bias"`

	ZOffsetPos float64 `json:"z_offset_pos"`
	ZOffsetNeg float64 `json:"z_offset_neg"`

	Deadband         float64 `json:"deadband"`
	VerticalMidpoint float64 `json:"vertical_midpoint"`
	AxisLimit        float64 `json:"axis_limit"`
}

func channel(kp, kd, filter float64) pid.Config {
	return pid.Config{Max: channelMax, Min: channelMin, Kp: kp, Kd: kd, Filter: filter}
}

// SITL returns the constants tuned for the software-in-the-loop simulator.
func SITL() Preset {
	return Preset{
		Name:             "sitl",
		Yaw:              channel(10, 20, 0.05),
		X:                channel(10, 60, 0.05),
		Y:                channel(10, 60, 0.05),
		Z:                channel(20, 10, 0.1),
		BaseZ:            -77,
		XOffset:          60,
		YOffset:          60,
		YawOffset:        400,
		YawBias:          shaper.YawBias,
		ZOffsetPos:       0,
		ZOffsetNeg:       10,
		Deadband:         0,
		VerticalMidpoint: shaper.VerticalMidpoint,
		AxisLimit:        shaper.AxisLimit,
	}
}

// Hardware returns the constants tuned for the physical vehicle.
func Hardware() Preset {
	return Preset{
		Name:             "hardware",
		Yaw:              channel(10, 20, 0.05),
		X:                channel(20, 60, 0.05),
		Y:                channel(20, 60, 0.05),
		Z:                channel(20, 10, 0.05),
		BaseZ:            -20,
		XOffset:          45,
		YOffset:          45,
		YawOffset:        440,
		YawBias:          shaper.YawBias,
		ZOffsetPos:       100,
		ZOffsetNeg:       10,
		Deadband:         0,
		VerticalMidpoint: shaper.VerticalMidpoint,
		AxisLimit:        shaper.AxisLimit,
	}
}

var presets = map[string]func() Preset{
	"sitl":     SITL,
	"hardware": Hardware,
}

// PresetNames returns the known preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PresetByName returns the preset called name (case-insensitive).
func PresetByName(name string) (Preset, error) {
	fn, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (want one of %s)", name, strings.Join(PresetNames(), ", "))
	}
	return fn(), nil
}

// Offsets returns the shaping constants of the preset.
func (p Preset) Offsets() shaper.Offsets {
	return shaper.Offsets{
		X:        p.XOffset,
		Y:        p.YOffset,
		Yaw:      p.YawOffset,
		YawBias:  p.YawBias,
		ZPos:     p.ZOffsetPos,
		ZNeg:     p.ZOffsetNeg,
		Deadband: p.Deadband,
		Midpoint: p.VerticalMidpoint,
	}
}

// Validate checks the channel limits and shaping constants.
func (p Preset) Validate() error {
	for _, ch := range []struct {
		name string
		cfg  pid.Config
	}{{"yaw", p.Yaw}, {"x", p.X}, {"y", p.Y}, {"z", p.Z}} {
		if ch.cfg.Min >= ch.cfg.Max {
			return fmt.Errorf("%s channel: min %v must be below max %v", ch.name, ch.cfg.Min, ch.cfg.Max)
		}
		if ch.cfg.Filter < 0 {
			return fmt.Errorf("%s channel: filter must be non-negative, got %v", ch.name, ch.cfg.Filter)
		}
	}
	if p.AxisLimit <= 0 {
		return fmt.Errorf("axis_limit must be positive, got %v", p.AxisLimit)
	}
	if p.Deadband < 0 {
		return fmt.Errorf("deadband must be non-negative, got %v", p.Deadband)
	}
	return nil
}
