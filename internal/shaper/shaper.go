// Package shaper maps normalised per-axis velocities (±100) into the
// vehicle's native manual-control range (roughly ±1000, with the vertical
// axis centred on 500).
package shaper

import "math"

const (
	// AxisLimit bounds every normalised velocity before scaling.
	AxisLimit = 100
	// VerticalMidpoint is the native vertical value for zero throttle.
	VerticalMidpoint = 500
	// YawBias is added on top of the yaw offset on the positive branch.
	YawBias = 5
)

// XYR scales a lateral or yaw velocity into native units.
func XYR(v float64) float64 { return v * 10 }

// Z scales a vertical velocity into native units.
func Z(v float64) float64 { return (v + 100) / 0.2 }

// Clamp limits v to [-limit, limit].
func Clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// Deadband pushes a scaled value away from zero by offset once it leaves
// [-deadband, deadband]. Values inside the band are returned unchanged.
func Deadband(value, deadband, offset float64) float64 {
	switch {
	case value > deadband:
		return value + offset
	case value < -deadband:
		return value - offset
	default:
		return value
	}
}

// Vertical applies the asymmetric vertical offset around midpoint: above it
// pos is added, at or below it neg is subtracted.
func Vertical(value, midpoint, pos, neg float64) float64 {
	if value > midpoint {
		return value + pos
	}
	return value - neg
}

// Yaw is Deadband with an extra bias on the positive branch.
func Yaw(value, deadband, offset, bias float64) float64 {
	if value > deadband {
		return value + offset + bias
	}
	return Deadband(value, deadband, offset)
}

// Velocities are per-axis normalised velocities. Z already includes the
// preset's vertical base.
type Velocities struct {
	X, Y, Z, Yaw float64
}

// Offsets are the per-axis corrections applied after scaling in
// autonomous mode.
type Offsets struct {
	X, Y, Yaw float64
	YawBias   float64
	ZPos      float64 // added above the vertical midpoint
	ZNeg      float64 // subtracted at or below the vertical midpoint
	Deadband  float64
	Midpoint  float64
}

// Command is one manual-control command in native units.
type Command struct {
	X   int `json:"x"`
	Y   int `json:"y"`
	Z   int `json:"z"`
	Yaw int `json:"yaw"`
}

// Neutral is the command sent while idle: no lateral or yaw motion and the
// vertical axis at its midpoint.
func Neutral() Command {
	return Manual(Velocities{})
}

// Autonomous shapes PID outputs into a native command.
func Autonomous(v Velocities, o Offsets) Command {
	x := math.Ceil(XYR(v.X))
	y := math.Ceil(XYR(v.Y))
	z := math.Ceil(Z(v.Z))
	r := math.Ceil(XYR(v.Yaw))

	return Command{
		X:   toNative(Deadband(x, o.Deadband, o.X)),
		Y:   toNative(Deadband(y, o.Deadband, o.Y)),
		Z:   toNative(Vertical(z, o.Midpoint, o.ZPos, o.ZNeg)),
		Yaw: toNative(Yaw(r, o.Deadband, o.Yaw, o.YawBias)),
	}
}

// Manual shapes an operator setpoint. Manual commands are scaled only; no
// deadband or offset is applied.
func Manual(sp Velocities) Command {
	return Command{
		X:   toNative(math.Ceil(XYR(sp.X))),
		Y:   toNative(math.Ceil(XYR(sp.Y))),
		Z:   toNative(math.Ceil(Z(sp.Z))),
		Yaw: toNative(math.Ceil(XYR(sp.Yaw))),
	}
}

// toNative converts an already integral value. NaN maps to zero.
func toNative(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(v)
}
