// Package pid implements the single-axis regulator used by the guidance loop.
package pid

import "math"

// Config holds the gains and output limits of a Channel.
type Config struct {
	Max float64 `json:"max"`
	Min float64 `json:"min"`
	Kp  float64 `json:"kp"`
	Ki  float64 `json:"ki"`
	Kd  float64 `json:"kd"`

	// Filter is the time constant (seconds) of the first-order low-pass
	// applied to the derivative term. Zero disables filtering.
	Filter float64 `json:"filter"`
}

// Channel is a stateful PID regulator for one axis.
//
// Not safe for concurrent use.
type Channel struct {
	cfg Config

	integral    float64
	prevError   float64
	derivative  float64
	havePrev    bool
	lastElapsed float64
}

// New returns a Channel with the given configuration.
func New(cfg Config) *Channel {
	return &Channel{cfg: cfg}
}

// Configure sets limits, proportional and derivative gains and the
// derivative filter constant. The integral gain is left untouched.
func (c *Channel) Configure(max, min, kp, kd, filter float64) {
	c.cfg.Max = max
	c.cfg.Min = min
	c.cfg.Kp = kp
	c.cfg.Kd = kd
	c.cfg.Filter = filter
}

// SetConfig replaces the whole configuration.
func (c *Channel) SetConfig(cfg Config) {
	c.cfg = cfg
}

// Config returns the current configuration.
func (c *Channel) Config() Config {
	return c.cfg
}

// Reset clears the runtime state. Configuration is kept.
func (c *Channel) Reset() {
	c.integral = 0
	c.prevError = 0
	c.derivative = 0
	c.havePrev = false
	c.lastElapsed = 0
}

// Calculate returns the regulator output for the given setpoint and
// measurement, clamped to [Min, Max]. When elapsedSeconds is not positive
// the derivative and integral terms are not updated for this call.
func (c *Channel) Calculate(elapsedSeconds, setpoint, measurement float64) float64 {
	err := setpoint - measurement
	c.lastElapsed = elapsedSeconds

	p := c.cfg.Kp * err

	validDt := elapsedSeconds > 0 && !math.IsInf(elapsedSeconds, 0)
	var d float64
	if validDt {
		if c.havePrev {
			raw := (err - c.prevError) / elapsedSeconds
			alpha := 1.0
			if c.cfg.Filter > 0 {
				alpha = elapsedSeconds / (c.cfg.Filter + elapsedSeconds)
			}
			c.derivative += alpha * (raw - c.derivative)
		}
		d = c.cfg.Kd * c.derivative
	}

	integral := c.integral
	if validDt && c.cfg.Ki != 0 {
		integral += err * elapsedSeconds
	}

	out := p + c.cfg.Ki*integral + d
	clamped := clamp(out, c.cfg.Min, c.cfg.Max)

	// anti-windup: keep the new integral only if it does not push further
	// into saturation
	if clamped == out || (out > c.cfg.Max && err < 0) || (out < c.cfg.Min && err > 0) {
		c.integral = integral
	}

	if validDt {
		c.prevError = err
		c.havePrev = true
	}
	return clamped
}

// State is a read-only view of the runtime state, for diagnostics.
type State struct {
	Integral    float64
	PrevError   float64
	Derivative  float64
	LastElapsed float64
}

// State returns the current runtime state.
func (c *Channel) State() State {
	return State{
		Integral:    c.integral,
		PrevError:   c.prevError,
		Derivative:  c.derivative,
		LastElapsed: c.lastElapsed,
	}
}

func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) {
		return clamp(0, min, max)
	}
	if v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}
