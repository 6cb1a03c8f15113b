// Package guidance runs the fixed-rate control loop of the operator
// station. Each tick it either passes the operator's manual setpoint
// through to the vehicle or, in GUIDED mode with the vehicle armed, drives
// the vehicle towards the target pose with one PID channel per axis.
package guidance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/erov.guidance/internal/config"
	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/pid"
	"github.com/banshee-data/erov.guidance/internal/pose"
	"github.com/banshee-data/erov.guidance/internal/shaper"
	"github.com/banshee-data/erov.guidance/internal/telemetry"
	"github.com/banshee-data/erov.guidance/internal/timeutil"
)

// Loop timing defaults.
const (
	DefaultTickPeriod     = 100 * time.Millisecond
	DefaultFailureBackoff = 50 * time.Millisecond
)

// State is the loop's control state.
type State int

const (
	StateManual State = iota
	StateAutonomous
)

func (s State) String() string {
	switch s {
	case StateManual:
		return "MANUAL_PASSTHROUGH"
	case StateAutonomous:
		return "AUTONOMOUS"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "MANUAL_PASSTHROUGH":
		*s = StateManual
	case "AUTONOMOUS":
		*s = StateAutonomous
	default:
		return fmt.Errorf("unknown guidance state %q", b)
	}
	return nil
}

// Options configures a Loop. Provider and Actuator are required.
type Options struct {
	Preset   config.Preset
	Provider pose.Provider
	Actuator Actuator

	// Sink receives one record per autonomous tick. Optional.
	Sink telemetry.Sink
	// Control is the operator state read each tick. A fresh store in
	// MANUAL mode is used when nil.
	Control *control.Store
	// Clock defaults to the real clock.
	Clock timeutil.Clock

	TickPeriod     time.Duration
	FailureBackoff time.Duration
}

// Loop is the guidance state machine. Run must be called from a single
// goroutine; Status, SetProvider and Control may be used concurrently.
type Loop struct {
	preset   config.Preset
	offsets  shaper.Offsets
	actuator Actuator
	sink     telemetry.Sink
	control  *control.Store
	clock    timeutil.Clock

	tickPeriod     time.Duration
	failureBackoff time.Duration

	providerMu sync.RWMutex
	provider   pose.Provider

	// owned by the Run goroutine
	x, y, z, yaw *pid.Channel
	timer        *timeutil.Stopwatch
	state        State

	status atomic.Pointer[Status]
}

// New builds a Loop from opts.
func New(opts Options) (*Loop, error) {
	if opts.Provider == nil {
		return nil, errors.New("guidance: pose provider is required")
	}
	if opts.Actuator == nil {
		return nil, errors.New("guidance: actuator is required")
	}
	if err := opts.Preset.Validate(); err != nil {
		return nil, fmt.Errorf("guidance: preset %q: %w", opts.Preset.Name, err)
	}
	if opts.Control == nil {
		opts.Control = control.NewStore(control.State{Mode: control.ModeManual})
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = DefaultTickPeriod
	}
	if opts.FailureBackoff <= 0 {
		opts.FailureBackoff = DefaultFailureBackoff
	}

	l := &Loop{
		preset:         opts.Preset,
		offsets:        opts.Preset.Offsets(),
		actuator:       opts.Actuator,
		sink:           opts.Sink,
		control:        opts.Control,
		clock:          opts.Clock,
		tickPeriod:     opts.TickPeriod,
		failureBackoff: opts.FailureBackoff,
		provider:       opts.Provider,
		x:              pid.New(opts.Preset.X),
		y:              pid.New(opts.Preset.Y),
		z:              pid.New(opts.Preset.Z),
		yaw:            pid.New(opts.Preset.Yaw),
		timer:          timeutil.NewStopwatch(opts.Clock),
		state:          StateManual,
	}
	l.status.Store(&Status{State: StateManual, Preset: opts.Preset.Name})
	return l, nil
}

// Control returns the operator state store the loop reads.
func (l *Loop) Control() *control.Store {
	return l.control
}

// Provider returns the pose provider in use.
func (l *Loop) Provider() pose.Provider {
	l.providerMu.RLock()
	defer l.providerMu.RUnlock()
	return l.provider
}

// SetProvider switches the pose acquisition source. It takes effect on
// the next autonomous tick.
func (l *Loop) SetProvider(p pose.Provider) {
	if p == nil {
		return
	}
	l.providerMu.Lock()
	defer l.providerMu.Unlock()
	l.provider = p
	opsf("pose provider set to %T", p)
}

// Run sends a neutral command and then ticks until ctx is done. It
// returns ctx's error.
func (l *Loop) Run(ctx context.Context) error {
	if s, ok := l.actuator.(Starter); ok {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("guidance: start actuator: %w", err)
		}
	}
	opsf("starting: preset=%s tick=%v backoff=%v provider=%T",
		l.preset.Name, l.tickPeriod, l.failureBackoff, l.Provider())
	l.sendNeutral(ctx)

	for {
		if err := ctx.Err(); err != nil {
			opsf("stopping: %v", err)
			return err
		}

		if !l.Tick(ctx) {
			l.clock.Sleep(l.failureBackoff)
			continue
		}

		select {
		case <-ctx.Done():
		case <-l.clock.After(l.tickPeriod):
		}
	}
}

// sendNeutral puts the vehicle in a known idle state before the first tick.
func (l *Loop) sendNeutral(ctx context.Context) {
	l.act("set flight mode", l.actuator.SetFlightMode(ctx, control.ModeManual))
	l.act("disarm", l.actuator.Arm(ctx, false))
	l.act("manual control", l.actuator.SetManualControl(ctx, shaper.Neutral()))
}

// Tick runs one iteration. It reports false when an autonomous tick was
// aborted because no pose pair could be acquired; the caller backs off
// before the next tick in that case.
func (l *Loop) Tick(ctx context.Context) bool {
	st := l.control.Snapshot()

	if st.Autonomous() {
		if l.state != StateAutonomous {
			opsf("GUIDED on (control v%d): resetting controllers", st.Version)
			l.resetControllers()
			l.state = StateAutonomous
		}
		return l.autonomousTick(ctx, st)
	}

	if l.state != StateManual {
		opsf("GUIDED off (control v%d): mode=%s armed=%t", st.Version, st.Mode, st.Armed)
		l.state = StateManual
	}
	l.manualTick(ctx, st)
	return true
}

func (l *Loop) resetControllers() {
	l.x.Reset()
	l.y.Reset()
	l.z.Reset()
	l.yaw.Reset()
	l.timer.Reset()
}

func (l *Loop) autonomousTick(ctx context.Context, st control.State) bool {
	pair, err := l.Provider().Acquire(ctx)
	if err != nil {
		opsf("unable to get position info: %v", err)
		l.act("disarm", l.actuator.Arm(ctx, false))
		l.updateStatus(func(s *Status) {
			s.State = StateAutonomous
			s.PoseFailures++
			s.LastError = err.Error()
			s.ControlVersion = st.Version
		})
		return false
	}

	l.act("set flight mode", l.actuator.SetFlightMode(ctx, control.ModeStabilize))
	l.act("arm", l.actuator.Arm(ctx, true))

	rel := pose.Relative(pair.Current, pair.Target)
	dt := l.timer.Elapsed().Seconds()

	errX := rel.Position.X
	errY := rel.Position.Y
	errZ := -rel.Position.Z
	errYaw := rel.Yaw()

	limit := l.preset.AxisLimit
	out := telemetry.Axes{
		X:   shaper.Clamp(l.x.Calculate(dt, 0, -errX), limit),
		Y:   shaper.Clamp(l.y.Calculate(dt, 0, -errY), limit),
		Z:   shaper.Clamp(l.z.Calculate(dt, 0, -errZ), limit),
		Yaw: shaper.Clamp(l.yaw.Calculate(dt, 0, -errYaw), limit),
	}

	cmd := shaper.Autonomous(shaper.Velocities{
		X:   out.X,
		Y:   out.Y,
		Z:   out.Z + l.preset.BaseZ,
		Yaw: out.Yaw,
	}, l.offsets)

	dist := pose.Distance(pair.Current, pair.Target)
	diagf("distance to target: %.3f m", dist)
	tracef("send order: X: %d (%.2f) ; Y: %d (%.2f) ; Z: %d (%.2f) ; R: %d (%.2f) ; dt: %.3f",
		cmd.X, out.X, cmd.Y, out.Y, cmd.Z, out.Z, cmd.Yaw, out.Yaw, dt)

	l.act("manual control", l.actuator.SetManualControl(ctx, cmd))

	now := l.clock.Now()
	if l.sink != nil {
		current, target := pair.Current, pair.Target
		l.sink.Publish(telemetry.Record{
			Time:      now,
			Commanded: telemetry.Axes{X: float64(cmd.X), Y: float64(cmd.Y), Z: float64(cmd.Z), Yaw: float64(cmd.Yaw)},
			Output:    out,
			Error:     telemetry.Axes{X: errX, Y: errY, Z: errZ, Yaw: errYaw},
			Target: telemetry.Axes{
				X: target.Position.X, Y: target.Position.Y, Z: target.Position.Z, Yaw: target.Yaw(),
			},
			Current: telemetry.Axes{
				X: current.Position.X, Y: current.Position.Y, Z: current.Position.Z, Yaw: current.Yaw(),
			},
			Distance:       dist,
			ElapsedSeconds: dt,
		})
	}

	l.timer.Reset()
	l.updateStatus(func(s *Status) {
		s.State = StateAutonomous
		s.AutonomousTicks++
		s.LastCommand = cmd
		s.Distance = dist
		s.ControlVersion = st.Version
		s.LastTick = now
	})
	return true
}

// manualMode maps a requested mode to one the vehicle accepts in manual
// pass-through. GUIDED is only meaningful to this loop, so it falls back
// to STABILIZE.
func manualMode(m control.Mode) control.Mode {
	switch m {
	case control.ModeDepthHold, control.ModeStabilize, control.ModeManual:
		return m
	default:
		return control.ModeStabilize
	}
}

func (l *Loop) manualTick(ctx context.Context, st control.State) {
	mode := manualMode(st.Mode)
	l.act("set flight mode", l.actuator.SetFlightMode(ctx, mode))
	l.act("arm", l.actuator.Arm(ctx, st.Armed))

	cmd := shaper.Manual(shaper.Velocities{
		X:   st.Setpoint.X,
		Y:   st.Setpoint.Y,
		Z:   st.Setpoint.Z,
		Yaw: st.Setpoint.Yaw,
	})
	l.act("manual control", l.actuator.SetManualControl(ctx, cmd))
	tracef("send order: X: %d ; Y: %d ; Z: %d ; R: %d ; Mode: %s ; Arm: %t",
		cmd.X, cmd.Y, cmd.Z, cmd.Yaw, mode, st.Armed)

	l.updateStatus(func(s *Status) {
		s.State = StateManual
		s.ManualTicks++
		s.LastCommand = cmd
		s.ControlVersion = st.Version
		s.LastTick = l.clock.Now()
	})
}

// act logs a failed actuator call. Failures never stop the loop.
func (l *Loop) act(what string, err error) {
	if err == nil {
		return
	}
	opsf("%s failed: %v", what, err)
	l.updateStatus(func(s *Status) {
		s.ActuatorErrors++
		s.LastError = fmt.Sprintf("%s: %v", what, err)
	})
}
