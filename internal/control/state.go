// Package control holds the operator's desired mode, arm flag and manual
// setpoint. Writers may update it from any goroutine; the guidance loop
// reads one consistent snapshot per tick.
package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// ErrUnknownMode is returned when a flight mode name is not recognised.
var ErrUnknownMode = errors.New("unknown flight mode")

// Mode is a vehicle flight mode.
type Mode int

const (
	ModeManual Mode = iota
	ModeStabilize
	ModeDepthHold
	ModeGuided
)

var modeNames = map[Mode]string{
	ModeManual:    "MANUAL",
	ModeStabilize: "STABILIZE",
	ModeDepthHold: "DEPTH_HOLD",
	ModeGuided:    "GUIDED",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts mode names case-insensitively, with '-' or '_'
// separators.
func ParseMode(s string) (Mode, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for m, name := range modeNames {
		if name == norm {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Setpoint is the operator's raw manual command, each axis in ±100.
type Setpoint struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Yaw float64 `json:"yaw"`
}

// State is an immutable snapshot of the operator's request.
type State struct {
	Setpoint Setpoint `json:"setpoint"`
	Mode     Mode     `json:"mode"`
	Armed    bool     `json:"armed"`
	// Version increases by one on every change.
	Version uint64 `json:"version"`
}

// Autonomous reports whether the state requests closed-loop guidance.
func (s State) Autonomous() bool {
	return s.Mode == ModeGuided && s.Armed
}

// Update is a partial change; nil fields are left untouched.
type Update struct {
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Z     *float64 `json:"z,omitempty"`
	Yaw   *float64 `json:"yaw,omitempty"`
	Mode  *Mode    `json:"mode,omitempty"`
	Armed *bool    `json:"armed,omitempty"`
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.X == nil && u.Y == nil && u.Z == nil && u.Yaw == nil && u.Mode == nil && u.Armed == nil
}

func (u Update) apply(s State) State {
	if u.X != nil {
		s.Setpoint.X = *u.X
	}
	if u.Y != nil {
		s.Setpoint.Y = *u.Y
	}
	if u.Z != nil {
		s.Setpoint.Z = *u.Z
	}
	if u.Yaw != nil {
		s.Setpoint.Yaw = *u.Yaw
	}
	if u.Mode != nil {
		s.Mode = *u.Mode
	}
	if u.Armed != nil {
		s.Armed = *u.Armed
	}
	return s
}

// Store is a copy-on-write cell holding the current State. Every update
// publishes a new snapshot, so readers never observe a half-applied change.
type Store struct {
	cur atomic.Pointer[State]
}

// NewStore returns a store holding initial (version reset to zero).
func NewStore(initial State) *Store {
	s := &Store{}
	initial.Version = 0
	s.cur.Store(&initial)
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	return *s.cur.Load()
}

// Apply atomically applies u and returns the resulting state.
func (s *Store) Apply(u Update) State {
	for {
		old := s.cur.Load()
		next := u.apply(*old)
		next.Version = old.Version + 1
		if s.cur.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// Set replaces the whole state and returns it with its new version.
func (s *Store) Set(st State) State {
	for {
		old := s.cur.Load()
		st.Version = old.Version + 1
		next := st
		if s.cur.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// ParseUpdate parses whitespace separated key=value pairs such as
// "mode=GUIDED arm=1 x=10 yaw=-5". Recognised keys are x, y, z, yaw (or r),
// mode and arm (or armed).
func ParseUpdate(s string) (Update, error) {
	var u Update
	for _, field := range strings.Fields(s) {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			return Update{}, fmt.Errorf("malformed field %q: want key=value", field)
		}
		switch strings.ToLower(key) {
		case "x", "y", "z", "yaw", "r":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return Update{}, fmt.Errorf("field %s: %w", key, err)
			}
			switch strings.ToLower(key) {
			case "x":
				u.X = &f
			case "y":
				u.Y = &f
			case "z":
				u.Z = &f
			default:
				u.Yaw = &f
			}
		case "mode":
			m, err := ParseMode(val)
			if err != nil {
				return Update{}, err
			}
			u.Mode = &m
		case "arm", "armed":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return Update{}, fmt.Errorf("field %s: %w", key, err)
			}
			u.Armed = &b
		default:
			return Update{}, fmt.Errorf("unknown field %q", key)
		}
	}
	return u, nil
}
