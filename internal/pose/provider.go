package pose

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Default frame names of the operator station.
const (
	DefaultReferenceFrame FrameID = "local_origin_ned"
	DefaultVehicleFrame   FrameID = "erov"
	DefaultTargetFrame    FrameID = "bluerov2_ghost"
)

// ErrUnavailable is returned by a Provider when either pose of the pair
// could not be acquired for this tick.
var ErrUnavailable = errors.New("pose unavailable")

// Pair is the vehicle pose and the desired pose in a shared reference frame.
type Pair struct {
	Current Pose
	Target  Pose
}

// Provider acquires a fresh Pair once per guidance tick.
type Provider interface {
	Acquire(ctx context.Context) (Pair, error)
}

// Frames names the frames a TreeProvider looks up.
type Frames struct {
	Reference FrameID
	Vehicle   FrameID
	Target    FrameID
}

// DefaultFrames returns the station's default frame names.
func DefaultFrames() Frames {
	return Frames{
		Reference: DefaultReferenceFrame,
		Vehicle:   DefaultVehicleFrame,
		Target:    DefaultTargetFrame,
	}
}

// withDefaults fills empty names from DefaultFrames.
func (f Frames) withDefaults() Frames {
	d := DefaultFrames()
	if f.Reference == "" {
		f.Reference = d.Reference
	}
	if f.Vehicle == "" {
		f.Vehicle = d.Vehicle
	}
	if f.Target == "" {
		f.Target = d.Target
	}
	return f
}

// TreeProvider looks both poses up in a frame tree every tick.
type TreeProvider struct {
	lookup FrameLookup

	mu     sync.RWMutex
	frames Frames
}

// NewTreeProvider returns a provider resolving frames through lookup.
// Empty frame names take their defaults.
func NewTreeProvider(lookup FrameLookup, frames Frames) *TreeProvider {
	return &TreeProvider{lookup: lookup, frames: frames.withDefaults()}
}

// SetFrames changes the looked-up frame names. Empty names keep defaults.
func (p *TreeProvider) SetFrames(frames Frames) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = frames.withDefaults()
}

// Frames returns the frame names currently in use.
func (p *TreeProvider) Frames() Frames {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frames
}

// Acquire implements Provider.
func (p *TreeProvider) Acquire(ctx context.Context) (Pair, error) {
	if err := ctx.Err(); err != nil {
		return Pair{}, err
	}
	f := p.Frames()

	current, err := p.lookup.Lookup(f.Reference, f.Vehicle)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %s->%s: %w", ErrUnavailable, f.Reference, f.Vehicle, err)
	}
	target, err := p.lookup.Lookup(f.Reference, f.Target)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %s->%s: %w", ErrUnavailable, f.Reference, f.Target, err)
	}
	return Pair{Current: current, Target: target}, nil
}

// PushProvider pulls both poses from a Synchronizer fed by an external
// source.
type PushProvider struct {
	sync    *Synchronizer
	timeout time.Duration
}

// NewPushProvider returns a provider pulling from s, waiting up to timeout
// per pose. A non-positive timeout uses DefaultPullTimeout.
func NewPushProvider(s *Synchronizer, timeout time.Duration) *PushProvider {
	if timeout <= 0 {
		timeout = DefaultPullTimeout
	}
	return &PushProvider{sync: s, timeout: timeout}
}

// Acquire implements Provider.
func (p *PushProvider) Acquire(ctx context.Context) (Pair, error) {
	current, ok := p.sync.Pull(ctx, RoleCurrent, p.timeout)
	if !ok {
		return Pair{}, fmt.Errorf("%w: rov position not received within %v", ErrUnavailable, p.timeout)
	}
	target, ok := p.sync.Pull(ctx, RoleTarget, p.timeout)
	if !ok {
		return Pair{}, fmt.Errorf("%w: target position not received within %v", ErrUnavailable, p.timeout)
	}
	return Pair{Current: current, Target: target}, nil
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Pair, error)

// Acquire implements Provider.
func (f ProviderFunc) Acquire(ctx context.Context) (Pair, error) { return f(ctx) }
