package pose

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/erov.guidance/internal/timeutil"
)

const (
	// DefaultPullTimeout bounds how long the guidance loop waits for a pose.
	DefaultPullTimeout = 200 * time.Millisecond
	// DefaultMaxAge is how long a pushed pose stays usable.
	DefaultMaxAge = 200 * time.Millisecond
)

// Role identifies which of the two synchronised poses a sample updates.
type Role int

const (
	RoleCurrent Role = iota
	RoleTarget
	numRoles
)

func (r Role) String() string {
	switch r {
	case RoleCurrent:
		return "current"
	case RoleTarget:
		return "target"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole maps "current"/"target" (and the vehicle-link aliases
// "vehicle"/"desired") to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "current", "vehicle":
		return RoleCurrent, nil
	case "target", "desired":
		return RoleTarget, nil
	}
	return 0, fmt.Errorf("unknown pose role %q", s)
}

// slot holds at most one unconsumed pose. notify is closed and replaced on
// every push so any number of waiters wake up.
type slot struct {
	pose   Pose
	stamp  time.Time
	fresh  bool
	notify chan struct{}
}

// Synchronizer hands the latest pushed pose of each role to a single
// consumer. Pushes overwrite an unconsumed pose (latest wins); pulls wait a
// bounded time for a pose that has not been consumed yet. A pose older than
// the max age is discarded instead of delivered.
type Synchronizer struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	maxAge time.Duration
	slots  [numRoles]slot

	pushes  [numRoles]uint64
	dropped [numRoles]uint64
	expired [numRoles]uint64
}

// NewSynchronizer returns an empty Synchronizer with DefaultMaxAge. A nil
// clock uses real time.
func NewSynchronizer(clock timeutil.Clock) *Synchronizer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Synchronizer{clock: clock, maxAge: DefaultMaxAge}
	for i := range s.slots {
		s.slots[i].notify = make(chan struct{})
	}
	return s
}

// SetMaxAge changes how long a pushed pose stays usable. A non-positive
// age disables the check.
func (s *Synchronizer) SetMaxAge(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAge = d
}

// Push stores p as the latest pose for role and wakes any waiting Pull.
func (s *Synchronizer) Push(role Role, p Pose) {
	if role < 0 || role >= numRoles {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sl := &s.slots[role]
	if sl.fresh {
		s.dropped[role]++
	}
	sl.pose = p
	sl.stamp = s.clock.Now()
	sl.fresh = true
	s.pushes[role]++
	close(sl.notify)
	sl.notify = make(chan struct{})
}

// Pull returns the unconsumed pose for role, waiting up to timeout for one
// to be pushed. It reports false when the timeout elapses or ctx is done. A
// pose that outlived the max age is dropped and does not satisfy the pull.
func (s *Synchronizer) Pull(ctx context.Context, role Role, timeout time.Duration) (Pose, bool) {
	if role < 0 || role >= numRoles {
		return Pose{}, false
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		deadline = s.clock.After(timeout)
	}

	for {
		s.mu.Lock()
		sl := &s.slots[role]
		if sl.fresh && s.maxAge > 0 && s.clock.Now().Sub(sl.stamp) > s.maxAge {
			sl.fresh = false
			s.expired[role]++
		}
		if sl.fresh {
			sl.fresh = false
			p := sl.pose
			s.mu.Unlock()
			return p, true
		}
		notify := sl.notify
		s.mu.Unlock()

		if deadline == nil {
			return Pose{}, false
		}

		select {
		case <-notify:
		case <-deadline:
			return Pose{}, false
		case <-ctx.Done():
			return Pose{}, false
		}
	}
}

// Stats reports push, overwrite and expiry counts per role.
type Stats struct {
	Pushes  uint64
	Dropped uint64
	Expired uint64
}

// Stats returns the counters for role.
func (s *Synchronizer) Stats(role Role) Stats {
	if role < 0 || role >= numRoles {
		return Stats{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Pushes: s.pushes[role], Dropped: s.dropped[role], Expired: s.expired[role]}
}
