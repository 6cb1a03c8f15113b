package pose

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/erov.guidance/internal/timeutil"
)

var (
	// ErrFrameNotFound is returned when a frame has never been published.
	ErrFrameNotFound = errors.New("frame not found")
	// ErrDisconnected is returned when two frames share no common ancestor.
	ErrDisconnected = errors.New("frames are not connected")
	// ErrStale is returned when an edge on the lookup path is too old.
	ErrStale = errors.New("transform is stale")
)

// maxDepth bounds the walk to the root so that a reparenting cycle cannot
// hang a lookup.
const maxDepth = 64

// FrameLookup resolves the pose of frame in reference.
type FrameLookup interface {
	Lookup(reference, frame FrameID) (Pose, error)
}

type edge struct {
	parent FrameID
	pose   Pose
	stamp  time.Time
	static bool
}

// FrameTree stores the latest parent→child transforms and resolves any two
// connected frames through their common ancestor. Each child has exactly
// one parent; publishing a child under a new parent reparents it.
type FrameTree struct {
	mu     sync.RWMutex
	clock  timeutil.Clock
	maxAge time.Duration
	edges  map[FrameID]edge
	roots  map[FrameID]struct{}
}

// NewFrameTree returns an empty tree. Dynamic edges older than maxAge are
// rejected by Lookup; a non-positive maxAge disables the check.
func NewFrameTree(clock timeutil.Clock, maxAge time.Duration) *FrameTree {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &FrameTree{
		clock:  clock,
		maxAge: maxAge,
		edges:  make(map[FrameID]edge),
		roots:  make(map[FrameID]struct{}),
	}
}

// Set publishes the pose of child in parent.
func (t *FrameTree) Set(parent, child FrameID, p Pose) error {
	return t.set(parent, child, p, false)
}

// SetStatic publishes a transform that never goes stale.
func (t *FrameTree) SetStatic(parent, child FrameID, p Pose) error {
	return t.set(parent, child, p, true)
}

func (t *FrameTree) set(parent, child FrameID, p Pose, static bool) error {
	if parent == "" || child == "" {
		return fmt.Errorf("empty frame id (parent=%q child=%q)", parent, child)
	}
	if parent == child {
		return fmt.Errorf("frame %q cannot be its own parent", child)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.edges[child] = edge{parent: parent, pose: p, stamp: t.clock.Now(), static: static}
	delete(t.roots, child)
	if _, ok := t.edges[parent]; !ok {
		t.roots[parent] = struct{}{}
	}
	return nil
}

// Frames returns the number of known frames.
func (t *FrameTree) Frames() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.edges) + len(t.roots)
}

// Lookup returns the pose of frame expressed in reference.
func (t *FrameTree) Lookup(reference, frame FrameID) (Pose, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.known(reference) {
		return Pose{}, fmt.Errorf("%w: %q", ErrFrameNotFound, reference)
	}
	if !t.known(frame) {
		return Pose{}, fmt.Errorf("%w: %q", ErrFrameNotFound, frame)
	}
	if reference == frame {
		return Identity(), nil
	}

	refChain, err := t.chain(reference)
	if err != nil {
		return Pose{}, err
	}
	frameChain, err := t.chain(frame)
	if err != nil {
		return Pose{}, err
	}

	// index the reference chain so the first shared ancestor on the
	// frame's way up can be found
	refIdx := make(map[FrameID]int, len(refChain))
	for i, l := range refChain {
		refIdx[l.id] = i
	}
	for j, l := range frameChain {
		i, ok := refIdx[l.id]
		if !ok {
			continue
		}
		refInAncestor := fold(refChain[:i])
		frameInAncestor := fold(frameChain[:j])
		return refInAncestor.Inverse().Compose(frameInAncestor), nil
	}
	return Pose{}, fmt.Errorf("%w: %q and %q", ErrDisconnected, reference, frame)
}

type link struct {
	id   FrameID
	pose Pose // pose of id in its parent; unused for the root entry
}

// fold composes walked links (child first) into the pose of the first
// link's frame expressed in the parent of the last one.
func fold(walked []link) Pose {
	p := Identity()
	for k := len(walked) - 1; k >= 0; k-- {
		p = p.Compose(walked[k].pose)
	}
	return p
}

// chain walks from id to its root. Callers hold t.mu.
func (t *FrameTree) chain(id FrameID) ([]link, error) {
	now := t.clock.Now()
	var out []link
	cur := id
	for depth := 0; depth < maxDepth; depth++ {
		e, ok := t.edges[cur]
		if !ok {
			return append(out, link{id: cur}), nil
		}
		if !e.static && t.maxAge > 0 && now.Sub(e.stamp) > t.maxAge {
			return nil, fmt.Errorf("%w: %q->%q is %v old", ErrStale, e.parent, cur, now.Sub(e.stamp))
		}
		out = append(out, link{id: cur, pose: e.pose})
		cur = e.parent
	}
	return nil, fmt.Errorf("frame %q: parent chain exceeds %d links", id, maxDepth)
}

func (t *FrameTree) known(id FrameID) bool {
	if _, ok := t.edges[id]; ok {
		return true
	}
	_, ok := t.roots[id]
	return ok
}
