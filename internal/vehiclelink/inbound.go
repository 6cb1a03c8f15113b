package vehiclelink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/pose"
)

// Inbound line kinds.
const (
	KindPose    = "pose"
	KindFrame   = "tf"
	KindControl = "ctrl"
	KindUnknown = "unknown"
)

// ErrMalformed wraps every parse failure of an inbound line.
var ErrMalformed = errors.New("malformed vehicle link line")

// Classify returns the kind of an inbound line from its leading keyword.
func Classify(line string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch strings.ToUpper(head) {
	case "POSE":
		return KindPose
	case "TF":
		return KindFrame
	case "CTRL":
		return KindControl
	default:
		return KindUnknown
	}
}

// ParsePose parses "POSE <role> x y z qw qx qy qz".
func ParsePose(line string) (pose.Role, pose.Pose, error) {
	fields := strings.Fields(line)
	if len(fields) != 9 {
		return 0, pose.Pose{}, fmt.Errorf("%w: POSE wants 8 fields, got %d", ErrMalformed, len(fields)-1)
	}
	role, err := pose.ParseRole(strings.ToLower(fields[1]))
	if err != nil {
		return 0, pose.Pose{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	p, err := parseTransform(fields[2:])
	if err != nil {
		return 0, pose.Pose{}, err
	}
	return role, p, nil
}

// ParseFrame parses "TF <parent> <child> x y z qw qx qy qz".
func ParseFrame(line string) (parent, child pose.FrameID, p pose.Pose, err error) {
	fields := strings.Fields(line)
	if len(fields) != 10 {
		return "", "", pose.Pose{}, fmt.Errorf("%w: TF wants 9 fields, got %d", ErrMalformed, len(fields)-1)
	}
	p, err = parseTransform(fields[3:])
	if err != nil {
		return "", "", pose.Pose{}, err
	}
	return pose.FrameID(fields[1]), pose.FrameID(fields[2]), p, nil
}

// ParseControl parses "CTRL key=value ...".
func ParseControl(line string) (control.Update, error) {
	_, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	u, err := control.ParseUpdate(rest)
	if err != nil {
		return control.Update{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if u.Empty() {
		return control.Update{}, fmt.Errorf("%w: CTRL without fields", ErrMalformed)
	}
	return u, nil
}

func parseTransform(fields []string) (pose.Pose, error) {
	var v [7]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return pose.Pose{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, i, err)
		}
		v[i] = x
	}
	return pose.FromQuaternion(v[0], v[1], v[2], v[3], v[4], v[5], v[6]), nil
}

// FrameSetter receives transform updates.
type FrameSetter interface {
	Set(parent, child pose.FrameID, p pose.Pose) error
}

// Dispatcher routes inbound lines: poses to the synchronizer, transforms to
// the frame tree and operator requests to the control store. Any target may
// be nil, in which case lines of that kind are counted as ignored.
type Dispatcher struct {
	Sync    *pose.Synchronizer
	Frames  FrameSetter
	Control *control.Store

	handled atomic.Uint64
	ignored atomic.Uint64
	failed  atomic.Uint64
}

// DispatchStats counts dispatched lines by outcome.
type DispatchStats struct {
	Handled uint64 `json:"handled"`
	Ignored uint64 `json:"ignored"`
	Failed  uint64 `json:"failed"`
}

// Stats returns the line counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Handled: d.handled.Load(),
		Ignored: d.ignored.Load(),
		Failed:  d.failed.Load(),
	}
}

// Handle routes one line. Unknown lines and lines without a target are
// ignored without error.
func (d *Dispatcher) Handle(line string) error {
	err := d.handle(line)
	if err != nil {
		d.failed.Add(1)
	}
	return err
}

func (d *Dispatcher) handle(line string) error {
	switch Classify(line) {
	case KindPose:
		if d.Sync == nil {
			d.ignored.Add(1)
			return nil
		}
		role, p, err := ParsePose(line)
		if err != nil {
			return err
		}
		d.Sync.Push(role, p)

	case KindFrame:
		if d.Frames == nil {
			d.ignored.Add(1)
			return nil
		}
		parent, child, p, err := ParseFrame(line)
		if err != nil {
			return err
		}
		if err := d.Frames.Set(parent, child, p); err != nil {
			return err
		}

	case KindControl:
		if d.Control == nil {
			d.ignored.Add(1)
			return nil
		}
		u, err := ParseControl(line)
		if err != nil {
			return err
		}
		st := d.Control.Apply(u)
		diagf("control v%d: mode=%s armed=%t setpoint=%+v", st.Version, st.Mode, st.Armed, st.Setpoint)

	default:
		d.ignored.Add(1)
		return nil
	}
	d.handled.Add(1)
	return nil
}

// Run subscribes to conn and handles lines until ctx is done or the
// subscription closes. Malformed lines are logged and skipped.
func (d *Dispatcher) Run(ctx context.Context, conn Conn) error {
	id, lines := conn.Subscribe()
	defer conn.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := d.Handle(line); err != nil {
				opsf("dropping inbound line %q: %v", line, err)
			}
		}
	}
}
