package vehiclelink

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/shaper"
)

// DefaultResendEvery is how many calls an unchanged mode or arm request is
// skipped for before it is sent again. At the default tick period that is
// about once a second.
const DefaultResendEvery = 10

// Commander sends one text command line.
type Commander interface {
	SendCommand(string) error
}

// LinkActuator drives the vehicle through text commands on a Commander:
//
//	MANUAL <x> <y> <z> <r>
//	ARM 0|1
//	MODE <name>
//
// An unchanged mode or arm request is skipped, but the last value is
// re-sent after resendEvery calls so a vehicle that changed state on its
// own is brought back. Manual control is sent every time.
type LinkActuator struct {
	link        Commander
	resendEvery int

	mu        sync.Mutex
	lastMode  *control.Mode
	lastArm   *bool
	modeSkips int
	armSkips  int
}

// NewLinkActuator returns an actuator writing to link that re-sends
// unchanged mode and arm requests every DefaultResendEvery calls.
func NewLinkActuator(link Commander) *LinkActuator {
	return &LinkActuator{link: link, resendEvery: DefaultResendEvery}
}

// SetResendEvery changes how many calls an unchanged mode or arm request
// may be skipped for. n <= 1 sends on every call.
func (a *LinkActuator) SetResendEvery(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resendEvery = n
}

// skip reports whether an unchanged request can be left out, counting the
// skip in *skips.
func skip(unchanged bool, skips *int, every int) bool {
	if !unchanged || *skips+1 >= every {
		return false
	}
	*skips++
	return true
}

// SetManualControl sends one manual-control command.
func (a *LinkActuator) SetManualControl(ctx context.Context, cmd shaper.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.link.SendCommand(FormatManual(cmd))
}

// Arm arms or disarms the vehicle.
func (a *LinkActuator) Arm(ctx context.Context, armed bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if skip(a.lastArm != nil && *a.lastArm == armed, &a.armSkips, a.resendEvery) {
		return nil
	}
	v := 0
	if armed {
		v = 1
	}
	if err := a.link.SendCommand(fmt.Sprintf("ARM %d", v)); err != nil {
		a.lastArm = nil
		return err
	}
	a.lastArm = &armed
	a.armSkips = 0
	return nil
}

// SetFlightMode requests a flight mode.
func (a *LinkActuator) SetFlightMode(ctx context.Context, mode control.Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if skip(a.lastMode != nil && *a.lastMode == mode, &a.modeSkips, a.resendEvery) {
		return nil
	}
	if err := a.link.SendCommand("MODE " + mode.String()); err != nil {
		a.lastMode = nil
		return err
	}
	a.lastMode = &mode
	a.modeSkips = 0
	return nil
}

// FormatManual renders a manual-control command line.
func FormatManual(cmd shaper.Command) string {
	return fmt.Sprintf("MANUAL %d %d %d %d", cmd.X, cmd.Y, cmd.Z, cmd.Yaw)
}
