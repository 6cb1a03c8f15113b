package guidance

import (
	"context"

	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/shaper"
)

// Actuator is the vehicle command interface. Calls are best effort: the
// loop logs failures and carries on.
type Actuator interface {
	SetManualControl(ctx context.Context, cmd shaper.Command) error
	Arm(ctx context.Context, armed bool) error
	SetFlightMode(ctx context.Context, mode control.Mode) error
}

// Starter is implemented by actuators that need to be brought up before
// the first command.
type Starter interface {
	Start(ctx context.Context) error
}
