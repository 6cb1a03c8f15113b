package guidance

import (
	"time"

	"github.com/banshee-data/erov.guidance/internal/shaper"
)

// Status summarises the loop for the API and debug routes.
type Status struct {
	State  State  `json:"state"`
	Preset string `json:"preset"`

	AutonomousTicks uint64 `json:"autonomous_ticks"`
	ManualTicks     uint64 `json:"manual_ticks"`
	PoseFailures    uint64 `json:"pose_failures"`
	ActuatorErrors  uint64 `json:"actuator_errors"`

	LastCommand    shaper.Command `json:"last_command"`
	Distance       float64        `json:"distance"`
	ControlVersion uint64         `json:"control_version"`
	LastTick       time.Time      `json:"last_tick"`
	LastError      string         `json:"last_error,omitempty"`
}

// Status returns a snapshot of the loop's counters and last outputs.
func (l *Loop) Status() Status {
	return *l.status.Load()
}

// updateStatus publishes a modified copy of the status. Only the Run
// goroutine writes, so a plain load and store is enough.
func (l *Loop) updateStatus(fn func(*Status)) {
	next := *l.status.Load()
	fn(&next)
	l.status.Store(&next)
}
