// Package testutil provides shared test utilities and fakes.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/shaper"
	"github.com/banshee-data/erov.guidance/internal/telemetry"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Actuator method names recorded by RecordingActuator.
const (
	CallManualControl = "SetManualControl"
	CallArm           = "Arm"
	CallFlightMode    = "SetFlightMode"
)

// Call is one recorded actuator invocation.
type Call struct {
	Method  string
	Command shaper.Command
	Armed   bool
	Mode    control.Mode
}

// RecordingActuator records every call in order. Err, when set, is
// returned from every call after it is recorded.
type RecordingActuator struct {
	mu    sync.Mutex
	calls []Call
	Err   error
}

func (a *RecordingActuator) record(c Call) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
	return a.Err
}

// SetManualControl records a manual-control command.
func (a *RecordingActuator) SetManualControl(_ context.Context, cmd shaper.Command) error {
	return a.record(Call{Method: CallManualControl, Command: cmd})
}

// Arm records an arm or disarm request.
func (a *RecordingActuator) Arm(_ context.Context, armed bool) error {
	return a.record(Call{Method: CallArm, Armed: armed})
}

// SetFlightMode records a flight-mode change.
func (a *RecordingActuator) SetFlightMode(_ context.Context, mode control.Mode) error {
	return a.record(Call{Method: CallFlightMode, Mode: mode})
}

// Calls returns a copy of the recorded calls.
func (a *RecordingActuator) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// Reset forgets all recorded calls.
func (a *RecordingActuator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}

// Count returns how many calls of method were recorded.
func (a *RecordingActuator) Count(method string) int {
	n := 0
	for _, c := range a.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Commands returns the recorded manual-control commands in order.
func (a *RecordingActuator) Commands() []shaper.Command {
	var out []shaper.Command
	for _, c := range a.Calls() {
		if c.Method == CallManualControl {
			out = append(out, c.Command)
		}
	}
	return out
}

// RecordingSink collects published telemetry records.
type RecordingSink struct {
	mu      sync.Mutex
	records []telemetry.Record
}

// Publish implements telemetry.Sink.
func (s *RecordingSink) Publish(r telemetry.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// Records returns a copy of the published records.
func (s *RecordingSink) Records() []telemetry.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]telemetry.Record, len(s.records))
	copy(out, s.records)
	return out
}
