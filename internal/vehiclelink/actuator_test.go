package vehiclelink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/erov.guidance/internal/config"
	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/guidance"
	"github.com/banshee-data/erov.guidance/internal/pose"
	"github.com/banshee-data/erov.guidance/internal/shaper"
	"github.com/banshee-data/erov.guidance/internal/timeutil"
)

func TestLinkActuator_Commands(t *testing.T) {
	port := NewTestableSerialPort()
	a := NewLinkActuator(NewLink(port))
	ctx := context.Background()

	steps := []func() error{
		func() error { return a.SetFlightMode(ctx, control.ModeStabilize) },
		func() error { return a.Arm(ctx, true) },
		func() error { return a.SetManualControl(ctx, shaper.Command{X: 160, Y: -45, Z: 490, Yaw: 0}) },
		// repeated mode and arm are not re-sent
		func() error { return a.SetFlightMode(ctx, control.ModeStabilize) },
		func() error { return a.Arm(ctx, true) },
		func() error { return a.SetManualControl(ctx, shaper.Neutral()) },
		func() error { return a.Arm(ctx, false) },
		func() error { return a.SetFlightMode(ctx, control.ModeDepthHold) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	want := []string{
		"MODE STABILIZE",
		"ARM 1",
		"MANUAL 160 -45 490 0",
		"MANUAL 0 0 500 0",
		"ARM 0",
		"MODE DEPTH_HOLD",
	}
	if diff := cmp.Diff(want, port.WrittenLines()); diff != "" {
		t.Errorf("written lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLinkActuator_RetriesAfterFailure(t *testing.T) {
	port := NewTestableSerialPort()
	a := NewLinkActuator(NewLink(port))
	ctx := context.Background()

	port.WriteError = errors.New("busy")
	if err := a.Arm(ctx, true); err == nil {
		t.Fatal("expected error")
	}
	if err := a.Arm(ctx, true); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if diff := cmp.Diff([]string{"ARM 1"}, port.WrittenLines()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLinkActuator_ResendsUnchangedState(t *testing.T) {
	port := NewTestableSerialPort()
	a := NewLinkActuator(NewLink(port))
	a.SetResendEvery(3)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := a.Arm(ctx, true); err != nil {
			t.Fatalf("arm %d: %v", i, err)
		}
		if err := a.SetFlightMode(ctx, control.ModeStabilize); err != nil {
			t.Fatalf("mode %d: %v", i, err)
		}
	}

	// sent on calls 1, 4 and 7
	want := []string{
		"ARM 1", "MODE STABILIZE",
		"ARM 1", "MODE STABILIZE",
		"ARM 1", "MODE STABILIZE",
	}
	if diff := cmp.Diff(want, port.WrittenLines()); diff != "" {
		t.Errorf("written lines mismatch (-want +got):\n%s", diff)
	}
}

func TestLinkActuator_ResendEveryOneSendsAlways(t *testing.T) {
	port := NewTestableSerialPort()
	a := NewLinkActuator(NewLink(port))
	a.SetResendEvery(1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := a.Arm(ctx, false); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(port.WrittenLines()); got != 3 {
		t.Errorf("expected 3 ARM lines, got %d", got)
	}
}

// The vehicle may disarm on its own (failsafe, bridge restart). Autonomous
// ticks keep requesting armed, so ARM 1 must reach the link again.
func TestLinkActuator_GuidanceReArmsVehicle(t *testing.T) {
	port := NewTestableSerialPort()
	act := NewLinkActuator(NewLink(port))
	loop, err := guidance.New(guidance.Options{
		Preset: config.SITL(),
		Provider: pose.ProviderFunc(func(context.Context) (pose.Pair, error) {
			return pose.Pair{Current: pose.New(0, 0, 0, 0), Target: pose.New(1, 0, 0, 0)}, nil
		}),
		Actuator: act,
		Control:  control.NewStore(control.State{Mode: control.ModeGuided, Armed: true}),
		Clock:    timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if !loop.Tick(ctx) {
		t.Fatal("first tick failed")
	}
	if got := countLines(port.WrittenLines(), "ARM 1"); got != 1 {
		t.Fatalf("ARM 1 sent %d times on first tick", got)
	}

	// vehicle disarms itself here; nothing tells the station
	for i := 0; i < DefaultResendEvery; i++ {
		if !loop.Tick(ctx) {
			t.Fatalf("tick %d failed", i)
		}
	}

	lines := port.WrittenLines()
	if got := countLines(lines, "ARM 1"); got != 2 {
		t.Errorf("ARM 1 sent %d times, want a re-arm within %d ticks", got, DefaultResendEvery)
	}
	if got := countLines(lines, "MODE STABILIZE"); got != 2 {
		t.Errorf("MODE STABILIZE sent %d times, want 2", got)
	}
	manual := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "MANUAL ") {
			manual++
		}
	}
	if manual != DefaultResendEvery+1 {
		t.Errorf("manual commands = %d, want one per tick", manual)
	}
}

func countLines(lines []string, want string) int {
	n := 0
	for _, l := range lines {
		if l == want {
			n++
		}
	}
	return n
}

func TestLinkActuator_CancelledContext(t *testing.T) {
	port := NewTestableSerialPort()
	a := NewLinkActuator(NewLink(port))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := a.SetManualControl(ctx, shaper.Neutral()); !errors.Is(err, context.Canceled) {
		t.Errorf("SetManualControl = %v", err)
	}
	if err := a.Arm(ctx, true); !errors.Is(err, context.Canceled) {
		t.Errorf("Arm = %v", err)
	}
	if err := a.SetFlightMode(ctx, control.ModeManual); !errors.Is(err, context.Canceled) {
		t.Errorf("SetFlightMode = %v", err)
	}
	if len(port.GetWrittenData()) != 0 {
		t.Error("nothing should be written")
	}
}
