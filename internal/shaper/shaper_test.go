package shaper

import (
	"math"
	"testing"
)

func TestScale(t *testing.T) {
	tests := []struct {
		name string
		fn   func(float64) float64
		in   float64
		want float64
	}{
		{"xyr zero", XYR, 0, 0},
		{"xyr full", XYR, 100, 1000},
		{"xyr negative", XYR, -100, -1000},
		{"z neutral", Z, 0, 500},
		{"z full up", Z, 100, 1000},
		{"z full down", Z, -100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	for _, tt := range []struct{ in, want float64 }{
		{150, 100}, {-150, -100}, {42, 42}, {100, 100}, {-100, -100},
	} {
		if got := Clamp(tt.in, AxisLimit); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDeadband(t *testing.T) {
	const offset = 60
	for _, d := range []float64{0, 5, 25} {
		for v := -50.0; v <= 50; v += 0.5 {
			got := Deadband(v, d, offset)
			var want float64
			switch {
			case v > d:
				want = v + offset
			case v < -d:
				want = v - offset
			default:
				want = v
			}
			if got != want {
				t.Fatalf("Deadband(%v, %v, %v) = %v, want %v", v, d, offset, got, want)
			}
		}
	}
}

func TestVertical(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"above midpoint adds positive offset", 501, 601},
		{"at midpoint subtracts negative offset", 500, 490},
		{"below midpoint subtracts negative offset", 300, 290},
		{"negative input subtracts negative offset", -20, -30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Vertical(tt.in, VerticalMidpoint, 100, 10); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestYaw(t *testing.T) {
	if got := Yaw(10, 0, 400, YawBias); got != 415 {
		t.Errorf("positive yaw = %v, want 415", got)
	}
	if got := Yaw(-10, 0, 400, YawBias); got != -410 {
		t.Errorf("negative yaw = %v, want -410", got)
	}
	if got := Yaw(0, 0, 400, YawBias); got != 0 {
		t.Errorf("zero yaw = %v, want 0", got)
	}
}

func TestAutonomous(t *testing.T) {
	o := Offsets{X: 60, Y: 60, Yaw: 400, YawBias: YawBias, ZPos: 0, ZNeg: 10, Midpoint: VerticalMidpoint}

	got := Autonomous(Velocities{X: 10, Y: -10, Z: 0, Yaw: 0.25}, o)
	want := Command{X: 160, Y: -160, Z: 490, Yaw: 408}
	if got != want {
		t.Errorf("Autonomous() = %+v, want %+v", got, want)
	}

	// ceil rounds towards +inf, so a small negative velocity lands on the
	// deadband edge
	got = Autonomous(Velocities{X: -0.05}, o)
	if got.X != 0 {
		t.Errorf("X = %d, want 0", got.X)
	}
}

func TestManual(t *testing.T) {
	got := Manual(Velocities{X: 50, Y: -0.25, Z: 0, Yaw: 100})
	want := Command{X: 500, Y: -2, Z: 500, Yaw: 1000}
	if got != want {
		t.Errorf("Manual() = %+v, want %+v", got, want)
	}
	if n := Neutral(); n != (Command{Z: 500}) {
		t.Errorf("Neutral() = %+v", n)
	}
}
