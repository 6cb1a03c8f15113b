package pid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate_Proportional(t *testing.T) {
	c := New(Config{Max: 1000, Min: -1000, Kp: 10})

	got := c.Calculate(0.1, 0, -1)
	assert.InDelta(t, 10.0, got, 1e-9)

	got = c.Calculate(0.1, 2, 0)
	assert.InDelta(t, 20.0, got, 1e-9)
}

func TestCalculate_FirstSampleHasNoDerivativeKick(t *testing.T) {
	c := New(Config{Max: 1000, Min: -1000, Kp: 10, Kd: 60, Filter: 0.05})

	// A huge derivative gain with a tiny dt would saturate if the first
	// sample were differenced against zero.
	got := c.Calculate(1e-6, 1, 0)
	assert.InDelta(t, 10.0, got, 1e-9)
}

func TestCalculate_FilteredDerivative(t *testing.T) {
	c := New(Config{Max: 1000, Min: -1000, Kd: 1, Filter: 0.1})

	c.Calculate(0.1, 0, 0)
	got := c.Calculate(0.1, 1, 0)

	// raw derivative = 10/s, alpha = 0.1/(0.1+0.1) = 0.5
	assert.InDelta(t, 5.0, got, 1e-9)

	unfiltered := New(Config{Max: 1000, Min: -1000, Kd: 1})
	unfiltered.Calculate(0.1, 0, 0)
	assert.InDelta(t, 10.0, unfiltered.Calculate(0.1, 1, 0), 1e-9)
}

func TestCalculate_NonPositiveElapsedSkipsDerivative(t *testing.T) {
	for _, dt := range []float64{0, -0.5, math.Inf(1)} {
		c := New(Config{Max: 1000, Min: -1000, Kp: 2, Kd: 100})
		c.Calculate(0.1, 0, 0)

		got := c.Calculate(dt, 3, 0)
		assert.InDelta(t, 6.0, got, 1e-9, "dt=%v", dt)
		assert.False(t, math.IsNaN(got))
	}
}

func TestCalculate_Integral(t *testing.T) {
	c := New(Config{Max: 1000, Min: -1000, Ki: 1})

	c.Calculate(0.5, 1, 0)
	got := c.Calculate(0.5, 1, 0)
	assert.InDelta(t, 1.0, got, 1e-9)
	assert.InDelta(t, 1.0, c.State().Integral, 1e-9)
}

func TestCalculate_IntegralAntiWindup(t *testing.T) {
	c := New(Config{Max: 1, Min: -1, Ki: 10})

	for i := 0; i < 100; i++ {
		c.Calculate(0.1, 1, 0)
	}
	require.LessOrEqual(t, c.State().Integral, 0.2)

	// recovers immediately once the error flips
	got := c.Calculate(0.1, -1, 0)
	assert.Less(t, got, 1.0)
}

func TestCalculate_AlwaysWithinLimits(t *testing.T) {
	limits := []struct{ min, max float64 }{
		{-1000, 1000},
		{-100, 100},
		{0, 5},
		{-3, -1},
		{2, 2},
	}
	inputs := []float64{-1e9, -250, -1, -1e-6, 0, 1e-6, 1, 250, 1e9}
	dts := []float64{1e-9, 0.01, 0.1, 1, 10}

	for _, l := range limits {
		c := New(Config{Max: l.max, Min: l.min, Kp: 20, Ki: 3, Kd: 60, Filter: 0.05})
		for _, dt := range dts {
			for _, sp := range inputs {
				for _, meas := range inputs {
					out := c.Calculate(dt, sp, meas)
					if out < l.min || out > l.max || math.IsNaN(out) {
						t.Fatalf("output %v outside [%v, %v] (dt=%v sp=%v meas=%v)", out, l.min, l.max, dt, sp, meas)
					}
				}
			}
		}
	}
}

func TestReset_ReplaysLikeFreshChannel(t *testing.T) {
	cfg := Config{Max: 1000, Min: -1000, Kp: 20, Ki: 0.5, Kd: 60, Filter: 0.05}
	sequence := []struct{ dt, sp, meas float64 }{
		{0.1, 0, -1},
		{0.12, 0, -0.8},
		{0.09, 0, -0.3},
		{0, 0, 0.2},
		{0.1, 0, 0.1},
	}

	used := New(cfg)
	for i := 0; i < 20; i++ {
		used.Calculate(0.1, 5, float64(i))
	}
	used.Reset()
	fresh := New(cfg)

	for _, s := range sequence {
		assert.Equal(t, fresh.Calculate(s.dt, s.sp, s.meas), used.Calculate(s.dt, s.sp, s.meas))
	}
	assert.Equal(t, cfg, used.Config())
}

func TestConfigure_KeepsIntegralGain(t *testing.T) {
	c := New(Config{Ki: 0.25})
	c.Configure(1000, -1000, 10, 60, 0.05)

	assert.Equal(t, Config{Max: 1000, Min: -1000, Kp: 10, Ki: 0.25, Kd: 60, Filter: 0.05}, c.Config())
}
