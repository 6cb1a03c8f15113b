package control

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"MANUAL", ModeManual},
		{"stabilize", ModeStabilize},
		{"depth-hold", ModeDepthHold},
		{"DEPTH_HOLD", ModeDepthHold},
		{" guided ", ModeGuided},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMode("ACRO")
	assert.True(t, errors.Is(err, ErrUnknownMode))
	assert.Equal(t, "Mode(9)", Mode(9).String())
}

func TestStateJSON(t *testing.T) {
	st := State{Setpoint: Setpoint{X: 1}, Mode: ModeDepthHold, Armed: true}
	b, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"mode":"DEPTH_HOLD"`)

	var back State
	require.NoError(t, json.Unmarshal(b, &back))
	if diff := cmp.Diff(st, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ApplyPartial(t *testing.T) {
	s := NewStore(State{Mode: ModeManual, Setpoint: Setpoint{Z: -10}})

	got := s.Apply(Update{X: ptr(25.0), Armed: ptr(true)})
	want := State{
		Setpoint: Setpoint{X: 25, Z: -10},
		Mode:     ModeManual,
		Armed:    true,
		Version:  1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, got, s.Snapshot())
	assert.False(t, got.Autonomous())

	got = s.Apply(Update{Mode: ptr(ModeGuided)})
	assert.True(t, got.Autonomous())
	assert.Equal(t, uint64(2), got.Version)

	got = s.Set(State{Mode: ModeStabilize, Version: 99})
	assert.Equal(t, uint64(3), got.Version)
	assert.Equal(t, Setpoint{}, got.Setpoint)
}

func TestStore_SnapshotIsConsistent(t *testing.T) {
	s := NewStore(State{})
	const writers, updates = 8, 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < updates; i++ {
				v := float64(w*updates + i)
				// x and y always move together
				s.Apply(Update{X: &v, Y: &v})
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for reading := true; reading; {
		select {
		case <-done:
			reading = false
		default:
		}
		snap := s.Snapshot()
		if snap.Setpoint.X != snap.Setpoint.Y {
			t.Fatalf("torn snapshot: %+v", snap)
		}
	}
	assert.Equal(t, uint64(writers*updates), s.Snapshot().Version)
}

func TestParseUpdate(t *testing.T) {
	u, err := ParseUpdate("mode=guided arm=1 x=10 r=-5.5")
	require.NoError(t, err)
	want := Update{X: ptr(10.0), Yaw: ptr(-5.5), Mode: ptr(ModeGuided), Armed: ptr(true)}
	if diff := cmp.Diff(want, u); diff != "" {
		t.Errorf("ParseUpdate() mismatch (-want +got):\n%s", diff)
	}

	u, err = ParseUpdate("")
	require.NoError(t, err)
	assert.True(t, u.Empty())

	for _, bad := range []string{"x", "x=abc", "mode=ACRO", "arm=maybe", "speed=3"} {
		_, err := ParseUpdate(bad)
		assert.Error(t, err, bad)
	}
}
