package vehiclelink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"

	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/shaper"
)

type recordingTransmitter struct {
	frames []can.Frame
	err    error
}

func (r *recordingTransmitter) TransmitFrame(_ context.Context, f can.Frame) error {
	if r.err != nil {
		err := r.err
		r.err = nil
		return err
	}
	r.frames = append(r.frames, f)
	return nil
}

func TestManualFrame_RoundTrip(t *testing.T) {
	for _, cmd := range []shaper.Command{
		shaper.Neutral(),
		{X: 1060, Y: -1060, Z: 105, Yaw: -445},
		{X: 40000, Y: -40000},
	} {
		f := ManualFrame(cmd)
		assert.Equal(t, FrameManualControl, f.ID)
		assert.Equal(t, uint8(8), f.Length)

		got, err := DecodeManualFrame(f)
		require.NoError(t, err)
		want := shaper.Command{
			X: int(saturateInt16(cmd.X)), Y: int(saturateInt16(cmd.Y)),
			Z: int(saturateInt16(cmd.Z)), Yaw: int(saturateInt16(cmd.Yaw)),
		}
		assert.Equal(t, want, got)
	}

	_, err := DecodeManualFrame(ArmModeFrame(true, control.ModeManual))
	assert.Error(t, err)
}

func TestManualFrame_LittleEndian(t *testing.T) {
	f := ManualFrame(shaper.Command{X: 0x0102, Y: -1})
	assert.Equal(t, byte(0x02), f.Data[0])
	assert.Equal(t, byte(0x01), f.Data[1])
	assert.Equal(t, byte(0xff), f.Data[2])
	assert.Equal(t, byte(0xff), f.Data[3])
}

func TestCANActuator(t *testing.T) {
	tx := &recordingTransmitter{}
	a := NewCANActuator(tx)
	ctx := context.Background()

	require.NoError(t, a.SetFlightMode(ctx, control.ModeStabilize))
	require.NoError(t, a.Arm(ctx, true))
	require.NoError(t, a.Arm(ctx, true))
	require.NoError(t, a.SetFlightMode(ctx, control.ModeStabilize))
	require.NoError(t, a.SetManualControl(ctx, shaper.Command{X: 160, Z: 490}))

	require.Len(t, tx.frames, 3)
	assert.Equal(t, ArmModeFrame(false, control.ModeStabilize), tx.frames[0])
	assert.Equal(t, ArmModeFrame(true, control.ModeStabilize), tx.frames[1])
	assert.Equal(t, FrameManualControl, tx.frames[2].ID)

	tx.err = errors.New("bus off")
	assert.Error(t, a.Arm(ctx, false))
	// a failed transmit forces the next arm/mode frame out
	require.NoError(t, a.SetFlightMode(ctx, control.ModeStabilize))
	assert.Equal(t, ArmModeFrame(true, control.ModeStabilize), tx.frames[len(tx.frames)-1])

	assert.NoError(t, a.Close())
}

func TestCANActuator_ResendsUnchangedArmMode(t *testing.T) {
	tx := &recordingTransmitter{}
	a := NewCANActuator(tx)
	a.SetResendEvery(4)
	ctx := context.Background()

	// one guidance tick requests mode then arm
	for i := 0; i < 5; i++ {
		require.NoError(t, a.SetFlightMode(ctx, control.ModeStabilize))
		require.NoError(t, a.Arm(ctx, true))
	}

	// calls 1 and 2 change state, 3-5 are skipped, 6 is re-sent, 7-9 skipped,
	// 10 re-sent
	require.Len(t, tx.frames, 4)
	for _, f := range tx.frames[1:] {
		assert.Equal(t, ArmModeFrame(true, control.ModeStabilize), f)
	}
}
