package vehiclelink

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/shaper"
)

// CAN frame IDs used by CANActuator.
const (
	// FrameManualControl carries x, y, z and yaw as little-endian int16.
	FrameManualControl uint32 = 0x200
	// FrameArmMode carries the arm flag in byte 0 and the mode in byte 1.
	FrameArmMode uint32 = 0x201
)

// FrameTransmitter sends one CAN frame.
type FrameTransmitter interface {
	TransmitFrame(ctx context.Context, frame can.Frame) error
}

// CANActuator drives the vehicle over a CAN bus. Arm and mode share one
// frame, which is sent whenever either changes and otherwise re-sent after
// resendEvery unchanged requests.
type CANActuator struct {
	tx          FrameTransmitter
	conn        net.Conn
	resendEvery int

	mu    sync.Mutex
	armed bool
	mode  control.Mode
	sent  bool
	skips int
}

// NewCANActuator returns an actuator transmitting on tx.
func NewCANActuator(tx FrameTransmitter) *CANActuator {
	return &CANActuator{tx: tx, mode: control.ModeManual, resendEvery: DefaultResendEvery}
}

// SetResendEvery changes how many unchanged arm or mode requests may be
// skipped. n <= 1 transmits on every call.
func (a *CANActuator) SetResendEvery(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resendEvery = n
}

// DialCAN opens the SocketCAN interface iface (e.g. "can0", "vcan0").
func DialCAN(ctx context.Context, iface string) (*CANActuator, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	opsf("CAN actuator on %s", iface)
	a := NewCANActuator(socketcan.NewTransmitter(conn))
	a.conn = conn
	return a, nil
}

// SetManualControl transmits one manual-control frame.
func (a *CANActuator) SetManualControl(ctx context.Context, cmd shaper.Command) error {
	return a.tx.TransmitFrame(ctx, ManualFrame(cmd))
}

// Arm arms or disarms the vehicle.
func (a *CANActuator) Arm(ctx context.Context, armed bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if skip(a.sent && a.armed == armed, &a.skips, a.resendEvery) {
		return nil
	}
	return a.transmitArmMode(ctx, armed, a.mode)
}

// SetFlightMode requests a flight mode.
func (a *CANActuator) SetFlightMode(ctx context.Context, mode control.Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if skip(a.sent && a.mode == mode, &a.skips, a.resendEvery) {
		return nil
	}
	return a.transmitArmMode(ctx, a.armed, mode)
}

func (a *CANActuator) transmitArmMode(ctx context.Context, armed bool, mode control.Mode) error {
	if err := a.tx.TransmitFrame(ctx, ArmModeFrame(armed, mode)); err != nil {
		a.sent = false
		return err
	}
	a.armed, a.mode, a.sent = armed, mode, true
	a.skips = 0
	return nil
}

// Close closes the CAN socket if DialCAN opened one.
func (a *CANActuator) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// ManualFrame encodes cmd as a FrameManualControl frame.
func ManualFrame(cmd shaper.Command) can.Frame {
	f := can.Frame{ID: FrameManualControl, Length: 8}
	for i, v := range []int{cmd.X, cmd.Y, cmd.Z, cmd.Yaw} {
		binary.LittleEndian.PutUint16(f.Data[2*i:], uint16(saturateInt16(v)))
	}
	return f
}

// ArmModeFrame encodes the arm flag and mode as a FrameArmMode frame.
func ArmModeFrame(armed bool, mode control.Mode) can.Frame {
	f := can.Frame{ID: FrameArmMode, Length: 2}
	if armed {
		f.Data[0] = 1
	}
	f.Data[1] = byte(mode)
	return f
}

// DecodeManualFrame is the inverse of ManualFrame.
func DecodeManualFrame(f can.Frame) (shaper.Command, error) {
	if f.ID != FrameManualControl || f.Length != 8 {
		return shaper.Command{}, fmt.Errorf("not a manual-control frame: id=0x%X len=%d", f.ID, f.Length)
	}
	v := func(i int) int { return int(int16(binary.LittleEndian.Uint16(f.Data[2*i:]))) }
	return shaper.Command{X: v(0), Y: v(1), Z: v(2), Yaw: v(3)}, nil
}

func saturateInt16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
