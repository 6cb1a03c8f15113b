// Package pose holds rigid-body poses and the collaborators that acquire
// them for the guidance loop: a frame tree for lookups and a synchronizer
// for poses pushed by an external source.
package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// FrameID names a coordinate frame, e.g. "local_origin_ned" or "erov".
type FrameID string

// Pose is a rigid transform: the position and orientation of a child frame
// expressed in its parent frame. Orientation is a unit quaternion.
type Pose struct {
	Position    r3.Vec
	Orientation quat.Number
}

// Identity returns the identity pose.
func Identity() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// New returns a pose at (x, y, z) rotated by yaw radians about the z axis.
func New(x, y, z, yaw float64) Pose {
	half := yaw / 2
	return Pose{
		Position:    r3.Vec{X: x, Y: y, Z: z},
		Orientation: quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)},
	}
}

// FromQuaternion builds a pose from a position and a (w, x, y, z) quaternion.
// The quaternion is normalised; a zero quaternion yields no rotation.
func FromQuaternion(x, y, z, qw, qx, qy, qz float64) Pose {
	q := quat.Number{Real: qw, Imag: qx, Jmag: qy, Kmag: qz}
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		q = quat.Number{Real: 1}
	} else {
		q = quat.Scale(1/n, q)
	}
	return Pose{Position: r3.Vec{X: x, Y: y, Z: z}, Orientation: q}
}

// Rotate applies the pose's rotation to v.
func (p Pose) Rotate(v r3.Vec) r3.Vec {
	return r3.Rotation(p.Orientation).Rotate(v)
}

// Inverse returns the transform from the parent frame back to the child.
func (p Pose) Inverse() Pose {
	inv := quat.Conj(p.Orientation)
	return Pose{
		Position:    r3.Scale(-1, r3.Rotation(inv).Rotate(p.Position)),
		Orientation: inv,
	}
}

// Compose returns p∘q: q expressed in p's parent frame.
func (p Pose) Compose(q Pose) Pose {
	return Pose{
		Position:    r3.Add(p.Position, p.Rotate(q.Position)),
		Orientation: quat.Mul(p.Orientation, q.Orientation),
	}
}

// Relative expresses target in the body frame of current
// (current⁻¹ ∘ target). Both poses must share a reference frame.
func Relative(current, target Pose) Pose {
	return current.Inverse().Compose(target)
}

// Yaw returns the heading in radians, in (-π, π].
func (p Pose) Yaw() float64 {
	q := p.Orientation
	sinyCosp := 2 * (q.Real*q.Kmag + q.Imag*q.Jmag)
	cosyCosp := 1 - 2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag)
	return math.Atan2(sinyCosp, cosyCosp)
}

// Distance returns the euclidean distance between the two positions.
func Distance(a, b Pose) float64 {
	return r3.Norm(r3.Sub(a.Position, b.Position))
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f; yaw %.3f)", p.Position.X, p.Position.Y, p.Position.Z, p.Yaw())
}
