// Package spatialmath defines the rigid-body math shared by the residual layer: poses,
// quaternion helpers and the yaw-only pose used by the 4-DOF representation.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

const (
	// PoseSize is the number of ambient coordinates of a 6-DOF pose: [tx ty tz qx qy qz qw].
	PoseSize = 7
	// PoseTangentSize is the dimension of the local perturbation space of a 6-DOF pose.
	PoseTangentSize = 6
	// Pose4DSize is the number of coordinates of a yaw-only pose: [x y z yaw].
	Pose4DSize = 4
)

// Pose is a rigid transform made of a translation and a unit quaternion.
type Pose struct {
	Position    r3.Vector
	Orientation quat.Number
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// NewPose returns a pose with the given translation and orientation. The orientation is
// normalized so callers may pass an unnormalized quaternion.
func NewPose(position r3.Vector, orientation quat.Number) Pose {
	return Pose{Position: position, Orientation: Normalize(orientation)}
}

// NewPoseFromArray reads a pose from the ambient parameter layout [tx ty tz qx qy qz qw].
func NewPoseFromArray(v []float64) (Pose, error) {
	if len(v) < PoseSize {
		return Pose{}, errors.Errorf("pose needs %d values, got %d", PoseSize, len(v))
	}
	return PoseFromParams(v), nil
}

// PoseFromParams is NewPoseFromArray for cost functions, whose parameter blocks are sized
// by the caller.
func PoseFromParams(v []float64) Pose {
	return Pose{
		Position:    r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Orientation: quat.Number{Real: v[6], Imag: v[3], Jmag: v[4], Kmag: v[5]},
	}
}

// ToArray writes the pose into dst using the ambient parameter layout. dst must hold at
// least PoseSize values; a nil dst allocates.
func (p Pose) ToArray(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, PoseSize)
	}
	dst[0] = p.Position.X
	dst[1] = p.Position.Y
	dst[2] = p.Position.Z
	dst[3] = p.Orientation.Imag
	dst[4] = p.Orientation.Jmag
	dst[5] = p.Orientation.Kmag
	dst[6] = p.Orientation.Real
	return dst
}

// Inverse returns the pose which undoes p.
func (p Pose) Inverse() Pose {
	qInv := quat.Conj(p.Orientation)
	return Pose{
		Position:    RotateVector(qInv, p.Position).Mul(-1),
		Orientation: qInv,
	}
}

// Transform maps a point expressed in p's frame into the parent frame.
func (p Pose) Transform(pt r3.Vector) r3.Vector {
	return RotateVector(p.Orientation, pt).Add(p.Position)
}

// Yaw returns the heading of the pose, i.e. the rotation about the parent z axis.
func (p Pose) Yaw() float64 {
	return QuatToYaw(p.Orientation)
}

// ToPose4D drops roll and pitch.
func (p Pose) ToPose4D() Pose4D {
	return Pose4D{Position: p.Position, Yaw: p.Yaw()}
}

// String prints the translation and the yaw/pitch/roll in degrees.
func (p Pose) String() string {
	ypr := QuatToYPR(p.Orientation)
	return fmt.Sprintf("T %.3f %.3f %.3f YPR %.1f %.1f %.1f",
		p.Position.X, p.Position.Y, p.Position.Z,
		ypr.X*radToDeg, ypr.Y*radToDeg, ypr.Z*radToDeg)
}

// Compose returns a∘b, the pose b expressed in the parent frame of a.
func Compose(a, b Pose) Pose {
	return Pose{
		Position:    a.Transform(b.Position),
		Orientation: quat.Mul(a.Orientation, b.Orientation),
	}
}

// PoseBetween returns a⁻¹∘b, the pose of b expressed in the frame of a.
func PoseBetween(a, b Pose) Pose {
	return Compose(a.Inverse(), b)
}

// PoseAlmostEqual reports whether two poses match in translation and rotation within eps.
// The orientations are compared modulo the quaternion double cover.
func PoseAlmostEqual(a, b Pose, eps float64) bool {
	if a.Position.Sub(b.Position).Norm() > eps {
		return false
	}
	return QuaternionAlmostEqual(a.Orientation, b.Orientation, eps)
}

// Pose4D is a translation plus heading; roll and pitch are implicitly zero.
type Pose4D struct {
	Position r3.Vector
	Yaw      float64
}

// NewPose4DFromArray reads [x y z yaw].
func NewPose4DFromArray(v []float64) (Pose4D, error) {
	if len(v) < Pose4DSize {
		return Pose4D{}, errors.Errorf("4-DOF pose needs %d values, got %d", Pose4DSize, len(v))
	}
	return Pose4D{Position: r3.Vector{X: v[0], Y: v[1], Z: v[2]}, Yaw: v[3]}, nil
}

// ToArray writes [x y z yaw] into dst, allocating when dst is nil.
func (p Pose4D) ToArray(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, Pose4DSize)
	}
	dst[0] = p.Position.X
	dst[1] = p.Position.Y
	dst[2] = p.Position.Z
	dst[3] = p.Yaw
	return dst
}

// NewPoseFromPose4D lifts a yaw-only pose to a full pose with zero roll and pitch.
func NewPoseFromPose4D(p Pose4D) Pose {
	return Pose{Position: p.Position, Orientation: YawToQuat(p.Yaw)}
}

// Pose4DBetween returns the yaw-only relative pose of b in the heading frame of a.
func Pose4DBetween(a, b Pose4D) Pose4D {
	return Pose4D{
		Position: RotateYaw(-a.Yaw, b.Position.Sub(a.Position)),
		Yaw:      NormalizeAngle(b.Yaw - a.Yaw),
	}
}

// RotateYaw rotates v about the z axis by yaw radians.
func RotateYaw(yaw float64, v r3.Vector) r3.Vector {
	c, s := math.Cos(yaw), math.Sin(yaw)
	return r3.Vector{X: c*v.X - s*v.Y, Y: s*v.X + c*v.Y, Z: v.Z}
}
