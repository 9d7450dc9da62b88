package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// R4AA is a rotation of Theta radians about the axis (RX, RY, RZ).
type R4AA struct {
	Theta float64
	RX    float64
	RY    float64
	RZ    float64
}

// ToQuat returns the unit quaternion of the rotation. The axis need not be normalized; a
// zero axis is treated as +z.
func (r4 R4AA) ToQuat() quat.Number {
	r4.Normalize()
	s := math.Sin(r4.Theta / 2)
	return quat.Number{Real: math.Cos(r4.Theta / 2), Imag: r4.RX * s, Jmag: r4.RY * s, Kmag: r4.RZ * s}
}

// Normalize scales the axis onto the unit sphere.
func (r4 *R4AA) Normalize() {
	norm := math.Sqrt(r4.RX*r4.RX + r4.RY*r4.RY + r4.RZ*r4.RZ)
	if norm == 0 {
		r4.RX, r4.RY, r4.RZ = 0, 0, 1
		return
	}
	r4.RX /= norm
	r4.RY /= norm
	r4.RZ /= norm
}

// QuatToR4AA returns the axis-angle of q. The angle is signed by the scalar part so that q
// and -q give opposite angles about the same axis.
func QuatToR4AA(q quat.Number) R4AA {
	vn := Norm(q)
	angle := 2 * math.Atan2(vn, math.Abs(q.Real))
	if q.Real < 0 {
		angle = -angle
	}
	if vn < 1e-6 {
		return R4AA{Theta: angle, RX: 1}
	}
	return R4AA{Theta: angle, RX: q.Imag / vn, RY: q.Jmag / vn, RZ: q.Kmag / vn}
}

// RotationErrorDeg returns the angle of the rotation taking a to b, in degrees within [0, 180].
func RotationErrorDeg(a, b quat.Number) float64 {
	aa := QuatToR4AA(Positify(quat.Mul(quat.Conj(a), b)))
	return math.Abs(aa.Theta) * radToDeg
}
