package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

const (
	radToDeg = 180 / math.Pi
	degToRad = math.Pi / 180
)

// Normalize scales q to unit length. The zero quaternion maps to the identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// Flip will multiply a quaternion by -1, returning a quaternion representing the same orientation but in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// Positify resolves the double cover by returning whichever of q and -q has a non-negative
// scalar part. When the scalar part is exactly zero the first non-zero imaginary component
// is made positive, so Positify(q) == Positify(-q) for every q.
func Positify(q quat.Number) quat.Number {
	switch {
	case q.Real > 0:
		return q
	case q.Real < 0:
		return Flip(q)
	}
	for _, c := range []float64{q.Imag, q.Jmag, q.Kmag} {
		if c > 0 {
			return q
		}
		if c < 0 {
			return Flip(q)
		}
	}
	return q
}

// QuatVec returns the imaginary part of q.
func QuatVec(q quat.Number) r3.Vector {
	return r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// Norm returns the norm of the quaternion, i.e. the sqrt of the squares of the imaginary parts.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// QuaternionAlmostEqual compares two rotations, treating q and -q as the same rotation.
func QuaternionAlmostEqual(a, b quat.Number, eps float64) bool {
	a, b = Positify(a), Positify(b)
	return math.Abs(a.Real-b.Real) < eps &&
		math.Abs(a.Imag-b.Imag) < eps &&
		math.Abs(a.Jmag-b.Jmag) < eps &&
		math.Abs(a.Kmag-b.Kmag) < eps
}

// RotateVector applies the rotation q to v.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	u := QuatVec(q)
	t := u.Cross(v).Mul(2)
	return v.Add(t.Mul(q.Real)).Add(u.Cross(t))
}

// QuatToRotationMatrix returns the 3x3 rotation matrix of a unit quaternion.
func QuatToRotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// SkewSymmetric returns [v]x, the matrix with [v]x * u == v.Cross(u).
func SkewSymmetric(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// QLeft returns the 4x4 matrix with QLeft(p) * q == p ⊗ q, coordinates ordered [w x y z].
func QLeft(p quat.Number) *mat.Dense {
	w, x, y, z := p.Real, p.Imag, p.Jmag, p.Kmag
	return mat.NewDense(4, 4, []float64{
		w, -x, -y, -z,
		x, w, -z, y,
		y, z, w, -x,
		z, -y, x, w,
	})
}

// QRight returns the 4x4 matrix with QRight(q) * p == p ⊗ q, coordinates ordered [w x y z].
func QRight(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(4, 4, []float64{
		w, -x, -y, -z,
		x, w, z, -y,
		y, -z, w, x,
		z, y, -x, w,
	})
}

// QuatToYaw returns the heading of q (rotation about z in a ZYX decomposition).
func QuatToYaw(q quat.Number) float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
}

// YawToQuat returns the rotation of yaw radians about the z axis.
func YawToQuat(yaw float64) quat.Number {
	return quat.Number{Real: math.Cos(yaw / 2), Kmag: math.Sin(yaw / 2)}
}

// QuatToYPR converts a unit quaternion to ZYX Euler angles, returned as
// {X: yaw, Y: pitch, Z: roll} in radians.
// Euler angles are terrible, this is only used for printing.
func QuatToYPR(q quat.Number) r3.Vector {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	sinp := 2 * (w*y - z*x)
	if sinp > 1 {
		sinp = 1
	} else if sinp < -1 {
		sinp = -1
	}
	return r3.Vector{
		X: math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)),
		Y: math.Asin(sinp),
		Z: math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)),
	}
}

// YPRToQuat is the inverse of QuatToYPR.
func YPRToQuat(yaw, pitch, roll float64) quat.Number {
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	return quat.Number{
		Real: cy*cp*cr + sy*sp*sr,
		Imag: cy*cp*sr - sy*sp*cr,
		Jmag: cy*sp*cr + sy*cp*sr,
		Kmag: sy*cp*cr - cy*sp*sr,
	}
}

// ExpQuat maps a rotation vector (axis * angle, radians) to a unit quaternion.
func ExpQuat(theta r3.Vector) quat.Number {
	angle := theta.Norm()
	if angle < 1e-12 {
		return Normalize(quat.Number{Real: 1, Imag: theta.X / 2, Jmag: theta.Y / 2, Kmag: theta.Z / 2})
	}
	aa := R4AA{Theta: angle, RX: theta.X, RY: theta.Y, RZ: theta.Z}
	return aa.ToQuat()
}

// NormalizeAngle wraps an angle in radians to (-π, π].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// YawRotMat returns the rotation matrix about z by yaw radians.
func YawRotMat(yaw float64) *mat.Dense {
	c, s := math.Cos(yaw), math.Sin(yaw)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * degToRad
}
