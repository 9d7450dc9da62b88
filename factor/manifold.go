package factor

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/swarmvins/spatialmath"
	"go.viam.com/swarmvins/state"
)

// Manifold describes how a parameter block is perturbed.
type Manifold interface {
	AmbientSize() int
	TangentSize() int
	// Plus writes x ⊞ delta into dst.
	Plus(x, delta, dst []float64)
	// Minus writes y ⊟ x into dst, the tangent vector taking x to y.
	Minus(y, x, dst []float64)
}

// PoseManifold is the [t q] pose with a right-multiplicative rotation update.
type PoseManifold struct{}

// AmbientSize is 7.
func (PoseManifold) AmbientSize() int { return spatialmath.PoseSize }

// TangentSize is 6.
func (PoseManifold) TangentSize() int { return spatialmath.PoseTangentSize }

// Plus applies t + δt and q ⊗ Exp(δθ).
func (PoseManifold) Plus(x, delta, dst []float64) {
	p := spatialmath.PoseFromParams(x)
	dq := spatialmath.ExpQuat(r3.Vector{X: delta[3], Y: delta[4], Z: delta[5]})
	out := spatialmath.Pose{
		Position:    p.Position.Add(r3.Vector{X: delta[0], Y: delta[1], Z: delta[2]}),
		Orientation: spatialmath.Normalize(quat.Mul(p.Orientation, dq)),
	}
	out.ToArray(dst)
}

// Minus returns [t_y - t_x, 2 vec(positify(q_x⁻¹ q_y))].
func (PoseManifold) Minus(y, x, dst []float64) {
	py := spatialmath.PoseFromParams(y)
	px := spatialmath.PoseFromParams(x)
	dt := py.Position.Sub(px.Position)
	dq := spatialmath.Positify(quat.Mul(quat.Conj(px.Orientation), py.Orientation))
	dst[0], dst[1], dst[2] = dt.X, dt.Y, dt.Z
	dst[3], dst[4], dst[5] = 2*dq.Imag, 2*dq.Jmag, 2*dq.Kmag
}

// EuclideanManifold is plain vector addition.
type EuclideanManifold struct {
	N int
}

// AmbientSize is N.
func (m EuclideanManifold) AmbientSize() int { return m.N }

// TangentSize is N.
func (m EuclideanManifold) TangentSize() int { return m.N }

// Plus returns x + delta.
func (m EuclideanManifold) Plus(x, delta, dst []float64) {
	for i := 0; i < m.N; i++ {
		dst[i] = x[i] + delta[i]
	}
}

// Minus returns y - x.
func (m EuclideanManifold) Minus(y, x, dst []float64) {
	for i := 0; i < m.N; i++ {
		dst[i] = y[i] - x[i]
	}
}

// Pose4DManifold is [x y z yaw] with the yaw difference wrapped to (-π, π].
type Pose4DManifold struct{}

// AmbientSize is 4.
func (Pose4DManifold) AmbientSize() int { return spatialmath.Pose4DSize }

// TangentSize is 4.
func (Pose4DManifold) TangentSize() int { return spatialmath.Pose4DSize }

// Plus adds componentwise and wraps the yaw.
func (Pose4DManifold) Plus(x, delta, dst []float64) {
	for i := 0; i < 3; i++ {
		dst[i] = x[i] + delta[i]
	}
	dst[3] = spatialmath.NormalizeAngle(x[3] + delta[3])
}

// Minus subtracts componentwise and wraps the yaw.
func (Pose4DManifold) Minus(y, x, dst []float64) {
	for i := 0; i < 3; i++ {
		dst[i] = y[i] - x[i]
	}
	dst[3] = spatialmath.NormalizeAngle(y[3] - x[3])
}

// ManifoldFor returns the manifold a parameter kind is optimized on.
func ManifoldFor(kind state.ParamKind) Manifold {
	switch kind {
	case state.Pose6DOF, state.Extrinsic:
		return PoseManifold{}
	case state.Pose4DOF:
		return Pose4DManifold{}
	case state.LandmarkInvDepth, state.LandmarkXYZ, state.TimeOffset, state.SpeedBias:
		return EuclideanManifold{N: kind.Size()}
	default:
		return EuclideanManifold{N: kind.Size()}
	}
}
