package factor

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/dual"

	"go.viam.com/swarmvins/measurement"
	"go.viam.com/swarmvins/spatialmath"
)

// RelPoseFactor4D is the relative-pose residual between two [x y z yaw] blocks. It is
// differentiated automatically; use CostFunction to hand it to a solver.
type RelPoseFactor4D struct {
	relPos   r3.Vector
	relYaw   float64
	sqrtInfo *mat.Dense
}

// NewRelPoseFactor4D builds the factor from a measured relative pose and a 4x4
// square-root information over [x y z yaw].
func NewRelPoseFactor4D(rel spatialmath.Pose, sqrtInfo mat.Matrix) (*RelPoseFactor4D, error) {
	if r, c := sqrtInfo.Dims(); r != 4 || c != 4 {
		return nil, errors.Errorf("4-DOF sqrt information must be 4x4, got %dx%d", r, c)
	}
	return &RelPoseFactor4D{
		relPos:   rel.Position,
		relYaw:   rel.Yaw(),
		sqrtInfo: mat.DenseCopyOf(sqrtInfo),
	}, nil
}

// NewRelPoseFactor4DSplit builds the factor from a 3x3 position square-root information and
// a scalar yaw weight.
func NewRelPoseFactor4DSplit(rel spatialmath.Pose, sqrtInfoPos mat.Matrix, sqrtInfoYaw float64) (*RelPoseFactor4D, error) {
	if r, c := sqrtInfoPos.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("position sqrt information must be 3x3, got %dx%d", r, c)
	}
	s := mat.NewDense(4, 4, nil)
	setBlock(s, 0, 0, sqrtInfoPos)
	s.Set(3, 3, sqrtInfoYaw)
	return NewRelPoseFactor4D(rel, s)
}

// NewRelPoseFactor4DFromLoop builds the factor from a loop edge, keeping the x, y, z and yaw
// part of its information.
func NewRelPoseFactor4DFromLoop(edge *measurement.LoopEdge) (*RelPoseFactor4D, error) {
	if edge == nil {
		return nil, errors.New("nil loop edge")
	}
	return NewRelPoseFactor4D(edge.RelPose, edge.SqrtInformation4D())
}

// CostFunction wraps the factor for evaluation with derivatives.
func (f *RelPoseFactor4D) CostFunction() *AutoDiffCostFunction {
	return NewAutoDiffCostFunction(f, 4, spatialmath.Pose4DSize, spatialmath.Pose4DSize)
}

// Residuals implements AutoDiffFunctor.
func (f *RelPoseFactor4D) Residuals(params [][]dual.Number, residuals []dual.Number) bool {
	if len(params) != 2 || len(params[0]) < 4 || len(params[1]) < 4 || len(residuals) < 4 {
		return false
	}
	a, b := params[0], params[1]
	yawEst := dnormalizeAngle(dsub(b[3], a[3]))

	// R_z(-yaw_a) * (p_b - p_a)
	c, s := dual.Cos(a[3]), dual.Sin(a[3])
	dx, dy, dz := dsub(b[0], a[0]), dsub(b[1], a[1]), dsub(b[2], a[2])
	posEst := [3]dual.Number{
		dadd(dual.Mul(c, dx), dual.Mul(s, dy)),
		dsub(dual.Mul(c, dy), dual.Mul(s, dx)),
		dz,
	}

	err := [4]dual.Number{
		dsub(posEst[0], dual.Number{Real: f.relPos.X}),
		dsub(posEst[1], dual.Number{Real: f.relPos.Y}),
		dsub(posEst[2], dual.Number{Real: f.relPos.Z}),
		dnormalizeAngle(dsub(yawEst, dual.Number{Real: f.relYaw})),
	}
	for i := 0; i < 4; i++ {
		var sum dual.Number
		for j := 0; j < 4; j++ {
			sum = dadd(sum, dscale(f.sqrtInfo.At(i, j), err[j]))
		}
		residuals[i] = sum
	}
	return true
}
