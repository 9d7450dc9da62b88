package factor

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/swarmvins/spatialmath"
)

// RelPoseFactor penalizes the difference between a measured relative pose and the one
// implied by two 6-DOF pose blocks. Its Jacobians are analytic.
type RelPoseFactor struct {
	tRel      r3.Vector
	qRel      quat.Number
	tSqrtInfo *mat.Dense
	qSqrtInfo *mat.Dense
}

// NewRelPoseFactor builds the factor from the measured pose of B in A's frame and a 6x6
// square-root information matrix. Only the translation and rotation diagonal blocks of
// sqrtInfo are used.
func NewRelPoseFactor(rel spatialmath.Pose, sqrtInfo mat.Matrix) (*RelPoseFactor, error) {
	if r, c := sqrtInfo.Dims(); r != 6 || c != 6 {
		return nil, errors.Errorf("relative pose sqrt information must be 6x6, got %dx%d", r, c)
	}
	t := mat.NewDense(3, 3, nil)
	q := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.Set(i, j, sqrtInfo.At(i, j))
			q.Set(i, j, sqrtInfo.At(i+3, j+3))
		}
	}
	return &RelPoseFactor{
		tRel:      rel.Position,
		qRel:      spatialmath.Normalize(rel.Orientation),
		tSqrtInfo: t,
		qSqrtInfo: q,
	}, nil
}

// NumResiduals is 6: translation then rotation.
func (f *RelPoseFactor) NumResiduals() int { return 6 }

// ParameterBlockSizes are two 7-value poses.
func (f *RelPoseFactor) ParameterBlockSizes() []int {
	return []int{spatialmath.PoseSize, spatialmath.PoseSize}
}

// Evaluate implements CostFunction.
func (f *RelPoseFactor) Evaluate(params [][]float64, residuals []float64, jacobians [][]float64) bool {
	if !checkShapes(f, params, residuals, jacobians) {
		return false
	}
	a := spatialmath.PoseFromParams(params[0])
	b := spatialmath.PoseFromParams(params[1])

	qaInv := quat.Conj(a.Orientation)
	qEst := quat.Mul(qaInv, b.Orientation)
	tEst := spatialmath.RotateVector(qaInv, b.Position.Sub(a.Position))

	raw := quat.Mul(quat.Conj(f.qRel), qEst)
	qErr := spatialmath.Positify(raw)
	sign := 1.0
	if qErr != raw {
		sign = -1
	}

	tDiff := tEst.Sub(f.tRel)
	var rt, rq mat.VecDense
	rt.MulVec(f.tSqrtInfo, mat.NewVecDense(3, []float64{tDiff.X, tDiff.Y, tDiff.Z}))
	rq.MulVec(f.qSqrtInfo, mat.NewVecDense(3, []float64{2 * qErr.Imag, 2 * qErr.Jmag, 2 * qErr.Kmag}))
	for i := 0; i < 3; i++ {
		residuals[i] = rt.AtVec(i)
		residuals[i+3] = rq.AtVec(i)
	}

	if !jacobianRequested(jacobians, 0) && !jacobianRequested(jacobians, 1) {
		return true
	}
	raInv := spatialmath.QuatToRotationMatrix(qaInv)
	var tRa mat.Dense
	tRa.Mul(f.tSqrtInfo, raInv)

	if jacobianRequested(jacobians, 0) {
		j := mat.NewDense(6, spatialmath.PoseSize, jacobians[0])
		j.Zero()
		var negTRa mat.Dense
		negTRa.Scale(-1, &tRa)
		setBlock(j, 0, 0, &negTRa)

		var dtdq mat.Dense
		dtdq.Mul(f.tSqrtInfo, spatialmath.SkewSymmetric(tEst))
		setBlock(j, 0, 3, &dtdq)

		var prod, dqdq mat.Dense
		prod.Mul(spatialmath.QLeft(quat.Conj(f.qRel)), spatialmath.QRight(qEst))
		dqdq.Mul(f.qSqrtInfo, prod.Slice(1, 4, 1, 4))
		dqdq.Scale(-sign, &dqdq)
		setBlock(j, 3, 3, &dqdq)
	}
	if jacobianRequested(jacobians, 1) {
		j := mat.NewDense(6, spatialmath.PoseSize, jacobians[1])
		j.Zero()
		setBlock(j, 0, 0, &tRa)

		var dqdq mat.Dense
		dqdq.Mul(f.qSqrtInfo, spatialmath.QLeft(qErr).Slice(1, 4, 1, 4))
		setBlock(j, 3, 3, &dqdq)
	}
	return true
}

// setBlock copies m into dst with its top-left corner at (r, c).
func setBlock(dst *mat.Dense, r, c int, m mat.Matrix) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for k := 0; k < cols; k++ {
			dst.Set(r+i, c+k, m.At(i, k))
		}
	}
}
