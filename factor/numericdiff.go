package factor

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// defaultNumericStep is the central-difference step taken in the tangent space.
const defaultNumericStep = 1e-6

// ResidualFunc evaluates a residual without derivatives.
type ResidualFunc func(params [][]float64, residuals []float64) bool

// NumericDiffCostFunction differentiates a ResidualFunc by central differences taken in the
// tangent space of each block's manifold.
type NumericDiffCostFunction struct {
	residual     ResidualFunc
	numResiduals int
	manifolds    []Manifold
	step         float64
}

// NewNumericDiffCostFunction returns a cost function over blocks perturbed on manifolds.
func NewNumericDiffCostFunction(residual ResidualFunc, numResiduals int, manifolds ...Manifold) (*NumericDiffCostFunction, error) {
	if residual == nil {
		return nil, errors.New("nil residual function")
	}
	if numResiduals <= 0 {
		return nil, errors.Errorf("residual size must be positive, got %d", numResiduals)
	}
	if len(manifolds) == 0 {
		return nil, errors.New("numeric cost function needs at least one parameter block")
	}
	return &NumericDiffCostFunction{
		residual:     residual,
		numResiduals: numResiduals,
		manifolds:    manifolds,
		step:         defaultNumericStep,
	}, nil
}

// NumResiduals implements CostFunction.
func (c *NumericDiffCostFunction) NumResiduals() int { return c.numResiduals }

// ParameterBlockSizes implements CostFunction.
func (c *NumericDiffCostFunction) ParameterBlockSizes() []int {
	sizes := make([]int, len(c.manifolds))
	for i, m := range c.manifolds {
		sizes[i] = m.AmbientSize()
	}
	return sizes
}

// Evaluate implements CostFunction. Tangent derivatives land in the leading columns of each
// block; the remaining ambient columns are zero.
func (c *NumericDiffCostFunction) Evaluate(params [][]float64, residuals []float64, jacobians [][]float64) bool {
	if !checkShapes(c, params, residuals, jacobians) {
		return false
	}
	if !c.residual(params, residuals) {
		return false
	}

	for i, m := range c.manifolds {
		if !jacobianRequested(jacobians, i) {
			continue
		}
		ambient, tangent := m.AmbientSize(), m.TangentSize()
		origin := append([]float64(nil), params[i][:ambient]...)
		perturbed := make([]float64, ambient)
		shifted := make([][]float64, len(params))
		copy(shifted, params)
		shifted[i] = perturbed

		ok := true
		jac := mat.NewDense(c.numResiduals, tangent, nil)
		fd.Jacobian(jac, func(y, delta []float64) {
			m.Plus(origin, delta, perturbed)
			if !c.residual(shifted, y) {
				ok = false
			}
		}, make([]float64, tangent), &fd.JacobianSettings{
			Formula: fd.Central,
			Step:    c.step,
		})
		if !ok {
			return false
		}
		for r := 0; r < c.numResiduals; r++ {
			row := jacobians[i][r*ambient : (r+1)*ambient]
			for k := range row {
				row[k] = 0
			}
			for k := 0; k < tangent; k++ {
				row[k] = jac.At(r, k)
			}
		}
	}
	return true
}
