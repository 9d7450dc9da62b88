package factor

import (
	"math"

	"gonum.org/v1/gonum/num/dual"
)

// AutoDiffFunctor computes a residual over dual numbers so that its derivative can be read
// off the Emag parts.
type AutoDiffFunctor interface {
	Residuals(params [][]dual.Number, residuals []dual.Number) bool
}

// AutoDiffCostFunction differentiates a functor in forward mode, one sweep per requested
// input coordinate.
type AutoDiffCostFunction struct {
	functor      AutoDiffFunctor
	numResiduals int
	blockSizes   []int
}

// NewAutoDiffCostFunction wraps functor with the given residual and block sizes.
func NewAutoDiffCostFunction(functor AutoDiffFunctor, numResiduals int, blockSizes ...int) *AutoDiffCostFunction {
	return &AutoDiffCostFunction{functor: functor, numResiduals: numResiduals, blockSizes: blockSizes}
}

// NumResiduals implements CostFunction.
func (c *AutoDiffCostFunction) NumResiduals() int { return c.numResiduals }

// ParameterBlockSizes implements CostFunction.
func (c *AutoDiffCostFunction) ParameterBlockSizes() []int { return c.blockSizes }

// Evaluate implements CostFunction.
func (c *AutoDiffCostFunction) Evaluate(params [][]float64, residuals []float64, jacobians [][]float64) bool {
	if !checkShapes(c, params, residuals, jacobians) {
		return false
	}
	x := make([][]dual.Number, len(params))
	for i, n := range c.blockSizes {
		x[i] = make([]dual.Number, n)
		for k := 0; k < n; k++ {
			x[i][k] = dual.Number{Real: params[i][k]}
		}
	}
	out := make([]dual.Number, c.numResiduals)
	if !c.functor.Residuals(x, out) {
		return false
	}
	for r := range out {
		residuals[r] = out[r].Real
	}

	for i, n := range c.blockSizes {
		if !jacobianRequested(jacobians, i) {
			continue
		}
		for k := 0; k < n; k++ {
			x[i][k].Emag = 1
			if !c.functor.Residuals(x, out) {
				return false
			}
			x[i][k].Emag = 0
			for r := range out {
				jacobians[i][r*n+k] = out[r].Emag
			}
		}
	}
	return true
}

func dadd(a, b dual.Number) dual.Number {
	return dual.Number{Real: a.Real + b.Real, Emag: a.Emag + b.Emag}
}

func dsub(a, b dual.Number) dual.Number {
	return dual.Number{Real: a.Real - b.Real, Emag: a.Emag - b.Emag}
}

func dscale(f float64, a dual.Number) dual.Number {
	return dual.Number{Real: f * a.Real, Emag: f * a.Emag}
}

// dnormalizeAngle wraps the value of a to (-π, π]. The shift is a constant so the
// derivative is unchanged.
func dnormalizeAngle(a dual.Number) dual.Number {
	wrapped := math.Mod(a.Real+math.Pi, 2*math.Pi)
	if wrapped <= 0 {
		wrapped += 2 * math.Pi
	}
	return dual.Number{Real: wrapped - math.Pi, Emag: a.Emag}
}
