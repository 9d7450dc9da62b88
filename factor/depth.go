package factor

import (
	"github.com/pkg/errors"
)

// DepthFactor ties an inverse-depth landmark to the depth measured at its anchor:
// r = w (ρ - 1/d). Its single block is the inverse depth.
type DepthFactor struct {
	invDep   float64
	sqrtInfo float64
}

// NewDepthFactor takes the measured depth and the scalar sqrt information w.
func NewDepthFactor(depth, sqrtInfo float64) (*DepthFactor, error) {
	if depth <= 0 {
		return nil, errors.Errorf("measured depth must be positive, got %v", depth)
	}
	if sqrtInfo <= 0 {
		return nil, errors.Errorf("depth sqrt information must be positive, got %v", sqrtInfo)
	}
	return &DepthFactor{invDep: 1 / depth, sqrtInfo: sqrtInfo}, nil
}

// NumResiduals is 1.
func (f *DepthFactor) NumResiduals() int { return 1 }

// ParameterBlockSizes is the one inverse depth.
func (f *DepthFactor) ParameterBlockSizes() []int { return []int{1} }

// Evaluate implements CostFunction.
func (f *DepthFactor) Evaluate(params [][]float64, residuals []float64, jacobians [][]float64) bool {
	if !checkShapes(f, params, residuals, jacobians) {
		return false
	}
	residuals[0] = f.sqrtInfo * (params[0][0] - f.invDep)
	if jacobianRequested(jacobians, 0) {
		jacobians[0][0] = f.sqrtInfo
	}
	return true
}
