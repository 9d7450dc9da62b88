// Package factor implements the residual functions of the back-end graph and the
// cost-function contract a least-squares engine consumes.
//
// A CostFunction maps parameter blocks to a residual vector and, on request, to one
// row-major Jacobian per block. Pose blocks are stored as [tx ty tz qx qy qz qw]; their
// Jacobians are taken with respect to the 6-dimensional tangent perturbation
// (t + δt, q ⊗ Exp(δθ)) and laid out in the first six columns of the 7-column buffer, the
// qw column being always zero.
package factor

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CostFunction is the evaluation contract between a residual and the solving engine.
type CostFunction interface {
	// NumResiduals is the fixed length of the residual vector.
	NumResiduals() int
	// ParameterBlockSizes are the fixed ambient sizes of the blocks Evaluate reads.
	ParameterBlockSizes() []int
	// Evaluate writes the residual into residuals. jacobians may be nil; a nil entry means
	// that block's Jacobian was not requested. A requested entry is a row-major
	// NumResiduals x blockSize buffer and is fully written. Evaluate returns false when the
	// inputs or buffers are malformed or the residual is undefined at the given point.
	Evaluate(params [][]float64, residuals []float64, jacobians [][]float64) bool
}

// jacobianRequested reports whether block i's Jacobian should be written.
func jacobianRequested(jacobians [][]float64, i int) bool {
	return jacobians != nil && i < len(jacobians) && jacobians[i] != nil
}

// checkShapes validates the parameter, residual and Jacobian buffers against a cost function.
func checkShapes(c CostFunction, params [][]float64, residuals []float64, jacobians [][]float64) bool {
	sizes := c.ParameterBlockSizes()
	if len(params) != len(sizes) || len(residuals) < c.NumResiduals() {
		return false
	}
	for i, n := range sizes {
		if len(params[i]) < n {
			return false
		}
		if jacobianRequested(jacobians, i) && len(jacobians[i]) != n*c.NumResiduals() {
			return false
		}
	}
	return true
}

// NewJacobianBuffers allocates one buffer per parameter block of c.
func NewJacobianBuffers(c CostFunction) [][]float64 {
	sizes := c.ParameterBlockSizes()
	out := make([][]float64, len(sizes))
	for i, n := range sizes {
		out[i] = make([]float64, n*c.NumResiduals())
	}
	return out
}

// JacobianMatrix views a row-major Jacobian buffer of block i as a matrix.
func JacobianMatrix(c CostFunction, jacobians [][]float64, i int) (*mat.Dense, error) {
	sizes := c.ParameterBlockSizes()
	if i < 0 || i >= len(sizes) || i >= len(jacobians) {
		return nil, errors.Errorf("no jacobian block %d", i)
	}
	if len(jacobians[i]) != sizes[i]*c.NumResiduals() {
		return nil, errors.Errorf("jacobian block %d has %d values, want %d", i, len(jacobians[i]), sizes[i]*c.NumResiduals())
	}
	return mat.NewDense(c.NumResiduals(), sizes[i], jacobians[i]), nil
}

// Evaluate is a convenience wrapper that allocates the residual and, when withJacobians is
// set, every Jacobian block.
func Evaluate(c CostFunction, params [][]float64, withJacobians bool) ([]float64, [][]float64, error) {
	residuals := make([]float64, c.NumResiduals())
	var jacobians [][]float64
	if withJacobians {
		jacobians = NewJacobianBuffers(c)
	}
	if !c.Evaluate(params, residuals, jacobians) {
		return nil, nil, errors.New("cost function evaluation failed")
	}
	return residuals, jacobians, nil
}
