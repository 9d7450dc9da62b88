package factor

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PriorFactor is the linearized information left behind by marginalization:
// r = r0 + J (x ⊟ x0), with the blocks' tangent differences stacked in order.
type PriorFactor struct {
	manifolds []Manifold
	origin    [][]float64
	jacobian  *mat.Dense
	r0        []float64
	offsets   []int
}

// NewPriorFactor copies the linearization point, the stacked tangent Jacobian and the
// residual at the linearization point.
func NewPriorFactor(origin [][]float64, manifolds []Manifold, jacobian mat.Matrix, r0 []float64) (*PriorFactor, error) {
	if len(origin) != len(manifolds) || len(manifolds) == 0 {
		return nil, errors.Errorf("prior has %d linearization blocks for %d manifolds", len(origin), len(manifolds))
	}
	offsets := make([]int, len(manifolds))
	tangent := 0
	copied := make([][]float64, len(origin))
	for i, m := range manifolds {
		if len(origin[i]) < m.AmbientSize() {
			return nil, errors.Errorf("prior block %d has %d values, want %d", i, len(origin[i]), m.AmbientSize())
		}
		copied[i] = append([]float64(nil), origin[i][:m.AmbientSize()]...)
		offsets[i] = tangent
		tangent += m.TangentSize()
	}
	rows, cols := jacobian.Dims()
	if cols != tangent {
		return nil, errors.Errorf("prior jacobian has %d columns, blocks span %d", cols, tangent)
	}
	if rows != len(r0) {
		return nil, errors.Errorf("prior jacobian has %d rows, residual has %d", rows, len(r0))
	}
	return &PriorFactor{
		manifolds: manifolds,
		origin:    copied,
		jacobian:  mat.DenseCopyOf(jacobian),
		r0:        append([]float64(nil), r0...),
		offsets:   offsets,
	}, nil
}

// NumResiduals implements CostFunction.
func (f *PriorFactor) NumResiduals() int { return len(f.r0) }

// ParameterBlockSizes implements CostFunction.
func (f *PriorFactor) ParameterBlockSizes() []int {
	sizes := make([]int, len(f.manifolds))
	for i, m := range f.manifolds {
		sizes[i] = m.AmbientSize()
	}
	return sizes
}

// Evaluate implements CostFunction.
func (f *PriorFactor) Evaluate(params [][]float64, residuals []float64, jacobians [][]float64) bool {
	if !checkShapes(f, params, residuals, jacobians) {
		return false
	}
	_, cols := f.jacobian.Dims()
	dx := make([]float64, cols)
	for i, m := range f.manifolds {
		m.Minus(params[i], f.origin[i], dx[f.offsets[i]:f.offsets[i]+m.TangentSize()])
	}
	var r mat.VecDense
	r.MulVec(f.jacobian, mat.NewVecDense(cols, dx))
	for i := range f.r0 {
		residuals[i] = r.AtVec(i) + f.r0[i]
	}

	m := len(f.r0)
	for i, man := range f.manifolds {
		if !jacobianRequested(jacobians, i) {
			continue
		}
		ambient := man.AmbientSize()
		for row := 0; row < m; row++ {
			dst := jacobians[i][row*ambient : (row+1)*ambient]
			for k := range dst {
				dst[k] = 0
			}
			for k := 0; k < man.TangentSize(); k++ {
				dst[k] = f.jacobian.At(row, f.offsets[i]+k)
			}
		}
	}
	return true
}
