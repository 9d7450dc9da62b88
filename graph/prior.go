package graph

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swarmvins/factor"
	"go.viam.com/swarmvins/residual"
	"go.viam.com/swarmvins/state"
)

// eigenEpsilon is the eigenvalue below which a direction of the information matrix is
// treated as unobserved.
const eigenEpsilon = 1e-8

// Marginalize linearizes the residuals of plan at the current state and folds the removed
// variables into a prior over plan.Keep by Schur complement. Robust losses are applied as a
// first-order reweighting. It returns nil when the plan keeps no variables. Every
// residual of the plan must be evaluable at the current state.
func Marginalize(ctx context.Context, st *state.State, plan *MarginalizationPlan) (*residual.Info, error) {
	ctx, span := trace.StartSpan(ctx, "graph::Marginalize")
	defer span.End()

	if len(plan.Keep) == 0 {
		return nil, nil
	}

	// removed variables take the leading tangent columns, kept ones the rest
	offsets := map[state.ParamHandle]int{}
	n := 0
	for _, p := range plan.Remove {
		offsets[p.Handle] = n
		n += p.TangentSize()
	}
	removed := n
	for _, p := range plan.Keep {
		offsets[p.Handle] = n
		n += p.TangentSize()
	}

	results, err := EvaluateAll(ctx, st, plan.Residuals, true)
	if err != nil {
		return nil, err
	}
	h := mat.NewDense(n, n, nil)
	g := mat.NewVecDense(n, nil)
	for i, info := range plan.Residuals {
		if results[i].Err != nil {
			return nil, errors.Wrapf(results[i].Err, "linearizing %s", info)
		}
		params, err := info.ParamsList(st)
		if err != nil {
			return nil, err
		}
		if err := accumulate(h, g, info, params, results[i].Evaluation, offsets); err != nil {
			return nil, err
		}
	}

	hp, gp := schurComplement(h, g, removed)
	jac, r0 := decompose(hp, gp)

	origin := make([][]float64, len(plan.Keep))
	manifolds := make([]factor.Manifold, len(plan.Keep))
	for i, p := range plan.Keep {
		vals, err := st.Values(p.Handle)
		if err != nil {
			return nil, errors.Wrapf(err, "linearization point of %s", p)
		}
		origin[i] = append([]float64(nil), vals...)
		manifolds[i] = factor.ManifoldFor(p.Kind)
	}
	cost, err := factor.NewPriorFactor(origin, manifolds, jac, r0)
	if err != nil {
		return nil, err
	}
	return residual.NewPriorInfo(st, cost, plan.Keep)
}

// accumulate adds Jᵀ J and Jᵀ r of one residual into h and g, restricted to the variables
// with an offset.
func accumulate(h *mat.Dense, g *mat.VecDense, info *residual.Info, params []state.ParamInfo,
	eval residual.Evaluation, offsets map[state.ParamHandle]int,
) error {
	scale := 1.0
	if loss := info.LossFunction(); loss != nil {
		scale = math.Sqrt(loss.Evaluate(eval.SquaredNorm)[1])
	}
	r := mat.NewVecDense(len(eval.Residuals), nil)
	r.ScaleVec(scale, mat.NewVecDense(len(eval.Residuals), eval.Residuals))

	blocks := make([]mat.Matrix, len(params))
	for i, p := range params {
		if _, ok := offsets[p.Handle]; !ok {
			continue
		}
		full, err := factor.JacobianMatrix(info.CostFunction(), eval.Jacobians, i)
		if err != nil {
			return errors.Wrapf(err, "%s", info)
		}
		var j mat.Dense
		j.Scale(scale, full.Slice(0, len(eval.Residuals), 0, p.TangentSize()))
		blocks[i] = &j
	}

	for i, ji := range blocks {
		if ji == nil {
			continue
		}
		oi := offsets[params[i].Handle]
		ti := params[i].TangentSize()
		var gi mat.VecDense
		gi.MulVec(ji.T(), r)
		gSeg := g.SliceVec(oi, oi+ti).(*mat.VecDense)
		gSeg.AddVec(gSeg, &gi)
		for j, jj := range blocks {
			if jj == nil {
				continue
			}
			oj := offsets[params[j].Handle]
			tj := params[j].TangentSize()
			var hij mat.Dense
			hij.Mul(ji.T(), jj)
			hSeg := h.Slice(oi, oi+ti, oj, oj+tj).(*mat.Dense)
			hSeg.Add(hSeg, &hij)
		}
	}
	return nil
}

// schurComplement eliminates the first m tangent coordinates of the system (h, g).
func schurComplement(h *mat.Dense, g *mat.VecDense, m int) (*mat.Dense, *mat.VecDense) {
	n, _ := h.Dims()
	hkk := mat.DenseCopyOf(h.Slice(m, n, m, n))
	gk := mat.VecDenseCopyOf(g.SliceVec(m, n))
	if m == 0 {
		return hkk, gk
	}
	hrrInv := pseudoInverse(h.Slice(0, m, 0, m))
	hkr := h.Slice(m, n, 0, m)

	var tmp mat.Dense
	tmp.Mul(hkr, hrrInv)
	var correction mat.Dense
	correction.Mul(&tmp, h.Slice(0, m, m, n))
	hkk.Sub(hkk, &correction)

	var gCorrection mat.VecDense
	gCorrection.MulVec(&tmp, g.SliceVec(0, m))
	gk.SubVec(gk, &gCorrection)
	return hkk, gk
}

// pseudoInverse inverts a symmetric positive semi-definite matrix on the span of its
// eigenvalues above eigenEpsilon.
func pseudoInverse(a mat.Matrix) *mat.Dense {
	vals, vecs := symEigen(a)
	n := len(vals)
	inv := mat.NewDense(n, n, nil)
	for k, v := range vals {
		if v <= eigenEpsilon {
			continue
		}
		col := vecs.ColView(k)
		var outer mat.Dense
		outer.Outer(1/v, col, col)
		inv.Add(inv, &outer)
	}
	return inv
}

// decompose factors hp = Jᵀ J and finds r0 with Jᵀ r0 = gp, discarding unobserved
// directions.
func decompose(hp *mat.Dense, gp *mat.VecDense) (*mat.Dense, []float64) {
	vals, vecs := symEigen(hp)
	n := len(vals)
	jac := mat.NewDense(n, n, nil)
	var proj mat.VecDense
	proj.MulVec(vecs.T(), gp)
	r0 := make([]float64, n)
	for k, v := range vals {
		if v <= eigenEpsilon {
			continue
		}
		s := math.Sqrt(v)
		for c := 0; c < n; c++ {
			jac.Set(k, c, s*vecs.At(c, k))
		}
		r0[k] = proj.AtVec(k) / s
	}
	return jac, r0
}

func symEigen(a mat.Matrix) ([]float64, *mat.Dense) {
	n, _ := a.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	var eig mat.EigenSym
	vals := make([]float64, n)
	vecs := mat.NewDense(n, n, nil)
	if !eig.Factorize(sym, true) {
		// an unfactorizable block carries no usable information
		return vals, vecs
	}
	eig.Values(vals)
	eig.VectorsTo(vecs)
	return vals, vecs
}
