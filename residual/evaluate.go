package residual

import (
	"github.com/pkg/errors"

	"go.viam.com/swarmvins/factor"
	"go.viam.com/swarmvins/state"
)

// Evaluation is the result of evaluating a residual at the current state.
type Evaluation struct {
	Residuals []float64
	// Jacobians is nil unless requested; otherwise one row-major block per parameter.
	Jacobians [][]float64
	// SquaredNorm is ‖r‖².
	SquaredNorm float64
	// Cost is ρ(‖r‖²), equal to SquaredNorm without a loss.
	Cost float64
}

// Evaluate resolves the residual's variables in st and evaluates its cost function.
func (info *Info) Evaluate(st *state.State, withJacobians bool) (Evaluation, error) {
	params, err := info.ParamsList(st)
	if err != nil {
		return Evaluation{}, err
	}
	values, err := state.ResolveParams(st, params)
	if err != nil {
		return Evaluation{}, err
	}
	res, jac, err := factor.Evaluate(info.cost, values, withJacobians)
	if err != nil {
		return Evaluation{}, errors.Wrapf(err, "evaluating %s", info)
	}
	return Evaluation{
		Residuals:   res,
		Jacobians:   jac,
		SquaredNorm: factor.ApplyLoss(nil, res),
		Cost:        factor.ApplyLoss(info.loss, res),
	}, nil
}
