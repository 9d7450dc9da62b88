package graph

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"

	"go.viam.com/swarmvins/residual"
	"go.viam.com/swarmvins/state"
)

// EvalResult is the outcome of evaluating one residual.
type EvalResult struct {
	Evaluation residual.Evaluation
	// Err is set when the cost function rejected the current values, e.g. a point behind
	// the camera.
	Err error
}

// EvaluateAll evaluates every residual at the current state on up to GOMAXPROCS
// goroutines. Results are in input order. A residual whose variables no longer resolve is
// a caller error and fails the whole call. st must not be modified until EvaluateAll
// returns.
func EvaluateAll(ctx context.Context, st *state.State, residuals []*residual.Info, withJacobians bool,
) ([]EvalResult, error) {
	ctx, span := trace.StartSpan(ctx, "graph::EvaluateAll")
	defer span.End()

	results := make([]EvalResult, len(residuals))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, info := range residuals {
		i, info := i, info
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := info.ParamsList(st); err != nil {
				return errors.Wrapf(err, "evaluating %s", info)
			}
			eval, err := info.Evaluate(st, withJacobians)
			results[i] = EvalResult{Evaluation: eval, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
