package graph

import (
	"context"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/swarmvins/landmark"
	"go.viam.com/swarmvins/residual"
	"go.viam.com/swarmvins/state"
)

// RejectOutliers marks as outliers the landmarks whose mean reprojection residual norm
// exceeds threshold. A reprojection that cannot be evaluated, such as a point behind the
// camera, counts as an outlier. Rejected landmark ids are returned in ascending order.
func RejectOutliers(ctx context.Context, st *state.State, lm *landmark.Manager, residuals []*residual.Info,
	threshold float64,
) ([]state.LandmarkID, error) {
	reprojections := make([]*residual.Info, 0, len(residuals))
	for _, info := range residuals {
		if k := info.Kind(); k == residual.ReprojectionInvDep || k == residual.ReprojectionXYZ {
			reprojections = append(reprojections, info)
		}
	}
	results, err := EvaluateAll(ctx, st, reprojections, false)
	if err != nil {
		return nil, err
	}

	norms := map[state.LandmarkID][]float64{}
	broken := map[state.LandmarkID]bool{}
	for i, info := range reprojections {
		id, _ := info.Landmark()
		if results[i].Err != nil {
			broken[id] = true
			continue
		}
		norms[id] = append(norms[id], math.Sqrt(results[i].Evaluation.SquaredNorm))
	}

	var rejected []state.LandmarkID
	for id := range broken {
		rejected = append(rejected, id)
	}
	for id, n := range norms {
		if broken[id] {
			continue
		}
		mean, err := stats.Mean(n)
		if err != nil {
			return nil, err
		}
		if mean > threshold {
			rejected = append(rejected, id)
		}
	}
	sort.Slice(rejected, func(i, j int) bool { return rejected[i] < rejected[j] })
	for _, id := range rejected {
		if err := lm.MarkOutlier(id); err != nil && !errors.Is(err, landmark.ErrUnknownLandmark) {
			return nil, err
		}
	}
	return rejected, nil
}
