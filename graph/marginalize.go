package graph

import (
	"context"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/swarmvins/residual"
	"go.viam.com/swarmvins/state"
)

// MarginalizationPlan lists what a marginalization step consumes when frames leave the
// window.
type MarginalizationPlan struct {
	// Frames are the marginalized frames in ascending order.
	Frames []state.FrameID
	// Residuals are the residuals relevant to Frames, in input order.
	Residuals []*residual.Info
	// Remove are the variables eliminated: every variable of a marginalized frame, and every
	// landmark read only by relevant residuals.
	Remove []state.ParamInfo
	// Keep are the remaining free variables of the relevant residuals; the prior is built
	// over them. Variables held constant appear in neither list.
	Keep []state.ParamInfo
}

// PlanMarginalization selects the residuals relevant to frames and splits the variables
// they read into those eliminated and those the resulting prior constrains. Each variable
// appears once, in order of first use.
func PlanMarginalization(ctx context.Context, st *state.State, residuals []*residual.Info, frames state.FrameSet,
) (*MarginalizationPlan, error) {
	_, span := trace.StartSpan(ctx, "graph::PlanMarginalization")
	defer span.End()

	if len(frames) == 0 {
		return nil, errors.New("no frames to marginalize")
	}
	for _, id := range frames.Sorted() {
		if !st.HasFrame(id) {
			return nil, state.NewFrameNotFoundError(id)
		}
	}

	// landmark handles read by residuals that stay in the problem
	kept := map[state.ParamHandle]struct{}{}
	plan := &MarginalizationPlan{Frames: frames.Sorted()}
	var relevantParams [][]state.ParamInfo
	for _, info := range residuals {
		params, err := info.ParamsList(st)
		if err != nil {
			return nil, errors.Wrapf(err, "collecting parameters of %s", info)
		}
		if !info.Relevant(frames) {
			for _, p := range params {
				if isLandmark(p.Kind) {
					kept[p.Handle] = struct{}{}
				}
			}
			continue
		}
		plan.Residuals = append(plan.Residuals, info)
		relevantParams = append(relevantParams, params)
	}

	seen := map[state.ParamHandle]struct{}{}
	for _, params := range relevantParams {
		for _, p := range params {
			if _, ok := seen[p.Handle]; ok {
				continue
			}
			seen[p.Handle] = struct{}{}
			if st.IsConstant(p.Handle) {
				continue
			}
			if removes(p, frames, kept) {
				plan.Remove = append(plan.Remove, p)
			} else {
				plan.Keep = append(plan.Keep, p)
			}
		}
	}
	return plan, nil
}

func removes(p state.ParamInfo, frames state.FrameSet, kept map[state.ParamHandle]struct{}) bool {
	switch p.Kind {
	case state.Pose6DOF, state.Pose4DOF, state.SpeedBias:
		return frames.Contains(state.FrameID(p.ID))
	case state.LandmarkInvDepth, state.LandmarkXYZ:
		_, ok := kept[p.Handle]
		return !ok
	default:
		return false
	}
}

func isLandmark(kind state.ParamKind) bool {
	return kind == state.LandmarkInvDepth || kind == state.LandmarkXYZ
}
