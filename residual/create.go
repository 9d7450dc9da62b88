package residual

import (
	"github.com/pkg/errors"

	"go.viam.com/swarmvins/factor"
	"go.viam.com/swarmvins/state"
)

// NewRelPoseInfo wraps a relative-pose cost function between frames a and b. With is4DOF
// the cost function must read [x y z yaw] blocks, otherwise full poses.
func NewRelPoseInfo(st *state.State, cost factor.CostFunction, loss factor.LossFunction,
	a, b state.FrameID, is4DOF bool,
) (*Info, error) {
	kind := RelPose6D
	if is4DOF {
		kind = RelPose4D
	}
	if a == b {
		return nil, newDuplicateFrameError(kind, int64(a))
	}
	return newInfo(st, kind, cost, loss, []state.FrameID{a, b}, relPose{a: a, b: b, is4DOF: is4DOF})
}

// NewReprojectionInvDepInfo wraps the reprojection of an inverse-depth landmark anchored in
// frame anchor into frame target through camera.
func NewReprojectionInvDepInfo(st *state.State, cost factor.CostFunction, loss factor.LossFunction,
	anchor, target state.FrameID, camera int, landmark state.LandmarkID,
) (*Info, error) {
	if anchor == target {
		return nil, newDuplicateFrameError(ReprojectionInvDep, int64(anchor))
	}
	if err := checkLandmarkKind(st, landmark, state.LandmarkInvDepth); err != nil {
		return nil, err
	}
	return newInfo(st, ReprojectionInvDep, cost, loss, []state.FrameID{anchor, target},
		reprojectionInvDep{anchor: anchor, target: target, camera: camera, landmark: landmark})
}

// NewReprojectionXYZInfo wraps the reprojection of a world-frame landmark into frame.
func NewReprojectionXYZInfo(st *state.State, cost factor.CostFunction, loss factor.LossFunction,
	frame state.FrameID, camera int, landmark state.LandmarkID,
) (*Info, error) {
	if err := checkLandmarkKind(st, landmark, state.LandmarkXYZ); err != nil {
		return nil, err
	}
	return newInfo(st, ReprojectionXYZ, cost, loss, []state.FrameID{frame},
		reprojectionXYZ{frame: frame, camera: camera, landmark: landmark})
}

// NewDepthInfo wraps the depth measured for an inverse-depth landmark at its anchor frame.
// It reads only the landmark but is relevant to the anchor, whose loss invalidates it.
func NewDepthInfo(st *state.State, cost factor.CostFunction, loss factor.LossFunction,
	anchor state.FrameID, landmark state.LandmarkID,
) (*Info, error) {
	if err := checkLandmarkKind(st, landmark, state.LandmarkInvDepth); err != nil {
		return nil, err
	}
	return newInfo(st, Depth, cost, loss, []state.FrameID{anchor}, depth{anchor: anchor, landmark: landmark})
}

// NewIMUInfo wraps an inertial preintegration cost function between consecutive frames i
// and j. Both frames must carry speed/bias variables.
func NewIMUInfo(st *state.State, cost factor.CostFunction, loss factor.LossFunction,
	i, j state.FrameID,
) (*Info, error) {
	if i == j {
		return nil, newDuplicateFrameError(IMUPreintegration, int64(i))
	}
	return newInfo(st, IMUPreintegration, cost, loss, []state.FrameID{i, j}, imuPreintegration{i: i, j: j})
}

// NewPriorInfo wraps a marginalization prior over arbitrary variables. The prior is relevant
// to every frame whose pose, 4-DOF pose or speed/bias it reads.
func NewPriorInfo(st *state.State, cost factor.CostFunction, params []state.ParamInfo) (*Info, error) {
	if len(params) == 0 {
		return nil, errors.New("prior residual needs at least one parameter block")
	}
	seen := map[state.ParamHandle]struct{}{}
	var frames []state.FrameID
	seenFrames := state.NewFrameSet()
	for _, p := range params {
		if _, ok := seen[p.Handle]; ok {
			return nil, errors.Errorf("prior reads %s twice", p)
		}
		seen[p.Handle] = struct{}{}
		switch p.Kind {
		case state.Pose6DOF, state.Pose4DOF, state.SpeedBias:
			id := state.FrameID(p.ID)
			if !st.HasFrame(id) {
				return nil, state.NewFrameNotFoundError(id)
			}
			if !seenFrames.Contains(id) {
				seenFrames.Add(id)
				frames = append(frames, id)
			}
		default:
		}
	}
	blocks := append([]state.ParamInfo(nil), params...)
	return newInfo(st, Prior, cost, nil, frames, prior{blocks: blocks})
}

func newInfo(st *state.State, kind Kind, cost factor.CostFunction, loss factor.LossFunction,
	frames []state.FrameID, payload variant,
) (*Info, error) {
	if st == nil {
		return nil, errors.New("residual needs a state")
	}
	if cost == nil {
		return nil, errors.Errorf("%s residual needs a cost function", kind)
	}
	for _, id := range frames {
		if !st.HasFrame(id) {
			return nil, errors.Wrapf(state.NewFrameNotFoundError(id), "%s residual", kind)
		}
	}
	info := &Info{kind: kind, cost: cost, loss: loss, frames: frames, payload: payload}

	params, err := info.ParamsList(st)
	if err != nil {
		return nil, errors.Wrapf(err, "%s residual", kind)
	}
	sizes := cost.ParameterBlockSizes()
	if len(sizes) != len(params) {
		return nil, errors.Wrapf(ErrBlockMismatch, "%s residual reads %d blocks, cost function takes %d",
			kind, len(params), len(sizes))
	}
	for i, p := range params {
		if sizes[i] != p.Size() {
			return nil, errors.Wrapf(ErrBlockMismatch, "%s residual block %d is %s (%d values), cost function expects %d",
				kind, i, p.Kind, p.Size(), sizes[i])
		}
	}
	return info, nil
}

func checkLandmarkKind(st *state.State, id state.LandmarkID, want state.ParamKind) error {
	if st == nil {
		return errors.New("residual needs a state")
	}
	_, kind, err := st.LandmarkValues(id)
	if err != nil {
		return err
	}
	if kind != want {
		return errors.Wrapf(ErrBlockMismatch, "landmark %d is %s, residual needs %s", id, kind, want)
	}
	return nil
}
