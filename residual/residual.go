// Package residual wraps cost functions with the identities of the variables they read, so
// a solver can collect parameter blocks and a marginalization stage can find the residuals
// touching a frame that leaves the window.
package residual

import (
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/swarmvins/factor"
	"go.viam.com/swarmvins/state"
)

// Kind is the closed set of residual variants.
type Kind int

// The residual kinds.
const (
	RelPose6D Kind = iota
	RelPose4D
	ReprojectionInvDep
	ReprojectionXYZ
	IMUPreintegration
	Prior
	Depth
)

func (k Kind) String() string {
	switch k {
	case RelPose6D:
		return "rel_pose_6d"
	case RelPose4D:
		return "rel_pose_4d"
	case ReprojectionInvDep:
		return "reprojection_inv_dep"
	case ReprojectionXYZ:
		return "reprojection_xyz"
	case IMUPreintegration:
		return "imu_preintegration"
	case Prior:
		return "prior"
	case Depth:
		return "depth"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// variant is implemented by the per-kind payloads below and nothing else.
type variant interface {
	params(st *state.State) ([]state.ParamInfo, error)
}

type relPose struct {
	a, b   state.FrameID
	is4DOF bool
}

type reprojectionInvDep struct {
	anchor, target state.FrameID
	camera         int
	landmark       state.LandmarkID
}

type reprojectionXYZ struct {
	frame    state.FrameID
	camera   int
	landmark state.LandmarkID
}

type depth struct {
	anchor   state.FrameID
	landmark state.LandmarkID
}

type imuPreintegration struct {
	i, j state.FrameID
}

type prior struct {
	blocks []state.ParamInfo
}

// Info is an immutable residual together with the frames and variables it reads.
type Info struct {
	kind    Kind
	cost    factor.CostFunction
	loss    factor.LossFunction
	frames  []state.FrameID
	payload variant
}

// Kind reports the variant.
func (info *Info) Kind() Kind { return info.kind }

// CostFunction is the wrapped residual function.
func (info *Info) CostFunction() factor.CostFunction { return info.cost }

// LossFunction is the robust loss, or nil.
func (info *Info) LossFunction() factor.LossFunction { return info.loss }

// Frames returns the frames the residual was constructed with.
func (info *Info) Frames() []state.FrameID {
	return append([]state.FrameID(nil), info.frames...)
}

// Landmark returns the landmark a reprojection residual observes.
func (info *Info) Landmark() (state.LandmarkID, bool) {
	switch p := info.payload.(type) {
	case reprojectionInvDep:
		return p.landmark, true
	case reprojectionXYZ:
		return p.landmark, true
	case depth:
		return p.landmark, true
	default:
		return 0, false
	}
}

// Relevant reports whether any frame the residual constrains is in frames.
func (info *Info) Relevant(frames state.FrameSet) bool {
	return frames.Intersects(info.frames...)
}

// ParamsList returns the descriptors of the variables the residual reads, in the order its
// cost function expects them.
func (info *Info) ParamsList(st *state.State) ([]state.ParamInfo, error) {
	return info.payload.params(st)
}

func (info *Info) String() string {
	return fmt.Sprintf("%s%v", info.kind, info.frames)
}

func (p relPose) params(st *state.State) ([]state.ParamInfo, error) {
	create := state.CreateFramePose
	if p.is4DOF {
		create = state.CreateFramePose4D
	}
	a, err := create(st, p.a)
	if err != nil {
		return nil, err
	}
	b, err := create(st, p.b)
	if err != nil {
		return nil, err
	}
	return []state.ParamInfo{a, b}, nil
}

func (p reprojectionInvDep) params(st *state.State) ([]state.ParamInfo, error) {
	return collect(
		func() (state.ParamInfo, error) { return state.CreateFramePose(st, p.anchor) },
		func() (state.ParamInfo, error) { return state.CreateFramePose(st, p.target) },
		func() (state.ParamInfo, error) { return state.CreateExtrinsic(st, p.camera) },
		func() (state.ParamInfo, error) { return state.CreateLandmark(st, p.landmark) },
	)
}

func (p reprojectionXYZ) params(st *state.State) ([]state.ParamInfo, error) {
	return collect(
		func() (state.ParamInfo, error) { return state.CreateFramePose(st, p.frame) },
		func() (state.ParamInfo, error) { return state.CreateExtrinsic(st, p.camera) },
		func() (state.ParamInfo, error) { return state.CreateLandmark(st, p.landmark) },
	)
}

func (p depth) params(st *state.State) ([]state.ParamInfo, error) {
	if !st.HasFrame(p.anchor) {
		return nil, state.NewFrameNotFoundError(p.anchor)
	}
	return collect(
		func() (state.ParamInfo, error) { return state.CreateLandmark(st, p.landmark) },
	)
}

func (p imuPreintegration) params(st *state.State) ([]state.ParamInfo, error) {
	return collect(
		func() (state.ParamInfo, error) { return state.CreateFramePose(st, p.i) },
		func() (state.ParamInfo, error) { return state.CreateSpeedBias(st, p.i) },
		func() (state.ParamInfo, error) { return state.CreateFramePose(st, p.j) },
		func() (state.ParamInfo, error) { return state.CreateSpeedBias(st, p.j) },
	)
}

func (p prior) params(st *state.State) ([]state.ParamInfo, error) {
	for _, b := range p.blocks {
		if _, err := st.Values(b.Handle); err != nil {
			return nil, errors.Wrapf(err, "prior block %s", b)
		}
	}
	return append([]state.ParamInfo(nil), p.blocks...), nil
}

func collect(creators ...func() (state.ParamInfo, error)) ([]state.ParamInfo, error) {
	out := make([]state.ParamInfo, 0, len(creators))
	for _, create := range creators {
		p, err := create()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
