package graph

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"

	"go.viam.com/swarmvins/config"
	"go.viam.com/swarmvins/factor"
	"go.viam.com/swarmvins/landmark"
	"go.viam.com/swarmvins/logging"
	"go.viam.com/swarmvins/measurement"
	"go.viam.com/swarmvins/residual"
	"go.viam.com/swarmvins/state"
)

// reprojectionHuberDelta is the Huber threshold on reprojection residuals, which are
// already scaled to roughly pixel units.
const reprojectionHuberDelta = 1.0

var (
	// ErrWindowTooSmall is returned by CheckWindow while the window holds fewer than
	// min_solve_frames frames.
	ErrWindowTooSmall = errors.New("sliding window too small to solve")
	// ErrRemoteMeasurement is returned in single-drone mode for measurements that involve
	// another drone.
	ErrRemoteMeasurement = errors.New("measurement involves another drone")
)

// Builder turns measurements and landmark tracks into residuals over a state.
type Builder struct {
	cfg    config.Config
	st     *state.State
	lm     *landmark.Manager
	logger logging.Logger
}

// NewBuilder returns a builder for one configuration and window.
func NewBuilder(cfg config.Config, st *state.State, lm *landmark.Manager, logger logging.Logger) *Builder {
	return &Builder{cfg: cfg, st: st, lm: lm, logger: logger}
}

// CheckWindow reports whether the window is large enough for a pass to be worth solving.
func (b *Builder) CheckWindow() error {
	if n := b.st.NumFrames(); n < b.cfg.MinSolveFrames {
		return errors.Wrapf(ErrWindowTooSmall, "%d frames, need %d", n, b.cfg.MinSolveFrames)
	}
	return nil
}

// AddRelPose registers a relative-pose residual for m, in the configured pose
// representation and weighted by the configured sqrt-information scale.
func (b *Builder) AddRelPose(reg *Registry, m measurement.Measurement2Drones) (*residual.Info, error) {
	return b.addRelPose(reg, m, b.cfg.RelPoseSqrtInfoScale)
}

// AddLoop registers a loop-closure residual weighted by the loop sqrt-information scale.
func (b *Builder) AddLoop(reg *Registry, edge *measurement.LoopEdge) (*residual.Info, error) {
	if edge == nil {
		return nil, errors.New("nil loop edge")
	}
	return b.addRelPose(reg, edge, b.cfg.LoopSqrtInfoScale)
}

func (b *Builder) addRelPose(reg *Registry, m measurement.Measurement2Drones, scale float64) (*residual.Info, error) {
	frameA, frameB := m.Frames()
	droneA, droneB := m.Drones()
	if b.cfg.SingleDrone && (droneA != b.cfg.SelfID || droneB != b.cfg.SelfID) {
		return nil, errors.Wrapf(ErrRemoteMeasurement, "drones %d and %d, self is %d", droneA, droneB, b.cfg.SelfID)
	}
	sqrtInfo := measurement.Scaled(m.SqrtInformation(), scale)

	var cost factor.CostFunction
	if b.cfg.Is4DOF() {
		f, err := factor.NewRelPoseFactor4D(m.RelativePose(), measurement.Reduce4D(sqrtInfo))
		if err != nil {
			return nil, err
		}
		cost = f.CostFunction()
	} else {
		f, err := factor.NewRelPoseFactor(m.RelativePose(), sqrtInfo)
		if err != nil {
			return nil, err
		}
		cost = f
	}
	info, err := residual.NewRelPoseInfo(b.st, cost, nil, frameA, frameB, b.cfg.Is4DOF())
	if err != nil {
		return nil, err
	}
	if err := reg.Add(info); err != nil {
		return nil, err
	}
	b.logger.Debugw("added relative pose residual",
		"pass", reg.ID(), "kind", info.Kind(), "frame_a", frameA, "frame_b", frameB, "drone_a", droneA, "drone_b", droneB)
	return info, nil
}

// AddLandmarks registers a reprojection residual for every observation of every estimable
// landmark that has a state variable. Inverse-depth landmarks get one residual per
// non-anchor observation by the anchor's camera, plus a depth residual when the anchor
// measured a depth in the fusion range and depth_sqrt_inf is set; world-frame landmarks get
// one per observation. Observations by frames outside the window are skipped. Camera
// extrinsics are held constant unless estimate_extrinsic is set. It returns the number of
// residuals added.
func (b *Builder) AddLandmarks(ctx context.Context, reg *Registry) (int, error) {
	ctx, span := trace.StartSpan(ctx, "graph::AddLandmarks")
	defer span.End()

	for _, cam := range b.st.ExtrinsicCameras() {
		ext, err := state.CreateExtrinsic(b.st, cam)
		if err != nil {
			return 0, err
		}
		if err := b.st.SetConstant(ext.Handle, !b.cfg.EstimateExtrinsic); err != nil {
			return 0, err
		}
	}

	sqrtInfo := factor.ReprojectionSqrtInfo(b.cfg.FocalLength)
	loss := factor.HuberLoss{Delta: reprojectionHuberDelta}
	added, landmarks := 0, 0
	for _, id := range b.lm.Estimable() {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if !b.st.HasLandmark(id) {
			continue
		}
		lm, ok := b.lm.Landmark(id)
		if !ok {
			continue
		}
		_, kind, err := b.st.LandmarkValues(id)
		if err != nil {
			return added, err
		}
		track := lo.Filter(lm.Track, func(obs landmark.Observation, _ int) bool {
			return b.st.HasFrame(obs.FrameID)
		})

		var n int
		switch kind {
		case state.LandmarkInvDepth:
			n, err = b.addInvDepLandmark(reg, lm, track, sqrtInfo, loss)
		case state.LandmarkXYZ:
			n, err = b.addXYZLandmark(reg, lm, track, sqrtInfo, loss)
		default:
			err = errors.Errorf("landmark %d has unsupported kind %s", id, kind)
		}
		if err != nil {
			return added, err
		}
		if n > 0 {
			landmarks++
		}
		added += n
	}
	b.logger.Debugw("added landmark residuals", "pass", reg.ID(), "residuals", added, "landmarks", landmarks)
	return added, nil
}

func (b *Builder) addInvDepLandmark(reg *Registry, lm landmark.Landmark, track []landmark.Observation,
	sqrtInfo float64, loss factor.LossFunction,
) (int, error) {
	anchor := lm.Anchor()
	if !lm.Pinned() || !b.st.HasFrame(anchor.FrameID) {
		// the inverse depth is relative to a frame that left the window
		b.logger.Debugw("skipping landmark with marginalized anchor", "landmark", lm.ID, "anchor", anchor.FrameID)
		return 0, nil
	}
	added := 0
	if b.cfg.DepthSqrtInf > 0 && anchor.HasDepth &&
		anchor.Depth >= b.cfg.MinDepthToFuse && anchor.Depth <= b.cfg.MaxDepthToFuse {
		cost, err := factor.NewDepthFactor(anchor.Depth, b.cfg.DepthSqrtInf)
		if err != nil {
			return added, err
		}
		info, err := residual.NewDepthInfo(b.st, cost, nil, anchor.FrameID, lm.ID)
		if err != nil {
			return added, err
		}
		if err := reg.Add(info); err != nil {
			return added, err
		}
		added++
	}
	for _, obs := range track {
		if obs.FrameID == anchor.FrameID || obs.CameraIndex != anchor.CameraIndex {
			continue
		}
		cost, err := factor.NewProjectionTwoFrameOneCamFactor(anchor.Point, obs.Point, sqrtInfo)
		if err != nil {
			return added, err
		}
		info, err := residual.NewReprojectionInvDepInfo(b.st, cost, loss, anchor.FrameID, obs.FrameID, anchor.CameraIndex, lm.ID)
		if err != nil {
			return added, err
		}
		if err := reg.Add(info); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func (b *Builder) addXYZLandmark(reg *Registry, lm landmark.Landmark, track []landmark.Observation,
	sqrtInfo float64, loss factor.LossFunction,
) (int, error) {
	added := 0
	for _, obs := range track {
		cost, err := factor.NewProjectionOneFrameXYZFactor(obs.Point, sqrtInfo)
		if err != nil {
			return added, err
		}
		info, err := residual.NewReprojectionXYZInfo(b.st, cost, loss, obs.FrameID, obs.CameraIndex, lm.ID)
		if err != nil {
			return added, err
		}
		if err := reg.Add(info); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// RejectOutliers applies the configured outlier policy to the reprojection residuals of a
// pass. Rejection is skipped while fewer landmarks than PerformOutlierRejectionNum are
// estimable.
func (b *Builder) RejectOutliers(ctx context.Context, residuals []*residual.Info) ([]state.LandmarkID, error) {
	if n := len(b.lm.Estimable()); n < b.cfg.PerformOutlierRejectionNum {
		b.logger.Debugw("too few landmarks for outlier rejection", "landmarks", n)
		return nil, nil
	}
	rejected, err := RejectOutliers(ctx, b.st, b.lm, residuals, b.cfg.LandmarkOutlierThreshold)
	if err != nil {
		return nil, err
	}
	if len(rejected) > 0 {
		b.logger.Infow("rejected outlier landmarks", "count", len(rejected))
	}
	return rejected, nil
}
