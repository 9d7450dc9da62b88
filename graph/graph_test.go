package graph

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swarmvins/config"
	"go.viam.com/swarmvins/landmark"
	"go.viam.com/swarmvins/logging"
	"go.viam.com/swarmvins/measurement"
	"go.viam.com/swarmvins/residual"
	"go.viam.com/swarmvins/spatialmath"
	"go.viam.com/swarmvins/state"
)

type worldPoint struct {
	id    state.LandmarkID
	point r3.Vector
}

var testPoints = []worldPoint{
	{10, r3.Vector{X: 0.5, Y: 0.3, Z: 4.5}},
	{11, r3.Vector{X: -0.4, Y: 0.2, Z: 4}},
}

// testConfig leaves depth residuals off and extrinsics free; the tests that need either
// turn them on or off explicitly.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.LandmarkEstimateTracks = 2
	cfg.MinMeasurementsPerKeyframe = 0
	cfg.DepthSqrtInf = 0
	cfg.EstimateExtrinsic = true
	return cfg
}

// flatWindow holds three level frames looking along +z.
func flatWindow(t *testing.T) *state.State {
	t.Helper()
	st := state.New()
	poses := []spatialmath.Pose{
		spatialmath.NewPose(r3.Vector{}, spatialmath.YawToQuat(0)),
		spatialmath.NewPose(r3.Vector{X: 0.2}, spatialmath.YawToQuat(0.05)),
		spatialmath.NewPose(r3.Vector{X: 0.4, Y: 0.1}, spatialmath.YawToQuat(-0.1)),
	}
	for i, p := range poses {
		id := state.FrameID(i + 1)
		test.That(t, st.AddFrame(id, p), test.ShouldBeNil)
		test.That(t, st.SetFrameStamp(id, float64(id)*0.1, 0), test.ShouldBeNil)
	}
	st.SetExtrinsic(0, spatialmath.NewZeroPose())
	return st
}

func keyframe(t *testing.T, st *state.State, frame state.FrameID, points []worldPoint) landmark.Keyframe {
	t.Helper()
	pose, err := st.FramePose(frame)
	test.That(t, err, test.ShouldBeNil)
	obs := make([]landmark.Observation, 0, len(points))
	for _, wp := range points {
		pc := pose.Inverse().Transform(wp.point)
		obs = append(obs, landmark.Observation{
			LandmarkID: wp.id,
			Point:      pc.Mul(1 / pc.Z),
			Depth:      pc.Z,
			HasDepth:   true,
		})
	}
	return landmark.Keyframe{
		Timestamp: float64(frame) * 0.1,
		FrameID:   frame,
		Images:    []landmark.Image{{CameraIndex: 0, Observations: obs}},
	}
}

// observedWindow tracks testPoints in every frame and landmark 12 in frame 1 only, then
// initializes the eligible landmarks from depth.
func observedWindow(t *testing.T, cfg config.Config) (*state.State, *landmark.Manager) {
	t.Helper()
	st := flatWindow(t)
	lm := landmark.NewManager(cfg, logging.NewTestLogger(t))
	lone := worldPoint{12, r3.Vector{X: 0.1, Y: -0.2, Z: 3}}
	test.That(t, lm.Observe(keyframe(t, st, 1, append([]worldPoint{lone}, testPoints...))), test.ShouldBeNil)
	test.That(t, lm.Observe(keyframe(t, st, 2, testPoints)), test.ShouldBeNil)
	test.That(t, lm.Observe(keyframe(t, st, 3, testPoints)), test.ShouldBeNil)
	n, err := lm.InitializeFromDepth(st)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 2)
	return st, lm
}

func identity6() *mat.Dense {
	m := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// offsetEdge measures frame b one meter further along x of frame a than it is.
func offsetEdge(t *testing.T, st *state.State, a, b state.FrameID) *measurement.LoopEdge {
	t.Helper()
	pa, err := st.FramePose(a)
	test.That(t, err, test.ShouldBeNil)
	pb, err := st.FramePose(b)
	test.That(t, err, test.ShouldBeNil)
	rel := spatialmath.Compose(spatialmath.PoseBetween(pa, pb),
		spatialmath.NewPose(r3.Vector{X: 1}, spatialmath.NewZeroPose().Orientation))
	edge, err := measurement.NewLoopEdge(0, a, 1, b, rel, identity6())
	test.That(t, err, test.ShouldBeNil)
	return edge
}

func TestRegistry(t *testing.T) {
	st := flatWindow(t)
	cfg := testConfig()
	b := NewBuilder(cfg, st, landmark.NewManager(cfg, logging.NewTestLogger(t)), logging.NewTestLogger(t))

	reg := NewRegistry()
	test.That(t, reg.ID(), test.ShouldNotEqual, uuid.Nil)
	test.That(t, NewRegistry().ID(), test.ShouldNotEqual, reg.ID())
	test.That(t, reg.Add(nil), test.ShouldNotBeNil)

	info, err := b.AddRelPose(reg, offsetEdge(t, st, 1, 2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reg.Len(), test.ShouldEqual, 1)
	got := reg.Residuals()
	test.That(t, got[0], test.ShouldEqual, info)
	got[0] = nil
	test.That(t, reg.Residuals()[0], test.ShouldEqual, info)

	reg.Release()
	reg.Release()
	test.That(t, reg.Len(), test.ShouldEqual, 0)
	err = reg.Add(info)
	test.That(t, errors.Is(err, ErrReleased), test.ShouldBeTrue)
	_, err = b.AddLoop(reg, offsetEdge(t, st, 2, 3))
	test.That(t, errors.Is(err, ErrReleased), test.ShouldBeTrue)
}

func TestBuilderRelPose(t *testing.T) {
	for _, mode := range []config.PoseMode{config.PoseMode6DOF, config.PoseMode4DOF} {
		t.Run(string(mode), func(t *testing.T) {
			st := flatWindow(t)
			cfg := testConfig()
			cfg.PoseMode = mode
			cfg.RelPoseSqrtInfoScale = 2
			cfg.LoopSqrtInfoScale = 3
			b := NewBuilder(cfg, st, landmark.NewManager(cfg, logging.NewTestLogger(t)), logging.NewTestLogger(t))
			reg := NewRegistry()

			rel, err := b.AddRelPose(reg, offsetEdge(t, st, 1, 2))
			test.That(t, err, test.ShouldBeNil)
			loop, err := b.AddLoop(reg, offsetEdge(t, st, 3, 1))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, reg.Len(), test.ShouldEqual, 2)

			wantKind, wantParam := residual.RelPose6D, state.Pose6DOF
			if mode == config.PoseMode4DOF {
				wantKind, wantParam = residual.RelPose4D, state.Pose4DOF
			}
			for _, info := range []*residual.Info{rel, loop} {
				test.That(t, info.Kind(), test.ShouldEqual, wantKind)
				params, err := info.ParamsList(st)
				test.That(t, err, test.ShouldBeNil)
				test.That(t, params[0].Kind, test.ShouldEqual, wantParam)
				test.That(t, params[1].Kind, test.ShouldEqual, wantParam)
			}

			eval, err := rel.Evaluate(st, true)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, eval.SquaredNorm, test.ShouldAlmostEqual, 4, 1e-9)
			eval, err = loop.Evaluate(st, false)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, eval.SquaredNorm, test.ShouldAlmostEqual, 9, 1e-9)
			test.That(t, loop.Frames(), test.ShouldResemble, []state.FrameID{3, 1})

			_, err = b.AddLoop(reg, nil)
			test.That(t, err, test.ShouldNotBeNil)
			_, err = b.AddRelPose(reg, offsetEdge(t, flatWindowWithFrame(t, 7), 1, 7))
			test.That(t, errors.Is(err, state.ErrFrameNotFound), test.ShouldBeTrue)
		})
	}
}

// flatWindowWithFrame is flatWindow plus an extra frame, used to build measurements that
// reference frames another window does not hold.
func flatWindowWithFrame(t *testing.T, id state.FrameID) *state.State {
	t.Helper()
	st := flatWindow(t)
	test.That(t, st.AddFrame(id, spatialmath.NewZeroPose()), test.ShouldBeNil)
	return st
}

func TestBuilderAddLandmarks(t *testing.T) {
	t.Run("inverse depth", func(t *testing.T) {
		cfg := testConfig()
		st, lm := observedWindow(t, cfg)
		test.That(t, st.HasLandmark(12), test.ShouldBeFalse)
		reg := NewRegistry()
		n, err := NewBuilder(cfg, st, lm, logging.NewTestLogger(t)).AddLandmarks(context.Background(), reg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, n, test.ShouldEqual, 4)
		for _, info := range reg.Residuals() {
			test.That(t, info.Kind(), test.ShouldEqual, residual.ReprojectionInvDep)
			test.That(t, info.Frames()[0], test.ShouldEqual, state.FrameID(1))
			eval, err := info.Evaluate(st, true)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, eval.SquaredNorm, test.ShouldAlmostEqual, 0, 1e-9)
		}
	})

	t.Run("xyz", func(t *testing.T) {
		cfg := testConfig()
		cfg.LandmarkParam = config.LandmarkXYZ
		st, lm := observedWindow(t, cfg)
		reg := NewRegistry()
		n, err := NewBuilder(cfg, st, lm, logging.NewTestLogger(t)).AddLandmarks(context.Background(), reg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, n, test.ShouldEqual, 6)
		for _, info := range reg.Residuals() {
			test.That(t, info.Kind(), test.ShouldEqual, residual.ReprojectionXYZ)
			eval, err := info.Evaluate(st, false)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, eval.SquaredNorm, test.ShouldAlmostEqual, 0, 1e-9)
		}
	})

	t.Run("outliers and canceled context", func(t *testing.T) {
		cfg := testConfig()
		st, lm := observedWindow(t, cfg)
		test.That(t, lm.MarkOutlier(10), test.ShouldBeNil)
		b := NewBuilder(cfg, st, lm, logging.NewTestLogger(t))
		reg := NewRegistry()
		n, err := b.AddLandmarks(context.Background(), reg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, n, test.ShouldEqual, 2)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = b.AddLandmarks(ctx, NewRegistry())
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	})
}

func kindsAndIDs(params []state.ParamInfo) ([]state.ParamKind, []int64) {
	kinds := make([]state.ParamKind, len(params))
	ids := make([]int64, len(params))
	for i, p := range params {
		kinds[i], ids[i] = p.Kind, p.ID
	}
	return kinds, ids
}

func buildPass(t *testing.T) (*state.State, *landmark.Manager, *Builder, *Registry) {
	t.Helper()
	cfg := testConfig()
	st, lm := observedWindow(t, cfg)
	b := NewBuilder(cfg, st, lm, logging.NewTestLogger(t))
	reg := NewRegistry()
	_, err := b.AddRelPose(reg, offsetEdge(t, st, 1, 2))
	test.That(t, err, test.ShouldBeNil)
	_, err = b.AddRelPose(reg, offsetEdge(t, st, 2, 3))
	test.That(t, err, test.ShouldBeNil)
	_, err = b.AddLandmarks(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reg.Len(), test.ShouldEqual, 6)
	return st, lm, b, reg
}

func TestPlanMarginalization(t *testing.T) {
	st, _, _, reg := buildPass(t)
	ctx := context.Background()

	plan, err := PlanMarginalization(ctx, st, reg.Residuals(), state.NewFrameSet(1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plan.Frames, test.ShouldResemble, []state.FrameID{1})
	test.That(t, len(plan.Residuals), test.ShouldEqual, 5)
	kinds, ids := kindsAndIDs(plan.Remove)
	test.That(t, kinds, test.ShouldResemble,
		[]state.ParamKind{state.Pose6DOF, state.LandmarkInvDepth, state.LandmarkInvDepth})
	test.That(t, ids, test.ShouldResemble, []int64{1, 10, 11})
	kinds, ids = kindsAndIDs(plan.Keep)
	test.That(t, kinds, test.ShouldResemble, []state.ParamKind{state.Pose6DOF, state.Extrinsic, state.Pose6DOF})
	test.That(t, ids, test.ShouldResemble, []int64{2, 0, 3})

	plan, err = PlanMarginalization(ctx, st, reg.Residuals(), state.NewFrameSet(3))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(plan.Residuals), test.ShouldEqual, 3)
	kinds, ids = kindsAndIDs(plan.Remove)
	test.That(t, kinds, test.ShouldResemble, []state.ParamKind{state.Pose6DOF})
	test.That(t, ids, test.ShouldResemble, []int64{3})
	kinds, _ = kindsAndIDs(plan.Keep)
	test.That(t, kinds, test.ShouldResemble,
		[]state.ParamKind{state.Pose6DOF, state.Pose6DOF, state.Extrinsic, state.LandmarkInvDepth, state.LandmarkInvDepth})

	_, err = PlanMarginalization(ctx, st, reg.Residuals(), state.NewFrameSet())
	test.That(t, err, test.ShouldNotBeNil)
	_, err = PlanMarginalization(ctx, st, reg.Residuals(), state.NewFrameSet(9))
	test.That(t, errors.Is(err, state.ErrFrameNotFound), test.ShouldBeTrue)

	test.That(t, st.RemoveFrame(2), test.ShouldBeNil)
	_, err = PlanMarginalization(ctx, st, reg.Residuals(), state.NewFrameSet(1))
	test.That(t, errors.Is(err, state.ErrFrameNotFound), test.ShouldBeTrue)
}

func TestRejectOutliers(t *testing.T) {
	st, lm, _, reg := buildPass(t)

	rejected, err := RejectOutliers(context.Background(), st, lm, reg.Residuals(), 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rejected, test.ShouldBeEmpty)

	vals, _, err := st.LandmarkValues(11)
	test.That(t, err, test.ShouldBeNil)
	vals[0] = 1

	rejected, err = RejectOutliers(context.Background(), st, lm, reg.Residuals(), 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rejected, test.ShouldResemble, []state.LandmarkID{11})
	got, ok := lm.Landmark(11)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got.Flag, test.ShouldEqual, landmark.FlagOutlier)
	test.That(t, got.Eligible(), test.ShouldBeTrue)
	test.That(t, lm.Estimable(), test.ShouldResemble, []state.LandmarkID{10})
}

func TestBuilderRejectOutliersThreshold(t *testing.T) {
	st, lm, b, reg := buildPass(t)
	vals, _, err := st.LandmarkValues(11)
	test.That(t, err, test.ShouldBeNil)
	vals[0] = 1

	// the default policy needs more landmarks than the window holds
	rejected, err := b.RejectOutliers(context.Background(), reg.Residuals())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rejected, test.ShouldBeEmpty)
	test.That(t, lm.Estimable(), test.ShouldHaveLength, 2)

	b.cfg.PerformOutlierRejectionNum = 0
	rejected, err = b.RejectOutliers(context.Background(), reg.Residuals())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rejected, test.ShouldResemble, []state.LandmarkID{11})
}

func TestEvaluateAll(t *testing.T) {
	st, _, _, reg := buildPass(t)
	residuals := reg.Residuals()

	results, err := EvaluateAll(context.Background(), st, residuals, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, results, test.ShouldHaveLength, len(residuals))
	for i, info := range residuals {
		test.That(t, results[i].Err, test.ShouldBeNil)
		want, err := info.Evaluate(st, false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, results[i].Evaluation.SquaredNorm, test.ShouldAlmostEqual, want.SquaredNorm, 1e-12)
		test.That(t, results[i].Evaluation.Jacobians, test.ShouldHaveLength, len(info.CostFunction().ParameterBlockSizes()))
	}
	// the two relative-pose residuals carry the 1m offset
	test.That(t, results[0].Evaluation.SquaredNorm, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, results[1].Evaluation.SquaredNorm, test.ShouldAlmostEqual, 1, 1e-9)

	// a point pushed behind the second camera cannot be evaluated
	vals, _, err := st.LandmarkValues(10)
	test.That(t, err, test.ShouldBeNil)
	vals[0] = -1
	results, err = EvaluateAll(context.Background(), st, residuals, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, results[2].Err, test.ShouldNotBeNil)
	test.That(t, results[4].Err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = EvaluateAll(ctx, st, residuals, false)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)

	test.That(t, st.RemoveFrame(3), test.ShouldBeNil)
	_, err = EvaluateAll(context.Background(), st, residuals, false)
	test.That(t, errors.Is(err, state.ErrFrameNotFound), test.ShouldBeTrue)
}

func TestBuilderSkipsLandmarkUntilReanchored(t *testing.T) {
	for _, reanchor := range []bool{false, true} {
		name := "stale anchor"
		if reanchor {
			name = "re-anchored"
		}
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			st, lm := observedWindow(t, cfg)
			if reanchor {
				moved, err := lm.Reanchor(st, 1)
				test.That(t, err, test.ShouldBeNil)
				test.That(t, moved, test.ShouldResemble, []state.LandmarkID{10, 11})
			}
			test.That(t, st.RemoveFrame(1), test.ShouldBeNil)
			lm.RemoveFrame(1)

			reg := NewRegistry()
			n, err := NewBuilder(cfg, st, lm, logging.NewTestLogger(t)).AddLandmarks(context.Background(), reg)
			test.That(t, err, test.ShouldBeNil)
			if !reanchor {
				test.That(t, n, test.ShouldEqual, 0)
				return
			}
			test.That(t, n, test.ShouldEqual, 2)
			for _, info := range reg.Residuals() {
				test.That(t, info.Frames(), test.ShouldResemble, []state.FrameID{2, 3})
				eval, err := info.Evaluate(st, false)
				test.That(t, err, test.ShouldBeNil)
				test.That(t, eval.SquaredNorm, test.ShouldAlmostEqual, 0, 1e-9)
			}
		})
	}
}

func TestBuilderDepthResiduals(t *testing.T) {
	cfg := testConfig()
	cfg.DepthSqrtInf = 20
	st, lm := observedWindow(t, cfg)
	reg := NewRegistry()
	n, err := NewBuilder(cfg, st, lm, logging.NewTestLogger(t)).AddLandmarks(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 6)

	var depths []*residual.Info
	for _, info := range reg.Residuals() {
		if info.Kind() == residual.Depth {
			depths = append(depths, info)
		}
	}
	test.That(t, depths, test.ShouldHaveLength, 2)
	for _, info := range depths {
		test.That(t, info.Frames(), test.ShouldResemble, []state.FrameID{1})
		eval, err := info.Evaluate(st, false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, eval.SquaredNorm, test.ShouldAlmostEqual, 0, 1e-12)
	}

	plan, err := PlanMarginalization(context.Background(), st, reg.Residuals(), state.NewFrameSet(1))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plan.Residuals, test.ShouldHaveLength, 6)

	// depth residuals are not reprojections and never count toward outlier rejection
	rejected, err := RejectOutliers(context.Background(), st, lm, depths, 1e-9)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rejected, test.ShouldBeEmpty)
}

func TestPlanMarginalizationSkipsConstantExtrinsic(t *testing.T) {
	cfg := testConfig()
	cfg.EstimateExtrinsic = false
	st, lm := observedWindow(t, cfg)
	reg := NewRegistry()
	_, err := NewBuilder(cfg, st, lm, logging.NewTestLogger(t)).AddLandmarks(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)
	ext, err := state.CreateExtrinsic(st, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, st.IsConstant(ext.Handle), test.ShouldBeTrue)

	plan, err := PlanMarginalization(context.Background(), st, reg.Residuals(), state.NewFrameSet(1))
	test.That(t, err, test.ShouldBeNil)
	kinds, ids := kindsAndIDs(plan.Remove)
	test.That(t, kinds, test.ShouldResemble,
		[]state.ParamKind{state.Pose6DOF, state.LandmarkInvDepth, state.LandmarkInvDepth})
	test.That(t, ids, test.ShouldResemble, []int64{1, 10, 11})
	kinds, ids = kindsAndIDs(plan.Keep)
	test.That(t, kinds, test.ShouldResemble, []state.ParamKind{state.Pose6DOF, state.Pose6DOF})
	test.That(t, ids, test.ShouldResemble, []int64{2, 3})
}

func TestBuilderWindowAndDroneChecks(t *testing.T) {
	st := flatWindow(t)
	cfg := testConfig()
	cfg.MinSolveFrames = 4
	b := NewBuilder(cfg, st, landmark.NewManager(cfg, logging.NewTestLogger(t)), logging.NewTestLogger(t))
	test.That(t, errors.Is(b.CheckWindow(), ErrWindowTooSmall), test.ShouldBeTrue)
	b.cfg.MinSolveFrames = 3
	test.That(t, b.CheckWindow(), test.ShouldBeNil)

	b.cfg.SingleDrone = true
	reg := NewRegistry()
	// offsetEdge measures from drone 0 to drone 1
	_, err := b.AddRelPose(reg, offsetEdge(t, st, 1, 2))
	test.That(t, errors.Is(err, ErrRemoteMeasurement), test.ShouldBeTrue)
	test.That(t, reg.Len(), test.ShouldEqual, 0)

	pa, err := st.FramePose(1)
	test.That(t, err, test.ShouldBeNil)
	pb, err := st.FramePose(2)
	test.That(t, err, test.ShouldBeNil)
	own, err := measurement.NewLoopEdge(0, 1, 0, 2, spatialmath.PoseBetween(pa, pb), identity6())
	test.That(t, err, test.ShouldBeNil)
	_, err = b.AddRelPose(reg, own)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reg.Len(), test.ShouldEqual, 1)
}

func shiftFrame(t *testing.T, st *state.State, id state.FrameID, d r3.Vector) {
	t.Helper()
	pose, err := st.FramePose(id)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, st.SetFramePose(id, spatialmath.NewPose(pose.Position.Add(d), pose.Orientation)), test.ShouldBeNil)
}

func TestMarginalize(t *testing.T) {
	ctx := context.Background()
	relPoses := func(t *testing.T, edges ...[2]state.FrameID) (*state.State, *Registry) {
		t.Helper()
		st := flatWindow(t)
		cfg := testConfig()
		b := NewBuilder(cfg, st, landmark.NewManager(cfg, logging.NewTestLogger(t)), logging.NewTestLogger(t))
		reg := NewRegistry()
		for _, e := range edges {
			_, err := b.AddRelPose(reg, offsetEdge(t, st, e[0], e[1]))
			test.That(t, err, test.ShouldBeNil)
		}
		return st, reg
	}

	t.Run("only neighbor leaves no information", func(t *testing.T) {
		st, reg := relPoses(t, [2]state.FrameID{1, 2})
		plan, err := PlanMarginalization(ctx, st, reg.Residuals(), state.NewFrameSet(1))
		test.That(t, err, test.ShouldBeNil)
		prior, err := Marginalize(ctx, st, plan)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, prior.Kind(), test.ShouldEqual, residual.Prior)
		test.That(t, prior.Frames(), test.ShouldResemble, []state.FrameID{2})
		eval, err := prior.Evaluate(st, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, eval.SquaredNorm, test.ShouldAlmostEqual, 0, 1e-12)
		for _, v := range eval.Jacobians[0] {
			test.That(t, math.Abs(v), test.ShouldBeLessThan, 1e-6)
		}
	})

	t.Run("shared neighbor constrains the rest", func(t *testing.T) {
		st, reg := relPoses(t, [2]state.FrameID{1, 2}, [2]state.FrameID{1, 3})
		plan, err := PlanMarginalization(ctx, st, reg.Residuals(), state.NewFrameSet(1))
		test.That(t, err, test.ShouldBeNil)
		prior, err := Marginalize(ctx, st, plan)
		test.That(t, err, test.ShouldBeNil)
		params, err := prior.ParamsList(st)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params, test.ShouldResemble, plan.Keep)
		test.That(t, prior.CostFunction().NumResiduals(), test.ShouldEqual, 12)
		base, err := prior.Evaluate(st, false)
		test.That(t, err, test.ShouldBeNil)

		// moving both remaining frames together is unobservable once frame 1 is gone
		d := r3.Vector{X: 0.3, Y: -0.2, Z: 0.1}
		shiftFrame(t, st, 2, d)
		shiftFrame(t, st, 3, d)
		moved, err := prior.Evaluate(st, false)
		test.That(t, err, test.ShouldBeNil)
		for i := range base.Residuals {
			test.That(t, moved.Residuals[i], test.ShouldAlmostEqual, base.Residuals[i], 1e-6)
		}

		// moving them apart is not
		shiftFrame(t, st, 3, d)
		apart, err := prior.Evaluate(st, false)
		test.That(t, err, test.ShouldBeNil)
		diff := 0.0
		for i := range base.Residuals {
			diff += (apart.Residuals[i] - base.Residuals[i]) * (apart.Residuals[i] - base.Residuals[i])
		}
		test.That(t, diff, test.ShouldBeGreaterThan, 1e-3)
	})

	t.Run("nothing kept", func(t *testing.T) {
		st, reg := relPoses(t, [2]state.FrameID{1, 2})
		plan, err := PlanMarginalization(ctx, st, reg.Residuals(), state.NewFrameSet(1, 2))
		test.That(t, err, test.ShouldBeNil)
		prior, err := Marginalize(ctx, st, plan)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, prior, test.ShouldBeNil)
	})

	t.Run("full pass", func(t *testing.T) {
		st, _, _, reg := buildPass(t)
		plan, err := PlanMarginalization(ctx, st, reg.Residuals(), state.NewFrameSet(1))
		test.That(t, err, test.ShouldBeNil)
		prior, err := Marginalize(ctx, st, plan)
		test.That(t, err, test.ShouldBeNil)
		params, err := prior.ParamsList(st)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params, test.ShouldResemble, plan.Keep)
		test.That(t, prior.CostFunction().NumResiduals(), test.ShouldEqual, 18)
		_, err = prior.Evaluate(st, true)
		test.That(t, err, test.ShouldBeNil)
	})
}
