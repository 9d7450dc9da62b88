package main

import (
	"io"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
	"gopkg.in/yaml.v3"

	"go.viam.com/swarmvins/landmark"
	"go.viam.com/swarmvins/measurement"
	"go.viam.com/swarmvins/spatialmath"
	"go.viam.com/swarmvins/state"
)

// scenario is a recorded window: keyframes with their pose estimates and feature
// observations, plus the relative-pose measurements between them.
type scenario struct {
	Extrinsics []extrinsicEntry `yaml:"extrinsics"`
	Frames     []frameEntry     `yaml:"frames"`
	Edges      []edgeEntry      `yaml:"edges"`
}

type poseEntry struct {
	Position    []float64 `yaml:"position"`
	Orientation []float64 `yaml:"orientation"` // [qx qy qz qw]; identity when empty
}

type extrinsicEntry struct {
	Camera    int `yaml:"camera"`
	poseEntry `yaml:",inline"`
}

type observationEntry struct {
	Landmark int64     `yaml:"landmark"`
	Camera   int       `yaml:"camera"`
	Point    []float64 `yaml:"point"` // normalized image plane [x y]
	Depth    float64   `yaml:"depth"`
}

type frameEntry struct {
	ID           int64              `yaml:"id"`
	Drone        int                `yaml:"drone"`
	Stamp        float64            `yaml:"stamp"`
	Observations []observationEntry `yaml:"observations"`
	poseEntry    `yaml:",inline"`
}

type edgeEntry struct {
	FrameA int64   `yaml:"frame_a"`
	DroneA int     `yaml:"drone_a"`
	FrameB int64   `yaml:"frame_b"`
	DroneB int     `yaml:"drone_b"`
	PosStd float64 `yaml:"pos_std"`
	RotStd float64 `yaml:"rot_std"`
	Loop   bool    `yaml:"loop"`
	// the pose of frame_b in frame_a
	poseEntry `yaml:",inline"`
}

func readScenario(path string) (*scenario, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening scenario %q", path)
	}
	defer func() {
		_ = f.Close()
	}()
	return parseScenario(f)
}

func parseScenario(r io.Reader) (*scenario, error) {
	var sc scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, errors.Wrap(err, "decoding scenario")
	}
	if len(sc.Frames) == 0 {
		return nil, errors.New("scenario has no frames")
	}
	return &sc, nil
}

func (p poseEntry) pose() (spatialmath.Pose, error) {
	var t r3.Vector
	switch len(p.Position) {
	case 0:
	case 3:
		t = r3.Vector{X: p.Position[0], Y: p.Position[1], Z: p.Position[2]}
	default:
		return spatialmath.Pose{}, errors.Errorf("position needs 3 values, got %d", len(p.Position))
	}
	q := quat.Number{Real: 1}
	switch len(p.Orientation) {
	case 0:
	case 4:
		q = quat.Number{Imag: p.Orientation[0], Jmag: p.Orientation[1], Kmag: p.Orientation[2], Real: p.Orientation[3]}
		if quat.Abs(q) == 0 {
			return spatialmath.Pose{}, errors.New("orientation is the zero quaternion")
		}
	default:
		return spatialmath.Pose{}, errors.Errorf("orientation needs 4 values, got %d", len(p.Orientation))
	}
	return spatialmath.NewPose(t, q), nil
}

func (f frameEntry) keyframe() (landmark.Keyframe, error) {
	byCamera := map[int][]landmark.Observation{}
	var cameras []int
	for _, o := range f.Observations {
		if len(o.Point) != 2 {
			return landmark.Keyframe{}, errors.Errorf("frame %d landmark %d: point needs 2 values", f.ID, o.Landmark)
		}
		if _, ok := byCamera[o.Camera]; !ok {
			cameras = append(cameras, o.Camera)
		}
		byCamera[o.Camera] = append(byCamera[o.Camera], landmark.Observation{
			LandmarkID: state.LandmarkID(o.Landmark),
			Point:      r3.Vector{X: o.Point[0], Y: o.Point[1], Z: 1},
			Depth:      o.Depth,
			HasDepth:   o.Depth > 0,
		})
	}
	kf := landmark.Keyframe{Timestamp: f.Stamp, DroneID: f.Drone, FrameID: state.FrameID(f.ID)}
	for _, cam := range cameras {
		kf.Images = append(kf.Images, landmark.Image{CameraIndex: cam, Observations: byCamera[cam]})
	}
	return kf, nil
}

func (e edgeEntry) loopEdge() (*measurement.LoopEdge, error) {
	rel, err := e.pose()
	if err != nil {
		return nil, errors.Wrapf(err, "edge %d -> %d", e.FrameA, e.FrameB)
	}
	posStd, rotStd := e.PosStd, e.RotStd
	if posStd == 0 {
		posStd = 1
	}
	if rotStd == 0 {
		rotStd = 1
	}
	sqrtInfo, err := measurement.DiagonalSqrtInfo(posStd, rotStd)
	if err != nil {
		return nil, err
	}
	return measurement.NewLoopEdge(e.DroneA, state.FrameID(e.FrameA), e.DroneB, state.FrameID(e.FrameB), rel, sqrtInfo)
}
