// Package measurement defines the relative-pose measurements exchanged between drones that
// the factor layer turns into residuals.
package measurement

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swarmvins/spatialmath"
	"go.viam.com/swarmvins/state"
)

// Measurement2Drones is a relative pose between a frame of one drone and a frame of another
// (or the same) drone.
type Measurement2Drones interface {
	Frames() (a, b state.FrameID)
	Drones() (a, b int)
	// RelativePose is the pose of frame B expressed in frame A.
	RelativePose() spatialmath.Pose
	// SqrtInformation is the 6x6 square-root information ordered [x y z rx ry rz].
	SqrtInformation() *mat.Dense
}

// LoopEdge is a loop-closure or relative-localization measurement.
type LoopEdge struct {
	DroneA, DroneB int
	FrameA, FrameB state.FrameID
	RelPose        spatialmath.Pose
	SqrtInfo       *mat.Dense
}

// NewLoopEdge validates the square-root information and returns the edge.
func NewLoopEdge(droneA int, frameA state.FrameID, droneB int, frameB state.FrameID,
	rel spatialmath.Pose, sqrtInfo *mat.Dense,
) (*LoopEdge, error) {
	if sqrtInfo == nil {
		return nil, errors.New("loop edge needs a sqrt information matrix")
	}
	if r, c := sqrtInfo.Dims(); r != 6 || c != 6 {
		return nil, errors.Errorf("loop edge sqrt information must be 6x6, got %dx%d", r, c)
	}
	if frameA == frameB {
		return nil, errors.Errorf("loop edge connects frame %d to itself", frameA)
	}
	return &LoopEdge{
		DroneA:   droneA,
		DroneB:   droneB,
		FrameA:   frameA,
		FrameB:   frameB,
		RelPose:  rel,
		SqrtInfo: sqrtInfo,
	}, nil
}

// Frames implements Measurement2Drones.
func (e *LoopEdge) Frames() (state.FrameID, state.FrameID) { return e.FrameA, e.FrameB }

// Drones implements Measurement2Drones.
func (e *LoopEdge) Drones() (int, int) { return e.DroneA, e.DroneB }

// RelativePose implements Measurement2Drones.
func (e *LoopEdge) RelativePose() spatialmath.Pose { return e.RelPose }

// SqrtInformation implements Measurement2Drones.
func (e *LoopEdge) SqrtInformation() *mat.Dense { return e.SqrtInfo }

// SqrtInformation4D keeps the rows and columns of x, y, z and yaw.
func (e *LoopEdge) SqrtInformation4D() *mat.Dense {
	return Reduce4D(e.SqrtInfo)
}

func (e *LoopEdge) String() string {
	return fmt.Sprintf("loop %d@%d -> %d@%d %s", e.FrameA, e.DroneA, e.FrameB, e.DroneB, e.RelPose)
}

var indices4D = [4]int{0, 1, 2, 5}

// Reduce4D extracts the [x y z yaw] sub-block of a 6x6 matrix.
func Reduce4D(m mat.Matrix) *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	for i, r := range indices4D {
		for j, c := range indices4D {
			out.Set(i, j, m.At(r, c))
		}
	}
	return out
}

// DiagonalSqrtInfo builds a 6x6 square-root information from isotropic position and
// rotation standard deviations.
func DiagonalSqrtInfo(posStd, rotStd float64) (*mat.Dense, error) {
	if posStd <= 0 || rotStd <= 0 {
		return nil, errors.Errorf("standard deviations must be positive, got %v and %v", posStd, rotStd)
	}
	out := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		out.Set(i, i, 1/posStd)
		out.Set(i+3, i+3, 1/rotStd)
	}
	return out, nil
}

// SqrtInfoFromCovariance returns U with UᵀU = cov⁻¹.
func SqrtInfoFromCovariance(cov *mat.SymDense) (*mat.Dense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, errors.New("covariance is not positive definite")
	}
	var info mat.SymDense
	if err := chol.InverseTo(&info); err != nil {
		return nil, errors.Wrap(err, "inverting covariance")
	}
	var infoChol mat.Cholesky
	if ok := infoChol.Factorize(&info); !ok {
		return nil, errors.New("information is not positive definite")
	}
	var u mat.TriDense
	infoChol.UTo(&u)
	return mat.DenseCopyOf(&u), nil
}

// Scaled returns a copy of sqrtInfo multiplied by s.
func Scaled(sqrtInfo mat.Matrix, s float64) *mat.Dense {
	var out mat.Dense
	out.Scale(s, sqrtInfo)
	return &out
}
