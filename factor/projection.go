package factor

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/swarmvins/spatialmath"
)

// minProjectionDepth is the smallest camera-frame depth a reprojection is defined for.
const minProjectionDepth = 1e-6

// ReprojectionSqrtInfo is the scalar weight applied to normalized-plane reprojection errors
// for a camera of the given focal length.
func ReprojectionSqrtInfo(focalLength float64) float64 {
	return focalLength / 1.5
}

// ProjectionTwoFrameOneCamFactor is the reprojection error of an inverse-depth landmark
// anchored in frame i and observed in frame j by the same camera. Blocks are pose_i,
// pose_j, the camera extrinsic and the inverse depth.
type ProjectionTwoFrameOneCamFactor struct {
	*NumericDiffCostFunction
	ptsI, ptsJ r3.Vector
	sqrtInfo   float64
}

// NewProjectionTwoFrameOneCamFactor takes the normalized-plane observations (z == 1) in the
// anchor and target frames.
func NewProjectionTwoFrameOneCamFactor(ptsI, ptsJ r3.Vector, sqrtInfo float64) (*ProjectionTwoFrameOneCamFactor, error) {
	if sqrtInfo <= 0 {
		return nil, errors.Errorf("reprojection sqrt information must be positive, got %v", sqrtInfo)
	}
	f := &ProjectionTwoFrameOneCamFactor{ptsI: ptsI, ptsJ: ptsJ, sqrtInfo: sqrtInfo}
	cost, err := NewNumericDiffCostFunction(f.residual, 2,
		PoseManifold{}, PoseManifold{}, PoseManifold{}, EuclideanManifold{N: 1})
	if err != nil {
		return nil, err
	}
	f.NumericDiffCostFunction = cost
	return f, nil
}

func (f *ProjectionTwoFrameOneCamFactor) residual(params [][]float64, residuals []float64) bool {
	invDep := params[3][0]
	if math.Abs(invDep) < minProjectionDepth {
		return false
	}
	poseI := spatialmath.PoseFromParams(params[0])
	poseJ := spatialmath.PoseFromParams(params[1])
	ext := spatialmath.PoseFromParams(params[2])

	ptsW := poseI.Transform(ext.Transform(f.ptsI.Mul(1 / invDep)))
	ptsCamJ := ext.Inverse().Transform(poseJ.Inverse().Transform(ptsW))
	return projectionError(ptsCamJ, f.ptsJ, f.sqrtInfo, residuals)
}

// ProjectionOneFrameXYZFactor is the reprojection error of a world-frame landmark observed
// by one frame. Blocks are the frame pose, the camera extrinsic and the landmark position.
type ProjectionOneFrameXYZFactor struct {
	*NumericDiffCostFunction
	pts      r3.Vector
	sqrtInfo float64
}

// NewProjectionOneFrameXYZFactor takes the normalized-plane observation (z == 1).
func NewProjectionOneFrameXYZFactor(pts r3.Vector, sqrtInfo float64) (*ProjectionOneFrameXYZFactor, error) {
	if sqrtInfo <= 0 {
		return nil, errors.Errorf("reprojection sqrt information must be positive, got %v", sqrtInfo)
	}
	f := &ProjectionOneFrameXYZFactor{pts: pts, sqrtInfo: sqrtInfo}
	cost, err := NewNumericDiffCostFunction(f.residual, 2,
		PoseManifold{}, PoseManifold{}, EuclideanManifold{N: 3})
	if err != nil {
		return nil, err
	}
	f.NumericDiffCostFunction = cost
	return f, nil
}

func (f *ProjectionOneFrameXYZFactor) residual(params [][]float64, residuals []float64) bool {
	pose := spatialmath.PoseFromParams(params[0])
	ext := spatialmath.PoseFromParams(params[1])
	ptsW := r3.Vector{X: params[2][0], Y: params[2][1], Z: params[2][2]}
	ptsCam := ext.Inverse().Transform(pose.Inverse().Transform(ptsW))
	return projectionError(ptsCam, f.pts, f.sqrtInfo, residuals)
}

func projectionError(ptsCam, measured r3.Vector, sqrtInfo float64, residuals []float64) bool {
	if ptsCam.Z < minProjectionDepth {
		return false
	}
	residuals[0] = sqrtInfo * (ptsCam.X/ptsCam.Z - measured.X)
	residuals[1] = sqrtInfo * (ptsCam.Y/ptsCam.Z - measured.Y)
	return true
}
