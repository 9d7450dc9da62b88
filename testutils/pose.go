package testutils

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/swarmvins/spatialmath"
	"go.viam.com/swarmvins/state"
)

// RandomQuat returns a uniformly distributed unit quaternion with a non-negative scalar part.
func RandomQuat(rng *rand.Rand) quat.Number {
	u1, u2, u3 := rng.Float64(), rng.Float64(), rng.Float64()
	q := quat.Number{
		Imag: math.Sqrt(1-u1) * math.Sin(2*math.Pi*u2),
		Jmag: math.Sqrt(1-u1) * math.Cos(2*math.Pi*u2),
		Kmag: math.Sqrt(u1) * math.Sin(2*math.Pi*u3),
		Real: math.Sqrt(u1) * math.Cos(2*math.Pi*u3),
	}
	return spatialmath.Positify(q)
}

// RandomPose returns a pose with a random orientation and a translation within ±span on
// each axis.
func RandomPose(rng *rand.Rand, span float64) spatialmath.Pose {
	t := r3.Vector{
		X: (2*rng.Float64() - 1) * span,
		Y: (2*rng.Float64() - 1) * span,
		Z: (2*rng.Float64() - 1) * span,
	}
	return spatialmath.NewPose(t, RandomQuat(rng))
}

// RandomFlatPose returns a pose with zero roll and pitch.
func RandomFlatPose(rng *rand.Rand, span float64) spatialmath.Pose {
	p := RandomPose(rng, span)
	return spatialmath.NewPose(p.Position, spatialmath.YawToQuat((2*rng.Float64()-1)*math.Pi))
}

// NewWindow builds a state holding frames 1..n at random poses with an identity
// extrinsic for camera 0.
func NewWindow(tb testing.TB, rng *rand.Rand, n int) *state.State {
	tb.Helper()
	st := state.New()
	for i := 1; i <= n; i++ {
		test.That(tb, st.AddFrame(state.FrameID(i), RandomPose(rng, 5)), test.ShouldBeNil)
		test.That(tb, st.SetFrameStamp(state.FrameID(i), float64(i)*0.1, 0), test.ShouldBeNil)
	}
	st.SetExtrinsic(0, spatialmath.NewZeroPose())
	return st
}
