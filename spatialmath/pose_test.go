package spatialmath

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func randomPose(rng *rand.Rand) Pose {
	return NewPose(
		r3.Vector{X: rng.NormFloat64() * 5, Y: rng.NormFloat64() * 5, Z: rng.NormFloat64() * 5},
		randomQuat(rng),
	)
}

func TestPoseArrayRoundTrip(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, YPRToQuat(0.1, 0.2, 0.3))
	arr := p.ToArray(nil)
	test.That(t, len(arr), test.ShouldEqual, PoseSize)
	test.That(t, arr[6], test.ShouldEqual, p.Orientation.Real)

	p2, err := NewPoseFromArray(arr)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p2, test.ShouldResemble, p)
	test.That(t, PoseFromParams(arr), test.ShouldResemble, p)

	// a parameter block may carry trailing state
	test.That(t, PoseFromParams(append(arr, 42)), test.ShouldResemble, p)

	_, err = NewPoseFromArray(arr[:3])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPoseComposeInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 50; i++ {
		a := randomPose(rng)
		b := randomPose(rng)

		test.That(t, PoseAlmostEqual(Compose(a, a.Inverse()), NewZeroPose(), 1e-9), test.ShouldBeTrue)
		rel := PoseBetween(a, b)
		test.That(t, PoseAlmostEqual(Compose(a, rel), b, 1e-9), test.ShouldBeTrue)

		pt := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		back := a.Inverse().Transform(a.Transform(pt))
		test.That(t, back.Sub(pt).Norm(), test.ShouldBeLessThan, 1e-9)
	}
}

func TestPose4D(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: -1, Z: 2}, YPRToQuat(2.0, 0.1, -0.2))
	p4 := p.ToPose4D()
	test.That(t, p4.Yaw, test.ShouldAlmostEqual, 2.0, 1e-9)
	test.That(t, p4.Position, test.ShouldResemble, p.Position)

	lifted := NewPoseFromPose4D(p4)
	ypr := QuatToYPR(lifted.Orientation)
	test.That(t, ypr.X, test.ShouldAlmostEqual, 2.0, 1e-9)
	test.That(t, ypr.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, ypr.Z, test.ShouldAlmostEqual, 0, 1e-9)

	arr := p4.ToArray(nil)
	back, err := NewPose4DFromArray(arr)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, p4)

	a := Pose4D{Position: r3.Vector{X: 1}, Yaw: math.Pi - 0.1}
	b := Pose4D{Position: r3.Vector{X: 1, Y: 2}, Yaw: -math.Pi + 0.1}
	rel := Pose4DBetween(a, b)
	test.That(t, rel.Yaw, test.ShouldAlmostEqual, 0.2, 1e-9)
	test.That(t, rel.Position.Norm(), test.ShouldAlmostEqual, 2, 1e-9)
}
