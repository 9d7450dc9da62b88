package factor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swarmvins/spatialmath"
	"go.viam.com/swarmvins/state"
	"go.viam.com/swarmvins/testutils"
)

func TestPriorFactor(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	pose := testutils.RandomPose(rng, 3)
	origin := [][]float64{pose.ToArray(nil), {0.5}}
	manifolds := []Manifold{PoseManifold{}, EuclideanManifold{N: 1}}

	jac := mat.NewDense(7, 7, nil)
	for i := 0; i < 7; i++ {
		jac.Set(i, i, float64(i+1))
	}
	r0 := []float64{1, 0, 0, 0, 0, 0, -1}
	f, err := NewPriorFactor(origin, manifolds, jac, r0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.ParameterBlockSizes(), test.ShouldResemble, []int{7, 1})

	res, jacobians, err := Evaluate(f, origin, true)
	test.That(t, err, test.ShouldBeNil)
	for i := range r0 {
		test.That(t, res[i], test.ShouldAlmostEqual, r0[i], 1e-12)
	}
	test.That(t, jacobians[0][0], test.ShouldEqual, 1.0)
	test.That(t, jacobians[0][6], test.ShouldEqual, 0.0)
	test.That(t, jacobians[0][1*7+1], test.ShouldEqual, 2.0)
	test.That(t, jacobians[1], test.ShouldResemble, []float64{0, 0, 0, 0, 0, 0, 7})

	// a rotation of 0.01 about the body z axis shows up in the sixth tangent coordinate
	moved := spatialmath.Compose(pose, spatialmath.NewPose(r3.Vector{X: 0.2}, spatialmath.YawToQuat(0.01)))
	res, _, err = Evaluate(f, [][]float64{moved.ToArray(nil), {0.75}}, false)
	test.That(t, err, test.ShouldBeNil)
	dt := moved.Position.Sub(pose.Position)
	test.That(t, res[0], test.ShouldAlmostEqual, 1+dt.X, 1e-9)
	test.That(t, res[5], test.ShouldAlmostEqual, 6*2*math.Sin(0.005), 1e-9)
	test.That(t, res[6], test.ShouldAlmostEqual, -1+7*0.25, 1e-12)

	// the sign of the stored quaternion does not matter
	flipped := pose.ToArray(nil)
	for i := 3; i < 7; i++ {
		flipped[i] = -flipped[i]
	}
	res, _, err = Evaluate(f, [][]float64{flipped, {0.5}}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res[3], test.ShouldAlmostEqual, 0, 1e-12)

	_, err = NewPriorFactor(origin, manifolds, mat.NewDense(7, 6, nil), r0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewPriorFactor(origin, manifolds, jac, r0[:3])
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewPriorFactor(origin[:1], manifolds, jac, r0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLosses(t *testing.T) {
	h := HuberLoss{Delta: 2}
	test.That(t, h.Evaluate(1), test.ShouldResemble, [3]float64{1, 1, 0})
	rho := h.Evaluate(16)
	test.That(t, rho[0], test.ShouldAlmostEqual, 2*2*4-4, 1e-12)
	test.That(t, rho[1], test.ShouldAlmostEqual, 0.5, 1e-12)
	test.That(t, rho[2], test.ShouldBeLessThan, 0.0)

	c := CauchyLoss{Scale: 1}
	rho = c.Evaluate(0)
	test.That(t, rho[0], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, rho[1], test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, rho[2], test.ShouldAlmostEqual, -1, 1e-12)
	test.That(t, c.Evaluate(math.E-1)[0], test.ShouldAlmostEqual, 1, 1e-12)

	test.That(t, ApplyLoss(nil, []float64{3, 4}), test.ShouldEqual, 25.0)
	test.That(t, ApplyLoss(h, []float64{3, 4}), test.ShouldAlmostEqual, 2*2*5-4, 1e-12)
}

func TestManifolds(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	x := testutils.RandomPose(rng, 3).ToArray(nil)
	delta := []float64{0.1, -0.2, 0.3, 0.01, 0.02, -0.03}
	y := make([]float64, 7)
	PoseManifold{}.Plus(x, delta, y)
	back := make([]float64, 6)
	PoseManifold{}.Minus(y, x, back)
	for i := 0; i < 3; i++ {
		test.That(t, back[i], test.ShouldAlmostEqual, delta[i], 1e-12)
	}
	for i := 3; i < 6; i++ {
		test.That(t, back[i], test.ShouldAlmostEqual, delta[i], 1e-5)
	}

	p4 := []float64{0, 0, 0, math.Pi - 0.1}
	out := make([]float64, 4)
	Pose4DManifold{}.Plus(p4, []float64{0, 0, 0, 0.2}, out)
	test.That(t, out[3], test.ShouldAlmostEqual, -math.Pi+0.1, 1e-12)
	Pose4DManifold{}.Minus(out, p4, out)
	test.That(t, out[3], test.ShouldAlmostEqual, 0.2, 1e-12)
}

func TestManifoldForAndJacobianMatrix(t *testing.T) {
	test.That(t, ManifoldFor(state.Pose6DOF), test.ShouldResemble, PoseManifold{})
	test.That(t, ManifoldFor(state.Extrinsic), test.ShouldResemble, PoseManifold{})
	test.That(t, ManifoldFor(state.Pose4DOF), test.ShouldResemble, Pose4DManifold{})
	test.That(t, ManifoldFor(state.SpeedBias), test.ShouldResemble, EuclideanManifold{N: 9})
	test.That(t, ManifoldFor(state.LandmarkInvDepth).TangentSize(), test.ShouldEqual, 1)

	f, err := NewDepthFactor(2, 3)
	test.That(t, err, test.ShouldBeNil)
	_, jacobians, err := Evaluate(f, [][]float64{{1}}, true)
	test.That(t, err, test.ShouldBeNil)
	m, err := JacobianMatrix(f, jacobians, 0)
	test.That(t, err, test.ShouldBeNil)
	rows, cols := m.Dims()
	test.That(t, rows, test.ShouldEqual, 1)
	test.That(t, cols, test.ShouldEqual, 1)
	test.That(t, m.At(0, 0), test.ShouldEqual, 3.0)

	_, err = JacobianMatrix(f, jacobians, 1)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = JacobianMatrix(f, [][]float64{{1, 2}}, 0)
	test.That(t, err, test.ShouldNotBeNil)
}
