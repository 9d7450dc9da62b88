package measurement

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swarmvins/spatialmath"
)

func TestNewLoopEdge(t *testing.T) {
	sqrtInfo, err := DiagonalSqrtInfo(0.1, 0.01)
	test.That(t, err, test.ShouldBeNil)
	rel := spatialmath.NewPose(r3.Vector{X: 1}, spatialmath.YawToQuat(0.3))

	edge, err := NewLoopEdge(1, 10, 2, 20, rel, sqrtInfo)
	test.That(t, err, test.ShouldBeNil)
	var m Measurement2Drones = edge
	a, b := m.Frames()
	test.That(t, a, test.ShouldEqual, edge.FrameA)
	test.That(t, b, test.ShouldEqual, edge.FrameB)
	da, db := m.Drones()
	test.That(t, da, test.ShouldEqual, 1)
	test.That(t, db, test.ShouldEqual, 2)
	test.That(t, spatialmath.PoseAlmostEqual(m.RelativePose(), rel, 1e-12), test.ShouldBeTrue)
	test.That(t, edge.String(), test.ShouldContainSubstring, "loop 10@1 -> 20@2")

	_, err = NewLoopEdge(1, 10, 2, 10, rel, sqrtInfo)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewLoopEdge(1, 10, 2, 20, rel, nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewLoopEdge(1, 10, 2, 20, rel, mat.NewDense(4, 4, nil))
	test.That(t, err, test.ShouldBeError, "loop edge sqrt information must be 6x6, got 4x4")
}

func TestSqrtInformation4D(t *testing.T) {
	full := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			full.Set(i, j, float64(10*i+j))
		}
	}
	edge, err := NewLoopEdge(0, 1, 0, 2, spatialmath.NewZeroPose(), full)
	test.That(t, err, test.ShouldBeNil)
	reduced := edge.SqrtInformation4D()
	r, c := reduced.Dims()
	test.That(t, r, test.ShouldEqual, 4)
	test.That(t, c, test.ShouldEqual, 4)
	test.That(t, reduced.At(0, 0), test.ShouldEqual, 0.0)
	test.That(t, reduced.At(2, 1), test.ShouldEqual, 21.0)
	test.That(t, reduced.At(3, 3), test.ShouldEqual, 55.0)
	test.That(t, reduced.At(3, 0), test.ShouldEqual, 50.0)
	test.That(t, reduced.At(1, 3), test.ShouldEqual, 15.0)
}

func TestSqrtInfoFromCovariance(t *testing.T) {
	cov := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		cov.SetSym(i, i, float64(i+1)*0.01)
	}
	cov.SetSym(0, 1, 0.002)
	u, err := SqrtInfoFromCovariance(cov)
	test.That(t, err, test.ShouldBeNil)

	// UᵀU Σ = I
	var info, prod mat.Dense
	info.Mul(u.T(), u)
	prod.Mul(&info, cov)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			test.That(t, prod.At(i, j), test.ShouldAlmostEqual, want, 1e-9)
		}
	}

	singular := mat.NewSymDense(6, nil)
	_, err = SqrtInfoFromCovariance(singular)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDiagonalAndScaled(t *testing.T) {
	d, err := DiagonalSqrtInfo(0.5, 0.1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.At(0, 0), test.ShouldEqual, 2.0)
	test.That(t, d.At(5, 5), test.ShouldAlmostEqual, 10, 1e-12)
	test.That(t, d.At(0, 5), test.ShouldEqual, 0.0)

	s := Scaled(d, 3)
	test.That(t, s.At(0, 0), test.ShouldEqual, 6.0)
	test.That(t, d.At(0, 0), test.ShouldEqual, 2.0)
	test.That(t, math.Abs(s.At(4, 4)-30), test.ShouldBeLessThan, 1e-9)

	_, err = DiagonalSqrtInfo(0, 1)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = DiagonalSqrtInfo(1, -1)
	test.That(t, err, test.ShouldNotBeNil)
}
