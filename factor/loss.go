package factor

import "math"

// LossFunction down-weights large squared residual norms. Evaluate returns
// [ρ(s), ρ'(s), ρ''(s)].
type LossFunction interface {
	Evaluate(s float64) [3]float64
}

// minLossSlope keeps ρ' away from zero so the solver's scaling stays defined.
const minLossSlope = 1e-13

// HuberLoss is quadratic below Delta² and linear above.
type HuberLoss struct {
	Delta float64
}

// Evaluate implements LossFunction.
func (l HuberLoss) Evaluate(s float64) [3]float64 {
	b := l.Delta * l.Delta
	if s <= b {
		return [3]float64{s, 1, 0}
	}
	r := math.Sqrt(s)
	return [3]float64{
		2*l.Delta*r - b,
		math.Max(minLossSlope, l.Delta/r),
		-l.Delta / (2 * s * r),
	}
}

// CauchyLoss is ρ(s) = Scale² log(1 + s/Scale²).
type CauchyLoss struct {
	Scale float64
}

// Evaluate implements LossFunction.
func (l CauchyLoss) Evaluate(s float64) [3]float64 {
	b := l.Scale * l.Scale
	c := 1 / b
	sum := 1 + s*c
	inv := 1 / sum
	return [3]float64{
		b * math.Log(sum),
		math.Max(minLossSlope, inv),
		-c * inv * inv,
	}
}

// ApplyLoss returns ρ(‖r‖²), or ‖r‖² when loss is nil.
func ApplyLoss(loss LossFunction, residuals []float64) float64 {
	s := 0.0
	for _, r := range residuals {
		s += r * r
	}
	if loss == nil {
		return s
	}
	return loss.Evaluate(s)[0]
}
