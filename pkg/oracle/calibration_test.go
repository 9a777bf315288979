package oracle

import "testing"

func TestFitIsotonicProducesMonotoneCurve(t *testing.T) {
	x := []float64{0.1, 0.5, 0.3, 0.9, 0.2, 0.7}
	y := []float64{0.15, 0.4, 0.1, 0.95, 0.25, 0.6}
	curve := FitIsotonic(x, y)

	for i := 1; i < len(curve.Y); i++ {
		if curve.Y[i] < curve.Y[i-1] {
			t.Errorf("isotonic curve not monotone at knot %d: y[%d]=%f < y[%d]=%f", i, i, curve.Y[i], i-1, curve.Y[i-1])
		}
	}
	for i := 1; i < len(curve.X); i++ {
		if curve.X[i] < curve.X[i-1] {
			t.Errorf("isotonic curve knots not ascending in x at %d", i)
		}
	}
}

func TestFitIsotonicEmptyInput(t *testing.T) {
	curve := FitIsotonic(nil, nil)
	if len(curve.X) != 0 || len(curve.Y) != 0 {
		t.Errorf("expected empty curve for empty input")
	}
}

func TestIsotonicCurveApplyInterpolatesBetweenKnots(t *testing.T) {
	curve := IsotonicCurve{X: []float64{0.0, 0.5, 1.0}, Y: []float64{0.1, 0.5, 0.9}}
	if got := curve.Apply(0.25); abs(got-0.3) > 1e-9 {
		t.Errorf("Apply(0.25) = %f, want 0.3 (midpoint interpolation)", got)
	}
	if got := curve.Apply(-1); got != 0.1 {
		t.Errorf("Apply below range should clamp to first knot, got %f", got)
	}
	if got := curve.Apply(5); got != 0.9 {
		t.Errorf("Apply above range should clamp to last knot, got %f", got)
	}
}

func TestIsotonicCurveApplyEmptyCurveIsIdentity(t *testing.T) {
	curve := IsotonicCurve{}
	if got := curve.Apply(0.42); got != 0.42 {
		t.Errorf("Apply on empty curve should be identity, got %f", got)
	}
}
