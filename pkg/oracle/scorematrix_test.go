package oracle

import "testing"

func TestScoreMatrixOddsSumToOne(t *testing.T) {
	sm := NewScoreMatrix(1.3, 0.9, 1.1, 1.0, 0.35, -0.05)
	h, d, a := sm.MatchOdds()
	sum := h + d + a
	if abs(sum-1.0) > 1e-6 {
		t.Errorf("match odds don't sum to 1: %f", sum)
	}
	if h <= 0 || d <= 0 || a <= 0 {
		t.Errorf("expected strictly positive probabilities, got h=%f d=%f a=%f", h, d, a)
	}
}

func TestScoreMatrixStrongerHomeTeamFavored(t *testing.T) {
	sm := NewScoreMatrix(2.0, 0.8, 0.8, 2.0, 0.35, 0)
	h, _, a := sm.MatchOdds()
	if h <= a {
		t.Errorf("expected much stronger home team to be favored: h=%f a=%f", h, a)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
