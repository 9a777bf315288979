package oracle

import "math"

// ScoreMatrixN is the score grid bound K of §4.1 Stage 1 (K >= 8); the
// teacher's DefaultN=11 (pkg/outrights/matrix.go) comfortably clears that
// floor and is kept.
const ScoreMatrixN = 11

// ScoreMatrix is the joint independent-Poisson x Dixon-Coles score
// distribution for one fixture, grounded on the teacher's ScoreMatrix
// (pkg/outrights/matrix.go) and generalized from league-ratings lookup to
// resolved team strengths plus an explicit rho.
type ScoreMatrix struct {
	HomeLambda float64
	AwayLambda float64
	Rho        float64
	Matrix     [][]float64
	N          int
}

// NewScoreMatrix builds the K x K joint distribution for given team
// strengths (log-space per §4.1): λ_H = exp(logAlphaHome - logBetaAway + h),
// λ_A = exp(logAlphaAway - logBetaHome).
func NewScoreMatrix(alphaHome, betaHome, alphaAway, betaAway, homeAdvantage, rho float64) *ScoreMatrix {
	lambdaHome := math.Exp(math.Log(alphaHome) - math.Log(betaAway) + homeAdvantage)
	lambdaAway := math.Exp(math.Log(alphaAway) - math.Log(betaHome))
	return newScoreMatrixFromLambdas(lambdaHome, lambdaAway, rho)
}

func newScoreMatrixFromLambdas(lambdaHome, lambdaAway, rho float64) *ScoreMatrix {
	sm := &ScoreMatrix{
		HomeLambda: lambdaHome,
		AwayLambda: lambdaAway,
		Rho:        rho,
		N:          ScoreMatrixN,
	}
	sm.initMatrix()
	return sm
}

func (sm *ScoreMatrix) initMatrix() {
	sm.Matrix = make([][]float64, sm.N)
	for i := range sm.Matrix {
		sm.Matrix[i] = make([]float64, sm.N)
	}
	for i := 0; i < sm.N; i++ {
		for j := 0; j < sm.N; j++ {
			homeProb := poissonProb(sm.HomeLambda, i)
			awayProb := poissonProb(sm.AwayLambda, j)
			tau := dixonColesTau(i, j, sm.HomeLambda, sm.AwayLambda, sm.Rho)
			sm.Matrix[i][j] = homeProb * awayProb * tau
		}
	}
}

func (sm *ScoreMatrix) probability(maskFn func(i, j int) bool) float64 {
	total := 0.0
	for i := 0; i < sm.N; i++ {
		for j := 0; j < sm.N; j++ {
			if maskFn(i, j) {
				total += sm.Matrix[i][j]
			}
		}
	}
	return total
}

// MatchOdds returns the normalized (home, draw, away) base probabilities
// of §4.1 Stage 1.
func (sm *ScoreMatrix) MatchOdds() (float64, float64, float64) {
	homeWin := sm.probability(func(i, j int) bool { return i > j })
	draw := sm.probability(func(i, j int) bool { return i == j })
	awayWin := sm.probability(func(i, j int) bool { return i < j })
	h, d, a, _ := normalize3(homeWin, draw, awayWin)
	return h, d, a
}

