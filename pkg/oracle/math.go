package oracle

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// factorial, Poisson and the Dixon-Coles correction are grounded on the
// teacher's pkg/outrights/math.go (the repo kept three near-identical
// copies of these across math.go/matrix.go/kernel.go; this is the single
// canonical copy).

func factorial(n int) float64 {
	if n <= 1 {
		return 1
	}
	result := 1.0
	for i := 2; i <= n; i++ {
		result *= float64(i)
	}
	return result
}

// poissonProb returns P(X = k) for X ~ Poisson(lambda).
func poissonProb(lambda float64, k int) float64 {
	if lambda <= 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	return math.Pow(lambda, float64(k)) * math.Exp(-lambda) / factorial(k)
}

// dixonColesTau is the low-score correction τ(i,j,ρ) of §4.1 Stage 1:
// τ(0,0)=1−λ_Hλ_Aρ, τ(0,1)=1+λ_Hρ, τ(1,0)=1+λ_Aρ, τ(1,1)=1−ρ, else 1.
// The teacher's own τ (pkg/outrights/math.go) simplifies this to a
// lambda-independent constant, which is a known simplification of the
// Dixon-Coles correction; this repo implements the spec's lambda-aware
// form instead.
func dixonColesTau(i, j int, lambdaH, lambdaA, rho float64) float64 {
	switch {
	case i == 0 && j == 0:
		return 1 - lambdaH*lambdaA*rho
	case i == 0 && j == 1:
		return 1 + lambdaH*rho
	case i == 1 && j == 0:
		return 1 + lambdaA*rho
	case i == 1 && j == 1:
		return 1 - rho
	default:
		return 1
	}
}

// mean, variance, stdDeviation and sumProduct delegate to gonum/stat and
// gonum/floats rather than hand-rolled loops, the same way MTS's grid
// scans and IPF bookkeeping in training.go lean on gonum for numerics.
func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

func variance(x []float64) float64 {
	if len(x) <= 1 {
		return 0
	}
	return stat.Variance(x, nil)
}

func stdDeviation(x []float64) float64 {
	if len(x) <= 1 {
		return 0
	}
	return stat.StdDev(x, nil)
}

func sumProduct(x, y []float64) float64 {
	if len(x) != len(y) {
		return 0
	}
	return floats.Dot(x, y)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalize3 rescales a (home, draw, away) triple so it sums to 1,
// falling back to a uniform distribution if the triple is degenerate
// (non-positive sum, NaN) per the DegenerateProbability recovery of §7.
func normalize3(h, d, a float64) (float64, float64, float64, bool) {
	if math.IsNaN(h) || math.IsNaN(d) || math.IsNaN(a) {
		return 1.0 / 3, 1.0 / 3, 1.0 / 3, true
	}
	total := h + d + a
	if total <= 0 {
		return 1.0 / 3, 1.0 / 3, 1.0 / 3, true
	}
	return h / total, d / total, a / total, false
}

// shannonEntropy3 is the Shannon entropy (natural base doesn't matter
// here since it's always normalized by log(3)) of a 3-way distribution.
func shannonEntropy3(p1, p2, p3 float64) float64 {
	h := 0.0
	for _, p := range []float64{p1, p2, p3} {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// normalizedEntropy3 is Shannon entropy divided by log(3), landing in [0,1].
func normalizedEntropy3(p1, p2, p3 float64) float64 {
	return shannonEntropy3(p1, p2, p3) / math.Log(3)
}

// timeDecayWeight is MTS's per-match weight exp(-ξ·days_ago/365), §4.7.
func timeDecayWeight(daysAgo float64, xi float64) float64 {
	return math.Exp(-xi * daysAgo / 365.0)
}

// impliedProbabilities inverts the overround on a three-way price
// triple: divide 1/odds_i by Σ 1/odds_j (§4.1 Stage 5).
func impliedProbabilities(odds Odds) (float64, float64, float64) {
	ih := 1.0 / odds.Home
	id := 1.0 / odds.Draw
	ia := 1.0 / odds.Away
	overround := ih + id + ia
	return ih / overround, id / overround, ia / overround
}

// ImpliedProbabilities is the exported form of impliedProbabilities, for
// callers outside this package that need the market-implied triple (e.g.
// to seed §3's market_draw_prob ahead of a pipeline run).
func ImpliedProbabilities(odds Odds) (home, draw, away float64) {
	return impliedProbabilities(odds)
}
