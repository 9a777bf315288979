package oracle

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// TrainingMatch is the subset of a historical Match (resolved team ids,
// goals, date, closing odds) MTS needs, decoupled from the storage row shape.
type TrainingMatch struct {
	HomeTeamID string
	AwayTeamID string
	HomeGoals  int
	AwayGoals  int
	MatchDate  time.Time
	Odds       *Odds
}

const (
	ipfMaxIterations  = 200
	ipfConvergenceTol = 1e-6
	defaultXi         = 0.7
)

// TrainPoisson runs the §4.7 iterative-proportional-fitting MLE: solve
// for α_i (attack), β_j (defense) per team such that expected and
// observed goals-for/against match, given a fixed per-league home
// advantage h, then normalize α and β to mean 1.0. ρ is fit afterward by
// a 1-D log-likelihood scan over the low-score cells, grounded on the
// teacher's GeneticAlgorithm (pkg/outrights/solver.go) generalized from a
// whole-vector RMS-error search to a scalar scan, which converges faster
// and is exact enough for a single parameter.
func TrainPoisson(teamIDs []string, matches []TrainingMatch, homeAdvantage float64) (*PoissonWeights, error) {
	if len(matches) == 0 {
		return nil, NewError(CodeInsufficientTrainingData, "no training matches supplied for poisson fit")
	}

	alpha := make(map[string]float64, len(teamIDs))
	beta := make(map[string]float64, len(teamIDs))
	for _, id := range teamIDs {
		alpha[id] = 1.0
		beta[id] = 1.0
	}

	now := matches[len(matches)-1].MatchDate
	weights := make([]float64, len(matches))
	for i, m := range matches {
		daysAgo := now.Sub(m.MatchDate).Hours() / 24
		weights[i] = timeDecayWeight(daysAgo, defaultXi)
	}

	deltas := make([]float64, 0, 2*len(teamIDs))
	for iter := 0; iter < ipfMaxIterations; iter++ {
		deltas = deltas[:0]

		for _, id := range teamIDs {
			var expectedFor, observedFor, totalWeight float64
			for i, m := range matches {
				w := weights[i]
				if m.HomeTeamID == id {
					expectedFor += w * math.Exp(math.Log(alpha[id])-math.Log(beta[m.AwayTeamID])+homeAdvantage)
					observedFor += w * float64(m.HomeGoals)
					totalWeight += w
				} else if m.AwayTeamID == id {
					expectedFor += w * math.Exp(math.Log(alpha[id])-math.Log(beta[m.HomeTeamID]))
					observedFor += w * float64(m.AwayGoals)
					totalWeight += w
				}
			}
			if expectedFor > 0 && totalWeight > 0 {
				ratio := observedFor / expectedFor
				newAlpha := alpha[id] * ratio
				deltas = append(deltas, newAlpha-alpha[id])
				alpha[id] = newAlpha
			}
		}

		for _, id := range teamIDs {
			var expectedAgainst, observedAgainst float64
			for i, m := range matches {
				w := weights[i]
				if m.AwayTeamID == id {
					expectedAgainst += w * math.Exp(math.Log(alpha[m.HomeTeamID])-math.Log(beta[id])+homeAdvantage)
					observedAgainst += w * float64(m.HomeGoals)
				} else if m.HomeTeamID == id {
					expectedAgainst += w * math.Exp(math.Log(alpha[m.AwayTeamID])-math.Log(beta[id]))
					observedAgainst += w * float64(m.AwayGoals)
				}
			}
			if expectedAgainst > 0 {
				ratio := observedAgainst / expectedAgainst
				newBeta := beta[id] * ratio
				deltas = append(deltas, newBeta-beta[id])
				beta[id] = newBeta
			}
		}

		// Infinity-norm of the per-team deltas is the IPF convergence
		// bookkeeping gonum/floats handles for us.
		maxDelta := floats.Norm(deltas, math.Inf(1))
		if maxDelta < ipfConvergenceTol {
			log.Info().Int("iteration", iter).Msg("poisson IPF converged")
			break
		}
	}

	normalizeToMean1(alpha)
	normalizeToMean1(beta)

	rho := fitDixonColesRho(matches)

	strengths := make(map[string]TeamStrength, len(teamIDs))
	for _, id := range teamIDs {
		strengths[id] = TeamStrength{Alpha: alpha[id], Beta: beta[id]}
	}

	return &PoissonWeights{
		Strengths:     strengths,
		HomeAdvantage: homeAdvantage,
		Rho:           rho,
		Xi:            defaultXi,
	}, nil
}

func normalizeToMean1(m map[string]float64) {
	if len(m) == 0 {
		return
	}
	values := make([]float64, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	avg := mean(values)
	if avg == 0 {
		return
	}
	for k, v := range m {
		m[k] = v / avg
	}
}

// fitDixonColesRho scans rho over a bounded grid maximizing the
// log-likelihood of the low-score cells only (§4.7).
func fitDixonColesRho(matches []TrainingMatch) float64 {
	const steps = 401
	grid := make([]float64, steps)
	floats.Span(grid, -0.2, 0.2)

	bestRho, bestLL := 0.0, math.Inf(-1)
	for _, rho := range grid {
		ll := 0.0
		for _, m := range matches {
			if m.HomeGoals > 1 || m.AwayGoals > 1 {
				continue
			}
			tau := dixonColesTau(m.HomeGoals, m.AwayGoals, 1.0, 1.0, rho)
			if tau <= 0 {
				ll = math.Inf(-1)
				break
			}
			ll += math.Log(tau)
		}
		if ll > bestLL {
			bestLL = ll
			bestRho = rho
		}
	}
	return bestRho
}

// BlendingSample is one held-out (model probability, market probability,
// actual result) observation for blending-weight training.
type BlendingSample struct {
	Model, Market Triple
	Actual        Outcome
}

// TrainBlending searches α ∈ [0,1] minimizing log-loss of
// α·p_model + (1-α)·p_market (§4.7), via a dense grid scan — the search
// space is one-dimensional and bounded, so the teacher's genetic
// algorithm (built for many-team rating vectors) would be overkill here.
func TrainBlending(samples []BlendingSample) (*BlendingWeights, error) {
	if len(samples) == 0 {
		return nil, NewError(CodeInsufficientTrainingData, "no held-out samples supplied for blending fit")
	}

	const steps = 201
	grid := make([]float64, steps)
	floats.Span(grid, 0, 1)

	bestAlpha, bestLoss := 0.5, math.Inf(1)
	for _, alpha := range grid {
		loss := 0.0
		for _, sample := range samples {
			blended := Triple{
				Home: alpha*sample.Model.Home + (1-alpha)*sample.Market.Home,
				Draw: alpha*sample.Model.Draw + (1-alpha)*sample.Market.Draw,
				Away: alpha*sample.Model.Away + (1-alpha)*sample.Market.Away,
			}
			loss += -math.Log(math.Max(probFor(blended, sample.Actual), 1e-9))
		}
		loss /= float64(len(samples))
		if loss < bestLoss {
			bestLoss = loss
			bestAlpha = alpha
		}
	}
	log.Info().Float64("alpha", bestAlpha).Float64("log_loss", bestLoss).Msg("blending alpha trained")
	return &BlendingWeights{Alpha: bestAlpha}, nil
}

func probFor(t Triple, o Outcome) float64 {
	switch o {
	case OutcomeHome:
		return t.Home
	case OutcomeDraw:
		return t.Draw
	default:
		return t.Away
	}
}

// CalibrationSample is one (predicted probability, observed outcome)
// pair per outcome type, for isotonic fitting.
type CalibrationSample struct {
	Predicted Triple
	Actual    Outcome
}

// TrainCalibration fits isotonic regression per outcome directly on the
// (predicted probability, 0/1 observed outcome) pairs (§4.7); the
// predicted probabilities are not binned first.
func TrainCalibration(samples []CalibrationSample) (*CalibrationWeights, error) {
	if len(samples) == 0 {
		return nil, NewError(CodeInsufficientTrainingData, "no samples supplied for calibration fit")
	}

	var hx, hy, dx, dy, ax, ay []float64
	for _, s := range samples {
		hx = append(hx, s.Predicted.Home)
		hy = append(hy, boolTo01(s.Actual == OutcomeHome))
		dx = append(dx, s.Predicted.Draw)
		dy = append(dy, boolTo01(s.Actual == OutcomeDraw))
		ax = append(ax, s.Predicted.Away)
		ay = append(ay, boolTo01(s.Actual == OutcomeAway))
	}

	return &CalibrationWeights{
		Home: FitIsotonic(hx, hy),
		Draw: FitIsotonic(dx, dy),
		Away: FitIsotonic(ax, ay),
	}, nil
}

func boolTo01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// TrainDrawCalibration fits a p_D-only isotonic curve from exported
// ValidationResult rows; refuses below MinDrawCalibrationSamples (§4.7,
// §7 InsufficientTrainingSamples).
func TrainDrawCalibration(results []ValidationResult) (*DrawCalibrationWeights, error) {
	exported := make([]ValidationResult, 0, len(results))
	for _, r := range results {
		if r.ExportedToTraining {
			exported = append(exported, r)
		}
	}
	if len(exported) < MinDrawCalibrationSamples {
		return nil, NewError(CodeInsufficientTrainingData, "draw-calibration requires >= %d exported samples, have %d", MinDrawCalibrationSamples, len(exported))
	}

	sort.Slice(exported, func(i, j int) bool { return exported[i].ProbDraw < exported[j].ProbDraw })
	x := make([]float64, len(exported))
	y := make([]float64, len(exported))
	for i, r := range exported {
		x[i] = r.ProbDraw
		y[i] = boolTo01(r.ActualResult == OutcomeDraw)
	}

	return &DrawCalibrationWeights{Draw: FitIsotonic(x, y)}, nil
}
