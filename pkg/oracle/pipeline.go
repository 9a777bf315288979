package oracle

import (
	"context"
	"math"
)

// PredictionStore persists the per-fixture, per-set_key output of
// RunPipeline, keyed by (fixture_id, model_id, set_key) per §6.
type PredictionStore interface {
	InsertPrediction(ctx context.Context, p *Prediction) error
	PredictionsForJackpot(ctx context.Context, jackpotID string) ([]Prediction, error)
}

// Triple is a (home, draw, away) probability triple, always expected to
// sum to 1 within 1e-6 (§8 universal invariant).
type Triple struct {
	Home, Draw, Away float64
}

func (t Triple) sum() float64 { return t.Home + t.Draw + t.Away }

// FixtureInputs bundles everything the Probability Pipeline needs for
// one fixture (§4.1 contract).
type FixtureInputs struct {
	AlphaHome, BetaHome float64 // resolved or default team strengths
	AlphaAway, BetaAway float64
	HomeAdvantage       float64
	LeagueCode          string
	LeagueAvgDrawRate   float64
	Rho                 float64
	Temperature         float64
	BlendingAlpha       float64
	Calibration         *CalibrationWeights
	DrawCalibration     *DrawCalibrationWeights
	ClosingOdds         *Odds
	DrawSignalInputs    DrawSignalInputs
	TeamDataFallback    bool // true if either team fell back to defaults (InsufficientTeamData)
}

// StageResult carries the running triple plus accumulated warnings and
// the diagnostics recorded on Prediction.
type StageResult struct {
	Triple      Triple
	Lambdas     [2]float64
	Components  DrawStructuralComponents
	Warnings    []string
}

func (r *StageResult) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// RunPipeline executes Stages 1-6 and returns the requested set variant.
// This is the only entry point PP exposes; set dispatch happens last so
// every variant shares the same Stage 1-4 computation.
func RunPipeline(in FixtureInputs, set SetKey) (StageResult, error) {
	switch set {
	case SetH, SetI, SetJ:
		return StageResult{}, NewError(CodeInputValidation, "set %s is reserved and has no defined semantics (see SPEC_FULL.md open questions)", set)
	}

	result := stage1BasePoisson(in)
	stage2DrawPrior(&result, in)
	stage3DrawStructural(&result, in)
	stage4TemperatureScale(&result, in.Temperature)

	switch set {
	case SetB:
		boostDraw(&result, 0.03)
	}

	alphaCap := 1.0
	if set == SetC {
		alphaCap = 0.35
	}
	stage5MarketBlend(&result, in.ClosingOdds, in.BlendingAlpha, alphaCap)

	stage6Calibrate(&result, in.Calibration, in.DrawCalibration)

	switch set {
	case SetD:
		tiltEntropy(&result, 0.05)
	case SetE:
		tiltUnderdog(&result)
	case SetF:
		tiltAntiFavorite(&result)
	case SetG:
		// G carries no additional heuristic beyond C/D/E/F coverage by
		// design; its behavioral role (favorite-hedge donor, §4.3) is
		// expressed entirely in the ticket generator, not here.
	}

	renormalizeOrUniform(&result)
	return result, nil
}

// stage1BasePoisson is §4.1 Stage 1. Falls back per the documented chain:
// team ratings, then (1.0, 1.0) defaults, counting/logging each fallback
// via TeamDataFallback/warn.
func stage1BasePoisson(in FixtureInputs) StageResult {
	sm := NewScoreMatrix(in.AlphaHome, in.BetaHome, in.AlphaAway, in.BetaAway, in.HomeAdvantage, in.Rho)
	h, d, a := sm.MatchOdds()

	r := StageResult{
		Triple:  Triple{Home: h, Draw: d, Away: a},
		Lambdas: [2]float64{sm.HomeLambda, sm.AwayLambda},
	}
	if in.TeamDataFallback {
		r.warn("insufficient team data: used default strengths for one or both teams")
	}
	return r
}

// stage2DrawPrior is §4.1 Stage 2.
func stage2DrawPrior(r *StageResult, in FixtureInputs) {
	var prior float64
	if in.LeagueCode == InternationalLeague {
		prior = InternationalDrawPrior // §9 open question decision
	} else {
		multiplier := clamp(in.LeagueAvgDrawRate/DefaultAvgDrawRate, 0.9, 1.2)
		prior = multiplier - 1.0
	}

	d := r.Triple.Draw * (1 + prior)
	d = clamp(d, 0.12, 0.38)

	remaining := 1 - d
	hShare := r.Triple.Home / (r.Triple.Home + r.Triple.Away)
	r.Triple = Triple{
		Home: remaining * hShare,
		Draw: d,
		Away: remaining * (1 - hShare),
	}
}

// stage3DrawStructural is §4.1 Stage 3, the draw-structural / home-away
// compression adjustment. Forbidden: additive deltas to p_D with no
// compensating redistribution; this implementation only ever moves mass
// between H/A (compression) or transfers a matched amount into D.
func stage3DrawStructural(r *StageResult, in FixtureInputs) {
	dsaIn := in.DrawSignalInputs
	dsaIn.LambdaHome, dsaIn.LambdaAway = r.Lambdas[0], r.Lambdas[1]
	s, components := AssembleDrawSignal(dsaIn)
	r.Components = components

	p := r.Triple
	if s > 0.6 {
		m := (p.Home + p.Away) / 2
		k := clamp(0.6+(1-s)*0.3, 0.4, 1.0)
		p.Home = m + (p.Home-m)*k
		p.Away = m + (p.Away-m)*k
	}

	lambdaDiff := math.Abs(r.Lambdas[0] - r.Lambdas[1])
	if lambdaDiff < 0.3 {
		m := (p.Home + p.Away) / 2
		kPrime := math.Exp(-2 * lambdaDiff)
		p.Home = m + (p.Home-m)*kPrime
		p.Away = m + (p.Away-m)*kPrime
	}

	if in.DrawSignalInputs.MarketDrawProb != nil {
		delta := *in.DrawSignalInputs.MarketDrawProb - p.Draw
		if delta > 0 {
			transfer := 0.5 * delta
			if p.Home >= p.Away {
				transfer = math.Min(transfer, p.Home)
				p.Home -= transfer
			} else {
				transfer = math.Min(transfer, p.Away)
				p.Away -= transfer
			}
			p.Draw += transfer
			p.Draw = clamp(p.Draw, 0.18, 0.38)
		}
	}

	lambdaTotal := r.Lambdas[0] + r.Lambdas[1]
	if lambdaTotal < 2.1 {
		m := (p.Home + p.Away) / 2
		factor := lambdaTotal / 2.1
		p.Home = m + (p.Home-m)*factor
		p.Away = m + (p.Away-m)*factor
	}

	h, d, a, degenerate := normalize3(p.Home, p.Draw, p.Away)
	if degenerate {
		r.warn("degenerate probability after draw-structural stage, forced uniform")
	}
	r.Triple = Triple{Home: h, Draw: d, Away: a}
}

// stage4TemperatureScale is §4.1 Stage 4.
func stage4TemperatureScale(r *StageResult, temperature float64) {
	t := clamp(temperature, TemperatureMin, TemperatureMax)
	invT := 1 / t
	h := math.Pow(r.Triple.Home, invT)
	d := math.Pow(r.Triple.Draw, invT)
	a := math.Pow(r.Triple.Away, invT)
	nh, nd, na, degenerate := normalize3(h, d, a)
	if degenerate {
		r.warn("degenerate probability after temperature scaling, forced uniform")
	}
	r.Triple = Triple{Home: nh, Draw: nd, Away: na}
}

// stage5MarketBlend is §4.1 Stage 5: α_eff = clamp(α_model * normalized
// entropy, 0.15, 0.75). alphaCap lets set C additionally clamp α_eff to
// 0.35 while every other set uses the full [0.15, 0.75] range.
func stage5MarketBlend(r *StageResult, odds *Odds, modelAlpha float64, alphaCap float64) {
	if odds == nil {
		return
	}
	if modelAlpha <= 0 {
		modelAlpha = 1.0
	}
	mh, md, ma := impliedProbabilities(*odds)
	entropy := normalizedEntropy3(r.Triple.Home, r.Triple.Draw, r.Triple.Away)
	alphaEff := clamp(modelAlpha*entropy, 0.15, math.Min(0.75, alphaCap))

	r.Triple = Triple{
		Home: alphaEff*r.Triple.Home + (1-alphaEff)*mh,
		Draw: alphaEff*r.Triple.Draw + (1-alphaEff)*md,
		Away: alphaEff*r.Triple.Away + (1-alphaEff)*ma,
	}
}

// stage6Calibrate is §4.1 Stage 6.
func stage6Calibrate(r *StageResult, cal *CalibrationWeights, drawCal *DrawCalibrationWeights) {
	if cal != nil {
		r.Triple = Triple{
			Home: cal.Home.Apply(r.Triple.Home),
			Draw: cal.Draw.Apply(r.Triple.Draw),
			Away: cal.Away.Apply(r.Triple.Away),
		}
	}
	if drawCal != nil {
		r.Triple.Draw = drawCal.Draw.Apply(r.Triple.Draw)
	}
	renormalizeOrUniform(r)
}

// boostDraw implements set B: add a fixed amount to p_D pre-calibration,
// then renormalize (§4.1 set variants).
func boostDraw(r *StageResult, delta float64) {
	r.Triple.Draw += delta
	renormalizeOrUniform(r)
}

// tiltEntropy (set D) targets a higher entropy by compressing H/A
// slightly further toward their midpoint, without touching D additively.
func tiltEntropy(r *StageResult, k float64) {
	m := (r.Triple.Home + r.Triple.Away) / 2
	r.Triple.Home = m + (r.Triple.Home-m)*(1-k)
	r.Triple.Away = m + (r.Triple.Away-m)*(1-k)
	renormalizeOrUniform(r)
}

// tiltUnderdog (set E) nudges mass from the favorite to the underdog side.
func tiltUnderdog(r *StageResult) {
	const shift = 0.02
	if r.Triple.Home > r.Triple.Away {
		r.Triple.Home -= shift
		r.Triple.Away += shift
	} else {
		r.Triple.Away -= shift
		r.Triple.Home += shift
	}
	renormalizeOrUniform(r)
}

// tiltAntiFavorite (set F) is a stronger version of tiltUnderdog, paired
// with LSD-driven hedging at the ticket-generation layer.
func tiltAntiFavorite(r *StageResult) {
	const shift = 0.04
	if r.Triple.Home > r.Triple.Away {
		r.Triple.Home -= shift
		r.Triple.Away += shift
	} else {
		r.Triple.Away -= shift
		r.Triple.Home += shift
	}
	renormalizeOrUniform(r)
}

func renormalizeOrUniform(r *StageResult) {
	h, d, a, degenerate := normalize3(r.Triple.Home, r.Triple.Draw, r.Triple.Away)
	if degenerate {
		r.warn("degenerate probability, forced uniform (1/3,1/3,1/3)")
	}
	r.Triple = Triple{Home: h, Draw: d, Away: a}
}
