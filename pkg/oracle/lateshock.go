package oracle

import "math"

const lateShockEpsilon = 1e-6

// LateShockResult is LSD's output for one fixture (§4.3).
type LateShockResult struct {
	Reasons    map[string]float64
	ShockScore float64
	Triggered  bool
}

// DetectLateShock compares opening vs closing odds against the model's
// own triple to flag fixtures where the market moved hard enough between
// opening and closing that the probability set should be hedged.
func DetectLateShock(opening, closing Odds, model Triple) LateShockResult {
	reasons := make(map[string]float64)
	score := 0.0

	oddsMove := func(label string, o, c float64) {
		move := math.Abs(c-o) / math.Max(o, lateShockEpsilon)
		if move >= 0.10 {
			reasons["odds_move_"+label] = move
			score += 0.35
		}
	}
	oddsMove("home", opening.Home, closing.Home)
	oddsMove("draw", opening.Draw, closing.Draw)
	oddsMove("away", opening.Away, closing.Away)

	drawCollapse := opening.Draw - closing.Draw
	if drawCollapse >= 0.08 {
		reasons["draw_collapse"] = drawCollapse
		score += 0.35
	}

	favOpen, favClose := favoriteOdds(opening, closing, model)
	if favOpen > 0 {
		drift := math.Abs(favClose-favOpen) / favOpen
		if drift >= 0.10 {
			reasons["favorite_drift"] = drift
			score += 0.30
		}
	}

	shockScore := math.Min(1.0, score)
	return LateShockResult{
		Reasons:    reasons,
		ShockScore: shockScore,
		Triggered:  shockScore >= 0.5,
	}
}

// favoriteOdds resolves the opening/closing odds of the model's argmax
// side ("fav" in the §4.3 formula).
func favoriteOdds(opening, closing Odds, model Triple) (float64, float64) {
	switch argmaxOutcome(model) {
	case OutcomeHome:
		return opening.Home, closing.Home
	case OutcomeDraw:
		return opening.Draw, closing.Draw
	default:
		return opening.Away, closing.Away
	}
}

func argmaxOutcome(t Triple) Outcome {
	switch {
	case t.Home >= t.Draw && t.Home >= t.Away:
		return OutcomeHome
	case t.Draw >= t.Home && t.Draw >= t.Away:
		return OutcomeDraw
	default:
		return OutcomeAway
	}
}
