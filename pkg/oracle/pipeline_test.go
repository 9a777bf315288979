package oracle

import "testing"

func baseFixtureInputs() FixtureInputs {
	return FixtureInputs{
		AlphaHome: 1.2, BetaHome: 0.9,
		AlphaAway: 1.0, BetaAway: 1.1,
		HomeAdvantage:     0.35,
		LeagueCode:        "EPL",
		LeagueAvgDrawRate: 0.26,
		Rho:               -0.05,
		Temperature:       1.0,
		BlendingAlpha:     0.6,
		ClosingOdds:       &Odds{Home: 2.1, Draw: 3.4, Away: 3.6},
	}
}

func TestRunPipelineSumsToOneForEverySet(t *testing.T) {
	for _, set := range []SetKey{SetA, SetB, SetC, SetD, SetE, SetF, SetG} {
		result, err := RunPipeline(baseFixtureInputs(), set)
		if err != nil {
			t.Fatalf("set %s: unexpected error: %v", set, err)
		}
		sum := result.Triple.sum()
		if abs(sum-1.0) > 1e-6 {
			t.Errorf("set %s: triple sums to %f, want 1", set, sum)
		}
	}
}

func TestRunPipelineRejectsReservedSets(t *testing.T) {
	for _, set := range []SetKey{SetH, SetI, SetJ} {
		_, err := RunPipeline(baseFixtureInputs(), set)
		if err == nil {
			t.Errorf("expected error for reserved set %s", set)
		}
		oe, ok := AsOracleError(err)
		if !ok || oe.Code != CodeInputValidation {
			t.Errorf("expected InputValidation error for reserved set %s, got %v", set, err)
		}
	}
}

func TestRunPipelineDrawBounds(t *testing.T) {
	in := baseFixtureInputs()
	result, err := RunPipeline(in, SetA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Triple.Draw < 0.10 || result.Triple.Draw > 0.45 {
		t.Errorf("draw probability %f outside expected working range", result.Triple.Draw)
	}
}

func TestRunPipelineSetBBoostsDrawRelativeToA(t *testing.T) {
	in := baseFixtureInputs()
	a, err := RunPipeline(in, SetA)
	if err != nil {
		t.Fatalf("set A: %v", err)
	}
	b, err := RunPipeline(in, SetB)
	if err != nil {
		t.Fatalf("set B: %v", err)
	}
	if b.Triple.Draw <= a.Triple.Draw {
		t.Errorf("expected set B draw probability (%f) to exceed set A (%f)", b.Triple.Draw, a.Triple.Draw)
	}
}

func TestRunPipelineTeamDataFallbackWarns(t *testing.T) {
	in := baseFixtureInputs()
	in.TeamDataFallback = true
	result, err := RunPipeline(in, SetA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if w != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a warning to be recorded when team data fell back to defaults")
	}
}

func TestRunPipelineMonotonicUnderStrongerMarketDrawSignal(t *testing.T) {
	low := baseFixtureInputs()
	low.ClosingOdds = &Odds{Home: 2.1, Draw: 4.5, Away: 3.0}

	high := baseFixtureInputs()
	high.ClosingOdds = &Odds{Home: 2.1, Draw: 2.6, Away: 3.0}

	lowResult, err := RunPipeline(low, SetA)
	if err != nil {
		t.Fatalf("low: %v", err)
	}
	highResult, err := RunPipeline(high, SetA)
	if err != nil {
		t.Fatalf("high: %v", err)
	}
	if highResult.Triple.Draw <= lowResult.Triple.Draw {
		t.Errorf("expected draw probability to rise as market-implied draw odds shorten: low=%f high=%f",
			lowResult.Triple.Draw, highResult.Triple.Draw)
	}
}

func TestStage1BasePoissonLambdasPositive(t *testing.T) {
	in := baseFixtureInputs()
	r := stage1BasePoisson(in)
	if r.Lambdas[0] <= 0 || r.Lambdas[1] <= 0 {
		t.Errorf("expected strictly positive lambdas, got %v", r.Lambdas)
	}
}
