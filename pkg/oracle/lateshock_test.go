package oracle

import "testing"

func TestDetectLateShockTriggersOnDrawCollapse(t *testing.T) {
	opening := Odds{Home: 2.2, Draw: 3.6, Away: 3.2}
	closing := Odds{Home: 2.1, Draw: 3.0, Away: 3.3}
	model := Triple{Home: 0.45, Draw: 0.30, Away: 0.25}

	result := DetectLateShock(opening, closing, model)
	if !result.Triggered {
		t.Errorf("expected late shock to trigger on an 0.6 draw-odds collapse, score=%f reasons=%v", result.ShockScore, result.Reasons)
	}
	if _, ok := result.Reasons["draw_collapse"]; !ok {
		t.Errorf("expected draw_collapse reason present, got %v", result.Reasons)
	}
}

func TestDetectLateShockStableOddsDoNotTrigger(t *testing.T) {
	odds := Odds{Home: 2.1, Draw: 3.3, Away: 3.5}
	model := Triple{Home: 0.40, Draw: 0.30, Away: 0.30}
	result := DetectLateShock(odds, odds, model)
	if result.Triggered {
		t.Errorf("expected no shock for unchanged odds, got score=%f reasons=%v", result.ShockScore, result.Reasons)
	}
	if len(result.Reasons) != 0 {
		t.Errorf("expected no reasons recorded for unchanged odds, got %v", result.Reasons)
	}
}

func TestDetectLateShockScoreCappedAtOne(t *testing.T) {
	opening := Odds{Home: 3.0, Draw: 5.0, Away: 1.5}
	closing := Odds{Home: 1.5, Draw: 2.0, Away: 6.0}
	model := Triple{Home: 0.2, Draw: 0.2, Away: 0.6}
	result := DetectLateShock(opening, closing, model)
	if result.ShockScore > 1.0 {
		t.Errorf("shock score %f exceeds cap of 1.0", result.ShockScore)
	}
}

func TestArgmaxOutcome(t *testing.T) {
	cases := []struct {
		t    Triple
		want Outcome
	}{
		{Triple{Home: 0.5, Draw: 0.3, Away: 0.2}, OutcomeHome},
		{Triple{Home: 0.2, Draw: 0.5, Away: 0.3}, OutcomeDraw},
		{Triple{Home: 0.2, Draw: 0.3, Away: 0.5}, OutcomeAway},
	}
	for _, c := range cases {
		if got := argmaxOutcome(c.t); got != c.want {
			t.Errorf("argmaxOutcome(%v) = %s, want %s", c.t, got, c.want)
		}
	}
}
