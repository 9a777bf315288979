package oracle

import "testing"

func TestAssembleDrawSignalLowTotalGoalsOnly(t *testing.T) {
	signal, components := AssembleDrawSignal(DrawSignalInputs{LambdaHome: 0.8, LambdaAway: 0.9})
	if signal != components.LowTotalGoalsInd {
		t.Errorf("with no optional components, signal should equal the low-total-goals indicator: signal=%f ind=%f",
			signal, components.LowTotalGoalsInd)
	}
	if signal < 0 || signal > 1 {
		t.Errorf("signal %f outside [0,1]", signal)
	}
}

func TestAssembleDrawSignalAveragesAvailableComponents(t *testing.T) {
	market := 0.35
	h2h := 0.4
	signal, components := AssembleDrawSignal(DrawSignalInputs{
		LambdaHome: 1.0, LambdaAway: 1.0,
		MarketDrawProb: &market,
		H2HDrawRate:    &h2h,
	})
	if signal < 0 || signal > 1 {
		t.Errorf("signal %f outside [0,1]", signal)
	}
	if components.MarketDrawProb == nil || components.H2HDrawRate == nil {
		t.Errorf("expected present components to be recorded on the diagnostic struct")
	}
	if components.WeatherFactor != nil {
		t.Errorf("expected absent weather component to stay nil")
	}
}

func TestLowTotalGoalsIndicatorPiecewise(t *testing.T) {
	cases := []struct {
		total float64
		want  float64
	}{
		{1.5, 0.8},
		{2.3, 0.6},
		{3.0, 0.4},
	}
	for _, c := range cases {
		if got := lowTotalGoalsIndicator(c.total); got != c.want {
			t.Errorf("lowTotalGoalsIndicator(%f) = %f, want %f", c.total, got, c.want)
		}
	}
}

func TestAssembleDrawSignalMissingComponentsDoNotFail(t *testing.T) {
	signal, _ := AssembleDrawSignal(DrawSignalInputs{LambdaHome: 1.2, LambdaAway: 1.1})
	if signal <= 0 {
		t.Errorf("expected a usable signal even with every optional component missing, got %f", signal)
	}
}
