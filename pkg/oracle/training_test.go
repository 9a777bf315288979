package oracle

import (
	"testing"
	"time"
)

func synthMatches() []TrainingMatch {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []TrainingMatch{
		{HomeTeamID: "A", AwayTeamID: "B", HomeGoals: 2, AwayGoals: 1, MatchDate: base},
		{HomeTeamID: "B", AwayTeamID: "A", HomeGoals: 1, AwayGoals: 1, MatchDate: base.AddDate(0, 0, 7)},
		{HomeTeamID: "A", AwayTeamID: "C", HomeGoals: 3, AwayGoals: 0, MatchDate: base.AddDate(0, 0, 14)},
		{HomeTeamID: "C", AwayTeamID: "B", HomeGoals: 0, AwayGoals: 2, MatchDate: base.AddDate(0, 0, 21)},
		{HomeTeamID: "B", AwayTeamID: "C", HomeGoals: 2, AwayGoals: 0, MatchDate: base.AddDate(0, 0, 28)},
		{HomeTeamID: "C", AwayTeamID: "A", HomeGoals: 1, AwayGoals: 2, MatchDate: base.AddDate(0, 0, 35)},
	}
}

func TestTrainPoissonProducesPositiveStrengths(t *testing.T) {
	weights, err := TrainPoisson([]string{"A", "B", "C"}, synthMatches(), 0.35)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(weights.Strengths) != 3 {
		t.Fatalf("expected 3 team strength rows, got %d", len(weights.Strengths))
	}
	for id, s := range weights.Strengths {
		if s.Alpha <= 0 || s.Beta <= 0 {
			t.Errorf("team %s has non-positive strength: %+v", id, s)
		}
	}
	if weights.HomeAdvantage != 0.35 {
		t.Errorf("expected home advantage to be carried through unchanged, got %f", weights.HomeAdvantage)
	}
}

func TestTrainPoissonRejectsEmptyMatches(t *testing.T) {
	_, err := TrainPoisson([]string{"A", "B"}, nil, 0.35)
	if err == nil {
		t.Fatal("expected error for empty training set")
	}
	oe, ok := AsOracleError(err)
	if !ok || oe.Code != CodeInsufficientTrainingData {
		t.Errorf("expected InsufficientTrainingSamples error, got %v", err)
	}
}

func TestFitDixonColesRhoWithinBounds(t *testing.T) {
	rho := fitDixonColesRho(synthMatches())
	if rho < -0.2 || rho > 0.2 {
		t.Errorf("rho %f outside scanned bounds [-0.2, 0.2]", rho)
	}
}

func TestTrainBlendingFindsReasonableAlpha(t *testing.T) {
	samples := []BlendingSample{
		{Model: Triple{Home: 0.6, Draw: 0.25, Away: 0.15}, Market: Triple{Home: 0.5, Draw: 0.3, Away: 0.2}, Actual: OutcomeHome},
		{Model: Triple{Home: 0.2, Draw: 0.3, Away: 0.5}, Market: Triple{Home: 0.25, Draw: 0.3, Away: 0.45}, Actual: OutcomeAway},
		{Model: Triple{Home: 0.4, Draw: 0.3, Away: 0.3}, Market: Triple{Home: 0.35, Draw: 0.35, Away: 0.3}, Actual: OutcomeHome},
	}
	weights, err := TrainBlending(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if weights.Alpha < 0 || weights.Alpha > 1 {
		t.Errorf("alpha %f outside [0,1]", weights.Alpha)
	}
}

func TestTrainBlendingRejectsEmptySamples(t *testing.T) {
	if _, err := TrainBlending(nil); err == nil {
		t.Fatal("expected error for empty sample set")
	}
}

func TestTrainCalibrationFitsOneCurvePerOutcome(t *testing.T) {
	samples := []CalibrationSample{
		{Predicted: Triple{Home: 0.6, Draw: 0.2, Away: 0.2}, Actual: OutcomeHome},
		{Predicted: Triple{Home: 0.5, Draw: 0.3, Away: 0.2}, Actual: OutcomeDraw},
		{Predicted: Triple{Home: 0.3, Draw: 0.2, Away: 0.5}, Actual: OutcomeAway},
		{Predicted: Triple{Home: 0.4, Draw: 0.3, Away: 0.3}, Actual: OutcomeHome},
	}
	weights, err := TrainCalibration(samples)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(weights.Home.X) == 0 || len(weights.Draw.X) == 0 || len(weights.Away.X) == 0 {
		t.Errorf("expected every outcome curve to have knots")
	}
}

func TestTrainDrawCalibrationRequiresMinimumSamples(t *testing.T) {
	var results []ValidationResult
	for i := 0; i < MinDrawCalibrationSamples-1; i++ {
		results = append(results, ValidationResult{ProbDraw: 0.25, ActualResult: OutcomeDraw, ExportedToTraining: true})
	}
	_, err := TrainDrawCalibration(results)
	if err == nil {
		t.Fatal("expected error below minimum sample threshold")
	}
	oe, ok := AsOracleError(err)
	if !ok || oe.Code != CodeInsufficientTrainingData {
		t.Errorf("expected InsufficientTrainingSamples, got %v", err)
	}
}

func TestTrainDrawCalibrationIgnoresUnexportedRows(t *testing.T) {
	var results []ValidationResult
	for i := 0; i < MinDrawCalibrationSamples; i++ {
		results = append(results, ValidationResult{ProbDraw: 0.25, ActualResult: OutcomeDraw, ExportedToTraining: false})
	}
	_, err := TrainDrawCalibration(results)
	if err == nil {
		t.Fatal("expected error when no rows are actually exported")
	}
}

func TestTrainDrawCalibrationSucceedsAtThreshold(t *testing.T) {
	var results []ValidationResult
	for i := 0; i < MinDrawCalibrationSamples; i++ {
		p := float64(i%10) / 10.0
		results = append(results, ValidationResult{ProbDraw: p, ActualResult: OutcomeDraw, ExportedToTraining: true})
	}
	weights, err := TrainDrawCalibration(results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(weights.Draw.X) == 0 {
		t.Errorf("expected a fitted draw curve")
	}
}
