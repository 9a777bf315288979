package oracle

import "testing"

func TestBuildCorrelationMatrixDiagonalIsOne(t *testing.T) {
	fixtures := []CorrelationFixture{
		{LeagueCode: "EPL", KickoffTS: 1000, Odds: Odds{Home: 2.0, Draw: 3.2, Away: 3.8}, DrawSignal: 0.4, LambdaTotal: 2.6},
		{LeagueCode: "EPL", KickoffTS: 1100, Odds: Odds{Home: 1.9, Draw: 3.3, Away: 4.0}, DrawSignal: 0.45, LambdaTotal: 2.5},
		{LeagueCode: "LaLiga", KickoffTS: 9000, Odds: Odds{Home: 3.5, Draw: 3.1, Away: 2.1}, DrawSignal: 0.2, LambdaTotal: 2.9},
	}
	matrix := BuildCorrelationMatrix(fixtures)
	for i := range matrix {
		if matrix[i][i] != 1 {
			t.Errorf("c[%d][%d] = %f, want 1", i, i, matrix[i][i])
		}
	}
}

func TestBuildCorrelationMatrixSymmetric(t *testing.T) {
	fixtures := []CorrelationFixture{
		{LeagueCode: "EPL", KickoffTS: 1000, Odds: Odds{Home: 2.0, Draw: 3.2, Away: 3.8}, DrawSignal: 0.4, LambdaTotal: 2.6},
		{LeagueCode: "EPL", KickoffTS: 1100, Odds: Odds{Home: 1.9, Draw: 3.3, Away: 4.0}, DrawSignal: 0.45, LambdaTotal: 2.5},
	}
	matrix := BuildCorrelationMatrix(fixtures)
	if matrix[0][1] != matrix[1][0] {
		t.Errorf("expected symmetric matrix: c01=%f c10=%f", matrix[0][1], matrix[1][0])
	}
}

func TestBuildCorrelationMatrixInRange(t *testing.T) {
	fixtures := []CorrelationFixture{
		{LeagueCode: "EPL", KickoffTS: 1000, Odds: Odds{Home: 2.0, Draw: 3.2, Away: 3.8}, DrawSignal: 0.4, LambdaTotal: 2.6},
		{LeagueCode: "SerieA", KickoffTS: 999999, Odds: Odds{Home: 5.0, Draw: 3.0, Away: 1.5}, DrawSignal: 0.1, LambdaTotal: 1.9},
	}
	matrix := BuildCorrelationMatrix(fixtures)
	for i := range matrix {
		for j := range matrix[i] {
			if matrix[i][j] < 0 || matrix[i][j] > 1 {
				t.Errorf("c[%d][%d] = %f outside [0,1]", i, j, matrix[i][j])
			}
		}
	}
}

func TestSameKickoffSameLeagueHighlyCorrelated(t *testing.T) {
	fixtures := []CorrelationFixture{
		{LeagueCode: "EPL", KickoffTS: 5000, Odds: Odds{Home: 2.0, Draw: 3.2, Away: 3.8}, DrawSignal: 0.4, LambdaTotal: 2.6},
		{LeagueCode: "EPL", KickoffTS: 5000, Odds: Odds{Home: 2.0, Draw: 3.2, Away: 3.8}, DrawSignal: 0.4, LambdaTotal: 2.6},
		{LeagueCode: "SerieA", KickoffTS: 999999, Odds: Odds{Home: 5.0, Draw: 3.0, Away: 1.5}, DrawSignal: 0.1, LambdaTotal: 1.9},
	}
	matrix := BuildCorrelationMatrix(fixtures)
	if matrix[0][1] <= matrix[0][2] {
		t.Errorf("expected identical same-league same-kickoff fixtures to correlate more strongly than an unrelated one: c01=%f c02=%f",
			matrix[0][1], matrix[0][2])
	}
}
