package oracle

import (
	"context"
	"testing"
	"time"
)

type fakeLeagueStatsSource struct {
	matches []TrainingMatch
	err     error
}

func (f *fakeLeagueStatsSource) MatchesForTraining(_ context.Context, _ string, _ int) ([]TrainingMatch, []string, error) {
	return f.matches, nil, f.err
}

func TestUpdateLeagueStatisticsNoMatchesReturnsDefaults(t *testing.T) {
	source := &fakeLeagueStatsSource{}
	avgDraw, homeAdv, err := UpdateLeagueStatistics(context.Background(), source, "EPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if avgDraw != DefaultAvgDrawRate || homeAdv != DefaultHomeAdvantage {
		t.Errorf("expected defaults for an empty match history, got avgDraw=%f homeAdv=%f", avgDraw, homeAdv)
	}
}

func TestUpdateLeagueStatisticsComputesObservedDrawRate(t *testing.T) {
	base := time.Now()
	matches := []TrainingMatch{
		{HomeGoals: 1, AwayGoals: 1, MatchDate: base},
		{HomeGoals: 2, AwayGoals: 0, MatchDate: base},
		{HomeGoals: 1, AwayGoals: 1, MatchDate: base},
		{HomeGoals: 0, AwayGoals: 3, MatchDate: base},
	}
	source := &fakeLeagueStatsSource{matches: matches}
	avgDraw, homeAdv, err := UpdateLeagueStatistics(context.Background(), source, "EPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if abs(avgDraw-0.5) > 1e-9 {
		t.Errorf("expected avg draw rate 0.5 (2 of 4 matches drawn), got %f", avgDraw)
	}
	if homeAdv < 0 || homeAdv > 1 {
		t.Errorf("home advantage %f outside fitted bounds [0,1]", homeAdv)
	}
}

func TestUpdateLeagueStatisticsPropagatesSourceError(t *testing.T) {
	source := &fakeLeagueStatsSource{err: NewError(CodeUpstreamUnavailable, "db down")}
	_, _, err := UpdateLeagueStatistics(context.Background(), source, "EPL")
	if err == nil {
		t.Fatal("expected source error to propagate")
	}
}
