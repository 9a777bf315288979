package oracle

import (
	"context"
)

// LeagueStatsSource supplies the match history UpdateLeagueStatistics
// recomputes from; satisfied by store.Postgres/store.Memory via the
// same MatchesForTraining contract MTS uses.
type LeagueStatsSource interface {
	MatchesForTraining(ctx context.Context, leagueID string, windowYears int) ([]TrainingMatch, []string, error)
}

const leagueStatsWindowYears = 5

// UpdateLeagueStatistics recomputes avg_draw_rate directly (the observed
// draw frequency) and fits home_advantage against the observed home win
// rate via the genetic algorithm (genetic.go), adapted from the
// teacher's GeneticAlgorithm: a one-dimensional bounded search over h
// minimizing squared error between the Poisson-implied home win rate (at
// league-average team strengths) and what actually happened (§6 POST
// /admin/leagues/update-statistics).
func UpdateLeagueStatistics(ctx context.Context, source LeagueStatsSource, leagueID string) (avgDrawRate, homeAdvantage float64, err error) {
	matches, _, err := source.MatchesForTraining(ctx, leagueID, leagueStatsWindowYears)
	if err != nil {
		return 0, 0, err
	}
	if len(matches) == 0 {
		return DefaultAvgDrawRate, DefaultHomeAdvantage, nil
	}

	draws := 0
	homeWins := 0
	for _, m := range matches {
		switch {
		case m.HomeGoals == m.AwayGoals:
			draws++
		case m.HomeGoals > m.AwayGoals:
			homeWins++
		}
	}
	avgDrawRate = float64(draws) / float64(len(matches))
	observedHomeWinRate := float64(homeWins) / float64(len(matches))

	ga := NewGeneticAlgorithm()
	objective := func(genes []float64) float64 {
		h := genes[0]
		sm := NewScoreMatrix(1.0, 1.0, 1.0, 1.0, h, 0)
		pHome, _, _ := sm.MatchOdds()
		diff := pHome - observedHomeWinRate
		return diff * diff
	}
	best, _ := ga.Optimize(objective, []float64{DefaultHomeAdvantage}, [][2]float64{{0.0, 1.0}})
	homeAdvantage = clamp(best[0], 0, 1)

	return avgDrawRate, homeAdvantage, nil
}

