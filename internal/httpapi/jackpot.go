package httpapi

import (
	"context"
	"time"

	"github.com/jhw/fixtures-oracle/pkg/oracle"
)

// allSetKeys is the canonical A-G ordering used whenever a request
// omits set_keys; H/I/J stay reserved and are never defaulted to.
var allSetKeys = []oracle.SetKey{oracle.SetA, oracle.SetB, oracle.SetC, oracle.SetD, oracle.SetE, oracle.SetF, oracle.SetG}

// resolvedFixture bundles a jackpot fixture with the team strengths and
// league context RunPipeline needs, resolved once per compute call.
type resolvedFixture struct {
	fixture    oracle.JackpotFixture
	leagueCode string
	drawRate   float64
	homeAdv    float64
	home, away oracle.TeamFeatures
	fallback   bool
}

func (s *Server) resolveFixtures(ctx context.Context, jackpot *oracle.Jackpot) ([]resolvedFixture, error) {
	resolved := make([]resolvedFixture, 0, len(jackpot.Fixtures))
	for _, f := range jackpot.Fixtures {
		leagueCode := oracle.InternationalLeague
		drawRate := oracle.DefaultAvgDrawRate
		homeAdv := oracle.DefaultHomeAdvantage
		if f.LeagueID != nil {
			if league, err := s.Leagues.GetLeagueByCode(ctx, *f.LeagueID); err != nil {
				return nil, err
			} else if league != nil {
				leagueCode = league.Code
				drawRate = league.AvgDrawRate
				homeAdv = league.HomeAdvantage
			}
		}

		fallback := false
		home := oracle.TeamFeatures{Attack: oracle.DefaultAttackRating, Defense: oracle.DefaultDefenseRating, HomeBias: oracle.DefaultHomeBias}
		away := home
		if f.HomeTeamID != nil {
			v, err := s.FeatureStore.Get(ctx, *f.HomeTeamID)
			if err != nil {
				return nil, err
			}
			home = v
		} else {
			fallback = true
		}
		if f.AwayTeamID != nil {
			v, err := s.FeatureStore.Get(ctx, *f.AwayTeamID)
			if err != nil {
				return nil, err
			}
			away = v
		} else {
			fallback = true
		}

		resolved = append(resolved, resolvedFixture{
			fixture: f, leagueCode: leagueCode, drawRate: drawRate, homeAdv: homeAdv + home.HomeBias,
			home: home, away: away, fallback: fallback,
		})
	}
	return resolved, nil
}

// computeSet runs RunPipeline for one resolved fixture and set_key,
// pulling whatever calibration models are currently active.
func (s *Server) computeSet(ctx context.Context, rf resolvedFixture, set oracle.SetKey) (oracle.StageResult, error) {
	var calibration *oracle.CalibrationWeights
	if m, err := s.ModelCache.Get(ctx, oracle.ModelCalibration); err != nil {
		return oracle.StageResult{}, err
	} else if m != nil {
		calibration, _ = m.Weights.(*oracle.CalibrationWeights)
	}
	var drawCal *oracle.DrawCalibrationWeights
	if m, err := s.ModelCache.Get(ctx, oracle.ModelDrawCalibration); err != nil {
		return oracle.StageResult{}, err
	} else if m != nil {
		drawCal, _ = m.Weights.(*oracle.DrawCalibrationWeights)
	}

	rho := 0.0
	poisson, err := s.ModelCache.Get(ctx, oracle.ModelPoisson)
	if err != nil {
		return oracle.StageResult{}, err
	}
	if poisson == nil {
		return oracle.StageResult{}, oracle.NewError(oracle.CodeNoActiveModel, "no active poisson model")
	}
	if pw, ok := poisson.Weights.(*oracle.PoissonWeights); ok {
		rho = pw.Rho
	}

	alpha := 1.0
	if m, err := s.ModelCache.Get(ctx, oracle.ModelBlending); err != nil {
		return oracle.StageResult{}, err
	} else if m != nil {
		if bw, ok := m.Weights.(*oracle.BlendingWeights); ok {
			alpha = bw.Alpha
		}
	}
	_, marketDraw, _ := oracle.ImpliedProbabilities(rf.fixture.Odds)
	in := oracle.FixtureInputs{
		AlphaHome: rf.home.Attack, BetaHome: rf.home.Defense,
		AlphaAway: rf.away.Attack, BetaAway: rf.away.Defense,
		HomeAdvantage:     rf.homeAdv,
		LeagueCode:        rf.leagueCode,
		LeagueAvgDrawRate: rf.drawRate,
		Rho:               rho,
		Temperature:       oracle.DefaultTemperature,
		BlendingAlpha:     alpha,
		Calibration:       calibration,
		DrawCalibration:   drawCal,
		ClosingOdds:       &rf.fixture.Odds,
		DrawSignalInputs:  oracle.DrawSignalInputs{MarketDrawProb: &marketDraw, LeagueDrawRate: &rf.drawRate},
		TeamDataFallback:  rf.fallback,
	}
	return oracle.RunPipeline(in, set)
}

// RecomputeJackpot implements oracle.PipelineRunner: runs every A-G set
// for every fixture in the jackpot and persists the result rows.
func (s *Server) RecomputeJackpot(ctx context.Context, jackpotID string) error {
	jackpot, err := s.Jackpots.GetJackpot(ctx, jackpotID)
	if err != nil {
		return err
	}
	if jackpot == nil {
		return oracle.NewError(oracle.CodeInputValidation, "jackpot %s not found", jackpotID)
	}
	resolved, err := s.resolveFixtures(ctx, jackpot)
	if err != nil {
		return err
	}

	modelID := ""
	if m, err := s.ModelCache.Get(ctx, oracle.ModelPoisson); err == nil && m != nil {
		modelID = m.ID
	}

	for _, rf := range resolved {
		for _, set := range allSetKeys {
			result, err := s.computeSet(ctx, rf, set)
			if err != nil {
				return err
			}
			pred := &oracle.Prediction{
				ID:                       oracle.NewID(),
				FixtureID:                rf.fixture.ID,
				ModelID:                  modelID,
				SetKey:                   set,
				ProbHome:                 result.Triple.Home,
				ProbDraw:                 result.Triple.Draw,
				ProbAway:                 result.Triple.Away,
				LambdaHome:               result.Lambdas[0],
				LambdaAway:               result.Lambdas[1],
				DrawStructuralComponents: result.Components,
				Warnings:                 result.Warnings,
				CreatedAt:                time.Now(),
			}
			if err := s.Predictions.InsertPrediction(ctx, pred); err != nil {
				return err
			}
		}
	}
	return nil
}
