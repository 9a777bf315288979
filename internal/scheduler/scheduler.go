// Package scheduler runs the repo's periodic background jobs with
// robfig/cron, grounded on the cron.New/AddFunc/Start/Stop usage in the
// pack's NCAA ratings-sync service (other_examples,
// green_bier_sports_ncaam_model services-ratings-sync-go main.go).
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/jhw/fixtures-oracle/pkg/oracle"
)

// TeamLister is the narrow team-listing contract the feature-store sweep
// needs; FindTeamsByCanonicalName(ctx, "", nil) returns every team, same
// as the empty-filter call TR's own lookups use.
type TeamLister interface {
	FindTeamsByCanonicalName(ctx context.Context, canonical string, leagueID *string) ([]oracle.Team, error)
}

// DrawCalibrationChecker is the periodic fallback to the §6 auto-trigger,
// covering exported validation rows that accumulated while no
// /validation/export call crossed the retrain threshold.
type DrawCalibrationChecker interface {
	RetrainDrawCalibrationIfDue(ctx context.Context) (bool, error)
}

// Scheduler owns the process's background cron jobs.
type Scheduler struct {
	cron *cron.Cron
}

// New wires the two standing sweeps:
//   - feature-store refresh, nightly at 03:00, re-warming every team's
//     cached strengths well before the 7-day TTL (§4.6) would expire them.
//   - draw-calibration threshold check, hourly, in case a restart between
//     /validation/export calls left exported rows past §6's 500-sample
//     auto-trigger uncounted.
func New(teams TeamLister, features *oracle.FeatureStore, calibration DrawCalibrationChecker) *Scheduler {
	c := cron.New()
	c.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		refreshFeatures(ctx, teams, features)
	})
	c.AddFunc("0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if retrained, err := calibration.RetrainDrawCalibrationIfDue(ctx); err != nil {
			log.Error().Err(err).Msg("draw calibration threshold check failed")
		} else if retrained {
			log.Info().Msg("draw calibration retrained by scheduled sweep")
		}
	})
	return &Scheduler{cron: c}
}

func refreshFeatures(ctx context.Context, teams TeamLister, features *oracle.FeatureStore) {
	all, err := teams.FindTeamsByCanonicalName(ctx, "", nil)
	if err != nil {
		log.Error().Err(err).Msg("feature store sweep: listing teams failed")
		return
	}
	refreshed := 0
	for _, t := range all {
		if err := features.Refresh(ctx, t.ID); err != nil {
			log.Warn().Err(err).Str("team_id", t.ID).Msg("feature store sweep: refresh failed")
			continue
		}
		refreshed++
	}
	log.Info().Int("teams", refreshed).Msg("feature store sweep complete")
}

func (s *Scheduler) Start() { s.cron.Start() }
func (s *Scheduler) Stop()  { s.cron.Stop() }
