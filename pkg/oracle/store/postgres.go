// Package store provides the §6 persisted-state implementations: a
// pgx-backed Postgres store for production and an in-memory store used
// by the CLI entrypoint's offline ingest mode.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhw/fixtures-oracle/pkg/oracle"
)

// Postgres implements every storage contract oracle's components need
// (TeamStore, MatchStore, LeagueReader, ModelStore, TrainingMatchSource,
// ValidationSource) against a single pgxpool.Pool, mirroring the
// teacher's preference for one small concrete type over a constellation
// of repositories.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgres(pool), nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// --- LeagueReader ---

func (p *Postgres) GetLeagueByCode(ctx context.Context, code string) (*oracle.League, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, code, name, country, tier, avg_draw_rate, home_advantage, is_active
		FROM leagues WHERE code = $1`, code)

	var l oracle.League
	err := row.Scan(&l.ID, &l.Code, &l.Name, &l.Country, &l.Tier, &l.AvgDrawRate, &l.HomeAdvantage, &l.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (p *Postgres) InsertLeague(ctx context.Context, l *oracle.League) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO leagues (id, code, name, country, tier, avg_draw_rate, home_advantage, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO NOTHING`,
		l.ID, l.Code, l.Name, l.Country, l.Tier, l.AvgDrawRate, l.HomeAdvantage, l.IsActive)
	return err
}

// UpdateLeagueStatistics refreshes avg_draw_rate and home_advantage
// (§6 POST /admin/leagues/update-statistics).
func (p *Postgres) UpdateLeagueStatistics(ctx context.Context, leagueID string, avgDrawRate, homeAdvantage float64) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE leagues SET avg_draw_rate = $2, home_advantage = $3 WHERE id = $1`,
		leagueID, avgDrawRate, homeAdvantage)
	return err
}

// --- TeamStore ---

func (p *Postgres) FindTeamsByCanonicalName(ctx context.Context, canonical string, leagueID *string) ([]oracle.Team, error) {
	var rows pgx.Rows
	var err error
	if canonical == "" {
		rows, err = p.pool.Query(ctx, `
			SELECT id, league_id, name, canonical_name, alternative_names, attack_rating, defense_rating, home_bias, last_trained_at
			FROM teams WHERE ($1::text IS NULL OR league_id = $1)
			ORDER BY canonical_name`, leagueID)
	} else {
		rows, err = p.pool.Query(ctx, `
			SELECT id, league_id, name, canonical_name, alternative_names, attack_rating, defense_rating, home_bias, last_trained_at
			FROM teams
			WHERE canonical_name = $1 AND ($2::text IS NULL OR league_id = $2)
			ORDER BY canonical_name`, canonical, leagueID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []oracle.Team
	for rows.Next() {
		var t oracle.Team
		if err := rows.Scan(&t.ID, &t.LeagueID, &t.Name, &t.CanonicalName, &t.AlternativeNames, &t.AttackRating, &t.DefenseRating, &t.HomeBias, &t.LastTrainedAt); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (p *Postgres) InsertTeam(ctx context.Context, t *oracle.Team) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO teams (id, league_id, name, canonical_name, alternative_names, attack_rating, defense_rating, home_bias)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (canonical_name, league_id) DO NOTHING`,
		t.ID, t.LeagueID, t.Name, t.CanonicalName, t.AlternativeNames, t.AttackRating, t.DefenseRating, t.HomeBias)
	return err
}

func (p *Postgres) GetTeam(ctx context.Context, teamID string) (*oracle.Team, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, league_id, name, canonical_name, alternative_names, attack_rating, defense_rating, home_bias, last_trained_at
		FROM teams WHERE id = $1`, teamID)

	var t oracle.Team
	err := row.Scan(&t.ID, &t.LeagueID, &t.Name, &t.CanonicalName, &t.AlternativeNames, &t.AttackRating, &t.DefenseRating, &t.HomeBias, &t.LastTrainedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// --- MatchStore ---

// UpsertMatch implements the §4.4 step 6 conflict policy: closing odds
// and scores always refresh, but source_file/batch_id are preserved
// unless the existing row had them null.
func (p *Postgres) UpsertMatch(ctx context.Context, m *oracle.Match) (bool, error) {
	var inserted bool
	err := p.pool.QueryRow(ctx, `
		INSERT INTO matches (id, league_id, home_team_id, away_team_id, match_date, home_goals, away_goals,
			ht_home_goals, ht_away_goals, odds_home, odds_draw, odds_away, source_file, ingestion_batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (home_team_id, away_team_id, match_date) DO UPDATE SET
			home_goals = EXCLUDED.home_goals,
			away_goals = EXCLUDED.away_goals,
			odds_home = EXCLUDED.odds_home,
			odds_draw = EXCLUDED.odds_draw,
			odds_away = EXCLUDED.odds_away,
			source_file = COALESCE(matches.source_file, EXCLUDED.source_file),
			ingestion_batch_id = COALESCE(NULLIF(matches.ingestion_batch_id, ''), EXCLUDED.ingestion_batch_id)
		RETURNING (xmax = 0)`,
		m.ID, m.LeagueID, m.HomeTeamID, m.AwayTeamID, m.MatchDate, m.HomeGoals, m.AwayGoals,
		m.HTHomeGoals, m.HTAwayGoals, m.OddsHome, m.OddsDraw, m.OddsAway, m.SourceFile, m.IngestionBatchID).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (p *Postgres) MatchesForTraining(ctx context.Context, leagueID string, windowYears int) ([]oracle.TrainingMatch, []string, error) {
	cutoff := time.Now().AddDate(-windowYears, 0, 0)
	rows, err := p.pool.Query(ctx, `
		SELECT home_team_id, away_team_id, home_goals, away_goals, match_date, odds_home, odds_draw, odds_away
		FROM matches WHERE league_id = $1 AND match_date >= $2
		ORDER BY match_date`, leagueID, cutoff)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	teamSet := make(map[string]struct{})
	var matches []oracle.TrainingMatch
	for rows.Next() {
		var tm oracle.TrainingMatch
		var oh, od, oa *float64
		if err := rows.Scan(&tm.HomeTeamID, &tm.AwayTeamID, &tm.HomeGoals, &tm.AwayGoals, &tm.MatchDate, &oh, &od, &oa); err != nil {
			return nil, nil, err
		}
		if oh != nil && od != nil && oa != nil {
			tm.Odds = &oracle.Odds{Home: *oh, Draw: *od, Away: *oa}
		}
		teamSet[tm.HomeTeamID] = struct{}{}
		teamSet[tm.AwayTeamID] = struct{}{}
		matches = append(matches, tm)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	teamIDs := make([]string, 0, len(teamSet))
	for id := range teamSet {
		teamIDs = append(teamIDs, id)
	}
	return matches, teamIDs, nil
}

// HeldOutSamples assembles (model, market, actual) triples from a
// league's matches that carry closing odds (§4.7): the model side is the
// base Poisson/Dixon-Coles triple from each match's two teams' stored
// ratings (falling back to default ratings per §4.1 Stage 1 when a team
// row is missing), the market side inverts the stored closing odds.
func (p *Postgres) HeldOutSamples(ctx context.Context, leagueID string) ([]oracle.BlendingSample, []oracle.CalibrationSample, error) {
	homeAdvantage := oracle.DefaultHomeAdvantage
	if err := p.pool.QueryRow(ctx, `SELECT home_advantage FROM leagues WHERE id = $1`, leagueID).Scan(&homeAdvantage); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT m.home_goals, m.away_goals, m.odds_home, m.odds_draw, m.odds_away,
		       COALESCE(ht.attack_rating, 1.0), COALESCE(ht.defense_rating, 1.0),
		       COALESCE(at.attack_rating, 1.0), COALESCE(at.defense_rating, 1.0)
		FROM matches m
		LEFT JOIN teams ht ON ht.id = m.home_team_id
		LEFT JOIN teams at ON at.id = m.away_team_id
		WHERE m.league_id = $1 AND m.odds_home IS NOT NULL AND m.odds_draw IS NOT NULL AND m.odds_away IS NOT NULL`, leagueID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var blending []oracle.BlendingSample
	var calibration []oracle.CalibrationSample
	for rows.Next() {
		var homeGoals, awayGoals int
		var oddsHome, oddsDraw, oddsAway float64
		var attackHome, defenseHome, attackAway, defenseAway float64
		if err := rows.Scan(&homeGoals, &awayGoals, &oddsHome, &oddsDraw, &oddsAway,
			&attackHome, &defenseHome, &attackAway, &defenseAway); err != nil {
			return nil, nil, err
		}

		sm := oracle.NewScoreMatrix(attackHome, defenseHome, attackAway, defenseAway, homeAdvantage, 0)
		h, d, a := sm.MatchOdds()
		model := oracle.Triple{Home: h, Draw: d, Away: a}

		mh, md, ma := oracle.ImpliedProbabilities(oracle.Odds{Home: oddsHome, Draw: oddsDraw, Away: oddsAway})
		market := oracle.Triple{Home: mh, Draw: md, Away: ma}

		match := oracle.Match{HomeGoals: homeGoals, AwayGoals: awayGoals}
		actual := match.DerivedResult()

		blending = append(blending, oracle.BlendingSample{Model: model, Market: market, Actual: actual})
		calibration = append(calibration, oracle.CalibrationSample{Predicted: model, Actual: actual})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return blending, calibration, nil
}

// --- ModelStore ---

func (p *Postgres) GetActiveModel(ctx context.Context, t oracle.ModelType) (*oracle.Model, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, type, version, status, weights, training_leagues, training_window_years, training_matches, temperature, created_at
		FROM models WHERE type = $1 AND status = 'active'`, string(t))

	var m oracle.Model
	var weightsRaw []byte
	var trainingLeagues []string
	err := row.Scan(&m.ID, &m.Type, &m.Version, &m.Status, &weightsRaw, &trainingLeagues, &m.TrainingWindowYears, &m.TrainingMatches, &m.Temperature, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.TrainingLeagues = trainingLeagues
	m.Weights, err = unmarshalWeights(t, weightsRaw)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (p *Postgres) InsertModel(ctx context.Context, m *oracle.Model) error {
	weightsRaw, err := json.Marshal(m.Weights)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO models (id, type, version, status, weights, training_leagues, training_window_years, training_matches, temperature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, string(m.Type), m.Version, string(m.Status), weightsRaw, m.TrainingLeagues, m.TrainingWindowYears, m.TrainingMatches, m.Temperature, m.CreatedAt)
	return err
}

// ActivateModel flips status atomically: the new row to active, the
// prior active row of the same type to archived, in one transaction
// (§5 "writers use an exclusive-write transaction").
func (p *Postgres) ActivateModel(ctx context.Context, m *oracle.Model) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE models SET status = 'archived' WHERE type = $1 AND status = 'active'`, string(m.Type)); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE models SET status = 'active' WHERE id = $1 AND status = 'training'`, m.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("model activation conflict: row not in training status")
	}
	return tx.Commit(ctx)
}

func unmarshalWeights(t oracle.ModelType, raw []byte) (any, error) {
	switch t {
	case oracle.ModelPoisson:
		var w oracle.PoissonWeights
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return &w, nil
	case oracle.ModelBlending:
		var w oracle.BlendingWeights
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return &w, nil
	case oracle.ModelCalibration:
		var w oracle.CalibrationWeights
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return &w, nil
	case oracle.ModelDrawCalibration:
		var w oracle.DrawCalibrationWeights
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return &w, nil
	default:
		return nil, errors.New("unknown model type " + string(t))
	}
}

// --- ValidationSource ---

func (p *Postgres) ExportedValidationResults(ctx context.Context) ([]oracle.ValidationResult, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, fixture_id, set_key, prob_home, prob_draw, prob_away, actual_result, brier_score, log_loss, exported_to_training
		FROM validation_results WHERE exported_to_training = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []oracle.ValidationResult
	for rows.Next() {
		var v oracle.ValidationResult
		if err := rows.Scan(&v.ID, &v.FixtureID, &v.SetKey, &v.ProbHome, &v.ProbDraw, &v.ProbAway, &v.ActualResult, &v.BrierScore, &v.LogLoss, &v.ExportedToTraining); err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

func (p *Postgres) InsertValidationResult(ctx context.Context, v *oracle.ValidationResult) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO validation_results (id, fixture_id, set_key, prob_home, prob_draw, prob_away, actual_result, brier_score, log_loss, exported_to_training)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		v.ID, v.FixtureID, string(v.SetKey), v.ProbHome, v.ProbDraw, v.ProbAway, string(v.ActualResult), v.BrierScore, v.LogLoss, v.ExportedToTraining)
	return err
}

// CountExportedValidationResults supports the §6 auto-trigger threshold
// ("cumulative exported pairs >= 500").
func (p *Postgres) CountExportedValidationResults(ctx context.Context) (int, error) {
	row := p.pool.QueryRow(ctx, `SELECT count(*) FROM validation_results WHERE exported_to_training = true`)
	var n int
	err := row.Scan(&n)
	return n, err
}

// --- Jackpots ---

func (p *Postgres) InsertJackpot(ctx context.Context, j *oracle.Jackpot) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO jackpots (id, kickoff_date) VALUES ($1, $2)`, j.ID, j.KickoffDate); err != nil {
		return err
	}
	for _, f := range j.Fixtures {
		if _, err := tx.Exec(ctx, `
			INSERT INTO jackpot_fixtures (id, jackpot_id, match_order, home_team_name, away_team_name, home_team_id, away_team_id, league_id, odds_home, odds_draw, odds_away, kickoff_ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			f.ID, j.ID, f.MatchOrder, f.HomeTeamName, f.AwayTeamName, f.HomeTeamID, f.AwayTeamID, f.LeagueID, f.Odds.Home, f.Odds.Draw, f.Odds.Away, f.KickoffTS); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) GetJackpot(ctx context.Context, id string) (*oracle.Jackpot, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, kickoff_date FROM jackpots WHERE id = $1`, id)
	var j oracle.Jackpot
	if err := row.Scan(&j.ID, &j.KickoffDate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, jackpot_id, match_order, home_team_name, away_team_name, home_team_id, away_team_id, league_id, odds_home, odds_draw, odds_away, kickoff_ts
		FROM jackpot_fixtures WHERE jackpot_id = $1 ORDER BY match_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var f oracle.JackpotFixture
		if err := rows.Scan(&f.ID, &f.JackpotID, &f.MatchOrder, &f.HomeTeamName, &f.AwayTeamName, &f.HomeTeamID, &f.AwayTeamID, &f.LeagueID, &f.Odds.Home, &f.Odds.Draw, &f.Odds.Away, &f.KickoffTS); err != nil {
			return nil, err
		}
		j.Fixtures = append(j.Fixtures, f)
	}
	return &j, rows.Err()
}

func (p *Postgres) InsertPrediction(ctx context.Context, pr *oracle.Prediction) error {
	components, err := json.Marshal(pr.DrawStructuralComponents)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO predictions (id, fixture_id, model_id, set_key, prob_home, prob_draw, prob_away, lambda_home, lambda_away, draw_structural_components, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pr.ID, pr.FixtureID, pr.ModelID, pr.SetKey, pr.ProbHome, pr.ProbDraw, pr.ProbAway, pr.LambdaHome, pr.LambdaAway, components, pr.CreatedAt)
	return err
}

func (p *Postgres) PredictionsForJackpot(ctx context.Context, jackpotID string) ([]oracle.Prediction, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT pr.id, pr.fixture_id, pr.model_id, pr.set_key, pr.prob_home, pr.prob_draw, pr.prob_away, pr.lambda_home, pr.lambda_away, pr.draw_structural_components, pr.created_at
		FROM predictions pr
		JOIN jackpot_fixtures jf ON jf.id = pr.fixture_id
		WHERE jf.jackpot_id = $1
		ORDER BY jf.match_order`, jackpotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []oracle.Prediction
	for rows.Next() {
		var pr oracle.Prediction
		var components []byte
		if err := rows.Scan(&pr.ID, &pr.FixtureID, &pr.ModelID, &pr.SetKey, &pr.ProbHome, &pr.ProbDraw, &pr.ProbAway, &pr.LambdaHome, &pr.LambdaAway, &components, &pr.CreatedAt); err != nil {
			return nil, err
		}
		if len(components) > 0 {
			if err := json.Unmarshal(components, &pr.DrawStructuralComponents); err != nil {
				return nil, err
			}
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}
