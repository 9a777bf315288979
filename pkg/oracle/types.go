package oracle

import "time"

// Outcome is the closed tagged variant over {H, D, A}. The design notes
// call out replacing ad-hoc dictionaries with exactly this: never range
// over an open-ended map of outcome names at runtime.
type Outcome string

const (
	OutcomeHome Outcome = "H"
	OutcomeDraw Outcome = "D"
	OutcomeAway Outcome = "A"
)

// SetKey names a probability-pipeline variant, A through J (§4.1, §9).
type SetKey string

const (
	SetA SetKey = "A"
	SetB SetKey = "B"
	SetC SetKey = "C"
	SetD SetKey = "D"
	SetE SetKey = "E"
	SetF SetKey = "F"
	SetG SetKey = "G"
	SetH SetKey = "H" // reserved, §9 open question
	SetI SetKey = "I" // reserved, §9 open question
	SetJ SetKey = "J" // reserved, §9 open question
)

// League is the owning scope for Team and Match, keyed by a short unique
// code (e.g. "EPL", "INT" for the synthetic international fixtures bucket).
type League struct {
	ID            string  `json:"id"`
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Country       string  `json:"country"`
	Tier          int     `json:"tier"`
	AvgDrawRate   float64 `json:"avg_draw_rate"`
	HomeAdvantage float64 `json:"home_advantage"`
	IsActive      bool    `json:"is_active"`
}

const (
	DefaultAvgDrawRate   = 0.26
	DefaultHomeAdvantage = 0.35
	InternationalLeague  = "INT"
	InternationalDrawPrior = 0.25 // §9: INT fixtures use a fixed default rather than a computed prior.
)

// NewLeague applies the §3 defaults for a freshly created league.
func NewLeague(code, name, country string, tier int) *League {
	return &League{
		ID:            NewID(),
		Code:          code,
		Name:          name,
		Country:       country,
		Tier:          tier,
		AvgDrawRate:   DefaultAvgDrawRate,
		HomeAdvantage: DefaultHomeAdvantage,
		IsActive:      true,
	}
}

// Team is never moved across leagues; the same name playing in a
// different league is a distinct Team row, uniqued on
// (canonical_name, league_id).
type Team struct {
	ID              string     `json:"id"`
	LeagueID        string     `json:"league_id"`
	Name            string     `json:"name"`
	CanonicalName   string     `json:"canonical_name"`
	AlternativeNames []string  `json:"alternative_names"`
	AttackRating    float64    `json:"attack_rating"`
	DefenseRating   float64    `json:"defense_rating"`
	HomeBias        float64    `json:"home_bias"`
	LastTrainedAt   *time.Time `json:"last_trained_at,omitempty"`
}

const (
	DefaultAttackRating  = 1.0
	DefaultDefenseRating = 1.0
	DefaultHomeBias      = 0.0
)

func NewTeam(leagueID, name, canonicalName string) *Team {
	return &Team{
		ID:            NewID(),
		LeagueID:      leagueID,
		Name:          name,
		CanonicalName: canonicalName,
		AttackRating:  DefaultAttackRating,
		DefenseRating: DefaultDefenseRating,
		HomeBias:      DefaultHomeBias,
	}
}

// Result is the derived H/D/A outcome of a finished match; nil until both
// goal counts are known.
type Result struct {
	Outcome Outcome
}

// Match is a historical, completed fixture ingested by IA, uniqued on
// (home_team_id, away_team_id, match_date).
type Match struct {
	ID             string     `json:"id"`
	LeagueID       string     `json:"league_id"`
	HomeTeamID     string     `json:"home_team_id"`
	AwayTeamID     string     `json:"away_team_id"`
	MatchDate      time.Time  `json:"match_date"`
	HomeGoals      int        `json:"home_goals"`
	AwayGoals      int        `json:"away_goals"`
	HTHomeGoals    *int       `json:"ht_home_goals,omitempty"`
	HTAwayGoals    *int       `json:"ht_away_goals,omitempty"`
	OddsHome       *float64   `json:"odds_home,omitempty"`
	OddsDraw       *float64   `json:"odds_draw,omitempty"`
	OddsAway       *float64   `json:"odds_away,omitempty"`
	SourceFile     *string    `json:"source_file,omitempty"`
	IngestionBatchID string   `json:"ingestion_batch_id"`
}

// DerivedResult computes the H/D/A outcome from goals.
func (m *Match) DerivedResult() Outcome {
	switch {
	case m.HomeGoals > m.AwayGoals:
		return OutcomeHome
	case m.HomeGoals < m.AwayGoals:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}

// ModelType is the closed set of trainable model kinds (§3 Model).
type ModelType string

const (
	ModelPoisson         ModelType = "poisson"
	ModelBlending        ModelType = "blending"
	ModelCalibration     ModelType = "calibration"
	ModelDrawCalibration ModelType = "draw_calibration"
)

type ModelStatus string

const (
	ModelTraining ModelStatus = "training"
	ModelActive   ModelStatus = "active"
	ModelArchived ModelStatus = "archived"
)

// TeamStrength is one row of a trained Poisson model's strength table.
type TeamStrength struct {
	Alpha float64 `json:"alpha"` // attack
	Beta  float64 `json:"beta"`  // defense
}

// PoissonWeights is the weights payload for a ModelPoisson row.
type PoissonWeights struct {
	Strengths     map[string]TeamStrength `json:"strengths"` // keyed by team id
	HomeAdvantage float64                 `json:"home_advantage"`
	Rho           float64                 `json:"rho"` // Dixon-Coles low-score correction
	Xi            float64                 `json:"xi"`  // time-decay exponent, §4.7 (~0.7)
}

// BlendingWeights is the weights payload for a ModelBlending row.
type BlendingWeights struct {
	Alpha float64 `json:"alpha"`
}

// IsotonicCurve is a piecewise-monotone map fit by MTS calibration
// training: parallel, ascending x (raw probability) / y (observed
// frequency) knots, interpolated piecewise-linearly between them.
type IsotonicCurve struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Apply maps a raw probability through the fitted curve.
func (c IsotonicCurve) Apply(p float64) float64 {
	if len(c.X) == 0 {
		return p
	}
	if p <= c.X[0] {
		return c.Y[0]
	}
	n := len(c.X)
	if p >= c.X[n-1] {
		return c.Y[n-1]
	}
	for i := 1; i < n; i++ {
		if p <= c.X[i] {
			x0, x1 := c.X[i-1], c.X[i]
			y0, y1 := c.Y[i-1], c.Y[i]
			if x1 == x0 {
				return y1
			}
			t := (p - x0) / (x1 - x0)
			return y0 + t*(y1-y0)
		}
	}
	return c.Y[n-1]
}

// CalibrationWeights is the weights payload for a ModelCalibration row:
// one isotonic curve per outcome.
type CalibrationWeights struct {
	Home IsotonicCurve `json:"home"`
	Draw IsotonicCurve `json:"draw"`
	Away IsotonicCurve `json:"away"`
}

// DrawCalibrationWeights is the weights payload for a
// ModelDrawCalibration row: a single curve applied only to p_D.
type DrawCalibrationWeights struct {
	Draw IsotonicCurve `json:"draw"`
}

// Model is a trained, versioned artifact. At most one row of each
// ModelType may have ModelStatus == ModelActive at a time.
type Model struct {
	ID               string      `json:"id"`
	Type             ModelType   `json:"type"`
	Version          string      `json:"version"`
	Status           ModelStatus `json:"status"`
	Weights          any         `json:"weights"` // one of *PoissonWeights, *BlendingWeights, *CalibrationWeights, *DrawCalibrationWeights
	TrainingLeagues  []string    `json:"training_leagues"`
	TrainingWindowYears int      `json:"training_window_years"`
	TrainingMatches  int         `json:"training_matches"`
	Temperature      float64     `json:"temperature"`
	CreatedAt        time.Time  `json:"created_at"`
}

const (
	TemperatureMin     = 0.8
	TemperatureMax     = 2.0
	DefaultTemperature = 1.0
)

// Odds is a closing or opening three-way price triple.
type Odds struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// Jackpot is an ordered set of fixtures treated as one multi-outcome
// contest.
type Jackpot struct {
	ID               string            `json:"id"`
	KickoffDate      time.Time         `json:"kickoff_date"`
	Fixtures         []JackpotFixture  `json:"fixtures"`
	PipelineMetadata *PipelineMetadata `json:"pipeline_metadata,omitempty"`
}

// JackpotFixture is one leg of a Jackpot, uniqued on (jackpot_id, match_order).
type JackpotFixture struct {
	ID            string     `json:"id"`
	JackpotID     string     `json:"jackpot_id"`
	MatchOrder    int        `json:"match_order"`
	HomeTeamName  string     `json:"home_team_name"`
	AwayTeamName  string     `json:"away_team_name"`
	HomeTeamID    *string    `json:"home_team_id,omitempty"`
	AwayTeamID    *string    `json:"away_team_id,omitempty"`
	LeagueID      *string    `json:"league_id,omitempty"`
	Odds          Odds       `json:"odds"`
	OpeningOdds   *Odds      `json:"opening_odds,omitempty"`
	KickoffTS     *time.Time `json:"kickoff_ts,omitempty"`
}

// DrawStructuralComponents records Stage 3's per-fixture diagnostic
// inputs alongside whatever survived to influence the final signal.
type DrawStructuralComponents struct {
	DrawSignal       float64  `json:"draw_signal"`
	MarketDrawProb   *float64 `json:"market_draw_prob,omitempty"`
	WeatherFactor    *float64 `json:"weather_factor,omitempty"`
	H2HDrawRate      *float64 `json:"h2h_draw_rate,omitempty"`
	LeagueDrawRate   *float64 `json:"league_draw_rate,omitempty"`
	LowTotalGoalsInd float64  `json:"low_total_goals_indicator"`
}

// Prediction is one (fixture, model, set_key) probability triple.
type Prediction struct {
	ID                       string                   `json:"id"`
	FixtureID                string                   `json:"fixture_id"`
	ModelID                  string                   `json:"model_id"`
	SetKey                   SetKey                   `json:"set_key"`
	ProbHome                 float64                  `json:"prob_home"`
	ProbDraw                 float64                  `json:"prob_draw"`
	ProbAway                 float64                  `json:"prob_away"`
	LambdaHome               float64                  `json:"lambda_home"`
	LambdaAway               float64                  `json:"lambda_away"`
	DrawStructuralComponents DrawStructuralComponents `json:"draw_structural_components"`
	Warnings                 []string                 `json:"warnings,omitempty"`
	CreatedAt                time.Time               `json:"created_at"`
}

// ValidationResult feeds MTS draw-calibration retraining: samples are
// (p_D_predicted, actual_is_draw) pairs.
type ValidationResult struct {
	ID              string  `json:"id"`
	FixtureID       string  `json:"fixture_id"`
	SetKey          SetKey  `json:"set_key"`
	ProbHome        float64 `json:"prob_home"`
	ProbDraw        float64 `json:"prob_draw"`
	ProbAway        float64 `json:"prob_away"`
	ActualResult    Outcome `json:"actual_result"`
	BrierScore      float64 `json:"brier_score"`
	LogLoss         float64 `json:"log_loss"`
	ExportedToTraining bool `json:"exported_to_training"`
}

const MinDrawCalibrationSamples = 500

// OddsMovement is the opening-vs-closing delta consulted by LSD.
type OddsMovement struct {
	ID        string  `json:"id"`
	FixtureID string  `json:"fixture_id"`
	Opening   Odds    `json:"opening"`
	Closing   Odds    `json:"closing"`
	DeltaDraw float64 `json:"delta_draw"`
}

// PipelineMetadata is AP's structured record of its last run for a
// jackpot (§4.2 idempotence).
type PipelineMetadata struct {
	TaskID string            `json:"task_id"`
	Stages map[string]string `json:"stages"` // stage name -> outcome summary
}
