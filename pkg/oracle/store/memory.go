package store

import (
	"context"
	"sync"
	"time"

	"github.com/jhw/fixtures-oracle/pkg/oracle"
)

// Memory is an in-process implementation of every storage contract,
// used by the CLI's offline ingest mode where standing up Postgres
// isn't warranted. Mirrors the teacher's preference for exercising its
// algorithms directly against plain structs rather than a database.
type Memory struct {
	mu sync.Mutex

	leagues           map[string]*oracle.League // by code
	teams             map[string]*oracle.Team   // by id
	matches           map[string]*oracle.Match  // by id
	matchKeyIndex     map[string]string         // (home,away,date) -> match id
	models            map[oracle.ModelType][]*oracle.Model
	jackpots          map[string]*oracle.Jackpot
	validationResults []oracle.ValidationResult
	predictions       []oracle.Prediction
}

func NewMemory() *Memory {
	return &Memory{
		leagues:       make(map[string]*oracle.League),
		teams:         make(map[string]*oracle.Team),
		matches:       make(map[string]*oracle.Match),
		matchKeyIndex: make(map[string]string),
		models:        make(map[oracle.ModelType][]*oracle.Model),
		jackpots:      make(map[string]*oracle.Jackpot),
	}
}

// --- LeagueReader ---

func (m *Memory) GetLeagueByCode(ctx context.Context, code string) (*oracle.League, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leagues[code]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *Memory) InsertLeague(ctx context.Context, l *oracle.League) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.leagues[l.Code]; exists {
		return nil
	}
	cp := *l
	m.leagues[l.Code] = &cp
	return nil
}

func (m *Memory) UpdateLeagueStatistics(ctx context.Context, leagueID string, avgDrawRate, homeAdvantage float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leagues {
		if l.ID == leagueID {
			l.AvgDrawRate = avgDrawRate
			l.HomeAdvantage = homeAdvantage
			return nil
		}
	}
	return nil
}

// --- TeamStore ---

func (m *Memory) FindTeamsByCanonicalName(ctx context.Context, canonical string, leagueID *string) ([]oracle.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []oracle.Team
	for _, t := range m.teams {
		if leagueID != nil && t.LeagueID != *leagueID {
			continue
		}
		if canonical != "" && t.CanonicalName != canonical {
			continue
		}
		matches = append(matches, *t)
	}
	return matches, nil
}

func (m *Memory) InsertTeam(ctx context.Context, t *oracle.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.teams {
		if existing.CanonicalName == t.CanonicalName && existing.LeagueID == t.LeagueID {
			return nil // unique-constraint conflict treated as success, §4.5
		}
	}
	cp := *t
	m.teams[t.ID] = &cp
	return nil
}

func (m *Memory) GetTeam(ctx context.Context, teamID string) (*oracle.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// --- MatchStore ---

func matchKey(homeID, awayID string, date time.Time) string {
	return homeID + "|" + awayID + "|" + date.Format("2006-01-02")
}

func (m *Memory) UpsertMatch(ctx context.Context, match *oracle.Match) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := matchKey(match.HomeTeamID, match.AwayTeamID, match.MatchDate)
	if existingID, ok := m.matchKeyIndex[key]; ok {
		existing := m.matches[existingID]
		existing.HomeGoals = match.HomeGoals
		existing.AwayGoals = match.AwayGoals
		existing.OddsHome = match.OddsHome
		existing.OddsDraw = match.OddsDraw
		existing.OddsAway = match.OddsAway
		if existing.SourceFile == nil {
			existing.SourceFile = match.SourceFile
		}
		if existing.IngestionBatchID == "" {
			existing.IngestionBatchID = match.IngestionBatchID
		}
		return false, nil
	}

	cp := *match
	m.matches[match.ID] = &cp
	m.matchKeyIndex[key] = match.ID
	return true, nil
}

func (m *Memory) MatchesForTraining(ctx context.Context, leagueID string, windowYears int) ([]oracle.TrainingMatch, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(-windowYears, 0, 0)
	teamSet := make(map[string]struct{})
	var result []oracle.TrainingMatch
	for _, match := range m.matches {
		if match.LeagueID != leagueID || match.MatchDate.Before(cutoff) {
			continue
		}
		tm := oracle.TrainingMatch{
			HomeTeamID: match.HomeTeamID,
			AwayTeamID: match.AwayTeamID,
			HomeGoals:  match.HomeGoals,
			AwayGoals:  match.AwayGoals,
			MatchDate:  match.MatchDate,
		}
		if match.OddsHome != nil && match.OddsDraw != nil && match.OddsAway != nil {
			tm.Odds = &oracle.Odds{Home: *match.OddsHome, Draw: *match.OddsDraw, Away: *match.OddsAway}
		}
		teamSet[match.HomeTeamID] = struct{}{}
		teamSet[match.AwayTeamID] = struct{}{}
		result = append(result, tm)
	}
	teamIDs := make([]string, 0, len(teamSet))
	for id := range teamSet {
		teamIDs = append(teamIDs, id)
	}
	return result, teamIDs, nil
}

// HeldOutSamples assembles (model, market, actual) triples from stored
// matches carrying closing odds, for blending/calibration training
// (§4.7): the "model" side is the base Poisson/Dixon-Coles triple from
// each match's resolved team strengths (falling back to default ratings
// per §4.1 Stage 1), the "market" side inverts the stored closing odds.
func (m *Memory) HeldOutSamples(ctx context.Context, leagueID string) ([]oracle.BlendingSample, []oracle.CalibrationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	homeAdvantage := oracle.DefaultHomeAdvantage
	for _, l := range m.leagues {
		if l.ID == leagueID {
			homeAdvantage = l.HomeAdvantage
			break
		}
	}

	var blending []oracle.BlendingSample
	var calibration []oracle.CalibrationSample
	for _, match := range m.matches {
		if match.LeagueID != leagueID {
			continue
		}
		if match.OddsHome == nil || match.OddsDraw == nil || match.OddsAway == nil {
			continue
		}

		attackHome, defenseHome := oracle.DefaultAttackRating, oracle.DefaultDefenseRating
		if home, ok := m.teams[match.HomeTeamID]; ok {
			attackHome, defenseHome = home.AttackRating, home.DefenseRating
		}
		attackAway, defenseAway := oracle.DefaultAttackRating, oracle.DefaultDefenseRating
		if away, ok := m.teams[match.AwayTeamID]; ok {
			attackAway, defenseAway = away.AttackRating, away.DefenseRating
		}

		sm := oracle.NewScoreMatrix(attackHome, defenseHome, attackAway, defenseAway, homeAdvantage, 0)
		h, d, a := sm.MatchOdds()
		model := oracle.Triple{Home: h, Draw: d, Away: a}

		mh, md, ma := oracle.ImpliedProbabilities(oracle.Odds{Home: *match.OddsHome, Draw: *match.OddsDraw, Away: *match.OddsAway})
		market := oracle.Triple{Home: mh, Draw: md, Away: ma}

		actual := match.DerivedResult()
		blending = append(blending, oracle.BlendingSample{Model: model, Market: market, Actual: actual})
		calibration = append(calibration, oracle.CalibrationSample{Predicted: model, Actual: actual})
	}
	return blending, calibration, nil
}

// --- ModelStore ---

func (m *Memory) GetActiveModel(ctx context.Context, t oracle.ModelType) (*oracle.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, model := range m.models[t] {
		if model.Status == oracle.ModelActive {
			cp := *model
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertModel(ctx context.Context, model *oracle.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *model
	m.models[model.Type] = append(m.models[model.Type], &cp)
	return nil
}

func (m *Memory) ActivateModel(ctx context.Context, model *oracle.Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *oracle.Model
	for _, existing := range m.models[model.Type] {
		if existing.ID == model.ID {
			target = existing
		} else if existing.Status == oracle.ModelActive {
			existing.Status = oracle.ModelArchived
		}
	}
	if target == nil {
		return oracle.NewError(oracle.CodeConflictActivation, "model %s not found for activation", model.ID)
	}
	target.Status = oracle.ModelActive
	return nil
}

// --- ValidationSource ---

func (m *Memory) ExportedValidationResults(ctx context.Context) ([]oracle.ValidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var exported []oracle.ValidationResult
	for _, v := range m.validationResults {
		if v.ExportedToTraining {
			exported = append(exported, v)
		}
	}
	return exported, nil
}

func (m *Memory) InsertValidationResult(ctx context.Context, v *oracle.ValidationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validationResults = append(m.validationResults, *v)
	return nil
}

func (m *Memory) CountExportedValidationResults(ctx context.Context) (int, error) {
	results, _ := m.ExportedValidationResults(ctx)
	return len(results), nil
}

// --- Jackpots ---

func (m *Memory) InsertJackpot(ctx context.Context, j *oracle.Jackpot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jackpots[j.ID] = &cp
	return nil
}

func (m *Memory) GetJackpot(ctx context.Context, id string) (*oracle.Jackpot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jackpots[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

// --- Predictions ---

func (m *Memory) InsertPrediction(ctx context.Context, p *oracle.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions = append(m.predictions, *p)
	return nil
}

func (m *Memory) PredictionsForJackpot(ctx context.Context, jackpotID string) ([]oracle.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jackpots[jackpotID]
	if !ok {
		return nil, nil
	}
	fixtureIDs := make(map[string]bool, len(j.Fixtures))
	for _, f := range j.Fixtures {
		fixtureIDs[f.ID] = true
	}
	var out []oracle.Prediction
	for _, p := range m.predictions {
		if fixtureIDs[p.FixtureID] {
			out = append(out, p)
		}
	}
	return out, nil
}
