package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jhw/fixtures-oracle/pkg/oracle"
)

// --- POST /jackpots ---

type createJackpotFixtureReq struct {
	HomeTeam    string      `json:"home_team"`
	AwayTeam    string      `json:"away_team"`
	LeagueCode  *string     `json:"league_code,omitempty"`
	Odds        oracle.Odds `json:"odds"`
	OpeningOdds *oracle.Odds `json:"opening_odds,omitempty"`
	KickoffTS   *time.Time  `json:"kickoff_ts,omitempty"`
}

type createJackpotReq struct {
	KickoffDate time.Time                 `json:"kickoff_date"`
	Fixtures    []createJackpotFixtureReq `json:"fixtures"`
}

func (s *Server) handleCreateJackpot(w http.ResponseWriter, r *http.Request) {
	var req createJackpotReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if len(req.Fixtures) == 0 {
		writeErr(w, oracle.NewError(oracle.CodeInputValidation, "jackpot requires at least one fixture"))
		return
	}

	ctx := r.Context()
	jackpot := &oracle.Jackpot{ID: oracle.NewID(), KickoffDate: req.KickoffDate}
	for i, fr := range req.Fixtures {
		var leagueID *string
		if fr.LeagueCode != nil {
			league, err := s.Leagues.GetLeagueByCode(ctx, *fr.LeagueCode)
			if err != nil {
				writeErr(w, err)
				return
			}
			if league != nil {
				leagueID = &league.ID
			}
		}

		homeTeam, err := s.Resolver.Resolve(ctx, fr.HomeTeam, leagueID)
		if err != nil {
			writeErr(w, err)
			return
		}
		awayTeam, err := s.Resolver.Resolve(ctx, fr.AwayTeam, leagueID)
		if err != nil {
			writeErr(w, err)
			return
		}

		fixture := oracle.JackpotFixture{
			ID: oracle.NewID(), JackpotID: jackpot.ID, MatchOrder: i + 1,
			HomeTeamName: fr.HomeTeam, AwayTeamName: fr.AwayTeam,
			LeagueID: leagueID, Odds: fr.Odds, OpeningOdds: fr.OpeningOdds, KickoffTS: fr.KickoffTS,
		}
		if homeTeam != nil {
			fixture.HomeTeamID = &homeTeam.ID
		}
		if awayTeam != nil {
			fixture.AwayTeamID = &awayTeam.ID
		}
		jackpot.Fixtures = append(jackpot.Fixtures, fixture)
	}

	if err := s.Jackpots.InsertJackpot(ctx, jackpot); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, jackpot)
}

// --- POST /pipeline/check-status ---

type checkStatusReq struct {
	TeamNames []string `json:"team_names"`
	LeagueID  *string  `json:"league_id,omitempty"`
}

func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	var req checkStatusReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	c, err := oracle.ClassifyTeams(r.Context(), s.Resolver, s.ModelCache, req.TeamNames, req.LeagueID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, c)
}

// --- POST /pipeline/run ---

type pipelineRunReq struct {
	TeamNames            []string `json:"team_names"`
	LeagueID             *string  `json:"league_id,omitempty"`
	AutoIngest           bool     `json:"auto_ingest"`
	AutoTrain            bool     `json:"auto_train"`
	AutoRecompute        bool     `json:"auto_recompute"`
	BaseModelWindowYears int      `json:"base_model_window_years,omitempty"`
	JackpotID            *string  `json:"jackpot_id,omitempty"`
}

func (s *Server) handlePipelineRun(w http.ResponseWriter, r *http.Request) {
	var req pipelineRunReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	flags := oracle.PipelineFlags{
		AutoIngest: req.AutoIngest, AutoTrain: req.AutoTrain, AutoRecompute: req.AutoRecompute,
		BaseModelWindowYears: req.BaseModelWindowYears, JackpotID: req.JackpotID,
	}
	task := s.Tasks.Submit(req.TeamNames, req.LeagueID, flags)

	// Non-blocking per §6; Run drives the state machine on its own
	// goroutine and the caller polls GET /pipeline/status/{task_id}.
	go s.Tasks.Run(context.WithoutCancel(r.Context()), task)

	writeOK(w, map[string]string{"task_id": task.ID})
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	task, ok := s.Tasks.Get(taskID)
	if !ok {
		writeErr(w, oracle.NewError(oracle.CodeInputValidation, "unknown task_id %s", taskID))
		return
	}
	writeOK(w, map[string]any{
		"status":   task.Status,
		"progress": task.Progress,
		"steps":    task.Metadata.Stages,
	})
}

func (s *Server) handlePipelineCancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if _, ok := s.Tasks.Get(taskID); !ok {
		writeErr(w, oracle.NewError(oracle.CodeInputValidation, "unknown task_id %s", taskID))
		return
	}
	s.Tasks.Cancel(taskID)
	writeOK(w, map[string]string{"task_id": taskID, "status": "cancel_requested"})
}

// --- POST /probabilities/compute ---

type computeProbabilitiesReq struct {
	JackpotID string          `json:"jackpot_id"`
	SetKeys   []oracle.SetKey `json:"set_keys,omitempty"`
}

type fixtureProbability struct {
	MatchOrder int                              `json:"match_order"`
	SetKey     oracle.SetKey                     `json:"set_key"`
	Triple     oracle.Triple                     `json:"triple"`
	Components oracle.DrawStructuralComponents   `json:"draw_structural_components"`
	Warnings   []string                          `json:"warnings,omitempty"`
}

func (s *Server) handleComputeProbabilities(w http.ResponseWriter, r *http.Request) {
	var req computeProbabilitiesReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	sets := req.SetKeys
	if len(sets) == 0 {
		sets = allSetKeys
	}

	ctx := r.Context()
	jackpot, err := s.Jackpots.GetJackpot(ctx, req.JackpotID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if jackpot == nil {
		writeErr(w, oracle.NewError(oracle.CodeInputValidation, "jackpot %s not found", req.JackpotID))
		return
	}
	resolved, err := s.resolveFixtures(ctx, jackpot)
	if err != nil {
		writeErr(w, err)
		return
	}

	var out []fixtureProbability
	for _, rf := range resolved {
		for _, set := range sets {
			result, err := s.computeSet(ctx, rf, set)
			if err != nil {
				writeErr(w, err)
				return
			}
			out = append(out, fixtureProbability{
				MatchOrder: rf.fixture.MatchOrder, SetKey: set, Triple: result.Triple,
				Components: result.Components, Warnings: result.Warnings,
			})
		}
	}
	writeOK(w, out)
}

// --- POST /tickets/generate ---

type generateTicketsReq struct {
	JackpotID  string          `json:"jackpot_id"`
	SetKeys    []oracle.SetKey `json:"set_keys,omitempty"`
	LeagueCode string          `json:"league_code,omitempty"`
}

func (s *Server) handleGenerateTickets(w http.ResponseWriter, r *http.Request) {
	var req generateTicketsReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	roles := req.SetKeys
	if len(roles) == 0 {
		roles = allSetKeys
	}

	ctx := r.Context()
	jackpot, err := s.Jackpots.GetJackpot(ctx, req.JackpotID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if jackpot == nil {
		writeErr(w, oracle.NewError(oracle.CodeInputValidation, "jackpot %s not found", req.JackpotID))
		return
	}
	resolved, err := s.resolveFixtures(ctx, jackpot)
	if err != nil {
		writeErr(w, err)
		return
	}

	inputs := make([]oracle.TicketFixtureInput, 0, len(resolved))
	corrFixtures := make([]oracle.CorrelationFixture, 0, len(resolved))
	for _, rf := range resolved {
		sets := make(map[oracle.SetKey]oracle.Triple, len(roles))
		var lastResult oracle.StageResult
		for _, set := range roles {
			result, err := s.computeSet(ctx, rf, set)
			if err != nil {
				writeErr(w, err)
				return
			}
			sets[set] = result.Triple
			lastResult = result
		}

		var shock oracle.LateShockResult
		if rf.fixture.OpeningOdds != nil {
			shock = oracle.DetectLateShock(*rf.fixture.OpeningOdds, rf.fixture.Odds, sets[oracle.SetA])
		}
		inputs = append(inputs, oracle.TicketFixtureInput{MatchOrder: rf.fixture.MatchOrder, Sets: sets, LateShock: shock})

		kickoff := int64(0)
		if rf.fixture.KickoffTS != nil {
			kickoff = rf.fixture.KickoffTS.Unix()
		}
		corrFixtures = append(corrFixtures, oracle.CorrelationFixture{
			LeagueCode: rf.leagueCode, KickoffTS: kickoff, Odds: rf.fixture.Odds,
			DrawSignal: lastResult.Components.DrawSignal, LambdaTotal: lastResult.Lambdas[0] + lastResult.Lambdas[1],
		})
	}

	correlation := oracle.BuildCorrelationMatrix(corrFixtures)
	bundle := oracle.GenerateTickets(inputs, correlation, roles)
	writeOK(w, bundle)
}

// --- POST /models/train/{type} ---

type trainModelReq struct {
	Leagues     []string `json:"leagues,omitempty"`
	WindowYears int      `json:"window_years,omitempty"`
}

func (s *Server) handleTrainModel(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "type")
	var req trainModelReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.WindowYears == 0 {
		req.WindowYears = 3
	}
	if len(req.Leagues) == 0 {
		writeErr(w, oracle.NewError(oracle.CodeLeagueRequired, "at least one league is required to train"))
		return
	}

	ctx := r.Context()
	leagueID := req.Leagues[0]

	switch kind {
	case "poisson":
		matches, teamIDs, err := s.Leagues.MatchesForTraining(ctx, leagueID, req.WindowYears)
		if err != nil {
			writeErr(w, err)
			return
		}
		league, err := s.Leagues.GetLeagueByCode(ctx, leagueID)
		if err != nil {
			writeErr(w, err)
			return
		}
		homeAdv := oracle.DefaultHomeAdvantage
		if league != nil {
			homeAdv = league.HomeAdvantage
		}
		weights, err := oracle.TrainPoisson(teamIDs, matches, homeAdv)
		if err != nil {
			writeErr(w, err)
			return
		}
		model := &oracle.Model{ID: oracle.NewID(), Type: oracle.ModelPoisson, Version: oracle.NewModelVersion(oracle.ModelPoisson, time.Now()), Weights: weights, TrainingMatches: len(matches), CreatedAt: time.Now()}
		if err := s.ModelCache.Activate(ctx, model); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, map[string]any{"model_id": model.ID, "training_matches": len(matches)})

	case "blending":
		_, blendSamples, err := trainingSamples(ctx, s, leagueID)
		if err != nil {
			writeErr(w, err)
			return
		}
		weights, err := oracle.TrainBlending(blendSamples)
		if err != nil {
			writeErr(w, err)
			return
		}
		model := &oracle.Model{ID: oracle.NewID(), Type: oracle.ModelBlending, Version: oracle.NewModelVersion(oracle.ModelBlending, time.Now()), Weights: weights, CreatedAt: time.Now()}
		if err := s.ModelCache.Activate(ctx, model); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, map[string]any{"model_id": model.ID})

	case "calibration":
		calSamples, _, err := trainingSamples(ctx, s, leagueID)
		if err != nil {
			writeErr(w, err)
			return
		}
		weights, err := oracle.TrainCalibration(calSamples)
		if err != nil {
			writeErr(w, err)
			return
		}
		model := &oracle.Model{ID: oracle.NewID(), Type: oracle.ModelCalibration, Version: oracle.NewModelVersion(oracle.ModelCalibration, time.Now()), Weights: weights, CreatedAt: time.Now()}
		if err := s.ModelCache.Activate(ctx, model); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, map[string]any{"model_id": model.ID})

	case "draw-calibration":
		if err := s.retrainDrawCalibration(ctx); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, map[string]any{"retrained": true})

	default:
		writeErr(w, oracle.NewError(oracle.CodeInputValidation, "unknown model type %q", kind))
	}
}

// trainingSamples fetches the held-out sample pair MTS's blending and
// calibration stages share, keyed the same way stageTraining does it.
func trainingSamples(ctx context.Context, s *Server, leagueID string) ([]oracle.CalibrationSample, []oracle.BlendingSample, error) {
	blendSamples, calSamples, err := s.Leagues.HeldOutSamples(ctx, leagueID)
	if err != nil {
		return nil, nil, err
	}
	return calSamples, blendSamples, nil
}

// --- POST /admin/leagues/update-statistics ---

type updateLeagueStatisticsReq struct {
	LeagueID string `json:"league_id"`
}

func (s *Server) handleUpdateLeagueStatistics(w http.ResponseWriter, r *http.Request) {
	var req updateLeagueStatisticsReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	avgDrawRate, homeAdvantage, err := oracle.UpdateLeagueStatistics(r.Context(), s.Leagues, req.LeagueID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Leagues.UpdateLeagueStatistics(r.Context(), req.LeagueID, avgDrawRate, homeAdvantage); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]float64{"avg_draw_rate": avgDrawRate, "home_advantage": homeAdvantage})
}

// --- POST /validation/export ---

type validationExportReq struct {
	Results []oracle.ValidationResult `json:"results"`
}

func (s *Server) handleValidationExport(w http.ResponseWriter, r *http.Request) {
	var req validationExportReq
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ctx := r.Context()
	for i := range req.Results {
		req.Results[i].ID = oracle.NewID()
		req.Results[i].ExportedToTraining = true
		if err := s.Validations.InsertValidationResult(ctx, &req.Results[i]); err != nil {
			writeErr(w, err)
			return
		}
	}

	threshold := s.DrawCalibrationRetrainThreshold
	if threshold == 0 {
		threshold = oracle.MinDrawCalibrationSamples
	}
	count, err := s.Validations.CountExportedValidationResults(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}

	triggered := false
	if count >= threshold {
		if err := s.retrainDrawCalibration(ctx); err != nil {
			writeErr(w, err)
			return
		}
		triggered = true
	}
	writeOK(w, map[string]any{"exported": len(req.Results), "cumulative_exported": count, "draw_calibration_retrained": triggered})
}

// RetrainDrawCalibrationIfDue is the scheduled fallback to the §6
// auto-trigger embedded in handleValidationExport: it covers exported
// rows that crossed the threshold while the process was restarting
// between export calls.
func (s *Server) RetrainDrawCalibrationIfDue(ctx context.Context) (bool, error) {
	threshold := s.DrawCalibrationRetrainThreshold
	if threshold == 0 {
		threshold = oracle.MinDrawCalibrationSamples
	}
	count, err := s.Validations.CountExportedValidationResults(ctx)
	if err != nil {
		return false, err
	}
	if count < threshold {
		return false, nil
	}
	if err := s.retrainDrawCalibration(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Server) retrainDrawCalibration(ctx context.Context) error {
	validations, err := s.Validations.ExportedValidationResults(ctx)
	if err != nil {
		return err
	}
	weights, err := oracle.TrainDrawCalibration(validations)
	if err != nil {
		return err
	}
	model := &oracle.Model{ID: oracle.NewID(), Type: oracle.ModelDrawCalibration, Version: oracle.NewModelVersion(oracle.ModelDrawCalibration, time.Now()), Weights: weights, CreatedAt: time.Now()}
	return s.ModelCache.Activate(ctx, model)
}
