// Package httpapi exposes the §6 external interface surface over chi,
// grounded on the chi usage in the pack's other_examples/manifests
// (aristath-sentinel direct dependency, jbrackens-AttaboyGO indirect).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/jhw/fixtures-oracle/pkg/oracle"
)

// JackpotStore is the narrow jackpot persistence contract the HTTP
// layer needs (satisfied by store.Postgres / store.Memory).
type JackpotStore interface {
	InsertJackpot(ctx context.Context, j *oracle.Jackpot) error
	GetJackpot(ctx context.Context, id string) (*oracle.Jackpot, error)
}

// LeagueStore is the league lookup + statistics-refresh contract.
type LeagueStore interface {
	oracle.LeagueReader
	UpdateLeagueStatistics(ctx context.Context, leagueID string, avgDrawRate, homeAdvantage float64) error
	oracle.LeagueStatsSource
	HeldOutSamples(ctx context.Context, leagueID string) ([]oracle.BlendingSample, []oracle.CalibrationSample, error)
}

// ValidationStore records exported prediction/actual pairs and counts
// them for the §6 auto-trigger threshold.
type ValidationStore interface {
	oracle.ValidationSource
	InsertValidationResult(ctx context.Context, v *oracle.ValidationResult) error
	CountExportedValidationResults(ctx context.Context) (int, error)
}

// Server wires every component the §6 surface drives.
type Server struct {
	Resolver     *oracle.TeamResolver
	Jackpots     JackpotStore
	Leagues      LeagueStore
	Tasks        *oracle.TaskManager
	ModelCache   *oracle.ActiveModelCache
	FeatureStore *oracle.FeatureStore
	Validations  ValidationStore
	Predictions  oracle.PredictionStore

	// DrawCalibrationRetrainThreshold is the §6 "cumulative exported
	// pairs >= 500" auto-trigger point; defaults to
	// oracle.MinDrawCalibrationSamples.
	DrawCalibrationRetrainThreshold int
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/jackpots", s.handleCreateJackpot)
	r.Post("/pipeline/check-status", s.handleCheckStatus)
	r.Post("/pipeline/run", s.handlePipelineRun)
	r.Get("/pipeline/status/{task_id}", s.handlePipelineStatus)
	r.Post("/pipeline/cancel/{task_id}", s.handlePipelineCancel)
	r.Post("/probabilities/compute", s.handleComputeProbabilities)
	r.Post("/tickets/generate", s.handleGenerateTickets)
	r.Post("/models/train/{type}", s.handleTrainModel)
	r.Post("/admin/leagues/update-statistics", s.handleUpdateLeagueStatistics)
	r.Post("/validation/export", s.handleValidationExport)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// writeErr encodes the §7 taxonomy code alongside the human string.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "InternalError"
	if oe, ok := oracle.AsOracleError(err); ok {
		code = string(oe.Code)
		status = statusForCode(oe.Code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error(), Code: code})
}

func statusForCode(c oracle.Code) int {
	switch c {
	case oracle.CodeInputValidation, oracle.CodeLeagueRequired, oracle.CodeSchemaMismatch:
		return http.StatusBadRequest
	case oracle.CodeResolutionMissing, oracle.CodeNoActiveModel:
		return http.StatusNotFound
	case oracle.CodeRateLimited:
		return http.StatusTooManyRequests
	case oracle.CodeConflictActivation:
		return http.StatusConflict
	case oracle.CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return oracle.NewError(oracle.CodeInputValidation, "malformed request body: %v", err)
	}
	return nil
}
