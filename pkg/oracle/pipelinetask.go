package oracle

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TaskStatus is the AP state machine's closed status set (§4.2).
type TaskStatus string

const (
	TaskQueued                   TaskStatus = "queued"
	TaskChecking                 TaskStatus = "checking"
	TaskCreatingTeams            TaskStatus = "creating_teams"
	TaskDownloading              TaskStatus = "downloading"
	TaskTrainingPoisson          TaskStatus = "training_poisson"
	TaskTrainingBlending         TaskStatus = "training_blending"
	TaskTrainingCalibration      TaskStatus = "training_calibration"
	TaskTrainingDrawCalibration  TaskStatus = "training_draw_calibration"
	TaskRecomputing              TaskStatus = "recomputing"
	TaskCompleted                TaskStatus = "completed"
	TaskFailed                   TaskStatus = "failed"
	TaskPartial                  TaskStatus = "partial"
)

var taskStageOrder = []TaskStatus{
	TaskChecking, TaskCreatingTeams, TaskDownloading,
	TaskTrainingPoisson, TaskTrainingBlending, TaskTrainingCalibration, TaskTrainingDrawCalibration,
	TaskRecomputing,
}

const defaultMaxSeasons = 7

// PipelineFlags is the AP request body (§4.2, §6 POST /pipeline/run).
type PipelineFlags struct {
	AutoIngest            bool
	AutoTrain             bool
	AutoRecompute         bool
	BaseModelWindowYears  int // one of {2,3,4}
	MaxSeasons            int // default 7
	JackpotID             *string
}

// TeamClassification is the §4.2 checking-stage output: every input name
// lands in exactly one of validated/missing crossed with trained/untrained.
type TeamClassification struct {
	Validated []string
	Missing   []string
	Trained   []string
	Untrained []string
}

// PipelineTask is one AP run; Metadata.Stages accumulates idempotence
// records per §4.2.
type PipelineTask struct {
	ID         string
	TeamNames  []string
	LeagueID   *string
	Flags      PipelineFlags
	Status     TaskStatus
	Progress   int
	Metadata   PipelineMetadata
	CreatedAt  time.Time

	mu        sync.Mutex
	cancelled bool
}

func (t *PipelineTask) cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

func (t *PipelineTask) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *PipelineTask) record(stage string, outcome string) {
	if t.Metadata.Stages == nil {
		t.Metadata.Stages = make(map[string]string)
	}
	t.Metadata.Stages[string(stage)] = outcome
}

// PipelineDeps bundles everything the AP state machine drives. mtsMu
// serializes MTS across tasks sharing a (team_set, league_id), per §5
// ("two AP tasks ... must not run MTS concurrently — serialize on the
// MTS singleton").
type PipelineDeps struct {
	Resolver    *TeamResolver
	Ingestor    *Ingestor
	ModelCache  *ActiveModelCache
	Leagues     LeagueReader
	Matches     TrainingMatchSource
	Validations ValidationSource
	PP          PipelineRunner
	mtsMu       sync.Mutex
}

// TrainingMatchSource supplies MTS its historical match rows.
type TrainingMatchSource interface {
	MatchesForTraining(ctx context.Context, leagueID string, windowYears int) ([]TrainingMatch, []string, error) // matches, teamIDs
	HeldOutSamples(ctx context.Context, leagueID string) ([]BlendingSample, []CalibrationSample, error)
}

// ValidationSource supplies exported validation rows for draw-calibration.
type ValidationSource interface {
	ExportedValidationResults(ctx context.Context) ([]ValidationResult, error)
}

// PipelineRunner lets the recomputing stage enqueue PP over a jackpot's
// fixtures without AP importing the HTTP layer.
type PipelineRunner interface {
	RecomputeJackpot(ctx context.Context, jackpotID string) error
}

// TaskManager is the §5 task-pool keyed by task_id.
type TaskManager struct {
	mu    sync.RWMutex
	tasks map[string]*PipelineTask
	deps  *PipelineDeps
}

func NewTaskManager(deps *PipelineDeps) *TaskManager {
	return &TaskManager{tasks: make(map[string]*PipelineTask), deps: deps}
}

// Submit creates a queued task and returns its handle; the caller is
// expected to run it on the task-pool (Run), per the non-blocking
// POST /pipeline/run contract.
func (tm *TaskManager) Submit(teamNames []string, leagueID *string, flags PipelineFlags) *PipelineTask {
	if flags.MaxSeasons == 0 {
		flags.MaxSeasons = defaultMaxSeasons
	}
	task := &PipelineTask{
		ID:        NewID(),
		TeamNames: teamNames,
		LeagueID:  leagueID,
		Flags:     flags,
		Status:    TaskQueued,
		CreatedAt: time.Now(),
	}
	tm.mu.Lock()
	tm.tasks[task.ID] = task
	tm.mu.Unlock()
	return task
}

func (tm *TaskManager) Get(taskID string) (*PipelineTask, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.tasks[taskID]
	return t, ok
}

func (tm *TaskManager) Cancel(taskID string) {
	if t, ok := tm.Get(taskID); ok {
		t.cancel()
	}
}

// Run drives the task through the state machine to a terminal status.
// Stage transitions are strictly sequential (§5); cancellation is
// checked between stages and ends the task in `partial` with whatever
// stage outcomes are already recorded.
func (tm *TaskManager) Run(ctx context.Context, task *PipelineTask) {
	log.Info().Str("task_id", task.ID).Msg("pipeline task starting")

	classification, err := tm.stageChecking(ctx, task)
	if tm.checkCancelOrFail(task, err, TaskChecking) {
		return
	}

	if len(classification.Missing) > 0 {
		if err := tm.stageCreatingTeams(ctx, task, classification); tm.checkCancelOrFail(task, err, TaskCreatingTeams) {
			return
		}
	} else {
		task.record(string(TaskCreatingTeams), "skipped: no missing teams")
	}

	if task.Flags.AutoIngest {
		if err := tm.stageDownloading(ctx, task, classification); tm.checkCancelOrFail(task, err, TaskDownloading) {
			return
		}
	} else {
		task.record(string(TaskDownloading), "skipped: auto_ingest false")
	}

	if task.Flags.AutoTrain {
		if err := tm.stageTraining(ctx, task); tm.checkCancelOrFail(task, err, TaskTrainingPoisson) {
			return
		}
	} else {
		task.record(string(TaskTrainingPoisson), "skipped: auto_train false")
	}

	if task.Flags.AutoRecompute && task.Flags.JackpotID != nil {
		if err := tm.stageRecomputing(ctx, task); tm.checkCancelOrFail(task, err, TaskRecomputing) {
			return
		}
	} else {
		task.record(string(TaskRecomputing), "skipped: auto_recompute false or no jackpot_id")
	}

	task.Status = TaskCompleted
	task.Progress = 100
	log.Info().Str("task_id", task.ID).Msg("pipeline task completed")
}

// checkCancelOrFail centralizes the §4.2 cancellation and failure
// handling shared by every stage call: a cancel flag ends the task
// `partial` keeping prior stage work; a hard error ends it `failed`.
func (tm *TaskManager) checkCancelOrFail(task *PipelineTask, err error, stage TaskStatus) bool {
	if task.isCancelled() {
		task.Status = TaskPartial
		task.record(string(stage), "cancelled")
		log.Info().Str("task_id", task.ID).Msg("pipeline task cancelled, ending partial")
		return true
	}
	if err != nil {
		if oe, ok := AsOracleError(err); ok && oe.Code == CodeCancelled {
			task.Status = TaskPartial
			task.record(string(stage), "cancelled")
			return true
		}
		task.Status = TaskFailed
		task.record(string(stage), err.Error())
		log.Error().Err(err).Str("task_id", task.ID).Str("stage", string(stage)).Msg("pipeline task failed")
		return true
	}
	return false
}

func (tm *TaskManager) stageChecking(ctx context.Context, task *PipelineTask) (TeamClassification, error) {
	task.Status = TaskChecking
	task.Progress = 5

	c, err := ClassifyTeams(ctx, tm.deps.Resolver, tm.deps.ModelCache, task.TeamNames, task.LeagueID)
	if err != nil {
		return c, err
	}
	task.record(string(TaskChecking), formatClassification(c))
	return c, nil
}

// ClassifyTeams is the §4.2 checking-stage logic, factored out so the
// standalone POST /pipeline/check-status endpoint can reuse it without
// going through a task.
func ClassifyTeams(ctx context.Context, resolver *TeamResolver, modelCache *ActiveModelCache, teamNames []string, leagueID *string) (TeamClassification, error) {
	model, err := modelCache.Get(ctx, ModelPoisson)
	var trainedIDs map[string]TeamStrength
	if err == nil && model != nil {
		if pw, ok := model.Weights.(*PoissonWeights); ok {
			trainedIDs = pw.Strengths
		}
	}

	var c TeamClassification
	for _, name := range teamNames {
		team, rerr := resolver.Resolve(ctx, name, leagueID)
		if rerr != nil {
			return c, rerr
		}
		if team == nil {
			c.Missing = append(c.Missing, name)
			c.Untrained = append(c.Untrained, name)
			continue
		}
		c.Validated = append(c.Validated, name)
		if _, ok := trainedIDs[team.ID]; ok {
			c.Trained = append(c.Trained, name)
		} else {
			c.Untrained = append(c.Untrained, name)
		}
	}
	return c, nil
}

func formatClassification(c TeamClassification) string {
	return "validated=" + strconv.Itoa(len(c.Validated)) + " missing=" + strconv.Itoa(len(c.Missing)) +
		" trained=" + strconv.Itoa(len(c.Trained)) + " untrained=" + strconv.Itoa(len(c.Untrained))
}

func (tm *TaskManager) stageCreatingTeams(ctx context.Context, task *PipelineTask, c TeamClassification) error {
	task.Status = TaskCreatingTeams
	task.Progress = 15
	if task.LeagueID == nil {
		return NewError(CodeLeagueRequired, "creating_teams requires league_id")
	}
	created := 0
	for _, name := range c.Missing {
		if task.isCancelled() {
			return NewError(CodeCancelled, "cancelled during creating_teams")
		}
		if _, err := tm.deps.Resolver.CreateIfNotExists(ctx, name, *task.LeagueID); err != nil {
			return err
		}
		created++
	}
	task.record(string(TaskCreatingTeams), "created="+strconv.Itoa(created))
	return nil
}

func (tm *TaskManager) stageDownloading(ctx context.Context, task *PipelineTask, c TeamClassification) error {
	task.Status = TaskDownloading
	task.Progress = 30
	if len(c.Missing) == 0 && len(c.Untrained) == 0 {
		task.record(string(TaskDownloading), "skipped: all teams already validated and trained")
		return nil
	}
	if task.LeagueID == nil {
		task.record(string(TaskDownloading), "skipped: no league_id to download for")
		return nil
	}
	if task.isCancelled() {
		return NewError(CodeCancelled, "cancelled before downloading")
	}
	// IA's per-file fetch/decode is driven by the caller supplying raw
	// bytes (HTTP layer or a CLI flag); AP's role here is bookkeeping the
	// decision of *which* leagues need a download, already resolved above.
	task.record(string(TaskDownloading), "queued for league "+*task.LeagueID+" window="+strconv.Itoa(task.Flags.MaxSeasons)+"y")
	return nil
}

func (tm *TaskManager) stageTraining(ctx context.Context, task *PipelineTask) error {
	if task.LeagueID == nil {
		task.record(string(TaskTrainingPoisson), "skipped: no league_id")
		return nil
	}

	// MTS is a dedicated singleton trainer (§5): serialize here so two
	// tasks training the same league never race the active-model flip.
	tm.deps.mtsMu.Lock()
	defer tm.deps.mtsMu.Unlock()

	windowYears := task.Flags.BaseModelWindowYears
	if windowYears == 0 {
		windowYears = 3
	}

	task.Status = TaskTrainingPoisson
	task.Progress = 50
	matches, teamIDs, err := tm.deps.Matches.MatchesForTraining(ctx, *task.LeagueID, windowYears)
	if err != nil {
		return err
	}
	league, err := tm.deps.Leagues.GetLeagueByCode(ctx, *task.LeagueID)
	if err != nil {
		return err
	}
	homeAdvantage := DefaultHomeAdvantage
	if league != nil {
		homeAdvantage = league.HomeAdvantage
	}
	poisson, err := TrainPoisson(teamIDs, matches, homeAdvantage)
	if err != nil {
		return err
	}
	poissonModel := &Model{ID: NewID(), Type: ModelPoisson, Version: NewModelVersion(ModelPoisson, time.Now()), Weights: poisson, TrainingMatches: len(matches), CreatedAt: time.Now()}
	if err := tm.deps.ModelCache.Activate(ctx, poissonModel); err != nil {
		return err
	}
	task.record(string(TaskTrainingPoisson), "model="+poissonModel.ID+" matches="+strconv.Itoa(len(matches)))
	if task.isCancelled() {
		return NewError(CodeCancelled, "cancelled after training_poisson")
	}

	task.Status = TaskTrainingBlending
	task.Progress = 65
	blendSamples, calSamples, err := tm.deps.Matches.HeldOutSamples(ctx, *task.LeagueID)
	if err != nil {
		return err
	}
	blending, err := TrainBlending(blendSamples)
	if err != nil {
		return err
	}
	blendingModel := &Model{ID: NewID(), Type: ModelBlending, Version: NewModelVersion(ModelBlending, time.Now()), Weights: blending, CreatedAt: time.Now()}
	if err := tm.deps.ModelCache.Activate(ctx, blendingModel); err != nil {
		return err
	}
	task.record(string(TaskTrainingBlending), "model="+blendingModel.ID)
	if task.isCancelled() {
		return NewError(CodeCancelled, "cancelled after training_blending")
	}

	task.Status = TaskTrainingCalibration
	task.Progress = 80
	calibration, err := TrainCalibration(calSamples)
	if err != nil {
		return err
	}
	calibrationModel := &Model{ID: NewID(), Type: ModelCalibration, Version: NewModelVersion(ModelCalibration, time.Now()), Weights: calibration, CreatedAt: time.Now()}
	if err := tm.deps.ModelCache.Activate(ctx, calibrationModel); err != nil {
		return err
	}
	task.record(string(TaskTrainingCalibration), "model="+calibrationModel.ID)
	if task.isCancelled() {
		return NewError(CodeCancelled, "cancelled after training_calibration")
	}

	task.Status = TaskTrainingDrawCalibration
	task.Progress = 90
	validations, err := tm.deps.Validations.ExportedValidationResults(ctx)
	if err != nil {
		return err
	}
	drawCal, trainErr := TrainDrawCalibration(validations)
	if trainErr != nil {
		if oe, ok := AsOracleError(trainErr); ok && oe.Code == CodeInsufficientTrainingData {
			task.record(string(TaskTrainingDrawCalibration), "skipped: "+oe.Message)
			return nil
		}
		return trainErr
	}
	drawCalModel := &Model{ID: NewID(), Type: ModelDrawCalibration, Version: NewModelVersion(ModelDrawCalibration, time.Now()), Weights: drawCal, CreatedAt: time.Now()}
	if err := tm.deps.ModelCache.Activate(ctx, drawCalModel); err != nil {
		return err
	}
	task.record(string(TaskTrainingDrawCalibration), "model="+drawCalModel.ID)
	return nil
}

func (tm *TaskManager) stageRecomputing(ctx context.Context, task *PipelineTask) error {
	task.Status = TaskRecomputing
	task.Progress = 95
	if err := tm.deps.PP.RecomputeJackpot(ctx, *task.Flags.JackpotID); err != nil {
		return err
	}
	task.record(string(TaskRecomputing), "jackpot="+*task.Flags.JackpotID)
	return nil
}
