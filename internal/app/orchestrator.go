package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/ports"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidState est renvoyée par Start/Submit quand une soumission est déjà active.
	// Une requête invalide est refusée avec domain.ErrInvalidRequest.
	ErrInvalidState = errors.New("a submission is already in progress")
	ErrCancelled    = errors.New("submission cancelled")
)

type OrchestratorOptions struct {
	PollInterval      time.Duration
	EstimatedDuration time.Duration
	ProgressCap       float64
	// TimerTick vaut une seconde hors tests.
	TimerTick time.Duration
}

func DefaultOrchestratorOptions() OrchestratorOptions {
	s := domain.DefaultSettings()
	return OrchestratorOptions{
		PollInterval:      s.PollInterval(),
		EstimatedDuration: s.EstimatedDuration(),
		ProgressCap:       s.ProgressCap,
		TimerTick:         time.Second,
	}
}

// OptionsFromSettings garde TimerTick à sa valeur par défaut.
func OptionsFromSettings(s domain.Settings) OrchestratorOptions {
	opts := DefaultOrchestratorOptions()
	if s.PollIntervalMs > 0 {
		opts.PollInterval = s.PollInterval()
	}
	if s.EstimatedDurationSec > 0 {
		opts.EstimatedDuration = s.EstimatedDuration()
	}
	if s.ProgressCap > 0 {
		opts.ProgressCap = s.ProgressCap
	}
	return opts
}

// Snapshot est une copie de l'état de l'orchestrateur.
type Snapshot struct {
	SubmissionID   string           `json:"submissionId,omitempty"`
	State          domain.State     `json:"state"`
	Job            *domain.Job      `json:"job,omitempty"`
	Result         *domain.Result   `json:"result,omitempty"`
	Error          *ClassifiedError `json:"error,omitempty"`
	ElapsedSeconds int              `json:"elapsedSeconds"`
	Progress       float64          `json:"progress"`
}

// Orchestrator pilote une soumission à la fois: submit -> polling -> état terminal.
//
// Chaque soumission tourne dans sa propre goroutine. Toute mutation est
// étiquetée par une génération: une goroutine devenue obsolète (Reset ou
// nouvelle soumission) ne peut plus rien modifier.
type Orchestrator struct {
	parent  context.Context
	logger  zerolog.Logger
	session Session
	svc     ports.WorkService
	bus     ports.EventBus

	mu           sync.Mutex
	opts         OrchestratorOptions
	state        domain.State
	gen          uint64
	submissionID string
	job          *domain.Job
	result       *domain.Result
	err          *ClassifiedError
	timer        *ElapsedTimer
	elapsed      int
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewOrchestrator(parent context.Context, logger zerolog.Logger, session Session, svc ports.WorkService, bus ports.EventBus, opts OrchestratorOptions) *Orchestrator {
	if parent == nil {
		parent = context.Background()
	}
	return &Orchestrator{
		parent:  parent,
		logger:  logger.With().Str("component", "orchestrator").Str("client_id", session.ClientID).Logger(),
		session: session,
		svc:     svc,
		bus:     bus,
		opts:    normalizeOptions(opts),
		state:   domain.StateIdle,
	}
}

func normalizeOptions(opts OrchestratorOptions) OrchestratorOptions {
	def := DefaultOrchestratorOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.EstimatedDuration <= 0 {
		opts.EstimatedDuration = def.EstimatedDuration
	}
	if opts.ProgressCap <= 0 || opts.ProgressCap > 1 {
		opts.ProgressCap = def.ProgressCap
	}
	if opts.TimerTick <= 0 {
		opts.TimerTick = def.TimerTick
	}
	return opts
}

// SetOptions s'applique à la prochaine soumission.
func (o *Orchestrator) SetOptions(opts OrchestratorOptions) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opts = normalizeOptions(opts)
}

func (o *Orchestrator) Options() OrchestratorOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opts
}

// Start lance une soumission et rend la main immédiatement.
func (o *Orchestrator) Start(req domain.WorkRequest) (string, error) {
	id, _, _, err := o.start(req)
	return id, err
}

// Submit lance une soumission et attend son état terminal.
//
// L'erreur vaut nil si le job est completed, la *ClassifiedError si failed,
// ErrCancelled si la soumission a été annulée. Si ctx se termine avant,
// la soumission est annulée via Reset et ctx.Err() est renvoyée.
func (o *Orchestrator) Submit(ctx context.Context, req domain.WorkRequest) (Snapshot, error) {
	id, gen, done, err := o.start(req)
	if err != nil {
		return o.Snapshot(), err
	}
	select {
	case <-done:
	case <-ctx.Done():
		o.resetGeneration(gen)
		return o.Snapshot(), ctx.Err()
	}

	snap := o.Snapshot()
	if snap.SubmissionID != id {
		return snap, ErrCancelled
	}
	switch snap.State {
	case domain.StateCompleted:
		return snap, nil
	case domain.StateFailed:
		if snap.Error != nil {
			return snap, snap.Error
		}
		return snap, ErrCancelled
	default:
		return snap, ErrCancelled
	}
}

// Wait bloque jusqu'à ce que la soumission courante quitte submitting/polling.
func (o *Orchestrator) Wait(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	if done == nil {
		return o.Snapshot(), nil
	}
	select {
	case <-done:
		return o.Snapshot(), nil
	case <-ctx.Done():
		return o.Snapshot(), ctx.Err()
	}
}

func (o *Orchestrator) start(req domain.WorkRequest) (string, uint64, <-chan struct{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.IsActive() {
		return "", 0, nil, ErrInvalidState
	}
	if err := req.Validate(); err != nil {
		return "", 0, nil, err
	}

	o.gen++
	gen := o.gen
	ctx, cancel := context.WithCancel(o.parent)
	o.cancel = cancel
	o.submissionID = xid.New().String()
	o.job, o.result, o.err = nil, nil, nil
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = StartElapsedTimer(o.opts.TimerTick)
	o.elapsed = 0
	done := make(chan struct{})
	o.done = done
	o.transitionLocked(domain.StateSubmitting, "submission.started")

	logger := o.logger.With().Str("submission_id", o.submissionID).Logger()
	logger.Info().Str("mode", string(req.Mode)).Str("target_id", req.TargetID).Msg("submission started")

	go o.run(ctx, gen, logger, req.Clone(), o.opts)
	return o.submissionID, gen, done, nil
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, logger zerolog.Logger, req domain.WorkRequest, opts OrchestratorOptions) {
	jobID, err := NewSubmitter(o.svc).Submit(ctx, req)
	if ctx.Err() != nil {
		o.abandon(gen, logger)
		return
	}
	if err != nil {
		o.finish(gen, logger, nil, Classify(err))
		return
	}
	if !o.enterPolling(gen, logger, jobID) {
		return
	}

	poller := NewPoller(logger, o.svc, opts.PollInterval)
	result, err := poller.Poll(ctx, jobID, func(status domain.JobStatus) {
		o.advance(gen, status)
	})
	if ctx.Err() != nil {
		o.abandon(gen, logger)
		return
	}
	if err != nil {
		o.finish(gen, logger, nil, Classify(err))
		return
	}
	o.finish(gen, logger, &result, nil)
}

func (o *Orchestrator) enterPolling(gen uint64, logger zerolog.Logger, jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || o.state != domain.StateSubmitting {
		return false
	}
	o.job = &domain.Job{ID: jobID, Status: domain.JobPending}
	logger.Info().Str("job_id", jobID).Msg("job accepted, polling")
	return o.transitionLocked(domain.StatePolling, "submission.polling")
}

func (o *Orchestrator) advance(gen uint64, status domain.JobStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || o.state != domain.StatePolling || o.job == nil {
		return
	}
	if o.job.Status == status {
		return
	}
	if !domain.CanAdvance(o.job.Status, status) {
		o.logger.Warn().Str("job_id", o.job.ID).Str("from", string(o.job.Status)).Str("to", string(status)).Msg("ignoring backward job status")
		return
	}
	o.job.Status = status
	o.publishLocked("job.status")
}

func (o *Orchestrator) finish(gen uint64, logger zerolog.Logger, result *domain.Result, cerr *ClassifiedError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || !o.state.IsActive() {
		return
	}

	o.stopTimerLocked()
	if cerr != nil {
		o.err = cerr
		if o.job != nil && domain.CanAdvance(o.job.Status, domain.JobFailed) {
			o.job.Status = domain.JobFailed
		}
		logger.Warn().Err(cerr).Str("kind", string(cerr.Kind)).Int("transport_status", cerr.TransportStatus).Str("error_code", string(cerr.Code)).Msg("submission failed")
		o.transitionLocked(domain.StateFailed, "submission.failed")
	} else {
		o.result = result
		if o.job != nil {
			o.job.Status = domain.JobCompleted
		}
		ev := logger.Info().Float64("total_cost", result.TotalCost).Int("agents", len(result.AgentPredictions)).Int("failures", len(result.Failures)).Int("elapsed_s", o.elapsed)
		if result.Prediction != nil {
			ev = ev.Float64("prediction", *result.Prediction)
		}
		ev.Msg("submission completed")
		o.transitionLocked(domain.StateCompleted, "submission.completed")
	}
	o.releaseLocked()
}

// abandon traite l'annulation du contexte parent (arrêt du process) quand
// aucun Reset n'a eu lieu: la soumission se termine en cancelled.
func (o *Orchestrator) abandon(gen uint64, logger zerolog.Logger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || !o.state.IsActive() {
		return
	}
	o.stopTimerLocked()
	logger.Info().Msg("submission abandoned")
	o.transitionLocked(domain.StateCancelled, "submission.cancelled")
	o.releaseLocked()
}

// Reset annule la soumission en cours et revient à idle. Sans effet si déjà idle.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}

func (o *Orchestrator) resetGeneration(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return
	}
	o.resetLocked()
}

func (o *Orchestrator) resetLocked() {
	if o.state == domain.StateIdle {
		return
	}

	// Toute réponse en vol devient obsolète.
	o.gen++
	o.stopTimerLocked()
	if o.state.IsActive() {
		o.logger.Info().Str("submission_id", o.submissionID).Msg("submission cancelled")
		o.transitionLocked(domain.StateCancelled, "submission.cancelled")
		o.releaseLocked()
	} else if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}

	o.submissionID = ""
	o.job, o.result, o.err = nil, nil, nil
	o.elapsed = 0
	o.done = nil
	o.transitionLocked(domain.StateIdle, "submission.reset")
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer == nil {
		return
	}
	o.timer.Stop()
	o.elapsed = o.timer.Elapsed()
	o.timer = nil
}

func (o *Orchestrator) releaseLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.done != nil {
		close(o.done)
	}
}

func (o *Orchestrator) transitionLocked(to domain.State, topic string) bool {
	if !domain.CanTransition(o.state, to) {
		o.logger.Error().Err(domain.ErrInvalidTransition).Str("from", string(o.state)).Str("to", string(to)).Msg("refused state transition")
		return false
	}
	o.state = to
	o.publishLocked(topic)
	return true
}

// Snapshot renvoie une copie cohérente de l'état courant.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	elapsed := o.elapsed
	if o.timer != nil {
		elapsed = o.timer.Elapsed()
	}
	snap := Snapshot{
		SubmissionID:   o.submissionID,
		State:          o.state,
		ElapsedSeconds: elapsed,
	}
	if o.job != nil {
		j := *o.job
		snap.Job = &j
	}
	if o.result != nil {
		r := o.result.Clone()
		snap.Result = &r
	}
	if o.err != nil {
		e := *o.err
		snap.Error = &e
	}
	switch o.state {
	case domain.StateCompleted:
		snap.Progress = 1
	case domain.StateSubmitting, domain.StatePolling:
		snap.Progress = Progress(time.Duration(elapsed)*o.opts.TimerTick, o.opts.EstimatedDuration, o.opts.ProgressCap)
	}
	return snap
}

func (o *Orchestrator) publishLocked(topic string) {
	if o.bus == nil {
		return
	}
	b, err := json.Marshal(o.snapshotLocked())
	if err != nil {
		return
	}
	o.bus.Publish(topic, b)
}
