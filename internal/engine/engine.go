// Package engine drives the analysis pipeline: it executes steps strictly
// sequentially within a run, consults the router between steps, and owns the
// suspend/resume boundary through the checkpoint store. Independent runs may
// execute concurrently; the store is the only shared structure.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/healtheconlab/ceflow/internal/logging"
	"github.com/healtheconlab/ceflow/internal/state"
	"github.com/healtheconlab/ceflow/internal/step"
	"github.com/healtheconlab/ceflow/internal/store"
	"github.com/healtheconlab/ceflow/pkg/schema"
)

// RunResult is what start and resume hand back: the final (or suspended)
// state plus the checkpoint identifier when the run is awaiting a decision.
type RunResult struct {
	RunID        string                `json:"run_id"`
	Status       schema.RunStatus      `json:"status"`
	State        *state.State          `json:"state"`
	CheckpointID string                `json:"checkpoint_id,omitempty"`
	Err          *schema.PipelineError `json:"error,omitempty"`
}

// Engine orchestrates pipeline runs.
type Engine struct {
	store    store.Store
	registry *step.Registry
	router   *Router
	fsm      *RunFSM
	logger   *slog.Logger
}

// New creates an Engine.
func New(st store.Store, registry *step.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		registry: registry,
		router:   NewRouter(),
		fsm:      NewRunFSM(st),
		logger:   logger,
	}
}

// Start creates a run for the request and executes it until it terminates,
// fails, or suspends at a checkpoint. A suspended result carries the
// checkpoint identifier and no error.
func (e *Engine) Start(ctx context.Context, request string, mode schema.Mode) (*RunResult, error) {
	if !mode.Valid() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown mode %q", mode)
	}

	runID := uuid.New().String()
	st := state.New(runID, mode, request)
	st.CurrentStep = step.StepParse

	rec := &store.RunRecord{
		ID:      runID,
		Mode:    mode,
		Request: request,
		Status:  schema.RunStatusPending,
	}
	if err := e.store.CreateRun(ctx, rec); err != nil {
		return nil, err
	}
	if err := e.toStatus(ctx, runID, schema.RunStatusPending, schema.RunStatusRunning); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "run started", "run_id", runID, "mode", string(mode))
	return e.loop(ctx, st)
}

// Resume validates the decision against the checkpoint's expected shape,
// atomically consumes the checkpoint, and continues the run loop from the
// decision marker. Validation precedes consumption so a malformed decision
// leaves the checkpoint intact.
func (e *Engine) Resume(ctx context.Context, checkpointID string, decision json.RawMessage) (*RunResult, error) {
	cp, err := e.store.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	dec, err := schema.ParseDecision(cp.DecisionShape, decision)
	if err != nil {
		return nil, err
	}

	cp, err = e.store.ConsumeCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	st, err := state.FromSnapshot(cp.Snapshot)
	if err != nil {
		return nil, err
	}
	st.Decision = &dec
	st.AwaitingDecision = false
	st.CurrentStep = step.StepAwaitingDecision
	if dec.Comment != "" {
		st.Warnings = append(st.Warnings, "decision comment: "+dec.Comment)
	}

	if err := e.appendEvent(ctx, st.RunID, step.StepAwaitingDecision, schema.EventCheckpointConsumed,
		map[string]any{"checkpoint_id": checkpointID, "approved": dec.Approved}); err != nil {
		return nil, err
	}
	if !dec.Approved {
		if err := e.appendEvent(ctx, st.RunID, step.StepAwaitingDecision, schema.EventDecisionRejected, nil); err != nil {
			return nil, err
		}
	}
	if err := e.toStatus(ctx, st.RunID, schema.RunStatusSuspended, schema.RunStatusRunning); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "run resumed", "run_id", st.RunID, "checkpoint_id", checkpointID, "approved", dec.Approved)
	return e.loop(ctx, st)
}

// loop executes steps and routes between them until the run terminates,
// suspends, or a step fails. A failed step halts immediately: the router is
// never consulted and no report is produced on its behalf.
func (e *Engine) loop(ctx context.Context, st *state.State) (*RunResult, error) {
	ctx = logging.WithRunID(ctx, st.RunID)
	for {
		name := st.CurrentStep
		s, err := e.registry.Get(name)
		if err != nil {
			return e.fail(ctx, st, name, err)
		}

		stepCtx := logging.WithStep(ctx, name)
		if err := e.appendEvent(ctx, st.RunID, name, schema.EventStepStarted, nil); err != nil {
			return nil, err
		}

		upd, runErr := s.Run(stepCtx, st)
		if runErr != nil {
			return e.fail(ctx, st, name, runErr)
		}

		next, err := st.WithUpdate(name, s.OutputKeys(), upd)
		if err != nil {
			return e.fail(ctx, st, name, err)
		}
		st = next.RecordStep(name, schema.OutcomeSuccess, "")

		if err := e.appendEvent(ctx, st.RunID, name, schema.EventStepCompleted, nil); err != nil {
			return nil, err
		}
		e.logger.DebugContext(ctx, "step completed", "run_id", st.RunID, "step", name)

		dir, err := e.router.Next(st, name, schema.OutcomeSuccess)
		if err != nil {
			return e.fail(ctx, st, name, err)
		}

		switch dir.Kind {
		case schema.DirectiveContinue:
			if dir.SkipComputation {
				st.SkipComputation = true
			}
			st.CurrentStep = dir.Next

		case schema.DirectiveSuspend:
			return e.suspend(ctx, st, dir)

		case schema.DirectiveTerminate:
			return e.complete(ctx, st)
		}
	}
}

func (e *Engine) suspend(ctx context.Context, st *state.State, dir schema.Directive) (*RunResult, error) {
	st.AwaitingDecision = true
	st.CurrentStep = step.StepAwaitingDecision

	snapshot, err := st.Snapshot()
	if err != nil {
		return nil, err
	}

	cp := &store.Checkpoint{
		ID:            uuid.New().String(),
		RunID:         st.RunID,
		Snapshot:      snapshot,
		DecisionShape: dir.DecisionShape,
	}
	if err := e.store.CreateCheckpoint(ctx, cp); err != nil {
		return nil, err
	}
	if err := e.appendEvent(ctx, st.RunID, step.StepAwaitingDecision, schema.EventCheckpointCreated,
		map[string]any{"checkpoint_id": cp.ID}); err != nil {
		return nil, err
	}
	if err := e.toStatus(ctx, st.RunID, schema.RunStatusRunning, schema.RunStatusSuspended); err != nil {
		return nil, err
	}
	if err := e.persistState(ctx, st, nil); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "run suspended", "run_id", st.RunID, "checkpoint_id", cp.ID)
	return &RunResult{
		RunID:        st.RunID,
		Status:       schema.RunStatusSuspended,
		State:        st,
		CheckpointID: cp.ID,
	}, nil
}

func (e *Engine) complete(ctx context.Context, st *state.State) (*RunResult, error) {
	st.Terminal = true

	if err := e.toStatus(ctx, st.RunID, schema.RunStatusRunning, schema.RunStatusCompleted); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := e.persistState(ctx, st, &now); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "run completed", "run_id", st.RunID, "steps", len(st.Steps))
	return &RunResult{RunID: st.RunID, Status: schema.RunStatusCompleted, State: st}, nil
}

// fail marks the run terminally failed with the step failure recorded in
// diagnostics. The failure itself lives in the result, not the error return.
func (e *Engine) fail(ctx context.Context, st *state.State, stepName string, cause error) (*RunResult, error) {
	perr, ok := cause.(*schema.PipelineError)
	if !ok {
		perr = schema.NewError(schema.ErrCodeStepExecution, cause.Error()).WithStep(stepName).WithCause(cause)
	}

	st = st.RecordStep(stepName, schema.OutcomeFailure, perr.Error())
	st.Terminal = true

	if err := e.appendEvent(ctx, st.RunID, stepName, schema.EventStepFailed,
		map[string]any{"error": perr.Error(), "code": perr.Code}); err != nil {
		return nil, err
	}
	if err := e.toStatus(ctx, st.RunID, schema.RunStatusRunning, schema.RunStatusFailed); err != nil {
		return nil, err
	}

	errJSON, merr := json.Marshal(perr)
	if merr != nil {
		errJSON = nil
	}
	now := time.Now().UTC()
	snapshot, serr := st.Snapshot()
	if serr != nil {
		return nil, serr
	}
	status := schema.RunStatusFailed
	if err := e.store.UpdateRun(ctx, st.RunID, store.RunUpdate{
		Status:      &status,
		State:       snapshot,
		Error:       errJSON,
		CompletedAt: &now,
	}); err != nil {
		return nil, err
	}

	e.logger.ErrorContext(ctx, "run failed", "run_id", st.RunID, "step", stepName, "error", perr.Error())
	return &RunResult{RunID: st.RunID, Status: schema.RunStatusFailed, State: st, Err: perr}, nil
}

func (e *Engine) toStatus(ctx context.Context, runID string, from, to schema.RunStatus) error {
	if err := e.fsm.Transition(ctx, runID, from, to); err != nil {
		return err
	}
	if to == schema.RunStatusFailed || to == schema.RunStatusCompleted {
		// Terminal statuses are persisted together with the final state.
		return nil
	}
	return e.store.UpdateRun(ctx, runID, store.RunUpdate{Status: &to})
}

func (e *Engine) persistState(ctx context.Context, st *state.State, completedAt *time.Time) error {
	snapshot, err := st.Snapshot()
	if err != nil {
		return err
	}
	status := schema.RunStatusSuspended
	if st.Terminal {
		status = schema.RunStatusCompleted
	}
	return e.store.UpdateRun(ctx, st.RunID, store.RunUpdate{
		Status:      &status,
		State:       snapshot,
		CompletedAt: completedAt,
	})
}

func (e *Engine) appendEvent(ctx context.Context, runID, stepName, eventType string, payload map[string]any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return schema.NewError(schema.ErrCodeStore, "marshal event payload").WithCause(err)
		}
		raw = b
	}
	return e.store.AppendEvent(ctx, &store.Event{
		RunID:   runID,
		Step:    stepName,
		Type:    eventType,
		Payload: raw,
	})
}
