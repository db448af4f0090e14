// Package state holds the pipeline state record threaded through every step
// of an analysis run. The state is mutated by replacement only: each step
// produces an update that is merged into a fresh copy, and key ownership is
// enforced so a step can never clobber another step's output.
package state

import (
	"encoding/json"
	"time"

	"github.com/healtheconlab/ceflow/pkg/schema"
)

// StepRecord is one entry in the run diagnostics: a step that finished,
// successfully or not.
type StepRecord struct {
	Step      string         `json:"step"`
	Outcome   schema.Outcome `json:"outcome"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// State is the full in-flight record of one analysis run.
type State struct {
	RunID   string      `json:"run_id"`
	Mode    schema.Mode `json:"mode"`
	Request string      `json:"request"`

	// Outputs maps declared output keys to the JSON produced by the owning
	// step. Keys are append-only; Owners records which step wrote each key.
	Outputs map[string]json.RawMessage `json:"outputs,omitempty"`
	Owners  map[string]string          `json:"owners,omitempty"`

	// Control fields.
	CurrentStep      string `json:"current_step"`
	AwaitingDecision bool   `json:"awaiting_decision"`
	Terminal         bool   `json:"terminal"`
	// SkipComputation is set when validation reported blocking errors and the
	// run was routed straight to the report.
	SkipComputation bool `json:"skip_computation,omitempty"`
	// Decision is populated on resume with the analyst's answer.
	Decision *schema.Decision `json:"decision,omitempty"`

	// Diagnostics.
	Steps    []StepRecord `json:"steps,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update is the result a step hands back: values for its declared output keys
// plus any non-blocking warnings to append to diagnostics.
type Update struct {
	Outputs  map[string]json.RawMessage
	Warnings []string
}

// New creates the initial state for a run: identity, mode and request
// populated, everything else at defaults.
func New(runID string, mode schema.Mode, request string) *State {
	now := time.Now().UTC()
	return &State{
		RunID:     runID,
		Mode:      mode,
		Request:   request,
		Outputs:   make(map[string]json.RawMessage),
		Owners:    make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy. The returned state shares nothing mutable with
// the receiver.
func (s *State) Clone() *State {
	cp := *s
	cp.Outputs = make(map[string]json.RawMessage, len(s.Outputs))
	for k, v := range s.Outputs {
		raw := make(json.RawMessage, len(v))
		copy(raw, v)
		cp.Outputs[k] = raw
	}
	cp.Owners = make(map[string]string, len(s.Owners))
	for k, v := range s.Owners {
		cp.Owners[k] = v
	}
	cp.Steps = append([]StepRecord(nil), s.Steps...)
	cp.Warnings = append([]string(nil), s.Warnings...)
	if s.Decision != nil {
		dec := *s.Decision
		cp.Decision = &dec
	}
	return &cp
}

// WithUpdate merges a step's update into a new state. The receiver is left
// untouched. It fails with CONTRACT_VIOLATION when the update carries a key
// the step did not declare, or a key already written by a different step.
func (s *State) WithUpdate(stepName string, declared []string, upd *Update) (*State, error) {
	if s.Terminal {
		return nil, schema.NewErrorf(schema.ErrCodeContractViolation,
			"state for run %s is terminal", s.RunID).WithStep(stepName)
	}

	allowed := make(map[string]struct{}, len(declared))
	for _, k := range declared {
		allowed[k] = struct{}{}
	}

	next := s.Clone()
	if upd != nil {
		for key, value := range upd.Outputs {
			if _, ok := allowed[key]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodeContractViolation,
					"key %q not declared by step", key).WithStep(stepName)
			}
			if owner, taken := next.Owners[key]; taken && owner != stepName {
				return nil, schema.NewErrorf(schema.ErrCodeContractViolation,
					"key %q already owned by step %s", key, owner).WithStep(stepName)
			}
			next.Outputs[key] = value
			next.Owners[key] = stepName
		}
		next.Warnings = append(next.Warnings, upd.Warnings...)
	}
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}

// RecordStep appends a completion record to diagnostics on a new state.
func (s *State) RecordStep(step string, outcome schema.Outcome, errMsg string) *State {
	next := s.Clone()
	next.Steps = append(next.Steps, StepRecord{
		Step:      step,
		Outcome:   outcome,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	})
	next.UpdatedAt = time.Now().UTC()
	return next
}

// Has reports whether an output key has been written.
func (s *State) Has(key string) bool {
	_, ok := s.Outputs[key]
	return ok
}

// Output unmarshals the named output into dst. It fails with STEP_EXECUTION
// when the key is absent: a missing required input is a wiring defect, not a
// domain problem.
func (s *State) Output(key string, dst any) error {
	raw, ok := s.Outputs[key]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeStepExecution, "required input %q missing from state", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return schema.NewErrorf(schema.ErrCodeStepExecution, "unmarshal %q: %s", key, err.Error()).WithCause(err)
	}
	return nil
}

// Snapshot serializes the state to a self-contained JSON document suitable
// for checkpoint persistence.
func (s *State) Snapshot() (json.RawMessage, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "marshal state snapshot").WithCause(err)
	}
	return b, nil
}

// FromSnapshot rebuilds a state from a checkpoint snapshot.
func FromSnapshot(raw json.RawMessage) (*State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "unmarshal state snapshot").WithCause(err)
	}
	if s.Outputs == nil {
		s.Outputs = make(map[string]json.RawMessage)
	}
	if s.Owners == nil {
		s.Owners = make(map[string]string)
	}
	return &s, nil
}
