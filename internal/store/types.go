package store

import (
	"encoding/json"
	"time"

	"github.com/healtheconlab/ceflow/pkg/schema"
)

// RunRecord is the persisted representation of a pipeline run.
type RunRecord struct {
	ID          string           `json:"id"`
	Mode        schema.Mode      `json:"mode"`
	Request     string           `json:"request"`
	Status      schema.RunStatus `json:"status"`
	State       json.RawMessage  `json:"state,omitempty"`
	Error       json.RawMessage  `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Event is an immutable entry in the run event log.
type Event struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Step      string          `json:"step,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// Checkpoint status values.
const (
	CheckpointPending  = "pending"
	CheckpointConsumed = "consumed"
)

// Checkpoint is a durable, single-consumption snapshot of a suspended run.
type Checkpoint struct {
	ID            string          `json:"id"`
	RunID         string          `json:"run_id"`
	Snapshot      json.RawMessage `json:"snapshot"`
	DecisionShape json.RawMessage `json:"decision_shape"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	ConsumedAt    *time.Time      `json:"consumed_at,omitempty"`
}

// RunUpdate specifies mutable fields of a run record.
type RunUpdate struct {
	Status      *schema.RunStatus `json:"status,omitempty"`
	State       json.RawMessage   `json:"state,omitempty"`
	Error       json.RawMessage   `json:"error,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status *schema.RunStatus `json:"status,omitempty"`
	Mode   schema.Mode       `json:"mode,omitempty"`
	Since  *time.Time        `json:"since,omitempty"`
	Limit  int               `json:"limit,omitempty"`
}

// CheckpointFilter specifies criteria for listing checkpoints.
type CheckpointFilter struct {
	RunID         string     `json:"run_id,omitempty"`
	Status        string     `json:"status,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
	Limit         int        `json:"limit,omitempty"`
}
