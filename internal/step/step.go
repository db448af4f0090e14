// Package step defines the pipeline step contract and the nine named steps
// of the cost-effectiveness analysis workflow. Steps are pure with respect to
// engine mechanics: they read declared inputs from the state and hand back an
// update for their declared output keys, never touching control fields.
package step

import (
	"context"

	"github.com/healtheconlab/ceflow/internal/state"
)

// Canonical step names in pipeline order.
const (
	StepParse            = "parse"
	StepRetrieve         = "retrieve_evidence"
	StepBuild            = "build_model"
	StepValidate         = "validate_parameters"
	StepAwaitingDecision = "awaiting_decision"
	StepComputeBase      = "compute_base_case"
	StepComputeDSA       = "compute_dsa"
	StepComputePSA       = "compute_psa"
	StepReport           = "generate_report"
	StepEnd              = "end"
)

// Output keys, one owner each.
const (
	KeyParsed     = "parsed"
	KeyEvidence   = "evidence"
	KeyModel      = "model"
	KeyValidation = "validation"
	KeyBaseCase   = "base_case"
	KeyDSA        = "dsa"
	KeyPSA        = "psa"
	KeyReport     = "report"
)

// Step is one unit of pipeline work.
type Step interface {
	// Name returns the canonical step name.
	Name() string
	// OutputKeys lists the state keys this step is allowed to write.
	OutputKeys() []string
	// Run executes the step against a read-only view of the state and
	// returns the update to merge. A nil update with nil error is a no-op.
	Run(ctx context.Context, st *state.State) (*state.Update, error)
}
