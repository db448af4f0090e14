package engine

import (
	"encoding/json"

	"github.com/healtheconlab/ceflow/internal/state"
	"github.com/healtheconlab/ceflow/internal/step"
	"github.com/healtheconlab/ceflow/pkg/schema"
)

// Router selects the next step after each completed step. All mode-dependent
// branching lives here, driven by the mode policy table; step bodies never
// consult the mode.
type Router struct{}

// NewRouter creates a Router.
func NewRouter() *Router {
	return &Router{}
}

// Next returns the routing directive for a run whose last step completed with
// the given outcome. Failed steps never reach the router; the engine halts
// first, so only successful outcomes are routed.
func (r *Router) Next(st *state.State, lastStep string, outcome schema.Outcome) (schema.Directive, error) {
	if outcome != schema.OutcomeSuccess {
		return schema.Directive{}, schema.NewErrorf(schema.ErrCodeValidation,
			"router consulted for non-successful outcome %q after %s", outcome, lastStep)
	}

	policy := schema.PolicyFor(st.Mode)

	switch lastStep {
	case step.StepParse:
		return schema.Continue(step.StepRetrieve), nil
	case step.StepRetrieve:
		return schema.Continue(step.StepBuild), nil
	case step.StepBuild:
		return schema.Continue(step.StepValidate), nil

	case step.StepValidate:
		blocked, err := hasBlockingErrors(st)
		if err != nil {
			return schema.Directive{}, err
		}
		if blocked {
			// A blocking-invalid model never reaches computation, but the
			// analyst still gets a report of the findings.
			return schema.ContinueSkipping(step.StepReport), nil
		}
		if policy.RequireApproval {
			return schema.Suspend(json.RawMessage(schema.ApprovalDecisionShape)), nil
		}
		return schema.Continue(step.StepComputeBase), nil

	case step.StepAwaitingDecision:
		if st.Decision == nil {
			return schema.Directive{}, schema.NewError(schema.ErrCodeValidation,
				"routing after decision marker with no decision on state")
		}
		if !st.Decision.Approved {
			// An explicit rejection ends the run without a report.
			return schema.Continue(step.StepEnd), nil
		}
		return schema.Continue(step.StepComputeBase), nil

	case step.StepComputeBase:
		if policy.RunSensitivity {
			return schema.Continue(step.StepComputeDSA), nil
		}
		return schema.Continue(step.StepReport), nil

	case step.StepComputeDSA:
		return schema.Continue(step.StepComputePSA), nil
	case step.StepComputePSA:
		return schema.Continue(step.StepReport), nil
	case step.StepReport:
		return schema.Continue(step.StepEnd), nil
	case step.StepEnd:
		return schema.Terminate(), nil
	}

	return schema.Directive{}, schema.NewErrorf(schema.ErrCodeValidation, "no route defined after step %q", lastStep)
}

func hasBlockingErrors(st *state.State) (bool, error) {
	var result struct {
		Errors []string `json:"errors"`
	}
	if err := st.Output(step.KeyValidation, &result); err != nil {
		return false, err
	}
	return len(result.Errors) > 0, nil
}
