package step

import (
	"context"

	"github.com/healtheconlab/ceflow/internal/analysis"
	"github.com/healtheconlab/ceflow/internal/state"
)

// AwaitingDecisionStep is the marker step a suspended run parks on. It
// declares no keys and produces no update; the engine sets the control
// fields around it.
type AwaitingDecisionStep struct{}

// NewAwaitingDecisionStep creates the suspension marker step.
func NewAwaitingDecisionStep() *AwaitingDecisionStep {
	return &AwaitingDecisionStep{}
}

func (s *AwaitingDecisionStep) Name() string { return StepAwaitingDecision }

func (s *AwaitingDecisionStep) OutputKeys() []string { return nil }

func (s *AwaitingDecisionStep) Run(context.Context, *state.State) (*state.Update, error) {
	return nil, nil
}

// EndStep is the terminal marker. It declares no keys; the engine flips the
// terminal flag when routing lands here.
type EndStep struct{}

// NewEndStep creates the terminal marker step.
func NewEndStep() *EndStep {
	return &EndStep{}
}

func (s *EndStep) Name() string { return StepEnd }

func (s *EndStep) OutputKeys() []string { return nil }

func (s *EndStep) Run(context.Context, *state.State) (*state.Update, error) {
	return nil, nil
}

// DefaultRegistry wires the nine pipeline steps with the built-in
// collaborators.
func DefaultRegistry() (*Registry, error) {
	calc := analysis.NewCalculator()
	steps := []Step{
		NewParseStep(analysis.NewParser()),
		NewRetrieveStep(analysis.NewCatalogProvider()),
		NewBuildStep(analysis.NewBuilder()),
		NewValidateStep(analysis.NewValidator()),
		NewAwaitingDecisionStep(),
		NewBaseCaseStep(calc),
		NewDSAStep(calc),
		NewPSAStep(calc),
		NewReportStep(analysis.NewReporter()),
		NewEndStep(),
	}

	reg := NewRegistry()
	for _, s := range steps {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
