package step

import (
	"context"

	"github.com/healtheconlab/ceflow/internal/analysis"
	"github.com/healtheconlab/ceflow/internal/state"
)

// BuildStep constructs the decision-analytic model from the parsed request
// and the retrieved evidence.
type BuildStep struct {
	builder *analysis.Builder
}

// NewBuildStep creates the model construction step.
func NewBuildStep(builder *analysis.Builder) *BuildStep {
	return &BuildStep{builder: builder}
}

func (s *BuildStep) Name() string { return StepBuild }

func (s *BuildStep) OutputKeys() []string { return []string{KeyModel} }

func (s *BuildStep) Run(ctx context.Context, st *state.State) (*state.Update, error) {
	var parsed analysis.ParsedRequest
	if err := st.Output(KeyParsed, &parsed); err != nil {
		return nil, stepFailure(StepBuild, err)
	}
	var ev analysis.Evidence
	if err := st.Output(KeyEvidence, &ev); err != nil {
		return nil, stepFailure(StepBuild, err)
	}

	model, err := s.builder.Build(ctx, &parsed, &ev)
	if err != nil {
		return nil, stepFailure(StepBuild, err)
	}
	return singleOutput(StepBuild, KeyModel, model)
}
