package step

import (
	"context"

	"github.com/healtheconlab/ceflow/internal/analysis"
	"github.com/healtheconlab/ceflow/internal/state"
)

// ValidateStep checks the constructed model for consistency and plausibility.
// Domain problems become data in the validation result; only a broken
// validator surfaces as a step error.
type ValidateStep struct {
	validator *analysis.Validator
}

// NewValidateStep creates the parameter validation step.
func NewValidateStep(validator *analysis.Validator) *ValidateStep {
	return &ValidateStep{validator: validator}
}

func (s *ValidateStep) Name() string { return StepValidate }

func (s *ValidateStep) OutputKeys() []string { return []string{KeyValidation} }

func (s *ValidateStep) Run(ctx context.Context, st *state.State) (*state.Update, error) {
	var model analysis.Model
	if err := st.Output(KeyModel, &model); err != nil {
		return nil, stepFailure(StepValidate, err)
	}

	result, err := s.validator.Run(ctx, &model)
	if err != nil {
		return nil, stepFailure(StepValidate, err)
	}

	upd, err := singleOutput(StepValidate, KeyValidation, result)
	if err != nil {
		return nil, err
	}
	upd.Warnings = append(upd.Warnings, result.Warnings...)
	return upd, nil
}
