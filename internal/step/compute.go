package step

import (
	"context"

	"github.com/healtheconlab/ceflow/internal/analysis"
	"github.com/healtheconlab/ceflow/internal/state"
)

// BaseCaseStep runs the primary cost-effectiveness computation.
type BaseCaseStep struct {
	calc *analysis.Calculator
}

// NewBaseCaseStep creates the base case computation step.
func NewBaseCaseStep(calc *analysis.Calculator) *BaseCaseStep {
	return &BaseCaseStep{calc: calc}
}

func (s *BaseCaseStep) Name() string { return StepComputeBase }

func (s *BaseCaseStep) OutputKeys() []string { return []string{KeyBaseCase} }

func (s *BaseCaseStep) Run(ctx context.Context, st *state.State) (*state.Update, error) {
	var model analysis.Model
	if err := st.Output(KeyModel, &model); err != nil {
		return nil, stepFailure(StepComputeBase, err)
	}

	result, err := s.calc.BaseCase(ctx, &model)
	if err != nil {
		return nil, stepFailure(StepComputeBase, err)
	}
	return singleOutput(StepComputeBase, KeyBaseCase, result)
}

// DSAStep runs the one-way deterministic sensitivity analysis. It depends
// only on the model and the base case result.
type DSAStep struct {
	calc *analysis.Calculator
}

// NewDSAStep creates the deterministic sensitivity step.
func NewDSAStep(calc *analysis.Calculator) *DSAStep {
	return &DSAStep{calc: calc}
}

func (s *DSAStep) Name() string { return StepComputeDSA }

func (s *DSAStep) OutputKeys() []string { return []string{KeyDSA} }

func (s *DSAStep) Run(ctx context.Context, st *state.State) (*state.Update, error) {
	var model analysis.Model
	if err := st.Output(KeyModel, &model); err != nil {
		return nil, stepFailure(StepComputeDSA, err)
	}
	var base analysis.BaseCaseResult
	if err := st.Output(KeyBaseCase, &base); err != nil {
		return nil, stepFailure(StepComputeDSA, err)
	}

	result, err := s.calc.DSA(ctx, &model, &base)
	if err != nil {
		return nil, stepFailure(StepComputeDSA, err)
	}
	return singleOutput(StepComputeDSA, KeyDSA, result)
}

// PSAStep runs the probabilistic sensitivity analysis. Its inputs are limited
// to the model and the base case result; it never reads the DSA output.
type PSAStep struct {
	calc *analysis.Calculator
}

// NewPSAStep creates the probabilistic sensitivity step.
func NewPSAStep(calc *analysis.Calculator) *PSAStep {
	return &PSAStep{calc: calc}
}

func (s *PSAStep) Name() string { return StepComputePSA }

func (s *PSAStep) OutputKeys() []string { return []string{KeyPSA} }

func (s *PSAStep) Run(ctx context.Context, st *state.State) (*state.Update, error) {
	var model analysis.Model
	if err := st.Output(KeyModel, &model); err != nil {
		return nil, stepFailure(StepComputePSA, err)
	}
	var base analysis.BaseCaseResult
	if err := st.Output(KeyBaseCase, &base); err != nil {
		return nil, stepFailure(StepComputePSA, err)
	}

	result, err := s.calc.PSA(ctx, &model, &base)
	if err != nil {
		return nil, stepFailure(StepComputePSA, err)
	}
	return singleOutput(StepComputePSA, KeyPSA, result)
}
