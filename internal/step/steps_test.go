package step

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healtheconlab/ceflow/internal/analysis"
	"github.com/healtheconlab/ceflow/internal/state"
	"github.com/healtheconlab/ceflow/pkg/schema"
)

func newRunState(t *testing.T, request string) *state.State {
	t.Helper()
	return state.New(uuid.New().String(), schema.ModeAutomated, request)
}

// advance runs a step and merges its update, failing the test on any error.
func advance(t *testing.T, s Step, st *state.State) *state.State {
	t.Helper()
	upd, err := s.Run(context.Background(), st)
	require.NoError(t, err)
	next, err := st.WithUpdate(s.Name(), s.OutputKeys(), upd)
	require.NoError(t, err)
	return next
}

func TestParseStepWritesDeclaredKey(t *testing.T) {
	st := newRunState(t, "markov model for diabetes, drug A vs standard of care")
	st = advance(t, NewParseStep(analysis.NewParser()), st)

	require.True(t, st.Has(KeyParsed))
	assert.Equal(t, StepParse, st.Owners[KeyParsed])

	var parsed analysis.ParsedRequest
	require.NoError(t, st.Output(KeyParsed, &parsed))
	assert.Equal(t, analysis.ModelMarkov, parsed.ModelType)
}

func TestParseStepEmptyRequest(t *testing.T) {
	st := newRunState(t, "")

	_, err := NewParseStep(analysis.NewParser()).Run(context.Background(), st)
	require.Error(t, err)
	perr, ok := err.(*schema.PipelineError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeStepExecution, perr.Code)
	assert.Equal(t, StepParse, perr.Step)
}

func TestRetrieveStepRequiresParsed(t *testing.T) {
	st := newRunState(t, "anything")

	_, err := NewRetrieveStep(analysis.NewCatalogProvider()).Run(context.Background(), st)
	require.Error(t, err)
	perr, ok := err.(*schema.PipelineError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeStepExecution, perr.Code)
}

func TestPipelinePrefixThroughValidate(t *testing.T) {
	st := newRunState(t, "markov model for diabetes, drug A vs standard of care")

	st = advance(t, NewParseStep(analysis.NewParser()), st)
	st = advance(t, NewRetrieveStep(analysis.NewCatalogProvider()), st)
	st = advance(t, NewBuildStep(analysis.NewBuilder()), st)
	st = advance(t, NewValidateStep(analysis.NewValidator()), st)

	for _, key := range []string{KeyParsed, KeyEvidence, KeyModel, KeyValidation} {
		assert.True(t, st.Has(key), "missing %s", key)
	}

	var result analysis.ValidationResult
	require.NoError(t, st.Output(KeyValidation, &result))
	assert.True(t, result.Valid)
}

func TestComputeChain(t *testing.T) {
	st := newRunState(t, "markov model for diabetes, drug A vs standard of care")
	calc := analysis.NewCalculator()

	st = advance(t, NewParseStep(analysis.NewParser()), st)
	st = advance(t, NewRetrieveStep(analysis.NewCatalogProvider()), st)
	st = advance(t, NewBuildStep(analysis.NewBuilder()), st)
	st = advance(t, NewBaseCaseStep(calc), st)
	st = advance(t, NewDSAStep(calc), st)
	st = advance(t, NewPSAStep(calc), st)

	var base analysis.BaseCaseResult
	require.NoError(t, st.Output(KeyBaseCase, &base))
	assert.NotZero(t, base.ICER)

	var dsa analysis.DSAResult
	require.NoError(t, st.Output(KeyDSA, &dsa))
	assert.NotEmpty(t, dsa.Tornado)

	var psa analysis.PSAResult
	require.NoError(t, st.Output(KeyPSA, &psa))
	assert.Equal(t, 1000, psa.Simulations)
}

func TestDSAStepRequiresBaseCase(t *testing.T) {
	st := newRunState(t, "markov model for diabetes")
	calc := analysis.NewCalculator()

	st = advance(t, NewParseStep(analysis.NewParser()), st)
	st = advance(t, NewRetrieveStep(analysis.NewCatalogProvider()), st)
	st = advance(t, NewBuildStep(analysis.NewBuilder()), st)

	_, err := NewDSAStep(calc).Run(context.Background(), st)
	require.Error(t, err)
	perr, ok := err.(*schema.PipelineError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeStepExecution, perr.Code)
	assert.Equal(t, StepComputeDSA, perr.Step)
}

func TestReportStepRendersWithoutComputation(t *testing.T) {
	st := newRunState(t, "markov model for diabetes")
	st = advance(t, NewParseStep(analysis.NewParser()), st)

	var err error
	st, err = st.WithUpdate(StepValidate, []string{KeyValidation}, &state.Update{
		Outputs: map[string]json.RawMessage{
			KeyValidation: json.RawMessage(`{"errors":["bad parameter"],"warnings":[],"suggestions":[],"is_valid":false}`),
		},
	})
	require.NoError(t, err)

	st = advance(t, NewReportStep(analysis.NewReporter()), st)

	var report string
	require.NoError(t, st.Output(KeyReport, &report))
	assert.Contains(t, report, "Validation")
	assert.NotContains(t, report, "Base Case")
}

func TestMarkerStepsAreNoOps(t *testing.T) {
	st := newRunState(t, "anything")

	upd, err := NewAwaitingDecisionStep().Run(context.Background(), st)
	require.NoError(t, err)
	assert.Nil(t, upd)

	upd, err = NewEndStep().Run(context.Background(), st)
	require.NoError(t, err)
	assert.Nil(t, upd)
}

func TestDefaultRegistryHasAllSteps(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	for _, name := range []string{
		StepParse, StepRetrieve, StepBuild, StepValidate, StepAwaitingDecision,
		StepComputeBase, StepComputeDSA, StepComputePSA, StepReport, StepEnd,
	} {
		_, err := reg.Get(name)
		assert.NoError(t, err, "step %s", name)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewEndStep()))

	err := reg.Register(NewEndStep())
	require.Error(t, err)
	perr, ok := err.(*schema.PipelineError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, perr.Code)
}
