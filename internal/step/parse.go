package step

import (
	"context"
	"encoding/json"

	"github.com/healtheconlab/ceflow/internal/analysis"
	"github.com/healtheconlab/ceflow/internal/state"
	"github.com/healtheconlab/ceflow/pkg/schema"
)

// ParseStep derives structured request attributes from the raw request text.
type ParseStep struct {
	parser *analysis.Parser
}

// NewParseStep creates the parse step.
func NewParseStep(parser *analysis.Parser) *ParseStep {
	return &ParseStep{parser: parser}
}

func (s *ParseStep) Name() string { return StepParse }

func (s *ParseStep) OutputKeys() []string { return []string{KeyParsed} }

func (s *ParseStep) Run(ctx context.Context, st *state.State) (*state.Update, error) {
	parsed, err := s.parser.Parse(ctx, st.Request)
	if err != nil {
		return nil, stepFailure(StepParse, err)
	}
	return singleOutput(StepParse, KeyParsed, parsed)
}

// stepFailure tags a collaborator failure with the step name. Already-typed
// pipeline errors keep their code.
func stepFailure(stepName string, err error) error {
	if perr, ok := err.(*schema.PipelineError); ok {
		return perr.WithStep(stepName)
	}
	return schema.NewError(schema.ErrCodeStepExecution, err.Error()).WithStep(stepName).WithCause(err)
}

// singleOutput marshals one value into an update for the given key.
func singleOutput(stepName, key string, v any) (*state.Update, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepExecution, "marshal %q output: %s", key, err.Error()).
			WithStep(stepName).WithCause(err)
	}
	return &state.Update{Outputs: map[string]json.RawMessage{key: raw}}, nil
}
