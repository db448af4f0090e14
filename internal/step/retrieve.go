package step

import (
	"context"
	"fmt"

	"github.com/healtheconlab/ceflow/internal/analysis"
	"github.com/healtheconlab/ceflow/internal/state"
)

// RetrieveStep gathers parameter evidence for the parsed request through the
// configured provider.
type RetrieveStep struct {
	provider analysis.EvidenceProvider
}

// NewRetrieveStep creates the evidence retrieval step.
func NewRetrieveStep(provider analysis.EvidenceProvider) *RetrieveStep {
	return &RetrieveStep{provider: provider}
}

func (s *RetrieveStep) Name() string { return StepRetrieve }

func (s *RetrieveStep) OutputKeys() []string { return []string{KeyEvidence} }

func (s *RetrieveStep) Run(ctx context.Context, st *state.State) (*state.Update, error) {
	var parsed analysis.ParsedRequest
	if err := st.Output(KeyParsed, &parsed); err != nil {
		return nil, stepFailure(StepRetrieve, err)
	}

	ev, err := s.provider.Retrieve(ctx, &parsed)
	if err != nil {
		return nil, stepFailure(StepRetrieve, err)
	}

	upd, err := singleOutput(StepRetrieve, KeyEvidence, ev)
	if err != nil {
		return nil, err
	}
	for _, name := range ev.Missing {
		upd.Warnings = append(upd.Warnings, fmt.Sprintf("no published estimate found for %s", name))
	}
	return upd, nil
}
