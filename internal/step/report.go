package step

import (
	"context"

	"github.com/healtheconlab/ceflow/internal/analysis"
	"github.com/healtheconlab/ceflow/internal/state"
)

// ReportStep renders the analysis summary from whichever outputs the run has
// accumulated. It works for complete runs and for runs that skipped
// computation after blocking validation findings.
type ReportStep struct {
	reporter *analysis.Reporter
}

// NewReportStep creates the report generation step.
func NewReportStep(reporter *analysis.Reporter) *ReportStep {
	return &ReportStep{reporter: reporter}
}

func (s *ReportStep) Name() string { return StepReport }

func (s *ReportStep) OutputKeys() []string { return []string{KeyReport} }

func (s *ReportStep) Run(ctx context.Context, st *state.State) (*state.Update, error) {
	title := "Cost-Effectiveness Analysis"
	var parsed analysis.ParsedRequest
	if st.Has(KeyParsed) {
		if err := st.Output(KeyParsed, &parsed); err == nil && parsed.ProjectName != "" {
			title = parsed.ProjectName
		}
	}

	text, err := s.reporter.Render(ctx, title, st.Outputs)
	if err != nil {
		return nil, stepFailure(StepReport, err)
	}
	return singleOutput(StepReport, KeyReport, text)
}
