package analysis

import (
	"context"

	"github.com/healtheconlab/ceflow/pkg/schema"
)

// Analysis settings applied to every constructed model.
const (
	defaultTimeHorizonYears = 10.0
	defaultDiscountRate     = 0.03
	defaultWTPThreshold     = 50000.0
)

// Builder constructs the decision-analytic model structure for a parsed
// request and populates it with the retrieved parameter estimates.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build assembles the model. The structure depends on the model type; the
// parameter set is taken from evidence as-is so provenance survives into
// validation and reporting.
func (b *Builder) Build(_ context.Context, req *ParsedRequest, ev *Evidence) (*Model, error) {
	if req == nil || ev == nil {
		return nil, schema.NewError(schema.ErrCodeStepExecution, "build requires parsed request and evidence")
	}
	if !req.ModelType.Valid() {
		return nil, schema.NewErrorf(schema.ErrCodeStepExecution, "unknown model type %q", req.ModelType)
	}

	params := make(map[string]Parameter, len(ev.Parameters))
	for name, p := range ev.Parameters {
		params[name] = p
	}

	return &Model{
		Type:             req.ModelType,
		Structure:        structureFor(req),
		Parameters:       params,
		TimeHorizonYears: defaultTimeHorizonYears,
		DiscountRate:     defaultDiscountRate,
		WTPThreshold:     defaultWTPThreshold,
	}, nil
}

func structureFor(req *ParsedRequest) map[string]any {
	switch req.ModelType {
	case ModelMarkov:
		return map[string]any{
			"states":       []string{"healthy", "diseased", "dead"},
			"cycle_length": "1 year",
			"transitions": []map[string]string{
				{"from": "healthy", "to": "diseased"},
				{"from": "healthy", "to": "dead"},
				{"from": "diseased", "to": "dead"},
			},
			"arms": []string{armName(req.Intervention, "intervention"), armName(req.Comparator, "comparator")},
		}
	case ModelDecisionTree:
		return map[string]any{
			"root": "treatment choice",
			"branches": []map[string]any{
				{"arm": armName(req.Intervention, "intervention"), "outcomes": []string{"response", "no response"}},
				{"arm": armName(req.Comparator, "comparator"), "outcomes": []string{"response", "no response"}},
			},
		}
	case ModelPSM:
		return map[string]any{
			"partitions": []string{"progression-free", "progressed", "dead"},
			"curves":     []string{"overall survival", "progression-free survival"},
			"arms":       []string{armName(req.Intervention, "intervention"), armName(req.Comparator, "comparator")},
		}
	}
	return nil
}

func armName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
