// Package analysis implements the domain collaborators behind the pipeline
// steps: request parsing, evidence retrieval, model construction, parameter
// validation, the economic computations and report rendering.
package analysis

// ModelType identifies the decision-analytic model family.
type ModelType string

const (
	ModelMarkov       ModelType = "markov"
	ModelDecisionTree ModelType = "decision_tree"
	ModelPSM          ModelType = "psm"
)

// Valid reports whether t is a known model type.
func (t ModelType) Valid() bool {
	switch t {
	case ModelMarkov, ModelDecisionTree, ModelPSM:
		return true
	}
	return false
}

// ParsedRequest is the structured form of a free-text analysis request.
type ParsedRequest struct {
	ProjectName  string    `json:"project_name"`
	DiseaseArea  string    `json:"disease_area"`
	Intervention string    `json:"intervention"`
	Comparator   string    `json:"comparator"`
	ModelType    ModelType `json:"model_type"`
	Summary      string    `json:"summary"`
}

// Parameter is one model input with its uncertainty range and provenance.
type Parameter struct {
	Value   float64 `json:"value"`
	Low     float64 `json:"low,omitempty"`
	High    float64 `json:"high,omitempty"`
	Source  string  `json:"source,omitempty"`
	Quality string  `json:"quality,omitempty"`
}

// Evidence is the retrieval result: parameter estimates keyed by name, the
// literature sources they came from, and parameters the search could not find.
type Evidence struct {
	Parameters map[string]Parameter `json:"parameters"`
	Sources    []string             `json:"sources"`
	Missing    []string             `json:"missing,omitempty"`
}

// Model is the constructed decision-analytic model: its structure plus the
// populated parameter set and the analysis settings.
type Model struct {
	Type             ModelType            `json:"type"`
	Structure        map[string]any       `json:"structure"`
	Parameters       map[string]Parameter `json:"parameters"`
	TimeHorizonYears float64              `json:"time_horizon_years"`
	DiscountRate     float64              `json:"discount_rate"`
	WTPThreshold     float64              `json:"wtp_threshold"`
}

// ValidationResult carries the three independent finding lists. Errors block
// computation; warnings and suggestions are advisory.
type ValidationResult struct {
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
	Valid       bool     `json:"is_valid"`
}

// BaseCaseResult is the primary cost-effectiveness computation output.
type BaseCaseResult struct {
	InterventionCost  float64 `json:"intervention_cost"`
	ComparatorCost    float64 `json:"comparator_cost"`
	InterventionQALYs float64 `json:"intervention_qalys"`
	ComparatorQALYs   float64 `json:"comparator_qalys"`
	IncrementalCost   float64 `json:"incremental_cost"`
	IncrementalQALYs  float64 `json:"incremental_qalys"`
	ICER              float64 `json:"icer"`
	NMB               float64 `json:"nmb"`
	CostEffective     bool    `json:"cost_effective"`
}

// TornadoEntry is one bar of the one-way sensitivity tornado.
type TornadoEntry struct {
	Parameter string  `json:"parameter"`
	BaseValue float64 `json:"base_value"`
	LowValue  float64 `json:"low_value"`
	HighValue float64 `json:"high_value"`
	ICERLow   float64 `json:"icer_low"`
	ICERHigh  float64 `json:"icer_high"`
	Impact    float64 `json:"impact"`
}

// DSAResult is the deterministic sensitivity analysis output.
type DSAResult struct {
	Tornado       []TornadoEntry `json:"tornado_data"`
	MostSensitive []string       `json:"most_sensitive"`
}

// CEACPoint is one point on the cost-effectiveness acceptability curve.
type CEACPoint struct {
	WTP         float64 `json:"wtp"`
	Probability float64 `json:"probability"`
}

// PSAResult is the probabilistic sensitivity analysis output.
type PSAResult struct {
	Simulations      int         `json:"n_simulations"`
	MeanICER         float64     `json:"mean_icer"`
	CredibleInterval [2]float64  `json:"credible_interval"`
	CEAC             []CEACPoint `json:"ceac"`
}
