package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/healtheconlab/ceflow/pkg/schema"
)

// Parser derives structured request attributes from a free-text analysis
// request. Recognition is keyword-driven and deterministic.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

var (
	modelKeywords = []struct {
		keyword string
		model   ModelType
	}{
		{"markov", ModelMarkov},
		{"state transition", ModelMarkov},
		{"cohort", ModelMarkov},
		{"decision tree", ModelDecisionTree},
		{"decision-tree", ModelDecisionTree},
		{"partitioned survival", ModelPSM},
		{"survival model", ModelPSM},
		{"psm", ModelPSM},
	}

	diseaseKeywords = []string{
		"diabetes", "oncology", "cancer", "cardiovascular", "heart failure",
		"copd", "asthma", "hepatitis", "hiv", "stroke", "depression",
		"rheumatoid arthritis", "osteoporosis", "obesity", "hypertension",
	}
)

// Parse extracts the project attributes from the request text. It never
// guesses silently: fields it cannot recognize are left at documented
// defaults and recorded in the summary.
func (p *Parser) Parse(_ context.Context, request string) (*ParsedRequest, error) {
	text := strings.TrimSpace(request)
	if text == "" {
		return nil, schema.NewError(schema.ErrCodeStepExecution, "empty analysis request")
	}
	lower := strings.ToLower(text)

	parsed := &ParsedRequest{
		ProjectName: "Cost-Effectiveness Analysis",
		ModelType:   ModelMarkov,
	}

	for _, mk := range modelKeywords {
		if strings.Contains(lower, mk.keyword) {
			parsed.ModelType = mk.model
			break
		}
	}

	for _, d := range diseaseKeywords {
		if strings.Contains(lower, d) {
			parsed.DiseaseArea = d
			break
		}
	}

	if intervention, comparator, ok := splitComparison(text); ok {
		parsed.Intervention = intervention
		parsed.Comparator = comparator
	}
	if parsed.Comparator == "" && strings.Contains(lower, "standard of care") {
		parsed.Comparator = "standard of care"
	}

	if parsed.DiseaseArea != "" {
		parsed.ProjectName = fmt.Sprintf("CEA: %s", titleCase(parsed.DiseaseArea))
	}
	parsed.Summary = p.summarize(parsed)
	return parsed, nil
}

func (p *Parser) summarize(r *ParsedRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s model", r.ModelType)
	if r.Intervention != "" {
		fmt.Fprintf(&b, ", %s vs %s", r.Intervention, orUnspecified(r.Comparator))
	}
	if r.DiseaseArea != "" {
		fmt.Fprintf(&b, " in %s", r.DiseaseArea)
	}
	return b.String()
}

// connectorWords bound entity extraction around "vs": an intervention phrase
// stops when one is seen walking left, a comparator phrase when walking right.
var connectorWords = map[string]bool{
	"a": true, "an": true, "the": true, "for": true, "in": true,
	"comparing": true, "compare": true, "compared": true, "evaluate": true,
	"evaluating": true, "assess": true, "assessing": true, "model": true,
	"analysis": true, "using": true, "with": true, "build": true, "run": true,
}

func isVsWord(tok string) bool {
	switch strings.ToLower(strings.TrimSuffix(tok, ".")) {
	case "vs", "versus", "against":
		return true
	}
	return false
}

// splitComparison finds a "<intervention> vs <comparator>" phrase. Entities
// are the word runs on either side of the separator, bounded by connector
// words and a small length cap.
func splitComparison(text string) (string, string, bool) {
	tokens := strings.Fields(strings.Trim(text, ".?!"))
	for i, tok := range tokens {
		if !isVsWord(tok) || i == 0 || i == len(tokens)-1 {
			continue
		}

		var left []string
		for j := i - 1; j >= 0 && len(left) < 3; j-- {
			w := strings.ToLower(strings.Trim(tokens[j], ",."))
			if connectorWords[w] || isVsWord(tokens[j]) {
				break
			}
			if strings.HasSuffix(tokens[j], ",") || strings.HasSuffix(tokens[j], ";") {
				// A clause boundary; the entity starts after it.
				break
			}
			left = append([]string{strings.Trim(tokens[j], ",.")}, left...)
		}

		var right []string
		for j := i + 1; j < len(tokens) && len(right) < 4; j++ {
			w := strings.ToLower(strings.Trim(tokens[j], ",."))
			if connectorWords[w] || isVsWord(tokens[j]) {
				break
			}
			right = append(right, strings.Trim(tokens[j], ",."))
			if strings.HasSuffix(tokens[j], ",") || strings.HasSuffix(tokens[j], ";") {
				break
			}
		}

		if len(left) > 0 && len(right) > 0 {
			return strings.Join(left, " "), strings.Join(right, " "), true
		}
	}
	return "", "", false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func orUnspecified(s string) string {
	if s == "" {
		return "unspecified comparator"
	}
	return s
}
